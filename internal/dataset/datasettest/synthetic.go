// Package datasettest builds small random interaction graphs for tests.
package datasettest

import (
	"math/rand"
	"sort"

	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

// Options shape a synthetic artifact
type Options struct {
	Drugs           int
	Proteins        int
	DrugFeatures    int
	ProteinFeatures int
	// Subtypes maps a DDI subtype label to its number of interactions
	Subtypes map[int]int
	DPI      int
	PPI      int
	Seed     int64
}

// Small returns options for a graph that trains in milliseconds
func Small() Options {
	return Options{
		Drugs:           30,
		Proteins:        12,
		DrugFeatures:    6,
		ProteinFeatures: 4,
		Subtypes:        map[int]int{1: 40, 4: 25, 9: 15},
		DPI:             40,
		PPI:             20,
		Seed:            1,
	}
}

// Artifact generates an artifact. DDI pairs are distinct unordered pairs, so the
// drug count must leave room for the requested interactions and for negatives.
func Artifact(opts Options) *hetero.Artifact {
	rng := rand.New(rand.NewSource(opts.Seed))

	a := &hetero.Artifact{
		DrugFeatures:    randomMatrix(rng, opts.Drugs, opts.DrugFeatures),
		ProteinFeatures: randomMatrix(rng, opts.Proteins, opts.ProteinFeatures),
	}

	labels := make([]int, 0, len(opts.Subtypes))
	for l := range opts.Subtypes {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	used := make(map[[2]int]bool)
	for _, l := range labels {
		for n := 0; n < opts.Subtypes[l]; n++ {
			for {
				u, v := rng.Intn(opts.Drugs), rng.Intn(opts.Drugs)
				if u == v || used[[2]int{u, v}] || used[[2]int{v, u}] {
					continue
				}
				used[[2]int{u, v}] = true
				a.DDI = append(a.DDI, hetero.LabeledEdge{Src: u, Dst: v, Label: l})
				break
			}
		}
	}
	// interleave subtypes the way a real export would
	rng.Shuffle(len(a.DDI), func(i, j int) { a.DDI[i], a.DDI[j] = a.DDI[j], a.DDI[i] })

	for n := 0; n < opts.DPI; n++ {
		a.DPI = append(a.DPI, hetero.Edge{Src: rng.Intn(opts.Drugs), Dst: rng.Intn(opts.Proteins)})
	}
	for n := 0; n < opts.PPI; n++ {
		a.PPI = append(a.PPI, hetero.Edge{Src: rng.Intn(opts.Proteins), Dst: rng.Intn(opts.Proteins)})
	}
	return a
}

func randomMatrix(rng *rand.Rand, rows, cols int) hetero.Matrix {
	m := hetero.Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	for i := range m.Data {
		m.Data[i] = rng.NormFloat64()
	}
	return m
}
