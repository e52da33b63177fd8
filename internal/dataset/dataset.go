// Package dataset turns a persisted interaction graph into the view a model trains on:
// the retained DDI subtypes, the usable edge-ID universe and the bidirected
// message-passing graph.
package dataset

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

// Fixed cross-type relations, appended after the DDI subtype relations
const (
	RelationDPI = "DPI"
	RelationPDI = "PDI"
	RelationPPI = "PPI"
)

// ErrNoSubtypes is returned when filtering leaves nothing to learn
var ErrNoSubtypes = errors.New("no DDI subtype reaches the minimum sample size")

// RelationName returns the relation name of a DDI subtype
func RelationName(subtype int) string {
	return fmt.Sprintf("DDI_%02d", subtype)
}

// Interaction is one usable drug-drug edge
type Interaction struct {
	Src     int
	Dst     int
	Subtype int
	// Class is the position of Subtype in DataSet.DDITypes
	Class int
}

// Label returns the predictor target of the interaction; 0 is reserved for "no interaction"
func (i Interaction) Label() int {
	return i.Class + 1
}

// DataSet is immutable after construction and safe for concurrent readers.
type DataSet struct {
	// Graph is the bidirected message-passing graph with features attached
	Graph *hetero.Graph

	// DDITypes are the retained subtype labels in ascending order
	DDITypes []int

	NumDrugFeatures    int
	NumProteinFeatures int

	edges     []Interaction
	known     map[int64]struct{}
	counts    map[int]int
	ddiDegree []float64
}

// Load reads an artifact and builds the dataset
func Load(path string, minSampleSize int) (*DataSet, error) {
	a, err := hetero.ReadArtifact(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load dataset")
	}
	return New(a, minSampleSize)
}

// New builds the dataset from a decoded artifact. A subtype is retained iff it
// has at least minSampleSize interactions; interactions of other subtypes are
// dropped from the edge-ID universe and from the message-passing graph.
func New(a *hetero.Artifact, minSampleSize int) (*DataSet, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, e := range a.DDI {
		counts[e.Label]++
	}
	retained := make([]int, 0, len(counts))
	for subtype, n := range counts {
		if n >= minSampleSize {
			retained = append(retained, subtype)
		}
	}
	if len(retained) == 0 {
		return nil, errors.Wrapf(ErrNoSubtypes, "min_sample_size=%d, %d subtypes", minSampleSize, len(counts))
	}
	sort.Ints(retained)
	class := make(map[int]int, len(retained))
	for i, subtype := range retained {
		class[subtype] = i
	}

	numDrugs := a.NumDrugs()
	d := &DataSet{
		DDITypes:           retained,
		NumDrugFeatures:    a.DrugFeatures.Cols,
		NumProteinFeatures: a.ProteinFeatures.Cols,
		known:              make(map[int64]struct{}, 2*len(a.DDI)),
		counts:             counts,
		ddiDegree:          make([]float64, numDrugs),
	}

	from := make([][]int, len(retained))
	to := make([][]int, len(retained))
	for _, e := range a.DDI {
		d.known[pairKey(e.Src, e.Dst)] = struct{}{}
		d.known[pairKey(e.Dst, e.Src)] = struct{}{}

		c, ok := class[e.Label]
		if !ok {
			continue
		}
		d.edges = append(d.edges, Interaction{Src: e.Src, Dst: e.Dst, Subtype: e.Label, Class: c})
		from[c] = append(from[c], e.Src)
		to[c] = append(to[c], e.Dst)
		d.ddiDegree[e.Src]++
		d.ddiDegree[e.Dst]++
	}

	g := hetero.NewGraph(numDrugs, a.NumProteins())
	for c, subtype := range retained {
		f, t := hetero.Bidirect(from[c], to[c])
		if _, err := g.AddRelation(RelationName(subtype), hetero.Drug, hetero.Drug, f, t); err != nil {
			return nil, errors.Wrap(err, "failed to build DDI relation")
		}
	}

	dpiFrom, dpiTo := make([]int, len(a.DPI)), make([]int, len(a.DPI))
	for i, e := range a.DPI {
		dpiFrom[i], dpiTo[i] = e.Src, e.Dst
	}
	ppiFrom, ppiTo := make([]int, len(a.PPI)), make([]int, len(a.PPI))
	for i, e := range a.PPI {
		ppiFrom[i], ppiTo[i] = e.Src, e.Dst
	}
	ppiFrom, ppiTo = hetero.Bidirect(ppiFrom, ppiTo)

	for _, rel := range []struct {
		name     string
		src, dst hetero.NodeType
		from, to []int
	}{
		{RelationDPI, hetero.Drug, hetero.Protein, dpiFrom, dpiTo},
		{RelationPDI, hetero.Protein, hetero.Drug, dpiTo, dpiFrom},
		{RelationPPI, hetero.Protein, hetero.Protein, ppiFrom, ppiTo},
	} {
		if _, err := g.AddRelation(rel.name, rel.src, rel.dst, rel.from, rel.to); err != nil {
			return nil, errors.Wrapf(err, "failed to build %s relation", rel.name)
		}
	}

	if err := g.SetFeatures(hetero.Drug, a.DrugFeatures.Dense()); err != nil {
		return nil, err
	}
	if err := g.SetFeatures(hetero.Protein, a.ProteinFeatures.Dense()); err != nil {
		return nil, err
	}
	d.Graph = g
	return d, nil
}

// NumDDI returns the size of the usable edge-ID universe
func (d *DataSet) NumDDI() int {
	return len(d.edges)
}

// NumDDITypes returns the number of retained subtypes
func (d *DataSet) NumDDITypes() int {
	return len(d.DDITypes)
}

// NumDrugs returns the number of drug nodes
func (d *DataSet) NumDrugs() int {
	return d.Graph.NumNodes(hetero.Drug)
}

// Interaction returns the usable interaction with the given edge ID
func (d *DataSet) Interaction(id int) Interaction {
	return d.edges[id]
}

// Classes returns the class of every usable interaction, indexed by edge ID
func (d *DataSet) Classes() []int {
	classes := make([]int, len(d.edges))
	for i, e := range d.edges {
		classes[i] = e.Class
	}
	return classes
}

// IsInteraction reports whether u and v interact in the raw artifact, in either
// direction and under any subtype, retained or not.
func (d *DataSet) IsInteraction(u, v int) bool {
	_, ok := d.known[pairKey(u, v)]
	return ok
}

// SubtypeCount returns the raw number of interactions of a subtype
func (d *DataSet) SubtypeCount(subtype int) int {
	return d.counts[subtype]
}

// Subtypes returns every subtype present in the artifact, ascending
func (d *DataSet) Subtypes() []int {
	all := make([]int, 0, len(d.counts))
	for s := range d.counts {
		all = append(all, s)
	}
	sort.Ints(all)
	return all
}

// DrugDegrees returns the number of usable interactions each drug takes part in
func (d *DataSet) DrugDegrees() []float64 {
	return d.ddiDegree
}

// RelationNames returns the encoder relations in RelationID order
func (d *DataSet) RelationNames() []string {
	rels := d.Graph.Relations()
	names := make([]string, len(rels))
	for i, r := range rels {
		names[i] = r.Name
	}
	return names
}

func pairKey(u, v int) int64 {
	return int64(u)<<32 | int64(uint32(v))
}
