package alias

import (
	"math"
	"math/rand"

	"github.com/viterin/vek"
)

// PowerSample is the exponent applied to node degrees when building
// negative-sampling distributions
const PowerSample = 0.75

// entry is one bucket of the alias table
type entry struct {
	alias int
	prob  float64
}

// Table supports O(1) weighted sampling (Walker's alias method, Vose's construction)
type Table struct {
	entries []entry
}

// New builds an alias table over distribution[i]^power.
// Non-positive weights are never drawn unless every weight is non-positive,
// in which case the table is uniform.
func New(distribution []float64, power float64) *Table {
	n := len(distribution)
	t := &Table{entries: make([]entry, n)}
	if n == 0 {
		return t
	}

	// Apply power transformation and normalize
	norm := make([]float64, n)
	for i := 0; i < n; i++ {
		if distribution[i] > 0 {
			norm[i] = math.Pow(distribution[i], power)
		}
	}
	sum := vek.Sum(norm)

	if sum == 0 {
		for i := 0; i < n; i++ {
			t.entries[i] = entry{alias: i, prob: 1.0}
		}
		return t
	}

	vek.MulNumber_Inplace(norm, float64(n)/sum)

	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if norm[i] < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]

		g := large[len(large)-1]
		large = large[:len(large)-1]

		t.entries[l] = entry{alias: g, prob: norm[l]}

		norm[g] = norm[g] + norm[l] - 1.0
		if norm[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}

	// Leftovers are full buckets up to rounding error
	for _, g := range large {
		t.entries[g] = entry{alias: g, prob: 1.0}
	}
	for _, l := range small {
		t.entries[l] = entry{alias: l, prob: 1.0}
	}

	return t
}

// Len returns the number of outcomes
func (t *Table) Len() int {
	return len(t.entries)
}

// Sample draws one outcome, or -1 for an empty table
func (t *Table) Sample(rng *rand.Rand) int {
	if len(t.entries) == 0 {
		return -1
	}

	i := rng.Intn(len(t.entries))
	if rng.Float64() < t.entries[i].prob {
		return i
	}
	return t.entries[i].alias
}
