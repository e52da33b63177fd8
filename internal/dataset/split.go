package dataset

import (
	"math"
	"math/rand"
	"sort"
)

// Split partitions the usable edge IDs into train and test sets, stratified by subtype.
func (d *DataSet) Split(testFraction float64, rng *rand.Rand) (train, test []int) {
	return StratifiedSplit(d.Classes(), testFraction, rng)
}

// StratifiedSplit partitions indices 0..len(classes)-1 so that every class sends
// round(n*testFraction) of its n members to test, keeping at least one in train.
// Both results are sorted.
func StratifiedSplit(classes []int, testFraction float64, rng *rand.Rand) (train, test []int) {
	byClass := make(map[int][]int)
	order := make([]int, 0)
	for id, c := range classes {
		if _, ok := byClass[c]; !ok {
			order = append(order, c)
		}
		byClass[c] = append(byClass[c], id)
	}
	// map iteration order must not leak into the rng stream
	sort.Ints(order)

	train = make([]int, 0, len(classes))
	test = make([]int, 0, int(float64(len(classes))*testFraction)+len(order))
	for _, c := range order {
		ids := byClass[c]
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		nTest := int(math.Round(float64(len(ids)) * testFraction))
		if nTest > len(ids)-1 {
			nTest = len(ids) - 1
		}
		if nTest < 0 {
			nTest = 0
		}
		test = append(test, ids[:nTest]...)
		train = append(train, ids[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
