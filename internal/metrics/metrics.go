// Package metrics computes multi-class classification scores. Averaged scores are
// weighted by the support of each class among the true labels; a class that is
// only predicted has zero weight, and an undefined ratio counts as zero.
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Report holds the scores of one batch or epoch
type Report struct {
	Loss      float64 `csv:"loss" yaml:"loss"`
	Accuracy  float64 `csv:"acc" yaml:"acc"`
	F1        float64 `csv:"f1" yaml:"f1"`
	Precision float64 `csv:"precision" yaml:"precision"`
	Recall    float64 `csv:"recall" yaml:"recall"`
}

type counts struct {
	tp, fp, fn, support float64
}

// Classification scores predictions against true labels. Both slices must have
// the same length; empty input yields a zero report.
func Classification(yTrue, yPred []int) Report {
	if len(yTrue) != len(yPred) {
		panic("metrics: label slices differ in length")
	}
	if len(yTrue) == 0 {
		return Report{}
	}

	perClass := make(map[int]*counts)
	get := func(c int) *counts {
		if perClass[c] == nil {
			perClass[c] = &counts{}
		}
		return perClass[c]
	}
	var correct float64
	for i, t := range yTrue {
		p := yPred[i]
		get(t).support++
		if t == p {
			correct++
			get(t).tp++
			continue
		}
		get(p).fp++
		get(t).fn++
	}

	classes := make([]int, 0, len(perClass))
	for c := range perClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	weights := make([]float64, len(classes))
	precision := make([]float64, len(classes))
	recall := make([]float64, len(classes))
	f1 := make([]float64, len(classes))
	for i, c := range classes {
		k := perClass[c]
		weights[i] = k.support
		precision[i] = ratio(k.tp, k.tp+k.fp)
		recall[i] = ratio(k.tp, k.tp+k.fn)
		f1[i] = ratio(2*k.tp, 2*k.tp+k.fp+k.fn)
	}

	total := floats.Sum(weights)
	return Report{
		Accuracy:  correct / float64(len(yTrue)),
		Precision: floats.Dot(weights, precision) / total,
		Recall:    floats.Dot(weights, recall) / total,
		F1:        floats.Dot(weights, f1) / total,
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Aggregator averages per-batch reports over an epoch
type Aggregator struct {
	loss, acc, f1, precision, recall []float64
}

// Add records one batch
func (a *Aggregator) Add(r Report) {
	a.loss = append(a.loss, r.Loss)
	a.acc = append(a.acc, r.Accuracy)
	a.f1 = append(a.f1, r.F1)
	a.precision = append(a.precision, r.Precision)
	a.recall = append(a.recall, r.Recall)
}

// Len returns the number of recorded batches
func (a *Aggregator) Len() int {
	return len(a.loss)
}

// Mean returns the unweighted mean of every recorded score
func (a *Aggregator) Mean() Report {
	if a.Len() == 0 {
		return Report{}
	}
	return Report{
		Loss:      stat.Mean(a.loss, nil),
		Accuracy:  stat.Mean(a.acc, nil),
		F1:        stat.Mean(a.f1, nil),
		Precision: stat.Mean(a.precision, nil),
		Recall:    stat.Mean(a.recall, nil),
	}
}
