package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerfectPrediction(t *testing.T) {
	r := Classification([]int{0, 1, 2, 2}, []int{0, 1, 2, 2})
	assert.Equal(t, Report{Accuracy: 1, F1: 1, Precision: 1, Recall: 1}, r)
}

func TestWeightedAverages(t *testing.T) {
	// class 0: tp=2 fn=1 fp=0, class 1: tp=1 fp=1 fn=0
	r := Classification([]int{0, 0, 0, 1}, []int{0, 0, 1, 1})
	assert.InDelta(t, 0.75, r.Accuracy, 1e-12)
	assert.InDelta(t, (3*1.0+1*0.5)/4, r.Precision, 1e-12)
	assert.InDelta(t, (3*(2.0/3)+1*1.0)/4, r.Recall, 1e-12)
	assert.InDelta(t, (3*0.8+1*(2.0/3))/4, r.F1, 1e-12)
}

func TestPredictedOnlyClassHasNoWeight(t *testing.T) {
	// class 5 is never true and carries zero weight
	r := Classification([]int{1, 1}, []int{1, 5})
	assert.InDelta(t, 0.5, r.Accuracy, 1e-12)
	assert.InDelta(t, 1.0, r.Precision, 1e-12)
	assert.InDelta(t, 0.5, r.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, r.F1, 1e-12)
}

func TestAbsentClassDoesNotFail(t *testing.T) {
	// no positives at all: only the "no interaction" class is present
	var r Report
	assert.NotPanics(t, func() { r = Classification([]int{0, 0, 0}, []int{2, 2, 2}) })
	assert.Equal(t, 0.0, r.Accuracy)
	assert.Equal(t, 0.0, r.F1)
	assert.Equal(t, 0.0, r.Precision)
	assert.Equal(t, 0.0, r.Recall)
}

func TestEmptyInput(t *testing.T) {
	assert.Equal(t, Report{}, Classification(nil, nil))
	assert.Panics(t, func() { Classification([]int{1}, nil) })
}

func TestAggregatorAveragesBatches(t *testing.T) {
	var a Aggregator
	assert.Equal(t, Report{}, a.Mean())

	a.Add(Report{Loss: 1, Accuracy: 0.5, F1: 0.2})
	a.Add(Report{Loss: 3, Accuracy: 1, F1: 0.4})
	m := a.Mean()
	assert.Equal(t, 2, a.Len())
	assert.InDelta(t, 2.0, m.Loss, 1e-12)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-12)
	assert.InDelta(t, 0.3, m.F1, 1e-12)
}
