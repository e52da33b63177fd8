package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Softmax returns the row-wise softmax of logits
func Softmax(logits *mat.Dense) *mat.Dense {
	r, c := logits.Dims()
	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		out := probs.RawRowView(i)
		for j, v := range row {
			out[j] = math.Exp(v - lse)
		}
	}
	return probs
}

// SoftmaxCrossEntropy returns the mean negative log-likelihood of labels under
// softmax(logits) and its gradient with respect to logits.
func SoftmaxCrossEntropy(logits *mat.Dense, labels []int) (float64, *mat.Dense) {
	r, _ := logits.Dims()
	if r != len(labels) {
		panic(mat.ErrShape)
	}
	if r == 0 {
		return 0, mat.NewDense(1, 1, nil)
	}

	grad := Softmax(logits)
	var loss float64
	for i, label := range labels {
		row := logits.RawRowView(i)
		loss += floats.LogSumExp(row) - row[label]
		grad.RawRowView(i)[label] -= 1
	}
	n := float64(r)
	grad.Scale(1/n, grad)
	return loss / n, grad
}
