package nn

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear computes x·W + b
type Linear struct {
	W *Param // [in x out]
	B *Param // [1 x out]
}

// NewLinear creates a layer with Xavier-initialized weights and zero bias
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		W: NewParam(name+".weight", in, out),
		B: NewParam(name+".bias", 1, out),
	}
	XavierUniform(l.W.Value, rng)
	return l
}

// Params returns the layer parameters
func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}

// Forward returns x·W + b
func (l *Linear) Forward(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(x, l.W.Value)
	AddRowVector(&out, l.B.Value.RawRowView(0))
	return &out
}

// Backward accumulates dW = xᵀ·dOut and db = Σ dOut into grads and returns dX = dOut·Wᵀ.
func (l *Linear) Backward(x mat.Matrix, dOut *mat.Dense, grads *Gradients) *mat.Dense {
	var dW mat.Dense
	dW.Mul(x.T(), dOut)
	gw := grads.Of(l.W)
	gw.Add(gw, &dW)
	AddColumnSums(grads.Of(l.B).RawRowView(0), dOut)

	var dX mat.Dense
	dX.Mul(dOut, l.W.Value.T())
	return &dX
}

// AddRowVector adds v to every row of m
func AddRowVector(m *mat.Dense, v []float64) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		floats.Add(m.RawRowView(i), v)
	}
}

// AddColumnSums accumulates the column sums of m into dst
func AddColumnSums(dst []float64, m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		floats.Add(dst, m.RawRowView(i))
	}
}

// ReLU clamps m at zero in place
func ReLU(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}

// ReLUBackward zeroes the entries of d where the activation output was not positive
func ReLUBackward(d, activated *mat.Dense) {
	r, _ := d.Dims()
	for i := 0; i < r; i++ {
		row, act := d.RawRowView(i), activated.RawRowView(i)
		for j := range row {
			if act[j] <= 0 {
				row[j] = 0
			}
		}
	}
}
