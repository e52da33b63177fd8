// Package nn provides the trainable building blocks of the model: parameters and
// their gradients, dense layers, the loss and the optimizer. Backward passes are
// written out by hand against gonum matrices.
package nn

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Param is a named trainable matrix. Values are only mutated by an optimizer step,
// so forward and backward passes may read them concurrently.
type Param struct {
	Name  string
	Value *mat.Dense
}

// NewParam allocates a zero parameter
func NewParam(name string, rows, cols int) *Param {
	return &Param{Name: name, Value: mat.NewDense(rows, cols, nil)}
}

// XavierUniform fills m with U(-a, a), a = sqrt(6 / (fanIn + fanOut))
func XavierUniform(m *mat.Dense, rng *rand.Rand) {
	fanIn, fanOut := m.Dims()
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// Gradients holds one accumulator per parameter. Each replica owns its own.
type Gradients struct {
	params []*Param
	grads  map[*Param]*mat.Dense
}

// NewGradients allocates zero gradients for params
func NewGradients(params []*Param) *Gradients {
	g := &Gradients{params: params, grads: make(map[*Param]*mat.Dense, len(params))}
	for _, p := range params {
		r, c := p.Value.Dims()
		g.grads[p] = mat.NewDense(r, c, nil)
	}
	return g
}

// Of returns the accumulator of p
func (g *Gradients) Of(p *Param) *mat.Dense {
	return g.grads[p]
}

// Params returns the parameters in registration order
func (g *Gradients) Params() []*Param {
	return g.params
}

// Zero resets every accumulator
func (g *Gradients) Zero() {
	for _, d := range g.grads {
		d.Zero()
	}
}

// Add accumulates other into g
func (g *Gradients) Add(other *Gradients) {
	for _, p := range g.params {
		g.grads[p].Add(g.grads[p], other.grads[p])
	}
}

// Scale multiplies every accumulator by f
func (g *Gradients) Scale(f float64) {
	for _, d := range g.grads {
		d.Scale(f, d)
	}
}

// Tensor is the serialized form of a parameter-shaped matrix
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// TensorOf copies m
func TensorOf(m *mat.Dense) Tensor {
	r, c := m.Dims()
	t := Tensor{Rows: r, Cols: c, Data: make([]float64, r*c)}
	for i := 0; i < r; i++ {
		copy(t.Data[i*c:(i+1)*c], m.RawRowView(i))
	}
	return t
}

// CopyInto writes t into m, which must have the same shape
func (t Tensor) CopyInto(m *mat.Dense) error {
	r, c := m.Dims()
	if r != t.Rows || c != t.Cols || len(t.Data) != r*c {
		return errors.Errorf("shape %dx%d does not match %dx%d", t.Rows, t.Cols, r, c)
	}
	for i := 0; i < r; i++ {
		copy(m.RawRowView(i), t.Data[i*c:(i+1)*c])
	}
	return nil
}

// NamedTensor pairs a tensor with the parameter it belongs to
type NamedTensor struct {
	Name   string `json:"name"`
	Tensor Tensor `json:"tensor"`
}

// Snapshot copies the values of params
func Snapshot(params []*Param) []NamedTensor {
	out := make([]NamedTensor, len(params))
	for i, p := range params {
		out[i] = NamedTensor{Name: p.Name, Tensor: TensorOf(p.Value)}
	}
	return out
}

// Restore writes a snapshot back into params, matching by name and shape
func Restore(params []*Param, snapshot []NamedTensor) error {
	return restoreInto(params, snapshot, func(p *Param) *mat.Dense { return p.Value })
}

func restoreInto(params []*Param, snapshot []NamedTensor, target func(*Param) *mat.Dense) error {
	if len(params) != len(snapshot) {
		return errors.Errorf("snapshot has %d tensors, model has %d parameters", len(snapshot), len(params))
	}
	byName := make(map[string]Tensor, len(snapshot))
	for _, nt := range snapshot {
		byName[nt.Name] = nt.Tensor
	}
	for _, p := range params {
		t, ok := byName[p.Name]
		if !ok {
			return errors.Errorf("snapshot has no tensor for %s", p.Name)
		}
		if err := t.CopyInto(target(p)); err != nil {
			return errors.Wrap(err, p.Name)
		}
	}
	return nil
}
