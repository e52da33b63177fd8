package nn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Adam optimizer defaults
const (
	DefaultBeta1   = 0.9
	DefaultBeta2   = 0.999
	DefaultEpsilon = 1e-8
)

// Adam implements the Adam update with bias correction
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	params []*Param
	step   int
	m, v   map[*Param]*mat.Dense
}

// AdamState is the serializable optimizer state
type AdamState struct {
	Step int           `json:"step"`
	M    []NamedTensor `json:"m"`
	V    []NamedTensor `json:"v"`
}

// NewAdam creates an optimizer over params
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		LR:      lr,
		Beta1:   DefaultBeta1,
		Beta2:   DefaultBeta2,
		Epsilon: DefaultEpsilon,
		params:  params,
		m:       make(map[*Param]*mat.Dense, len(params)),
		v:       make(map[*Param]*mat.Dense, len(params)),
	}
	for _, p := range params {
		r, c := p.Value.Dims()
		a.m[p] = mat.NewDense(r, c, nil)
		a.v[p] = mat.NewDense(r, c, nil)
	}
	return a
}

// Steps returns the number of updates applied
func (a *Adam) Steps() int {
	return a.step
}

// Step applies one update from grads
func (a *Adam) Step(grads *Gradients) {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range a.params {
		g := grads.Of(p).RawMatrix()
		m, v, w := a.m[p].RawMatrix(), a.v[p].RawMatrix(), p.Value.RawMatrix()
		for i := 0; i < g.Rows; i++ {
			gRow := g.Data[i*g.Stride : i*g.Stride+g.Cols]
			mRow := m.Data[i*m.Stride : i*m.Stride+m.Cols]
			vRow := v.Data[i*v.Stride : i*v.Stride+v.Cols]
			wRow := w.Data[i*w.Stride : i*w.Stride+w.Cols]
			for j, gj := range gRow {
				mRow[j] = a.Beta1*mRow[j] + (1-a.Beta1)*gj
				vRow[j] = a.Beta2*vRow[j] + (1-a.Beta2)*gj*gj
				wRow[j] -= a.LR * (mRow[j] / c1) / (math.Sqrt(vRow[j]/c2) + a.Epsilon)
			}
		}
	}
}

// State exports the moments and step counter
func (a *Adam) State() AdamState {
	s := AdamState{Step: a.step}
	for _, p := range a.params {
		s.M = append(s.M, NamedTensor{Name: p.Name, Tensor: TensorOf(a.m[p])})
		s.V = append(s.V, NamedTensor{Name: p.Name, Tensor: TensorOf(a.v[p])})
	}
	return s
}

// LoadState restores a state exported by State
func (a *Adam) LoadState(s AdamState) error {
	if s.Step < 0 {
		return errors.Errorf("negative adam step %d", s.Step)
	}
	if err := restoreInto(a.params, s.M, func(p *Param) *mat.Dense { return a.m[p] }); err != nil {
		return errors.Wrap(err, "first moment")
	}
	if err := restoreInto(a.params, s.V, func(p *Param) *mat.Dense { return a.v[p] }); err != nil {
		return errors.Wrap(err, "second moment")
	}
	a.step = s.Step
	return nil
}
