// Package rgcn implements a relational graph convolutional encoder over the
// drug/protein graph. Every layer holds one graph convolution per relation;
// messages arriving at the same node type are summed.
package rgcn

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

// Config describes the encoder architecture
type Config struct {
	// InFeats is the raw feature width per node type
	InFeats [hetero.NumNodeTypes]int
	Hidden  int
	Layers  int
	// Relations must list the graph relations in RelationID order
	Relations []hetero.Relation
}

// Validate checks the architecture
func (c Config) Validate() error {
	if c.Hidden <= 0 {
		return errors.Errorf("hidden size must be positive, got %d", c.Hidden)
	}
	if c.Layers <= 0 {
		return errors.Errorf("layer count must be positive, got %d", c.Layers)
	}
	if len(c.Relations) == 0 {
		return errors.New("no relations")
	}
	for t, n := range c.InFeats {
		if n <= 0 {
			return errors.Errorf("%s feature width must be positive, got %d", hetero.NodeType(t), n)
		}
	}
	return nil
}

// RGCN is the encoder. Forward and Backward only read the parameters and can
// run concurrently on different batches.
type RGCN struct {
	cfg Config
	// layers[l][r] is the convolution of relation r in layer l
	layers [][]*nn.Linear
}

// New creates an encoder with Xavier-initialized weights
func New(cfg Config, rng *rand.Rand) (*RGCN, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &RGCN{cfg: cfg, layers: make([][]*nn.Linear, cfg.Layers)}
	for l := range m.layers {
		m.layers[l] = make([]*nn.Linear, len(cfg.Relations))
		for r, rel := range cfg.Relations {
			in := cfg.Hidden
			if l == 0 {
				in = cfg.InFeats[rel.Src]
			}
			m.layers[l][r] = nn.NewLinear(fmt.Sprintf("rgcn.layers.%d.%s", l, rel.Name), in, cfg.Hidden, rng)
		}
	}
	return m, nil
}

// Config returns the architecture
func (m *RGCN) Config() Config {
	return m.cfg
}

// Params returns the parameters layer by layer, relation by relation
func (m *RGCN) Params() []*nn.Param {
	var params []*nn.Param
	for _, layer := range m.layers {
		for _, conv := range layer {
			params = append(params, conv.Params()...)
		}
	}
	return params
}

// Trace keeps the activations of a forward pass for Backward
type Trace struct {
	// inputs[l] are the per-type inputs of layer l
	inputs [][hetero.NumNodeTypes]*mat.Dense
	// outputs[l] are the per-type outputs of layer l, after the activation
	outputs [][hetero.NumNodeTypes]*mat.Dense
}

// Embeddings returns the final representations of a node type
func (t *Trace) Embeddings(nt hetero.NodeType) *mat.Dense {
	return t.outputs[len(t.outputs)-1][nt]
}

func (m *RGCN) checkGraph(g *hetero.Graph) error {
	rels := g.Relations()
	if len(rels) != len(m.cfg.Relations) {
		return errors.Errorf("graph has %d relations, encoder has %d", len(rels), len(m.cfg.Relations))
	}
	for i, rel := range rels {
		if rel != m.cfg.Relations[i] {
			return errors.Errorf("relation %d is %s, encoder expects %s", i, rel.Name, m.cfg.Relations[i].Name)
		}
	}
	for t := hetero.NodeType(0); t < hetero.NumNodeTypes; t++ {
		x := g.Features(t)
		if x == nil {
			return errors.Errorf("graph has no %s features", t)
		}
		if _, c := x.Dims(); c != m.cfg.InFeats[t] {
			return errors.Errorf("%s features have width %d, encoder expects %d", t, c, m.cfg.InFeats[t])
		}
	}
	return nil
}

// Forward encodes every node of g
func (m *RGCN) Forward(g *hetero.Graph) (*Trace, error) {
	if err := m.checkGraph(g); err != nil {
		return nil, err
	}

	tr := &Trace{}
	var h [hetero.NumNodeTypes]*mat.Dense
	for t := range h {
		h[t] = g.Features(hetero.NodeType(t))
	}

	for l, layer := range m.layers {
		var out [hetero.NumNodeTypes]*mat.Dense
		for t := range out {
			out[t] = mat.NewDense(g.NumNodes(hetero.NodeType(t)), m.cfg.Hidden, nil)
		}
		for r, conv := range layer {
			rel := m.cfg.Relations[r]
			var xw mat.Dense
			xw.Mul(h[rel.Src], conv.W.Value)
			g.Adjacency(hetero.RelationID(r)).Propagate(out[rel.Dst], &xw)
			nn.AddRowVector(out[rel.Dst], conv.B.Value.RawRowView(0))
		}
		if l < len(m.layers)-1 {
			for _, o := range out {
				nn.ReLU(o)
			}
		}
		tr.inputs = append(tr.inputs, h)
		tr.outputs = append(tr.outputs, out)
		h = out
	}
	return tr, nil
}

// Backward accumulates parameter gradients given the gradients of the final
// embeddings. A nil entry of dEmb is treated as zero.
func (m *RGCN) Backward(g *hetero.Graph, tr *Trace, dEmb [hetero.NumNodeTypes]*mat.Dense, grads *nn.Gradients) {
	d := dEmb
	for t := range d {
		if d[t] == nil {
			d[t] = mat.NewDense(g.NumNodes(hetero.NodeType(t)), m.cfg.Hidden, nil)
		}
	}

	for l := len(m.layers) - 1; l >= 0; l-- {
		if l < len(m.layers)-1 {
			for t := range d {
				nn.ReLUBackward(d[t], tr.outputs[l][t])
			}
		}

		var dIn [hetero.NumNodeTypes]*mat.Dense
		if l > 0 {
			for t := range dIn {
				dIn[t] = mat.NewDense(g.NumNodes(hetero.NodeType(t)), m.cfg.Hidden, nil)
			}
		}

		for r, conv := range m.layers[l] {
			rel := m.cfg.Relations[r]
			nn.AddColumnSums(grads.Of(conv.B).RawRowView(0), d[rel.Dst])

			dxw := mat.NewDense(g.NumNodes(rel.Src), m.cfg.Hidden, nil)
			g.Adjacency(hetero.RelationID(r)).PropagateT(dxw, d[rel.Dst])

			var dW mat.Dense
			dW.Mul(tr.inputs[l][rel.Src].T(), dxw)
			gw := grads.Of(conv.W)
			gw.Add(gw, &dW)

			if l > 0 {
				var dx mat.Dense
				dx.Mul(dxw, conv.W.Value.T())
				dIn[rel.Src].Add(dIn[rel.Src], &dx)
			}
		}
		d = dIn
	}
}
