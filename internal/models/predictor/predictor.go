// Package predictor scores drug pairs from their embeddings. The score of
// (u, v) is a linear map of the concatenation [h_u ‖ h_v], so it is not
// symmetric in u and v.
package predictor

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/internal/sampler"
)

// Predictor maps a pair of drug embeddings to class logits
type Predictor struct {
	hidden  int
	classes int
	fc      *nn.Linear
}

// New creates a predictor over embeddings of width hidden
func New(hidden, classes int, rng *rand.Rand) (*Predictor, error) {
	if hidden <= 0 || classes <= 1 {
		return nil, errors.Errorf("invalid predictor shape: hidden=%d classes=%d", hidden, classes)
	}
	return &Predictor{
		hidden:  hidden,
		classes: classes,
		fc:      nn.NewLinear("predictor.fc", 2*hidden, classes, rng),
	}, nil
}

// Classes returns the output width
func (p *Predictor) Classes() int {
	return p.classes
}

// Params returns the predictor parameters
func (p *Predictor) Params() []*nn.Param {
	return p.fc.Params()
}

// Trace keeps a scoring pass for Backward
type Trace struct {
	pairs  *sampler.PairGraph
	input  *mat.Dense
	Logits *mat.Dense
}

// Score computes logits for every pair. hDrug holds the embeddings of all drugs;
// in sliced mode the pair endpoints are resolved through NodeIDs first.
// An empty pair graph yields a nil Logits.
func (p *Predictor) Score(pairs *sampler.PairGraph, hDrug *mat.Dense) *Trace {
	n := pairs.NumEdges()
	if n == 0 {
		return &Trace{pairs: pairs}
	}

	emb := hDrug
	if pairs.Mode() == sampler.IndexSliced {
		emb = gather(hDrug, pairs.NodeIDs)
	}
	input := mat.NewDense(n, 2*p.hidden, nil)
	for i := 0; i < n; i++ {
		row := input.RawRowView(i)
		copy(row[:p.hidden], emb.RawRowView(pairs.Src[i]))
		copy(row[p.hidden:], emb.RawRowView(pairs.Dst[i]))
	}
	return &Trace{pairs: pairs, input: input, Logits: p.fc.Forward(input)}
}

// Backward accumulates parameter gradients and scatters the embedding gradient
// into dHDrug, which is shaped like the hDrug given to Score.
func (p *Predictor) Backward(tr *Trace, dLogits, dHDrug *mat.Dense, grads *nn.Gradients) {
	if tr.pairs.NumEdges() == 0 {
		return
	}
	dInput := p.fc.Backward(tr.input, dLogits, grads)

	dEmb := dHDrug
	sliced := tr.pairs.Mode() == sampler.IndexSliced
	if sliced {
		dEmb = mat.NewDense(len(tr.pairs.NodeIDs), p.hidden, nil)
	}
	for i := range tr.pairs.Src {
		row := dInput.RawRowView(i)
		vek.Add_Inplace(dEmb.RawRowView(tr.pairs.Src[i]), row[:p.hidden])
		vek.Add_Inplace(dEmb.RawRowView(tr.pairs.Dst[i]), row[p.hidden:])
	}
	if sliced {
		for local, global := range tr.pairs.NodeIDs {
			vek.Add_Inplace(dHDrug.RawRowView(global), dEmb.RawRowView(local))
		}
	}
}

// Predict returns the arg-max class of every row of logits
func Predict(logits *mat.Dense) []int {
	if logits == nil {
		return nil
	}
	r, _ := logits.Dims()
	out := make([]int, r)
	for i := range out {
		out[i] = vek.ArgMax(logits.RawRowView(i))
	}
	return out
}

// Probabilities returns the row-wise class distribution of logits
func Probabilities(logits *mat.Dense) *mat.Dense {
	if logits == nil {
		return nil
	}
	return nn.Softmax(logits)
}

func gather(h *mat.Dense, ids []int) *mat.Dense {
	_, c := h.Dims()
	out := mat.NewDense(len(ids), c, nil)
	for i, id := range ids {
		copy(out.RawRowView(i), h.RawRowView(id))
	}
	return out
}
