// Package ddi assembles the interaction-type classifier: a relational encoder over
// the drug/protein graph, a pair predictor, and a cross-entropy objective over the
// positive and negative pairs of a batch.
package ddi

import (
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/dataset"
	"github.com/cnclabs/smore-ddi/internal/models/predictor"
	"github.com/cnclabs/smore-ddi/internal/models/rgcn"
	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/internal/sampler"
	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

// Model owns the dataset handle, the encoder and the predictor. Its
// hyperparameters are fixed at construction.
type Model struct {
	hp        config.Hyperparameters
	ds        *dataset.DataSet
	encoder   *rgcn.RGCN
	predictor *predictor.Predictor
	params    []*nn.Param
}

// Load reads the dataset named by hp and builds a freshly initialized model
func Load(hp config.Hyperparameters) (*Model, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	ds, err := dataset.Load(hp.PklPath, hp.MinSampleSize)
	if err != nil {
		return nil, err
	}
	return New(hp, ds)
}

// New builds a model over an already loaded dataset. Weights are drawn from hp.Seed.
func New(hp config.Hyperparameters, ds *dataset.DataSet) (*Model, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(hp.Seed))

	cfg := rgcn.Config{
		Hidden:    hp.HiddenSize,
		Layers:    hp.Layers,
		Relations: ds.Graph.Relations(),
	}
	cfg.InFeats[hetero.Drug] = ds.NumDrugFeatures
	cfg.InFeats[hetero.Protein] = ds.NumProteinFeatures
	encoder, err := rgcn.New(cfg, rng)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build encoder")
	}
	pred, err := predictor.New(hp.HiddenSize, ds.NumDDITypes()+1, rng)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build predictor")
	}

	m := &Model{hp: hp, ds: ds, encoder: encoder, predictor: pred}
	m.params = append(m.params, encoder.Params()...)
	m.params = append(m.params, pred.Params()...)
	return m, nil
}

// Hyperparameters returns the settings the model was built with
func (m *Model) Hyperparameters() config.Hyperparameters {
	return m.hp
}

// DataSet returns the dataset the model trains on
func (m *Model) DataSet() *dataset.DataSet {
	return m.ds
}

// Params returns every trainable parameter, encoder first
func (m *Model) Params() []*nn.Param {
	return m.params
}

// NumWeights returns the number of scalar parameters
func (m *Model) NumWeights() int {
	var n int
	for _, p := range m.params {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}

// Classes returns the predictor output width: one class per retained subtype plus "no interaction"
func (m *Model) Classes() int {
	return m.predictor.Classes()
}

// LoaderOptions returns the sampler settings for the training (shuffled) or evaluation split
func (m *Model) LoaderOptions(train bool) sampler.Options {
	opts := sampler.Options{
		BatchSize: m.hp.BatchSize,
		Shuffle:   train,
		Compact:   true,
		Seed:      m.hp.Seed,
	}
	if m.hp.Negatives == config.NegativesDegree {
		opts.Negatives = sampler.Degree
	}
	return opts
}

// pass is one forward pass over a batch
type pass struct {
	trace  *rgcn.Trace
	pos    *predictor.Trace
	neg    *predictor.Trace
	logits *mat.Dense
	labels []int
}

func (m *Model) forward(b *sampler.Batch) (*pass, error) {
	if b.Pos.NumEdges() == 0 {
		return nil, errors.New("batch has no positive pairs")
	}
	tr, err := m.encoder.Forward(b.Graph)
	if err != nil {
		return nil, errors.Wrap(err, "encoder forward")
	}
	h := tr.Embeddings(hetero.Drug)

	p := &pass{trace: tr, pos: m.predictor.Score(b.Pos, h), neg: m.predictor.Score(b.Neg, h), labels: b.Labels()}
	if p.neg.Logits == nil {
		p.logits = p.pos.Logits
	} else {
		p.logits = &mat.Dense{}
		p.logits.Stack(p.pos.Logits, p.neg.Logits)
	}
	return p, nil
}

// TrainStep runs a forward and backward pass, accumulating gradients into grads,
// and returns the mean cross-entropy of the batch. Parameters are only read.
func (m *Model) TrainStep(b *sampler.Batch, grads *nn.Gradients) (float64, error) {
	p, err := m.forward(b)
	if err != nil {
		return 0, err
	}
	loss, dLogits := nn.SoftmaxCrossEntropy(p.logits, p.labels)

	nPos := b.Pos.NumEdges()
	dH := mat.NewDense(m.ds.NumDrugs(), m.hp.HiddenSize, nil)
	m.predictor.Backward(p.pos, dLogits.Slice(0, nPos, 0, m.Classes()).(*mat.Dense), dH, grads)
	if p.neg.Logits != nil {
		m.predictor.Backward(p.neg, dLogits.Slice(nPos, len(p.labels), 0, m.Classes()).(*mat.Dense), dH, grads)
	}

	var dEmb [hetero.NumNodeTypes]*mat.Dense
	dEmb[hetero.Drug] = dH
	m.encoder.Backward(b.Graph, p.trace, dEmb, grads)
	return loss, nil
}

// EvalResult is the outcome of scoring one batch without training
type EvalResult struct {
	Loss      float64
	Predicted []int
	Labels    []int
}

// EvalStep scores a batch and returns its loss with predicted and true labels
func (m *Model) EvalStep(b *sampler.Batch) (EvalResult, error) {
	p, err := m.forward(b)
	if err != nil {
		return EvalResult{}, err
	}
	loss, _ := nn.SoftmaxCrossEntropy(p.logits, p.labels)
	return EvalResult{Loss: loss, Predicted: predictor.Predict(p.logits), Labels: p.labels}, nil
}

// Predict returns the class distribution of every pair, encoding the full graph
func (m *Model) Predict(pairs *sampler.PairGraph) (*mat.Dense, error) {
	tr, err := m.encoder.Forward(m.ds.Graph)
	if err != nil {
		return nil, err
	}
	return predictor.Probabilities(m.predictor.Score(pairs, tr.Embeddings(hetero.Drug)).Logits), nil
}

// State snapshots the parameters
func (m *Model) State() []nn.NamedTensor {
	return nn.Snapshot(m.params)
}

// LoadState restores parameters saved by State
func (m *Model) LoadState(state []nn.NamedTensor) error {
	return errors.Wrap(nn.Restore(m.params, state), "failed to restore parameters")
}

// PrintSettings writes the model banner
func (m *Model) PrintSettings(w io.Writer) {
	fmt.Fprintln(w, "Model Setting:")
	fmt.Fprintf(w, "\tdataset:\t\t%s\n", m.hp.PklPath)
	fmt.Fprintf(w, "\tdrugs:\t\t\t%s\n", humanize.Comma(int64(m.ds.NumDrugs())))
	fmt.Fprintf(w, "\tproteins:\t\t%s\n", humanize.Comma(int64(m.ds.Graph.NumNodes(hetero.Protein))))
	fmt.Fprintf(w, "\tinteractions:\t\t%s\n", humanize.Comma(int64(m.ds.NumDDI())))
	fmt.Fprintf(w, "\tgraph edges:\t\t%s\n", humanize.Comma(int64(m.ds.Graph.NumEdges())))
	fmt.Fprintf(w, "\tddi types:\t\t%d (min_sample_size=%d)\n", m.ds.NumDDITypes(), m.hp.MinSampleSize)
	fmt.Fprintf(w, "\trelations:\t\t%s\n", strings.Join(m.ds.RelationNames(), " "))
	fmt.Fprintf(w, "\thidden_size:\t\t%d\n", m.hp.HiddenSize)
	fmt.Fprintf(w, "\tlayers:\t\t\t%d\n", m.hp.Layers)
	fmt.Fprintf(w, "\tlearning_rate:\t\t%.6f\n", m.hp.LearningRate)
	fmt.Fprintf(w, "\tbatch_size:\t\t%d\n", m.hp.BatchSize)
	fmt.Fprintf(w, "\tnegatives:\t\t%s\n", m.hp.Negatives)
	fmt.Fprintf(w, "\tweights:\t\t%s\n", humanize.Comma(int64(m.NumWeights())))
	fmt.Fprintln(w)
}
