package predictor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/internal/sampler"
)

func embeddings(rng *rand.Rand, n, hidden int) *mat.Dense {
	data := make([]float64, n*hidden)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(n, hidden, data)
}

func TestOutputWidth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p, err := New(4, 6, rng)
	require.NoError(t, err)

	tr := p.Score(&sampler.PairGraph{Src: []int{0, 1, 2}, Dst: []int{3, 4, 0}}, embeddings(rng, 5, 4))
	r, c := tr.Logits.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 6, c)
	assert.Len(t, Predict(tr.Logits), 3)

	probs := Probabilities(tr.Logits)
	for i, class := range Predict(tr.Logits) {
		row := probs.RawRowView(i)
		for _, q := range row {
			assert.LessOrEqual(t, q, row[class])
		}
	}
}

func TestSlicedAndFullIndexingAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p, err := New(3, 4, rng)
	require.NoError(t, err)
	h := embeddings(rng, 8, 3)

	full := &sampler.PairGraph{Src: []int{7, 2, 5}, Dst: []int{2, 5, 0}}
	sliced := &sampler.PairGraph{NodeIDs: []int{7, 2, 5, 0}, Src: []int{0, 1, 2}, Dst: []int{1, 2, 3}}
	require.Equal(t, sampler.IndexFull, full.Mode())
	require.Equal(t, sampler.IndexSliced, sliced.Mode())

	a, b := p.Score(full, h), p.Score(sliced, h)
	assert.True(t, mat.EqualApprox(a.Logits, b.Logits, 1e-12))

	gradsA, gradsB := nn.NewGradients(p.Params()), nn.NewGradients(p.Params())
	dA, dB := mat.NewDense(8, 3, nil), mat.NewDense(8, 3, nil)
	dLogits := embeddings(rng, 3, 4)
	p.Backward(a, dLogits, dA, gradsA)
	p.Backward(b, dLogits, dB, gradsB)
	assert.True(t, mat.EqualApprox(dA, dB, 1e-12))
	for _, param := range p.Params() {
		assert.True(t, mat.EqualApprox(gradsA.Of(param), gradsB.Of(param), 1e-12))
	}
}

func TestScoreIsOrderSensitive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p, err := New(3, 4, rng)
	require.NoError(t, err)
	h := embeddings(rng, 2, 3)

	tr := p.Score(&sampler.PairGraph{Src: []int{0, 1}, Dst: []int{1, 0}}, h)
	assert.False(t, mat.EqualApprox(tr.Logits.RowView(0), tr.Logits.RowView(1), 1e-9))
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	p, err := New(3, 5, rng)
	require.NoError(t, err)
	h := embeddings(rng, 6, 3)
	pairs := &sampler.PairGraph{NodeIDs: []int{4, 1, 3}, Src: []int{0, 1, 2, 0}, Dst: []int{1, 2, 0, 2}}
	labels := []int{0, 4, 2, 1}

	loss := func() float64 {
		l, _ := nn.SoftmaxCrossEntropy(p.Score(pairs, h).Logits, labels)
		return l
	}

	tr := p.Score(pairs, h)
	_, dLogits := nn.SoftmaxCrossEntropy(tr.Logits, labels)
	dH := mat.NewDense(6, 3, nil)
	p.Backward(tr, dLogits, dH, nn.NewGradients(p.Params()))

	const eps = 1e-6
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			orig := h.At(i, j)
			h.Set(i, j, orig+eps)
			up := loss()
			h.Set(i, j, orig-eps)
			down := loss()
			h.Set(i, j, orig)
			assert.InDelta(t, (up-down)/(2*eps), dH.At(i, j), 1e-6, "h[%d,%d]", i, j)
		}
	}
	// drugs outside the batch receive nothing
	assert.Equal(t, 0.0, mat.Sum(dH.RowView(0)))
}

func TestEmptyPairGraph(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	p, err := New(2, 3, rng)
	require.NoError(t, err)

	tr := p.Score(&sampler.PairGraph{}, embeddings(rng, 2, 2))
	assert.Nil(t, tr.Logits)
	assert.Nil(t, Predict(tr.Logits))
	assert.NotPanics(t, func() { p.Backward(tr, nil, mat.NewDense(2, 2, nil), nn.NewGradients(p.Params())) })
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 3, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, err = New(3, 1, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}
