// Package sampler turns edge-ID splits into batches of positive and negative drug pairs.
package sampler

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/cnclabs/smore-ddi/internal/dataset"
	"github.com/cnclabs/smore-ddi/pkg/alias"
)

// DefaultMaxTries bounds the draws spent on one negative endpoint
const DefaultMaxTries = 100

var (
	// ErrNegativeExhausted is returned when no valid negative pair could be drawn
	ErrNegativeExhausted = errors.New("could not draw a negative pair")
	// ErrEmptySplit is returned for a loader without edge ids
	ErrEmptySplit = errors.New("empty edge id set")
)

// Strategy selects how negative drugs are drawn
type Strategy int

const (
	// Uniform draws every drug with equal probability
	Uniform Strategy = iota
	// Degree draws drugs proportionally to interaction degree^0.75
	Degree
)

// Options configure a Loader
type Options struct {
	// BatchSize of 0 yields the whole edge-ID set as one batch
	BatchSize int
	// Shuffle reorders edges every epoch; evaluation keeps a fixed order and fixed negatives
	Shuffle bool
	// Compact renumbers the drugs of a batch and records the mapping in PairGraph.NodeIDs
	Compact   bool
	Negatives Strategy
	Seed      int64
	MaxTries  int
}

// Loader produces batches over a fixed set of usable edge ids
type Loader struct {
	ds    *dataset.DataSet
	eids  []int
	opts  Options
	drugs *alias.Table
}

// NewLoader creates a loader over eids
func NewLoader(ds *dataset.DataSet, eids []int, opts Options) (*Loader, error) {
	if len(eids) == 0 {
		return nil, ErrEmptySplit
	}
	for _, id := range eids {
		if id < 0 || id >= ds.NumDDI() {
			return nil, errors.Errorf("edge id %d out of range [0, %d)", id, ds.NumDDI())
		}
	}
	if opts.BatchSize < 0 {
		return nil, errors.Errorf("negative batch size %d", opts.BatchSize)
	}
	if opts.MaxTries <= 0 {
		opts.MaxTries = DefaultMaxTries
	}

	l := &Loader{
		ds:   ds,
		eids: append([]int(nil), eids...),
		opts: opts,
	}
	if opts.Negatives == Degree {
		l.drugs = alias.New(ds.DrugDegrees(), alias.PowerSample)
	}
	return l, nil
}

// NumEdges returns the number of edge ids covered per epoch
func (l *Loader) NumEdges() int {
	return len(l.eids)
}

// BatchSize returns the effective batch size
func (l *Loader) BatchSize() int {
	if l.opts.BatchSize == 0 || l.opts.BatchSize > len(l.eids) {
		return len(l.eids)
	}
	return l.opts.BatchSize
}

// NumBatches returns the number of batches per epoch
func (l *Loader) NumBatches() int {
	bs := l.BatchSize()
	return (len(l.eids) + bs - 1) / bs
}

// Epoch starts one pass over the edge ids
func (l *Loader) Epoch(epoch int) *Iterator {
	seed := l.opts.Seed
	if l.opts.Shuffle {
		seed += int64(epoch) + 1
	}
	rng := rand.New(rand.NewSource(seed))

	order := append([]int(nil), l.eids...)
	if l.opts.Shuffle {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return &Iterator{l: l, order: order, rng: rng}
}

func (l *Loader) sampleDrug(rng *rand.Rand) int {
	if l.drugs != nil {
		return l.drugs.Sample(rng)
	}
	return rng.Intn(l.ds.NumDrugs())
}

// Iterator walks one epoch. It is lazy, finite and not restartable:
//
//	it := loader.Epoch(e)
//	for it.Next() {
//		b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	l     *Loader
	order []int
	rng   *rand.Rand
	next  int
	batch *Batch
	err   error
}

// Next prepares the next batch and reports whether there is one
func (it *Iterator) Next() bool {
	if it.err != nil || it.next >= len(it.order) {
		it.batch = nil
		return false
	}
	end := it.next + it.l.BatchSize()
	if end > len(it.order) {
		end = len(it.order)
	}
	ids := it.order[it.next:end]
	it.next = end

	it.batch, it.err = it.l.build(ids, it.rng)
	return it.err == nil
}

// Batch returns the batch prepared by the last successful Next
func (it *Iterator) Batch() *Batch {
	return it.batch
}

// Err returns the error that stopped iteration, if any
func (it *Iterator) Err() error {
	return it.err
}

func (l *Loader) build(ids []int, rng *rand.Rand) (*Batch, error) {
	n := len(ids)
	posSrc, posDst, labels := make([]int, n), make([]int, n), make([]int, n)
	for i, id := range ids {
		e := l.ds.Interaction(id)
		posSrc[i], posDst[i], labels[i] = e.Src, e.Dst, e.Label()
	}

	negSrc, negDst, err := l.negatives(posSrc, posDst, rng)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		Graph:   l.ds.Graph,
		Pos:     &PairGraph{Src: posSrc, Dst: posDst, Labels: labels},
		Neg:     &PairGraph{Src: negSrc, Dst: negDst, Labels: make([]int, n)},
		EdgeIDs: append([]int(nil), ids...),
	}
	if l.opts.Compact {
		compact(b.Pos, b.Neg)
	}
	return b, nil
}

// negatives draws one non-interacting pair per positive by replacing the
// destination, falling back to replacing the source.
func (l *Loader) negatives(src, dst []int, rng *rand.Rand) ([]int, []int, error) {
	taken := make(map[[2]int]struct{}, len(src))
	valid := func(u, v int) bool {
		if u == v || l.ds.IsInteraction(u, v) {
			return false
		}
		if _, dup := taken[[2]int{u, v}]; dup {
			return false
		}
		_, dup := taken[[2]int{v, u}]
		return !dup
	}

	negSrc, negDst := make([]int, len(src)), make([]int, len(src))
	for i := range src {
		u, v, ok := src[i], -1, false
		for try := 0; try < l.opts.MaxTries && !ok; try++ {
			v = l.sampleDrug(rng)
			ok = valid(u, v)
		}
		if !ok {
			v = dst[i]
			for try := 0; try < l.opts.MaxTries && !ok; try++ {
				u = l.sampleDrug(rng)
				ok = valid(u, v)
			}
		}
		if !ok {
			return nil, nil, errors.Wrapf(ErrNegativeExhausted, "positive %d -> %d after %d tries", src[i], dst[i], 2*l.opts.MaxTries)
		}
		taken[[2]int{u, v}] = struct{}{}
		negSrc[i], negDst[i] = u, v
	}
	return negSrc, negDst, nil
}

// compact renumbers the endpoints of both graphs over their shared drug set
func compact(graphs ...*PairGraph) {
	local := make(map[int]int)
	var nodeIDs []int
	id := func(global int) int {
		if l, ok := local[global]; ok {
			return l
		}
		l := len(nodeIDs)
		local[global] = l
		nodeIDs = append(nodeIDs, global)
		return l
	}
	for _, g := range graphs {
		for i := range g.Src {
			g.Src[i] = id(g.Src[i])
			g.Dst[i] = id(g.Dst[i])
		}
	}
	for _, g := range graphs {
		g.NodeIDs = nodeIDs
	}
}
