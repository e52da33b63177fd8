package sampler

import (
	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

// IndexMode tells how PairGraph endpoints address drug embeddings
type IndexMode int

const (
	// IndexSliced endpoints are local ids resolved through PairGraph.NodeIDs
	IndexSliced IndexMode = iota
	// IndexFull endpoints are global drug ids into the full embedding matrix
	IndexFull
)

func (m IndexMode) String() string {
	if m == IndexFull {
		return "full"
	}
	return "sliced"
}

// PairGraph holds candidate drug pairs to score. Src[i] -> Dst[i] is edge i with target Labels[i].
type PairGraph struct {
	// NodeIDs maps local node ids to global drug ids; nil in IndexFull mode
	NodeIDs []int

	Src    []int
	Dst    []int
	Labels []int
}

// Mode reports how endpoints are addressed
func (p *PairGraph) Mode() IndexMode {
	if p.NodeIDs == nil {
		return IndexFull
	}
	return IndexSliced
}

// NumEdges returns the number of pairs
func (p *PairGraph) NumEdges() int {
	return len(p.Src)
}

// Global resolves an endpoint to its global drug id
func (p *PairGraph) Global(node int) int {
	if p.NodeIDs == nil {
		return node
	}
	return p.NodeIDs[node]
}

// Batch is one unit of work: the message-passing graph and the pairs scored on it.
// Pos and Neg share NodeIDs when compacted.
type Batch struct {
	Graph *hetero.Graph
	Pos   *PairGraph
	Neg   *PairGraph

	// EdgeIDs are the usable interaction ids behind Pos, in order
	EdgeIDs []int
}

// NumExamples returns the number of scored pairs
func (b *Batch) NumExamples() int {
	return b.Pos.NumEdges() + b.Neg.NumEdges()
}

// Labels returns the targets of Pos followed by Neg
func (b *Batch) Labels() []int {
	labels := make([]int, 0, b.NumExamples())
	labels = append(labels, b.Pos.Labels...)
	return append(labels, b.Neg.Labels...)
}
