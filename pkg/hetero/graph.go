package hetero

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NodeType identifies the kind of a node in the interaction graph
type NodeType int

const (
	Drug NodeType = iota
	Protein

	// NumNodeTypes is the number of node types; arrays indexed by NodeType use it as length
	NumNodeTypes
)

// String returns the node type name used in edge lists and logs
func (t NodeType) String() string {
	switch t {
	case Drug:
		return "Drug"
	case Protein:
		return "Protein"
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// ParseNodeType parses a node type name
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "Drug", "drug":
		return Drug, nil
	case "Protein", "protein":
		return Protein, nil
	}
	return 0, errors.Errorf("unknown node type: %s", s)
}

// RelationID indexes a relation inside one Graph. IDs are dense, starting at 0,
// in the order relations were added.
type RelationID int

// Relation describes one edge type
type Relation struct {
	Name string
	Src  NodeType
	Dst  NodeType
}

// Graph is an immutable heterogeneous graph with per-relation normalized adjacency.
// It is safe for concurrent readers once built.
type Graph struct {
	numNodes  [NumNodeTypes]int
	features  [NumNodeTypes]*mat.Dense
	relations []Relation
	adj       []*Adjacency
	index     map[string]RelationID
	numEdges  int
}

// NewGraph creates an empty graph with the given node counts
func NewGraph(numDrugs, numProteins int) *Graph {
	g := &Graph{index: make(map[string]RelationID)}
	g.numNodes[Drug] = numDrugs
	g.numNodes[Protein] = numProteins
	return g
}

// AddRelation registers a relation and its directed edges from[i] -> to[i].
func (g *Graph) AddRelation(name string, src, dst NodeType, from, to []int) (RelationID, error) {
	if _, exists := g.index[name]; exists {
		return 0, errors.Errorf("duplicate relation: %s", name)
	}
	if len(from) != len(to) {
		return 0, errors.Errorf("relation %s: %d sources but %d targets", name, len(from), len(to))
	}
	for i := range from {
		if from[i] < 0 || from[i] >= g.numNodes[src] {
			return 0, errors.Errorf("relation %s: source %d out of range for %s", name, from[i], src)
		}
		if to[i] < 0 || to[i] >= g.numNodes[dst] {
			return 0, errors.Errorf("relation %s: target %d out of range for %s", name, to[i], dst)
		}
	}

	id := RelationID(len(g.relations))
	g.relations = append(g.relations, Relation{Name: name, Src: src, Dst: dst})
	g.adj = append(g.adj, newAdjacency(src, dst, g.numNodes[src], g.numNodes[dst], from, to))
	g.index[name] = id
	g.numEdges += len(from)
	return id, nil
}

// SetFeatures attaches the input feature matrix of a node type
func (g *Graph) SetFeatures(t NodeType, x *mat.Dense) error {
	r, _ := x.Dims()
	if r != g.numNodes[t] {
		return errors.Errorf("%s features have %d rows, graph has %d nodes", t, r, g.numNodes[t])
	}
	g.features[t] = x
	return nil
}

// Features returns the input features of a node type
func (g *Graph) Features(t NodeType) *mat.Dense {
	return g.features[t]
}

// NumNodes returns the number of nodes of a type
func (g *Graph) NumNodes(t NodeType) int {
	return g.numNodes[t]
}

// NumEdges returns the number of directed edges across all relations
func (g *Graph) NumEdges() int {
	return g.numEdges
}

// NumRelations returns the number of relations
func (g *Graph) NumRelations() int {
	return len(g.relations)
}

// Relations returns the relations in RelationID order
func (g *Graph) Relations() []Relation {
	return g.relations
}

// Relation returns a relation by id
func (g *Graph) Relation(id RelationID) Relation {
	return g.relations[id]
}

// RelationID resolves a relation name. Meant for setup code, not hot loops.
func (g *Graph) RelationID(name string) (RelationID, bool) {
	id, ok := g.index[name]
	return id, ok
}

// Adjacency returns the normalized adjacency of a relation
func (g *Graph) Adjacency(id RelationID) *Adjacency {
	return g.adj[id]
}

// IsBidirected reports whether every directed edge (u -> v) of every relation
// has a counterpart (v -> u) in some relation with swapped endpoint types.
func (g *Graph) IsBidirected() bool {
	type key struct {
		src, dst NodeType
		u, v     int
	}
	present := make(map[key]struct{}, g.numEdges)
	for _, a := range g.adj {
		a.each(func(u, v int) {
			present[key{a.Src, a.Dst, u, v}] = struct{}{}
		})
	}
	for k := range present {
		if _, ok := present[key{k.dst, k.src, k.v, k.u}]; !ok {
			return false
		}
	}
	return true
}

// Adjacency stores the edges of one relation in CSR form keyed by destination,
// with symmetric normalization weights 1/sqrt(outdeg(src) * indeg(dst)).
type Adjacency struct {
	Src NodeType
	Dst NodeType

	numSrc int
	numDst int

	indptr  []int
	indices []int
	norm    []float64
}

func newAdjacency(src, dst NodeType, numSrc, numDst int, from, to []int) *Adjacency {
	a := &Adjacency{
		Src:     src,
		Dst:     dst,
		numSrc:  numSrc,
		numDst:  numDst,
		indptr:  make([]int, numDst+1),
		indices: make([]int, len(from)),
		norm:    make([]float64, len(from)),
	}

	outDeg := make([]float64, numSrc)
	inDeg := make([]float64, numDst)
	for i := range from {
		outDeg[from[i]]++
		inDeg[to[i]]++
		a.indptr[to[i]+1]++
	}
	for v := 0; v < numDst; v++ {
		a.indptr[v+1] += a.indptr[v]
	}

	// Counting sort by destination
	cursor := make([]int, numDst)
	copy(cursor, a.indptr[:numDst])
	for i := range from {
		v := to[i]
		a.indices[cursor[v]] = from[i]
		cursor[v]++
	}

	for v := 0; v < numDst; v++ {
		din := clampDegree(inDeg[v])
		for e := a.indptr[v]; e < a.indptr[v+1]; e++ {
			dout := clampDegree(outDeg[a.indices[e]])
			a.norm[e] = 1.0 / math.Sqrt(dout*din)
		}
	}
	return a
}

// NumEdges returns the number of edges in the relation
func (a *Adjacency) NumEdges() int {
	return len(a.indices)
}

// Propagate accumulates out += Â·in, where in is [numSrc x k] and out is [numDst x k].
func (a *Adjacency) Propagate(out, in *mat.Dense) {
	ri, ci := in.Dims()
	ro, co := out.Dims()
	if ri != a.numSrc || ro != a.numDst || ci != co {
		panic(mat.ErrShape)
	}
	for v := 0; v < a.numDst; v++ {
		row := out.RawRowView(v)
		for e := a.indptr[v]; e < a.indptr[v+1]; e++ {
			floats.AddScaled(row, a.norm[e], in.RawRowView(a.indices[e]))
		}
	}
}

// PropagateT accumulates out += Âᵀ·in, where in is [numDst x k] and out is [numSrc x k].
// It is the adjoint of Propagate and routes gradients back to source nodes.
func (a *Adjacency) PropagateT(out, in *mat.Dense) {
	ri, ci := in.Dims()
	ro, co := out.Dims()
	if ri != a.numDst || ro != a.numSrc || ci != co {
		panic(mat.ErrShape)
	}
	for v := 0; v < a.numDst; v++ {
		grad := in.RawRowView(v)
		for e := a.indptr[v]; e < a.indptr[v+1]; e++ {
			floats.AddScaled(out.RawRowView(a.indices[e]), a.norm[e], grad)
		}
	}
}

func (a *Adjacency) each(fn func(u, v int)) {
	for v := 0; v < a.numDst; v++ {
		for e := a.indptr[v]; e < a.indptr[v+1]; e++ {
			fn(a.indices[e], v)
		}
	}
}

// Bidirect returns the edge lists extended with every reversed edge
func Bidirect(from, to []int) ([]int, []int) {
	f := make([]int, 0, 2*len(from))
	t := make([]int, 0, 2*len(to))
	f = append(f, from...)
	f = append(f, to...)
	t = append(t, to...)
	t = append(t, from...)
	return f, t
}

func clampDegree(d float64) float64 {
	if d < 1 {
		return 1
	}
	return d
}
