package hetero

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Builder accumulates an interaction graph from text edge lists and feature files
type Builder struct {
	// Node mapping per type: node_name -> node_id
	nodeHash [NumNodeTypes]map[string]int
	nodeKeys [NumNodeTypes][]string

	// Feature rows per type: node_name -> vector
	features [NumNodeTypes]map[string][]float64
	dims     [NumNodeTypes]int

	ddi []LabeledEdge
	dpi []Edge
	ppi []Edge
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	b := &Builder{}
	for t := NodeType(0); t < NumNodeTypes; t++ {
		b.nodeHash[t] = make(map[string]int)
		b.features[t] = make(map[string][]float64)
	}
	return b
}

// LoadEdgeListFile loads interactions from an edge list file
func (b *Builder) LoadEdgeListFile(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()
	return b.LoadEdgeList(file)
}

// LoadEdgeList loads interactions, one per line, and returns the number read.
// Format: source source_type target target_type relation [subtype]
// Example: "DB00001 Drug DB00002 Drug DDI 7"
// Example: "DB00001 Drug P00533 Protein DPI"
// Example: "P00533 Protein DB00001 Drug PDI"
// Example: "P00533 Protein P04626 Protein PPI"
// Blank lines and lines starting with '#' are skipped.
func (b *Builder) LoadEdgeList(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	count := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			return count, errors.Errorf("line %d: want at least 5 fields, got %d", lineNo, len(parts))
		}

		srcType, err := ParseNodeType(parts[1])
		if err != nil {
			return count, errors.Wrapf(err, "line %d", lineNo)
		}
		dstType, err := ParseNodeType(parts[3])
		if err != nil {
			return count, errors.Wrapf(err, "line %d", lineNo)
		}
		src := b.getOrCreateNode(parts[0], srcType)
		dst := b.getOrCreateNode(parts[2], dstType)

		relation := strings.ToUpper(parts[4])
		switch {
		case relation == "DDI" && srcType == Drug && dstType == Drug:
			if len(parts) < 6 {
				return count, errors.Errorf("line %d: DDI edge without subtype", lineNo)
			}
			label, err := strconv.Atoi(parts[5])
			if err != nil {
				return count, errors.Wrapf(err, "line %d: bad subtype %q", lineNo, parts[5])
			}
			b.ddi = append(b.ddi, LabeledEdge{Src: src, Dst: dst, Label: label})
		case relation == "DPI" && srcType == Drug && dstType == Protein:
			b.dpi = append(b.dpi, Edge{Src: src, Dst: dst})
		case relation == "PDI" && srcType == Protein && dstType == Drug:
			// stored in drug -> protein direction; the reverse is derived at load time
			b.dpi = append(b.dpi, Edge{Src: dst, Dst: src})
		case relation == "PPI" && srcType == Protein && dstType == Protein:
			b.ppi = append(b.ppi, Edge{Src: src, Dst: dst})
		default:
			return count, errors.Errorf("line %d: relation %s does not connect %s to %s", lineNo, parts[4], srcType, dstType)
		}
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, errors.Wrap(err, "error reading edge list")
	}
	return count, nil
}

// LoadFeaturesFile loads node features of one type from a file
func (b *Builder) LoadFeaturesFile(t NodeType, filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open file %s", filename)
	}
	defer file.Close()
	return b.LoadFeatures(t, file)
}

// LoadFeatures loads feature vectors, one node per line: name f1 f2 ...
// Every row of a node type must have the same length. Unknown names become isolated nodes.
func (b *Builder) LoadFeatures(t NodeType, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<26)
	lineNo := 0
	count := 0

	for scanner.Scan() {
		lineNo++
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
			continue
		}
		if len(parts) < 2 {
			return count, errors.Errorf("line %d: node %s has no features", lineNo, parts[0])
		}

		vec := make([]float64, len(parts)-1)
		for i, s := range parts[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return count, errors.Wrapf(err, "line %d: bad feature %q", lineNo, s)
			}
			vec[i] = v
		}
		if b.dims[t] == 0 {
			b.dims[t] = len(vec)
		} else if b.dims[t] != len(vec) {
			return count, errors.Errorf("line %d: %d features, expected %d", lineNo, len(vec), b.dims[t])
		}

		b.getOrCreateNode(parts[0], t)
		b.features[t][parts[0]] = vec
		count++
	}

	if err := scanner.Err(); err != nil {
		return count, errors.Wrap(err, "error reading features")
	}
	return count, nil
}

// NumNodes returns the number of nodes of a type seen so far
func (b *Builder) NumNodes(t NodeType) int {
	return len(b.nodeKeys[t])
}

// Artifact assembles the graph. Every node must have a feature vector.
func (b *Builder) Artifact() (*Artifact, error) {
	var mats [NumNodeTypes]Matrix
	for t := NodeType(0); t < NumNodeTypes; t++ {
		n, d := len(b.nodeKeys[t]), b.dims[t]
		if n == 0 {
			return nil, errors.Wrapf(ErrMalformed, "no %s nodes", t)
		}
		m := Matrix{Rows: n, Cols: d, Data: make([]float64, 0, n*d)}
		for _, name := range b.nodeKeys[t] {
			vec, ok := b.features[t][name]
			if !ok {
				return nil, errors.Wrapf(ErrMalformed, "%s %s has no features", t, name)
			}
			m.Data = append(m.Data, vec...)
		}
		mats[t] = m
	}

	a := &Artifact{
		DrugNames:       append([]string(nil), b.nodeKeys[Drug]...),
		ProteinNames:    append([]string(nil), b.nodeKeys[Protein]...),
		DrugFeatures:    mats[Drug],
		ProteinFeatures: mats[Protein],
		DDI:             append([]LabeledEdge(nil), b.ddi...),
		DPI:             append([]Edge(nil), b.dpi...),
		PPI:             append([]Edge(nil), b.ppi...),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// getOrCreateNode gets or creates a node of the given type
func (b *Builder) getOrCreateNode(name string, t NodeType) int {
	if id, exists := b.nodeHash[t][name]; exists {
		return id
	}
	id := len(b.nodeKeys[t])
	b.nodeHash[t][name] = id
	b.nodeKeys[t] = append(b.nodeKeys[t], name)
	return id
}
