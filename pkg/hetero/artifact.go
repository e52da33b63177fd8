package hetero

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/smore-ddi/pkg/codec"
)

// ErrMalformed marks an artifact that decodes but violates the graph contract
var ErrMalformed = errors.New("malformed graph artifact")

// Matrix is the serialized form of a dense row-major matrix
type Matrix struct {
	Rows int       `json:"rows" yaml:"rows"`
	Cols int       `json:"cols" yaml:"cols"`
	Data []float64 `json:"data" yaml:"data"`
}

// MatrixOf copies a dense matrix into its serialized form
func MatrixOf(d mat.Matrix) Matrix {
	r, c := d.Dims()
	m := Matrix{Rows: r, Cols: c, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Data = append(m.Data, d.At(i, j))
		}
	}
	return m
}

// Dense returns the matrix as a gonum Dense sharing the backing data
func (m Matrix) Dense() *mat.Dense {
	return mat.NewDense(m.Rows, m.Cols, m.Data)
}

// Edge is a directed pair of node ids
type Edge struct {
	Src int `json:"src" yaml:"src"`
	Dst int `json:"dst" yaml:"dst"`
}

// LabeledEdge is a drug-drug interaction with its subtype label
type LabeledEdge struct {
	Src   int `json:"src" yaml:"src"`
	Dst   int `json:"dst" yaml:"dst"`
	Label int `json:"label" yaml:"label"`
}

// Artifact is the persisted interaction graph. Each interaction appears once;
// reverse edges are derived at load time.
type Artifact struct {
	DrugNames    []string `json:"drug_names" yaml:"drug_names"`
	ProteinNames []string `json:"protein_names" yaml:"protein_names"`

	DrugFeatures    Matrix `json:"drug_features" yaml:"drug_features"`
	ProteinFeatures Matrix `json:"protein_features" yaml:"protein_features"`

	// DDI holds drug -> drug interactions
	DDI []LabeledEdge `json:"ddi" yaml:"ddi"`
	// DPI holds drug -> protein interactions
	DPI []Edge `json:"dpi" yaml:"dpi"`
	// PPI holds protein -> protein interactions
	PPI []Edge `json:"ppi" yaml:"ppi"`
}

// NumDrugs returns the number of drug nodes
func (a *Artifact) NumDrugs() int {
	return a.DrugFeatures.Rows
}

// NumProteins returns the number of protein nodes
func (a *Artifact) NumProteins() int {
	return a.ProteinFeatures.Rows
}

// Validate checks feature shapes and edge endpoints
func (a *Artifact) Validate() error {
	for _, f := range []struct {
		name  string
		m     Matrix
		names []string
	}{
		{"drug", a.DrugFeatures, a.DrugNames},
		{"protein", a.ProteinFeatures, a.ProteinNames},
	} {
		if f.m.Rows <= 0 || f.m.Cols <= 0 {
			return errors.Wrapf(ErrMalformed, "%s features are %dx%d", f.name, f.m.Rows, f.m.Cols)
		}
		if len(f.m.Data) != f.m.Rows*f.m.Cols {
			return errors.Wrapf(ErrMalformed, "%s features hold %d values, want %d", f.name, len(f.m.Data), f.m.Rows*f.m.Cols)
		}
		if len(f.names) != 0 && len(f.names) != f.m.Rows {
			return errors.Wrapf(ErrMalformed, "%d %s names for %d %s nodes", len(f.names), f.name, f.m.Rows, f.name)
		}
	}

	nd, np := a.NumDrugs(), a.NumProteins()
	for i, e := range a.DDI {
		if err := checkEdge("DDI", i, e.Src, nd, e.Dst, nd); err != nil {
			return err
		}
	}
	for i, e := range a.DPI {
		if err := checkEdge("DPI", i, e.Src, nd, e.Dst, np); err != nil {
			return err
		}
	}
	for i, e := range a.PPI {
		if err := checkEdge("PPI", i, e.Src, np, e.Dst, np); err != nil {
			return err
		}
	}
	return nil
}

func checkEdge(rel string, i, src, numSrc, dst, numDst int) error {
	if src < 0 || src >= numSrc || dst < 0 || dst >= numDst {
		return errors.Wrap(ErrMalformed, fmt.Sprintf("%s edge %d (%d -> %d) out of range", rel, i, src, dst))
	}
	return nil
}

// ReadArtifact decodes and validates an artifact file
func ReadArtifact(path string) (*Artifact, error) {
	var a Artifact
	if err := codec.Decode(path, &a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid artifact %s", path)
	}
	return &a, nil
}

// WriteArtifact validates and encodes an artifact file
func WriteArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return codec.Encode(path, a)
}
