package hetero

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const edges = `# drug-drug, drug-protein and protein-protein interactions
DB01 Drug DB02 Drug DDI 3
DB02 Drug DB03 Drug DDI 7
DB01 Drug P1 Protein DPI
P2 Protein DB03 Drug PDI
P1 Protein P2 Protein PPI
`

const drugFeatures = `DB01 1 0 0
DB02 0 1 0
DB03 0 0 1
`

const proteinFeatures = `P1 0.5 0.5
P2 -1 1
`

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder()
	n, err := b.LoadEdgeList(strings.NewReader(edges))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, err = b.LoadFeatures(Drug, strings.NewReader(drugFeatures))
	require.NoError(t, err)
	_, err = b.LoadFeatures(Protein, strings.NewReader(proteinFeatures))
	require.NoError(t, err)
	return b
}

func TestBuilderArtifact(t *testing.T) {
	a, err := newTestBuilder(t).Artifact()
	require.NoError(t, err)

	assert.Equal(t, []string{"DB01", "DB02", "DB03"}, a.DrugNames)
	assert.Equal(t, []string{"P1", "P2"}, a.ProteinNames)
	assert.Equal(t, 3, a.DrugFeatures.Cols)
	assert.Equal(t, 2, a.ProteinFeatures.Cols)
	assert.Equal(t, []LabeledEdge{{0, 1, 3}, {1, 2, 7}}, a.DDI)
	// PDI lines are stored in drug -> protein direction
	assert.Equal(t, []Edge{{0, 0}, {2, 1}}, a.DPI)
	assert.Equal(t, []Edge{{0, 1}}, a.PPI)
	assert.Equal(t, []float64{0, 1, 0}, a.DrugFeatures.Dense().RawRowView(1))
}

func TestBuilderRejectsBadLines(t *testing.T) {
	for name, line := range map[string]string{
		"short":         "DB01 Drug DB02 Drug",
		"no subtype":    "DB01 Drug DB02 Drug DDI",
		"bad subtype":   "DB01 Drug DB02 Drug DDI x",
		"bad type":      "DB01 Gene DB02 Drug DDI 1",
		"wrong pairing": "DB01 Drug DB02 Drug PPI",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewBuilder().LoadEdgeList(strings.NewReader(line))
			assert.Error(t, err)
		})
	}
}

func TestParseErrorsKeepTheirCause(t *testing.T) {
	_, err := NewBuilder().LoadEdgeList(strings.NewReader("DB01 Drug DB02 Drug DDI x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, strconv.ErrSyntax))
	assert.Contains(t, err.Error(), "line 1")

	_, err = NewBuilder().LoadFeatures(Drug, strings.NewReader("A 1 two\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, strconv.ErrSyntax))
}

func TestBuilderRequiresFeatures(t *testing.T) {
	b := NewBuilder()
	_, err := b.LoadEdgeList(strings.NewReader(edges))
	require.NoError(t, err)
	_, err = b.LoadFeatures(Drug, strings.NewReader(drugFeatures))
	require.NoError(t, err)

	_, err = b.Artifact()
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLoadFeaturesRejectsRaggedRows(t *testing.T) {
	_, err := NewBuilder().LoadFeatures(Drug, strings.NewReader("A 1 2\nB 1\n"))
	assert.Error(t, err)
}

func TestArtifactRoundTrip(t *testing.T) {
	a, err := newTestBuilder(t).Artifact()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dataset.gob.gz")
	require.NoError(t, WriteArtifact(path, a))
	got, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestValidateRejectsOutOfRangeEdges(t *testing.T) {
	a, err := newTestBuilder(t).Artifact()
	require.NoError(t, err)

	a.DDI = append(a.DDI, LabeledEdge{Src: 0, Dst: 9, Label: 1})
	assert.True(t, errors.Is(a.Validate(), ErrMalformed))

	a.DDI = a.DDI[:len(a.DDI)-1]
	a.ProteinFeatures.Data = a.ProteinFeatures.Data[1:]
	assert.True(t, errors.Is(a.Validate(), ErrMalformed))
}
