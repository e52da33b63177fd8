package dataset

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/smore-ddi/internal/dataset/datasettest"
	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

func scenarioOptions() datasettest.Options {
	opts := datasettest.Small()
	opts.Drugs = 40
	opts.Subtypes = map[int]int{2: 50, 5: 5, 8: 20}
	return opts
}

func TestFilterRetainsFrequentSubtypes(t *testing.T) {
	a := datasettest.Artifact(scenarioOptions())
	d, err := New(a, 10)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 8}, d.DDITypes)
	assert.Equal(t, 2, d.NumDDITypes())
	assert.Equal(t, 70, d.NumDDI())

	for _, s := range d.Subtypes() {
		retained := false
		for _, r := range d.DDITypes {
			retained = retained || r == s
		}
		if retained {
			assert.GreaterOrEqual(t, d.SubtypeCount(s), 10)
		} else {
			assert.Less(t, d.SubtypeCount(s), 10)
		}
	}

	for id := 0; id < d.NumDDI(); id++ {
		e := d.Interaction(id)
		assert.NotEqual(t, 5, e.Subtype, "discarded subtype leaked into edge universe")
		assert.Equal(t, d.DDITypes[e.Class], e.Subtype)
		assert.Equal(t, e.Class+1, e.Label())
	}
}

func TestRelationsFollowRetainedSubtypes(t *testing.T) {
	d, err := New(datasettest.Artifact(scenarioOptions()), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"DDI_02", "DDI_08", "DPI", "PDI", "PPI"}, d.RelationNames())
	assert.True(t, d.Graph.IsBidirected())

	id, ok := d.Graph.RelationID("DDI_02")
	require.True(t, ok)
	assert.Equal(t, 2*50, d.Graph.Adjacency(id).NumEdges())
	_, ok = d.Graph.RelationID("DDI_05")
	assert.False(t, ok)

	assert.Equal(t, 6, d.NumDrugFeatures)
	assert.Equal(t, 4, d.NumProteinFeatures)
	assert.NotNil(t, d.Graph.Features(hetero.Drug))
	assert.NotNil(t, d.Graph.Features(hetero.Protein))
}

func TestIsInteractionCoversDiscardedSubtypes(t *testing.T) {
	a := datasettest.Artifact(scenarioOptions())
	d, err := New(a, 10)
	require.NoError(t, err)

	for _, e := range a.DDI {
		assert.True(t, d.IsInteraction(e.Src, e.Dst))
		assert.True(t, d.IsInteraction(e.Dst, e.Src))
	}
}

func TestNoRetainedSubtypesIsFatal(t *testing.T) {
	_, err := New(datasettest.Artifact(scenarioOptions()), 1000)
	assert.True(t, errors.Is(err, ErrNoSubtypes))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.gob.gz")
	require.NoError(t, hetero.WriteArtifact(path, datasettest.Artifact(datasettest.Small())))

	d, err := Load(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9}, d.DDITypes)
	assert.Equal(t, 80, d.NumDDI())

	_, err = Load(filepath.Join(t.TempDir(), "missing.gob.gz"), 10)
	assert.Error(t, err)
}

func TestSplitIsStratifiedDisjointAndComplete(t *testing.T) {
	d, err := New(datasettest.Artifact(scenarioOptions()), 10)
	require.NoError(t, err)

	train, test := d.Split(0.2, rand.New(rand.NewSource(3)))

	seen := make(map[int]bool)
	for _, id := range append(append([]int(nil), train...), test...) {
		assert.False(t, seen[id], "edge %d in both splits", id)
		seen[id] = true
	}
	assert.Len(t, seen, d.NumDDI())

	perClass := func(ids []int) map[int]int {
		m := make(map[int]int)
		for _, id := range ids {
			m[d.Interaction(id).Class]++
		}
		return m
	}
	testCounts := perClass(test)
	assert.Equal(t, 10, testCounts[0]) // 50 * 0.2
	assert.Equal(t, 4, testCounts[1])  // 20 * 0.2
	assert.InDelta(t, 0.2, float64(len(test))/float64(d.NumDDI()), 0.01)
}

func TestStratifiedSplitKeepsSingletonsInTrain(t *testing.T) {
	classes := []int{0, 0, 0, 0, 0, 1}
	train, test := StratifiedSplit(classes, 0.5, rand.New(rand.NewSource(1)))
	assert.Contains(t, train, 5)
	// class 0 rounds half away from zero: round(2.5) = 3
	assert.Len(t, test, 3)
}

func TestStratifiedSplitIsDeterministic(t *testing.T) {
	classes := []int{3, 1, 3, 1, 2, 2, 3, 1, 2, 3}
	a1, b1 := StratifiedSplit(classes, 0.3, rand.New(rand.NewSource(9)))
	a2, b2 := StratifiedSplit(classes, 0.3, rand.New(rand.NewSource(9)))
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}
