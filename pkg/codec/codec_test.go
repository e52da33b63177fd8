package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

func TestEncodeDecodeFormats(t *testing.T) {
	dir := t.TempDir()
	in := sample{Name: "aspirin", Values: []float64{0.5, -1, 3}}

	for _, name := range []string{"s.gob", "s.gob.gz", "s.json", "s.json.gz", "s.yaml", "s.yml.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Encode(path, in))

			var out sample
			require.NoError(t, Decode(path, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestEncodeLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Encode(filepath.Join(dir, "x.gob.gz"), sample{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.gob.gz", entries[0].Name())
}

func TestUnknownFormat(t *testing.T) {
	err := Encode(filepath.Join(t.TempDir(), "x.pkl"), sample{})
	assert.True(t, errors.Is(err, ErrUnknownFormat))

	err = Decode("whatever.txt", &sample{})
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestDecodeMissingFile(t *testing.T) {
	err := Decode(filepath.Join(t.TempDir(), "missing.gob"), &sample{})
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestDecodeCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gob.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))
	assert.Error(t, Decode(path, &sample{}))
}
