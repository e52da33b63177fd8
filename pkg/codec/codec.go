// Package codec reads and writes values in a format chosen by the file extension:
// .gob, .json, .yml or .yaml, each optionally followed by .gz for gzip compression.
package codec

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for paths whose extension names no supported encoding
var ErrUnknownFormat = errors.New("unknown file format")

// Encoder matches gob.Encoder, json.Encoder and yaml.Encoder
type Encoder interface {
	Encode(interface{}) error
}

// Decoder matches gob.Decoder, json.Decoder and yaml.Decoder
type Decoder interface {
	Decode(interface{}) error
}

// Encode writes obj to path. The file is written to a temporary sibling first and
// renamed into place, so readers never observe a partial file.
func Encode(path string, obj interface{}) error {
	format, compressed, err := formatOf(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "failed to create file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	var zw *gzip.Writer
	if compressed {
		zw = gzip.NewWriter(tmp)
		w = zw
	}

	enc := newEncoder(format, w)
	if err := enc.Encode(obj); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	// yaml buffers until closed
	if c, ok := enc.(io.Closer); ok {
		if err := c.Close(); err != nil {
			tmp.Close()
			return errors.Wrapf(err, "failed to flush %s", path)
		}
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			tmp.Close()
			return errors.Wrapf(err, "failed to compress %s", path)
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "failed to move %s into place", path)
}

// Decode reads path into obj
func Decode(path string, obj interface{}) error {
	format, compressed, err := formatOf(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "failed to decompress %s", path)
		}
		defer zr.Close()
		r = zr
	}

	return errors.Wrapf(newDecoder(format, r).Decode(obj), "failed to decode %s", path)
}

type format int

const (
	formatGob format = iota
	formatJSON
	formatYAML
)

func formatOf(path string) (format, bool, error) {
	compressed := strings.HasSuffix(path, ".gz")
	path = strings.TrimSuffix(path, ".gz")

	switch {
	case strings.HasSuffix(path, ".gob"):
		return formatGob, compressed, nil
	case strings.HasSuffix(path, ".json"):
		return formatJSON, compressed, nil
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return formatYAML, compressed, nil
	}
	return 0, false, errors.Wrap(ErrUnknownFormat, path)
}

func newEncoder(f format, w io.Writer) Encoder {
	switch f {
	case formatJSON:
		return json.NewEncoder(w)
	case formatYAML:
		return yaml.NewEncoder(w)
	}
	return gob.NewEncoder(w)
}

func newDecoder(f format, r io.Reader) Decoder {
	switch f {
	case formatJSON:
		return json.NewDecoder(r)
	case formatYAML:
		return yaml.NewDecoder(r)
	}
	return gob.NewDecoder(r)
}
