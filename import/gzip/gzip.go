// Package gzip inflates gzip compressed traces and hands the result back
// to the importer registry.
package gzip

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the gzip container.
var Error = errs.Tag("gzip")

func init() {
	trace.Register(trace.Format{
		Name:      "gzip",
		Priority:  0,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return &Importer{model: m, data: data}
		},
	})
}

// header is the magic of a deflate compressed gzip member.
var header = []byte{0x1f, 0x8b, 0x08}

func CanImport(data []byte) bool { return bytes.HasPrefix(data, header) }

// Importer extracts the inflated payload as a subtrace.
type Importer struct {
	model *trace.Model
	data  []byte
}

// Inflate decompresses all members of a gzip stream.
func Inflate(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = r.Close() }()

	inflated, err := io.ReadAll(r)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return inflated, nil
}

func (imp *Importer) ExtractSubtraces() ([][]byte, error) {
	inflated, err := Inflate(imp.data)
	if err != nil {
		return nil, err
	}
	imp.model.Logger().Named("gzip").Debug("inflated",
		zap.Int("compressed", len(imp.data)),
		zap.Int("inflated", len(inflated)))
	return [][]byte{inflated}, nil
}

func (imp *Importer) ImportEvents(isSecondary bool) error { return nil }
