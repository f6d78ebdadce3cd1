// Package trace2html extracts the traces embedded in the HTML documents
// written by trace2html.
package trace2html

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/zeebo/errs/v2"

	"loov.dev/tracemodel/internal/linereader"
	"loov.dev/tracemodel/trace"
)

// Error is the error class of the trace2html container.
var Error = errs.Tag("trace2html")

func init() {
	trace.Register(trace.Format{
		Name:      "trace2html",
		Priority:  0,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return &Importer{text: string(data)}
		},
	})
}

var (
	viewerDataStart = regexp.MustCompile(`^<script id="viewer-data" type="application/json">$`)
	viewerDataEnd   = regexp.MustCompile(`^</script>$`)
)

// blocks returns the base64 bodies of the viewer-data scripts.
func blocks(text string) ([]string, bool) {
	if !strings.HasPrefix(text, "<!DOCTYPE HTML>") {
		return nil, false
	}

	var found []string
	r := linereader.New(text)
	for r.AdvanceToLineMatching(viewerDataStart) {
		r.BeginSavingLines()
		if !r.AdvanceToLineMatching(viewerDataEnd) {
			return nil, false
		}
		lines := r.EndSavingLines()
		// drop the opening and the closing tag
		found = append(found, strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return found, len(found) > 0
}

func CanImport(data []byte) bool {
	_, ok := blocks(string(data))
	return ok
}

// Importer hands each embedded trace back as a subtrace.
type Importer struct {
	text string
}

func (imp *Importer) ExtractSubtraces() ([][]byte, error) {
	found, ok := blocks(imp.text)
	if !ok {
		return nil, Error.Errorf("no viewer-data found")
	}
	subtraces := make([][]byte, 0, len(found))
	for i, data64 := range found {
		data, err := decode(data64)
		if err != nil {
			return nil, Error.Errorf("viewer-data %d: %w", i, err)
		}
		subtraces = append(subtraces, data)
	}
	return subtraces, nil
}

// decode decodes base64 that may be split over several lines.
func decode(data64 string) ([]byte, error) {
	data64 = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, data64)
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(data64, "="))
}

func (imp *Importer) ImportEvents(isSecondary bool) error { return nil }
