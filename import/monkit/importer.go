// Package monkit imports the span dumps of github.com/spacemonkeygo/monkit.
package monkit

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the monkit importer.
var Error = errs.Tag("monkit")

func init() {
	trace.Register(trace.Format{
		Name:      "monkit",
		Priority:  3,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, data)
		},
	})
}

// Pid of the process holding the monkit traces.
const monkitPid = 1

// CanImport reports whether data is an array of spans carrying func and
// trace.
func CanImport(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil || len(probe) == 0 {
		return false
	}
	_, hasFunc := probe[0]["func"]
	_, hasTrace := probe[0]["trace"]
	return hasFunc && hasTrace
}

// Importer imports one monkit span dump.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	data  []byte
}

func New(m *trace.Model, data []byte) *Importer {
	return &Importer{model: m, log: m.Logger().Named("monkit"), data: data}
}

func (imp *Importer) ImportEvents(isSecondary bool) error {
	var file File
	if err := json.Unmarshal(imp.data, &file); err != nil {
		return Error.Wrap(err)
	}

	process := imp.model.GetOrCreateProcess(monkitPid)
	if process.Name == "" {
		process.Name = "monkit"
	}

	// enclosing spans are pushed first so that they become the parents
	spans := make([]*Span, 0, len(file))
	for i := range file {
		spans = append(spans, &file[i])
	}
	sort.SliceStable(spans, func(i, k int) bool {
		if spans[i].Start != spans[k].Start {
			return spans[i].Start < spans[k].Start
		}
		return spans[i].Finish > spans[k].Finish
	})

	for _, span := range spans {
		if span.Finish < span.Start {
			imp.model.ImportWarning(trace.Warning{
				Type:    "parse_error",
				Message: "Span " + strconv.FormatInt(int64(span.ID), 10) + " finishes before it starts",
			})
			continue
		}
		thread := process.GetOrCreateThread(int(span.Trace.ID))
		if thread.Name == "" {
			thread.Name = "trace " + strconv.FormatInt(int64(span.Trace.ID), 10)
		}
		title := span.Title()
		thread.SliceGroup.PushCompleteSlice(span.Func.Package, title,
			span.Start.Time(), span.Finish.Time()-span.Start.Time(), span.args())
	}

	imp.log.Debug("imported monkit spans", zap.Int("spans", len(spans)))
	return nil
}
