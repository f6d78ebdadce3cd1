// Package jaeger imports the traces returned by the jaeger query API.
package jaeger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the jaeger importer.
var Error = errs.Tag("jaeger")

func init() {
	trace.Register(trace.Format{
		Name:      "jaeger",
		Priority:  3,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, data)
		},
	})
}

// CanImport reports whether data is an object whose data array holds
// traces with spans.
func CanImport(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var probe struct {
		Data []struct {
			Spans json.RawMessage `json:"spans"`
		} `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	return len(probe.Data) > 0 && probe.Data[0].Spans != nil
}

// Importer imports one jaeger document.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	data  []byte

	pids map[string]int
	tids map[TraceID]int

	spans map[TraceSpanID]*placedSpan
}

// placedSpan is a span together with the slice created for it.
type placedSpan struct {
	span  *Span
	slice *trace.Slice
}

func New(m *trace.Model, data []byte) *Importer {
	return &Importer{
		model: m,
		log:   m.Logger().Named("jaeger"),
		data:  data,
		pids:  map[string]int{},
		tids:  map[TraceID]int{},
		spans: map[TraceSpanID]*placedSpan{},
	}
}

func (imp *Importer) warn(message string) {
	imp.model.ImportWarning(trace.Warning{Type: "parse_error", Message: message})
}

// process returns the model process of a service. Pids are assigned in
// order of appearance.
func (imp *Importer) process(p Process) *trace.Process {
	pid, ok := imp.pids[p.ServiceName]
	if !ok {
		pid = len(imp.pids) + 1
		imp.pids[p.ServiceName] = pid
	}
	process := imp.model.GetOrCreateProcess(pid)
	if process.Name == "" {
		process.Name = p.ServiceName
	}
	return process
}

// thread returns the thread of a trace inside a process.
func (imp *Importer) thread(process *trace.Process, id TraceID) *trace.Thread {
	tid, ok := imp.tids[id]
	if !ok {
		tid = len(imp.tids) + 1
		imp.tids[id] = tid
	}
	thread := process.GetOrCreateThread(tid)
	if thread.Name == "" {
		thread.Name = string(id)
	}
	return thread
}

func (imp *Importer) ImportEvents(isSecondary bool) error {
	var file File
	if err := json.Unmarshal(imp.data, &file); err != nil {
		return Error.Wrap(err)
	}

	spanCount := 0
	for i := range file.Data {
		spanCount += imp.importTrace(&file.Data[i])
	}
	imp.linkFollowsFrom()

	imp.log.Debug("imported jaeger traces",
		zap.Int("traces", len(file.Data)),
		zap.Int("spans", spanCount))
	return nil
}

func (imp *Importer) importTrace(tr *Trace) int {
	for _, w := range tr.Warnings {
		imp.warn(fmt.Sprintf("Trace %s: %s", tr.TraceID, w))
	}

	processIDs := make([]ProcessID, 0, len(tr.Processes))
	for id := range tr.Processes {
		processIDs = append(processIDs, id)
	}
	sort.Slice(processIDs, func(i, k int) bool { return processIDs[i] < processIDs[k] })
	processes := map[ProcessID]*trace.Process{}
	for _, id := range processIDs {
		processes[id] = imp.process(tr.Processes[id])
	}

	// enclosing spans are pushed first so that they become the parents
	spans := make([]*Span, 0, len(tr.Spans))
	for i := range tr.Spans {
		spans = append(spans, &tr.Spans[i])
	}
	sort.SliceStable(spans, func(i, k int) bool {
		if spans[i].StartTime != spans[k].StartTime {
			return spans[i].StartTime < spans[k].StartTime
		}
		return spans[i].Duration > spans[k].Duration
	})

	for _, span := range spans {
		process, ok := processes[span.ProcessID]
		if !ok {
			imp.warn(fmt.Sprintf("Span %s references unknown process %s", span.SpanID, span.ProcessID))
			continue
		}
		for _, w := range span.Warnings {
			imp.warn(fmt.Sprintf("Span %s: %s", span.SpanID, w))
		}
		imp.importSpan(imp.thread(process, span.TraceID), process, span)
	}
	return len(spans)
}

func (imp *Importer) importSpan(thread *trace.Thread, process *trace.Process, span *Span) {
	args := tagArgs(span.Tags)
	args["spanID"] = string(span.SpanID)
	for _, ref := range span.References {
		if ref.RefType == ChildOf {
			args["parentSpanID"] = string(ref.SpanID)
		}
	}

	title := span.OperationName
	slice := thread.SliceGroup.PushCompleteSlice(process.Name, title, span.StartTime.Time(), span.Duration.Time(), args)
	imp.spans[span.TraceSpanID] = &placedSpan{span: span, slice: slice}

	for _, log := range span.Logs {
		fields := tagArgs(log.Fields)
		name := "log"
		if event, ok := fields["event"].(string); ok {
			name = event
		}
		thread.SliceGroup.PushCompleteSlice("log", name, log.Timestamp.Time(), 0, fields)
	}
}

// linkFollowsFrom creates a flow from the end of a span to the start of
// every span that follows from it.
func (imp *Importer) linkFollowsFrom() {
	ids := make([]TraceSpanID, 0, len(imp.spans))
	for id := range imp.spans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool {
		if ids[i].TraceID != ids[k].TraceID {
			return ids[i].TraceID < ids[k].TraceID
		}
		return ids[i].SpanID < ids[k].SpanID
	})

	for _, id := range ids {
		next := imp.spans[id]
		for _, ref := range next.span.References {
			if ref.RefType != FollowsFrom {
				continue
			}
			prev, ok := imp.spans[ref.TraceSpanID]
			if !ok {
				imp.warn(fmt.Sprintf("Span %s follows unknown span %s", id.SpanID, ref.SpanID))
				continue
			}

			flowID := string(ref.SpanID) + "->" + string(id.SpanID)
			out := trace.NewFlowEvent("jaeger", flowID, prev.slice.Title, prev.slice.ColorID, prev.slice.End(), nil)
			in := trace.NewFlowEvent("jaeger", flowID, next.slice.Title, next.slice.ColorID, next.slice.Start, nil)
			trace.Link(out, in)
			imp.model.FlowEvents = append(imp.model.FlowEvents, out, in)
		}
	}
}
