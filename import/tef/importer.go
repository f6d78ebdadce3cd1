// Package tef imports the Chrome trace event format.
package tef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

// Error is the class of errors returned by the importer.
var Error = errs.Tag("tef")

func init() {
	trace.Register(trace.Format{
		Name:      "tef",
		Priority:  3,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, data)
		},
	})
	if err := trace.RegisterSnapshotType("cc::Picture", decodePicture); err != nil {
		panic(err)
	}
}

// CanImport reports whether data is a JSON array of trace events or an
// object holding traceEvents.
func CanImport(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false
	}
	switch data[0] {
	case '{':
		return bytes.Contains(data, []byte(`"traceEvents"`))
	case '[':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return false
		}
		if !dec.More() {
			return true
		}
		var first map[string]json.RawMessage
		if err := dec.Decode(&first); err != nil {
			return false
		}
		_, ok := first["ph"]
		return ok
	}
	return false
}

// repairTruncated closes an array that was cut off while writing, for
// example by a crashing process.
func repairTruncated(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return data
	}
	data = bytes.TrimRight(data, " \t\r\n")
	data = bytes.TrimSuffix(data, []byte(","))
	data = bytes.TrimRight(data, " \t\r\n")
	if data[len(data)-1] != ']' {
		data = append(append([]byte(nil), data...), ']')
	}
	return data
}

type nestableKey struct {
	category string
	id       string
}

// Importer imports one trace event file.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	data  []byte

	parsed   bool
	parseErr error
	file     File
	metadata []trace.Metadata

	asyncEvents  []*Event
	flowEvents   []*Event
	objectEvents []*Event

	nestable map[nestableKey][]*trace.AsyncSlice
}

func New(m *trace.Model, data []byte) *Importer {
	return &Importer{
		model:    m,
		log:      m.Logger().Named("tef"),
		data:     data,
		nestable: map[nestableKey][]*trace.AsyncSlice{},
	}
}

func (imp *Importer) parse() error {
	if imp.parsed {
		return imp.parseErr
	}
	imp.parsed = true

	data := repairTruncated(imp.data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &imp.file.TraceEvents); err != nil {
			imp.parseErr = Error.Wrap(err)
		}
		return imp.parseErr
	}

	if err := json.Unmarshal(data, &imp.file); err != nil {
		imp.parseErr = Error.Wrap(err)
		return imp.parseErr
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		imp.parseErr = Error.Wrap(err)
		return imp.parseErr
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if !knownFileKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		var value any
		if err := json.Unmarshal(fields[key], &value); err != nil {
			imp.parseErr = Error.Wrap(err)
			return imp.parseErr
		}
		imp.metadata = append(imp.metadata, trace.Metadata{Name: key, Value: value})
	}
	return nil
}

// ExtractSubtraces returns the system trace embedded in the file.
func (imp *Importer) ExtractSubtraces() ([][]byte, error) {
	if err := imp.parse(); err != nil {
		return nil, err
	}
	if imp.file.SystemTraceEvents == "" {
		return nil, nil
	}
	return [][]byte{[]byte(imp.file.SystemTraceEvents)}, nil
}

func (imp *Importer) warn(format string, args ...any) {
	imp.model.ImportWarning(trace.Warning{
		Type:    "parse_error",
		Message: fmt.Sprintf(format, args...),
	})
}

func (imp *Importer) thread(ev *Event) *trace.Thread {
	return imp.model.GetOrCreateProcess(ev.ProcessID).GetOrCreateThread(ev.ThreadID)
}

func ts(us float64) trace.Time { return trace.FromMicroseconds(us) }

func (imp *Importer) ImportEvents(isSecondary bool) error {
	if err := imp.parse(); err != nil {
		return err
	}
	for _, md := range imp.metadata {
		imp.model.AddMetadata(md.Name, md.Value)
	}

	imp.importStackFrames()

	for i := range imp.file.TraceEvents {
		ev := &imp.file.TraceEvents[i]
		switch ev.Phase {
		case DurationBegin:
			imp.processBegin(ev)
		case DurationEnd:
			imp.processEnd(ev)
		case Complete:
			imp.processComplete(ev)
		case Instant, LegacyInstant:
			imp.processInstant(ev)
		case Counter:
			imp.processCounter(ev)
		case DeprecatedAsyncStart, DeprecatedAsyncStepInto, DeprecatedAsyncPast, DeprecatedAsyncEnd:
			imp.asyncEvents = append(imp.asyncEvents, ev)
		case AsyncStart, AsyncEnd, AsyncInstant:
			imp.processNestable(ev)
		case FlowStart, FlowStep, FlowEnd:
			imp.flowEvents = append(imp.flowEvents, ev)
		case ObjectCreated, ObjectSnapshot, ObjectDestroyed:
			imp.objectEvents = append(imp.objectEvents, ev)
		case Metadata:
			imp.processMetadata(ev)
		case Sampled:
			imp.processSample(ev)
		default:
			imp.warn("Unrecognized event phase: %s (%s)", ev.Phase, ev.Name)
		}
	}

	imp.createAsyncSlices()
	imp.createFlowEvents()
	imp.createObjects()
	imp.importSamples()
	imp.closeNestable()

	imp.log.Debug("imported trace events",
		zap.Int("events", len(imp.file.TraceEvents)),
		zap.Int("samples", len(imp.file.Samples)))
	return nil
}

func (imp *Importer) processBegin(ev *Event) {
	thread := imp.thread(ev)
	start := ts(ev.Timestamp)
	if !thread.SliceGroup.IsTimestampValidForBeginOrEnd(start) {
		imp.warn("Timestamps are moving backward.")
		return
	}
	slice, err := thread.SliceGroup.BeginSlice(ev.Category, ev.Name, start, copyArgs(ev.Args))
	if err != nil {
		imp.warn("%v", err)
		return
	}
	if ev.ThreadTimestamp != nil {
		slice.SetCPU(ts(*ev.ThreadTimestamp), 0)
	}
}

func (imp *Importer) processEnd(ev *Event) {
	thread := imp.thread(ev)
	end := ts(ev.Timestamp)
	if !thread.SliceGroup.IsTimestampValidForBeginOrEnd(end) {
		imp.warn("Timestamps are moving backward.")
		return
	}
	if thread.SliceGroup.OpenSliceCount() == 0 {
		imp.warn("E phase event without a matching B phase event.")
		return
	}

	slice, err := thread.SliceGroup.EndSlice(end)
	if err != nil {
		imp.warn("%v", err)
		return
	}
	if ev.Name != "" && slice.Title != ev.Name {
		imp.warn("Titles do not match. Title is %s in openSlice, and is %s in endSlice", slice.Title, ev.Name)
	}
	for key, value := range ev.Args {
		if _, exists := slice.Args[key]; exists {
			imp.warn("Both the B and E phases of %s provided values for argument %s. The value of the E phase event will be used.", slice.Title, key)
		}
		slice.Args[key] = value
	}
	if slice.HasCPU && ev.ThreadTimestamp != nil {
		slice.CPUDuration = ts(*ev.ThreadTimestamp) - slice.CPUStart
	}
}

func (imp *Importer) processComplete(ev *Event) {
	thread := imp.thread(ev)
	slice := thread.SliceGroup.PushCompleteSlice(ev.Category, ev.Name, ts(ev.Timestamp), ts(ev.Duration), copyArgs(ev.Args))
	if ev.ThreadTimestamp != nil && ev.ThreadDuration != nil {
		slice.SetCPU(ts(*ev.ThreadTimestamp), ts(*ev.ThreadDuration))
	}
}

func (imp *Importer) processInstant(ev *Event) {
	slice := trace.NewSlice(ev.Category, ev.Name, trace.StringColorID(ev.Name), ts(ev.Timestamp), copyArgs(ev.Args), 0)
	switch ev.Scope {
	case "g":
		imp.model.InstantEvents = append(imp.model.InstantEvents, slice)
	case "p":
		process := imp.model.GetOrCreateProcess(ev.ProcessID)
		process.InstantEvents = append(process.InstantEvents, slice)
	default:
		thread := imp.thread(ev)
		if !thread.SliceGroup.IsTimestampValidForBeginOrEnd(slice.Start) {
			imp.warn("Timestamps are moving backward.")
			return
		}
		thread.SliceGroup.PushSlice(slice)
	}
}

func (imp *Importer) processCounter(ev *Event) {
	name := ev.Name
	if ev.ID != "" {
		name += "[" + string(ev.ID) + "]"
	}
	counter := imp.model.GetOrCreateProcess(ev.ProcessID).GetOrCreateCounter(ev.Category, name)

	if counter.NumSeries() == 0 {
		keys := make([]string, 0, len(ev.Args))
		for key := range ev.Args {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			counter.AddSeries(trace.NewCounterSeries(key, trace.StringColorID(counter.Name+"."+key)))
		}
	}

	at := ts(ev.Timestamp)
	for _, series := range counter.Series {
		value, _ := argNumber(ev.Args, series.Name)
		series.AddCounterSample(at, value)
	}
}

func (imp *Importer) processMetadata(ev *Event) {
	switch ev.Name {
	case "process_name":
		if name, ok := argString(ev.Args, "name"); ok {
			imp.model.GetOrCreateProcess(ev.ProcessID).Name = name
		}
	case "process_labels":
		if labels, ok := argString(ev.Args, "labels"); ok {
			process := imp.model.GetOrCreateProcess(ev.ProcessID)
			process.Labels = append(process.Labels, strings.Split(labels, ",")...)
		}
	case "process_sort_index":
		if index, ok := argNumber(ev.Args, "sort_index"); ok {
			imp.model.GetOrCreateProcess(ev.ProcessID).SortIndex = int(index)
		}
	case "thread_name":
		if name, ok := argString(ev.Args, "name"); ok {
			imp.thread(ev).Name = name
		}
	case "thread_sort_index":
		if index, ok := argNumber(ev.Args, "sort_index"); ok {
			imp.thread(ev).SortIndex = int(index)
		}
	default:
		imp.model.AddMetadata(ev.Name, ev.Args)
	}
}

// createAsyncSlices matches the S, T, p and F events by (category, name, id)
// in timestamp order.
func (imp *Importer) createAsyncSlices() {
	if len(imp.asyncEvents) == 0 {
		return
	}
	sort.SliceStable(imp.asyncEvents, func(i, k int) bool {
		return imp.asyncEvents[i].Timestamp < imp.asyncEvents[k].Timestamp
	})

	open := trace.NewOpenAsyncSlices()
	for _, ev := range imp.asyncEvents {
		key := trace.AsyncKey{Category: ev.Category, Name: ev.Name, ID: string(ev.ID)}
		at := ts(ev.Timestamp)
		switch ev.Phase {
		case DeprecatedAsyncStart:
			if _, ok := open.Start(key, at, imp.thread(ev), copyArgs(ev.Args)); !ok {
				imp.warn("At %v, a slice of the same id %s was already open.", at, ev.ID)
			}
		case DeprecatedAsyncStepInto, DeprecatedAsyncPast:
			step, _ := argString(ev.Args, "step")
			if _, ok := open.Step(key, at, step, copyArgs(ev.Args)); !ok {
				imp.warn("At %v, a %s event appeared with no matching S event.", at, ev.Phase)
			}
		case DeprecatedAsyncEnd:
			if _, ok := open.Finish(key, at, imp.thread(ev), copyArgs(ev.Args)); !ok {
				imp.warn("At %v, an F event appeared with no matching S event.", at)
			}
		}
	}

	open.ReportUnmatched(imp.model)
	for _, slice := range open.Unmatched() {
		slice.StartThread.AsyncSliceGroup.Push(slice)
	}
}

// processNestable handles b, e and n events. Slices with the same category
// and id nest inside each other.
func (imp *Importer) processNestable(ev *Event) {
	key := nestableKey{category: ev.Category, id: string(ev.ID)}
	stack := imp.nestable[key]
	at := ts(ev.Timestamp)
	thread := imp.thread(ev)

	attach := func(slice *trace.AsyncSlice) {
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.SubSlices = append(parent.SubSlices, &slice.Slice)
			return
		}
		thread.AsyncSliceGroup.Push(slice)
	}

	switch ev.Phase {
	case AsyncStart:
		slice := trace.NewAsyncSlice(ev.Category, ev.Name, trace.StringColorID(ev.Name), at, copyArgs(ev.Args))
		slice.ID = string(ev.ID)
		slice.StartThread = thread
		slice.DidNotFinish = true
		attach(slice)
		imp.nestable[key] = append(stack, slice)

	case AsyncInstant:
		slice := trace.NewAsyncSlice(ev.Category, ev.Name, trace.StringColorID(ev.Name), at, copyArgs(ev.Args))
		slice.ID = string(ev.ID)
		slice.StartThread = thread
		slice.EndThread = thread
		attach(slice)

	case AsyncEnd:
		if len(stack) == 0 {
			imp.warn("At %v, an e event appeared with no matching b event.", at)
			return
		}
		slice := stack[len(stack)-1]
		if ev.Name != "" && ev.Name != slice.Title {
			imp.warn("At %v, an e event named %s closed the slice %s.", at, ev.Name, slice.Title)
		}
		slice.Duration = at - slice.Start
		slice.DidNotFinish = false
		slice.EndThread = thread
		for k, v := range ev.Args {
			slice.Args[k] = v
		}
		imp.nestable[key] = stack[:len(stack)-1]
	}
}

// closeNestable reports the nestable slices without an end.
func (imp *Importer) closeNestable() {
	keys := make([]nestableKey, 0, len(imp.nestable))
	for key, stack := range imp.nestable {
		if len(stack) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, k int) bool {
		if keys[i].category != keys[k].category {
			return keys[i].category < keys[k].category
		}
		return keys[i].id < keys[k].id
	})
	for _, key := range keys {
		for _, slice := range imp.nestable[key] {
			imp.warn("Async slice %s (id %s) was never finished", slice.Title, slice.ID)
		}
	}
}

// createFlowEvents links s, t and f events by id.
func (imp *Importer) createFlowEvents() {
	sort.SliceStable(imp.flowEvents, func(i, k int) bool {
		return imp.flowEvents[i].Timestamp < imp.flowEvents[k].Timestamp
	})

	last := map[string]*trace.FlowEvent{}
	for _, ev := range imp.flowEvents {
		id := string(ev.ID)
		flow := trace.NewFlowEvent(ev.Category, id, ev.Name, trace.StringColorID(ev.Name), ts(ev.Timestamp), copyArgs(ev.Args))

		if ev.Phase == FlowStart {
			if _, exists := last[id]; exists {
				imp.warn("At %v, a flow with id %s was already started.", flow.Start, id)
				continue
			}
			last[id] = flow
			imp.model.FlowEvents = append(imp.model.FlowEvents, flow)
			continue
		}

		prev, ok := last[id]
		if !ok {
			imp.warn("At %v, a %s flow event appeared with no matching s event.", flow.Start, ev.Phase)
			continue
		}
		trace.Link(prev, flow)
		imp.model.FlowEvents = append(imp.model.FlowEvents, flow)
		if ev.Phase == FlowEnd {
			delete(last, id)
		} else {
			last[id] = flow
		}
	}
}

// createObjects replays the object events in timestamp order.
func (imp *Importer) createObjects() {
	sort.SliceStable(imp.objectEvents, func(i, k int) bool {
		return imp.objectEvents[i].Timestamp < imp.objectEvents[k].Timestamp
	})

	for _, ev := range imp.objectEvents {
		objects := imp.model.GetOrCreateProcess(ev.ProcessID).Objects
		id, at := string(ev.ID), ts(ev.Timestamp)

		var err error
		switch ev.Phase {
		case ObjectCreated:
			_, err = objects.IDWasCreated(id, ev.Category, ev.Name, at)
		case ObjectSnapshot:
			snapshot, ok := ev.Args["snapshot"]
			if !ok {
				imp.warn("At %v, snapshot of %s %s has no args.snapshot.", at, ev.Name, id)
				continue
			}
			_, err = objects.AddSnapshot(id, ev.Category, ev.Name, at, snapshot)
		case ObjectDestroyed:
			_, err = objects.IDWasDeleted(id, ev.Category, ev.Name, at)
		}
		if err != nil {
			imp.model.ImportWarning(trace.Warning{Type: "object_parse_error", Message: err.Error()})
		}
	}
}

func copyArgs(args map[string]any) trace.Args {
	out := make(trace.Args, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
