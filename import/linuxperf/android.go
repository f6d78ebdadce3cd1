package linuxperf

import (
	"strconv"
	"strings"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newAndroidParser) }

// androidParser imports the userland markers written by the Android
// framework (atrace):
//
//	B|pid|title|args|category
//	E|pid|title|args|category
//	C|pid|name|value|category
//	S|pid|name|cookie
//	F|pid|name|cookie
type androidParser struct {
	imp *Importer
	// ppids maps a thread to the process of its last begin marker.
	ppids map[int]int
	async *trace.OpenAsyncSlices
}

func newAndroidParser(imp *Importer) {
	p := &androidParser{
		imp:   imp,
		ppids: map[int]int{},
		async: trace.NewOpenAsyncSlices(),
	}
	imp.RegisterEventHandler("tracing_mark_write:android", p.event)
	imp.RegisterEventHandler("0:android", p.event)
	imp.RegisterFinalizer(p.finalize)
}

// finalize reports the async slices that were never finished and keeps
// them open on their starting thread.
func (p *androidParser) finalize() {
	p.async.ReportUnmatched(p.imp.model)
	for _, slice := range p.async.Unmatched() {
		slice.StartThread.AsyncSliceGroup.Push(slice)
	}
}

// parseAndroidArgs parses "key=value;key=value", values keep any
// further '='.
func parseAndroidArgs(s string) trace.Args {
	args := trace.Args{}
	if s == "" {
		return args
	}
	for _, item := range strings.Split(s, ";") {
		key, value, _ := strings.Cut(item, "=")
		if key != "" {
			args[key] = value
		}
	}
	return args
}

func (p *androidParser) event(ev *Event) bool {
	fields := strings.Split(ev.Details, "|")
	field := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	model := p.imp.model

	switch field(0) {
	case "B":
		ppid, err := strconv.Atoi(field(1))
		if err != nil {
			return false
		}
		thread := model.GetOrCreateProcess(ppid).GetOrCreateThread(ev.Pid)
		thread.Name = ev.ThreadName
		if !thread.SliceGroup.IsTimestampValidForBeginOrEnd(ev.Timestamp) {
			p.imp.warn("Timestamps are moving backward.")
			return false
		}
		p.ppids[ev.Pid] = ppid
		if _, err := thread.SliceGroup.BeginSlice(field(4), field(2), ev.Timestamp, parseAndroidArgs(field(3))); err != nil {
			return false
		}

	case "E":
		ppid, ok := p.ppids[ev.Pid]
		if !ok {
			// end without a begin
			break
		}
		thread := model.GetOrCreateProcess(ppid).GetOrCreateThread(ev.Pid)
		if thread.SliceGroup.OpenSliceCount() == 0 {
			break
		}
		slice, err := thread.SliceGroup.EndSlice(ev.Timestamp)
		if err != nil {
			return false
		}
		for key, value := range parseAndroidArgs(field(3)) {
			if _, exists := slice.Args[key]; exists {
				p.imp.model.ImportWarning(trace.Warning{
					Type:    "parse_error",
					Message: "Both the B and E events of " + slice.Title + " provided values for argument " + key + ". The value of the E event will be used.",
				})
			}
			slice.Args[key] = value
		}

	case "C":
		ppid, err := strconv.Atoi(field(1))
		if err != nil {
			return false
		}
		value, err := strconv.ParseFloat(field(3), 64)
		if err != nil {
			return false
		}
		counter := model.GetOrCreateProcess(ppid).GetOrCreateCounter(field(4), field(2))
		addCounterValue(counter, "value", ev.Timestamp, value)

	case "S", "F":
		ppid, err := strconv.Atoi(field(1))
		if err != nil {
			return false
		}
		thread := model.GetOrCreateProcess(ppid).GetOrCreateThread(ev.Pid)
		thread.Name = ev.ThreadName
		p.ppids[ev.Pid] = ppid

		key := trace.AsyncKey{Name: field(2), ID: field(3)}
		if field(0) == "S" {
			if _, ok := p.async.Start(key, ev.Timestamp, thread, nil); !ok {
				p.imp.warn("At " + ev.Timestamp.String() + ", an S event for " + key.Name + " (cookie " + key.ID + ") appeared while one was already open.")
			}
		} else if _, ok := p.async.Finish(key, ev.Timestamp, thread, nil); !ok {
			p.imp.warn("At " + ev.Timestamp.String() + ", an F event for " + key.Name + " (cookie " + key.ID + ") appeared with no matching S event.")
		}

	default:
		return false
	}
	return true
}

// addCounterValue adds a sample to every series of the counter, creating
// a series named seriesName for a new counter.
func addCounterValue(counter *trace.Counter, seriesName string, ts trace.Time, value float64) {
	if counter.NumSeries() == 0 {
		counter.AddSeries(trace.NewCounterSeries(seriesName, trace.StringColorID(counter.Name+"."+seriesName)))
	}
	for _, series := range counter.Series {
		series.AddCounterSample(ts, value)
	}
}
