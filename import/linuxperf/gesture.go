package linuxperf

import (
	"regexp"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newGestureParser) }

var gestureEvent = regexp.MustCompile(`^\s*(\w+):\s*(\w+)$`)

// gestureParser imports touchpad gesture library markers such as
// "HandleTimer: start: BoxFilterInterpreter".
type gestureParser struct{ imp *Importer }

func newGestureParser(imp *Importer) {
	p := &gestureParser{imp: imp}
	imp.RegisterEventHandler("tracing_mark_write:log", p.markerEvent("GestureLog"))
	imp.RegisterEventHandler("tracing_mark_write:SyncInterpret", p.markerEvent("SyncInterpret"))
	imp.RegisterEventHandler("tracing_mark_write:HandleTimer", p.markerEvent("HandleTimer"))
}

func (p *gestureParser) markerEvent(title string) Handler {
	return func(ev *Event) bool {
		match := gestureEvent.FindStringSubmatch(ev.Details)
		if match == nil {
			return false
		}
		action, name := match[1], match[2]

		slices := p.imp.GetOrCreatePseudoThread("gesture").Thread.SliceGroup
		switch action {
		case "start":
			_, err := slices.BeginSlice("touchpad_gesture", title, ev.Timestamp, trace.Args{"name": name})
			return err == nil
		case "end":
			if slices.OpenSliceCount() == 0 {
				return true
			}
			open := slices.MostRecentlyOpenedPartialSlice()
			if open.Title != title {
				p.imp.model.ImportWarning(trace.Warning{
					Type:    "title_match_error",
					Message: "Titles do not match. Title is " + open.Title + " in openSlice, and is " + title + " in endSlice",
				})
				return true
			}
			_, err := slices.EndSlice(ev.Timestamp)
			return err == nil
		}
		return true
	}
}
