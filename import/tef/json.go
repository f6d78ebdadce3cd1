package tef

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// This package implements
// https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview?tab=t.0#heading=h.yr4qxyxotyw

/*
{
  "traceEvents": [
    {"name": "Asub", "cat": "PERF", "ph": "B", "pid": 22630, "tid": 22630, "ts": 829},
    {"name": "Asub", "cat": "PERF", "ph": "E", "pid": 22630, "tid": 22630, "ts": 833}
  ],
  "displayTimeUnit": "ns",
  "systemTraceEvents": "SystemTraceData",
  "otherData": {
    "version": "My Application v1.0"
  },
  "stackFrames": {...}
  "samples": [...],
}
*/

type File struct {
	TraceEvents []Event `json:"traceEvents"`
	// If provided displayTimeUnit is a string that specifies in which unit timestamps should be displayed.
	// This supports values of “ms” or “ns”. By default this is value is “ms”.
	DisplayTimeUnit string `json:"displayTimeUnit"`
	// If provided systemTraceEvents is a string of Linux ftrace data or Windows ETW trace data.
	// This data must start with # tracer: and adhere to the Linux ftrace format or adhere to Windows ETW format.
	SystemTraceEvents string `json:"systemTraceEvents"`
	// If provided, the stackFrames field is a dictionary of stack frames, their ids,
	// and their parents that allows compact representation of stack traces throughout
	// the rest of the trace file.
	StackFrames map[string]StackFrame `json:"stackFrames"`
	// The samples array is used to store sampling profiler data from a OS level profiler.
	Samples []Sample `json:"samples"`
	// Any other properties seen in the object, in this case otherData are assumed to be metadata for the trace.
	OtherData map[string]any `json:"otherData"`
}

// knownFileKeys are the keys of File that are not metadata.
var knownFileKeys = map[string]bool{
	"traceEvents":       true,
	"systemTraceEvents": true,
	"stackFrames":       true,
	"samples":           true,
}

/*
{
  "name": "myName",
  "cat": "category,list",
  "ph": "B",
  "ts": 12345,
  "pid": 123,
  "tid": 456,
  "args": {
    "someArg": 1,
    "anotherArg": {
      "value": "my value"
    }
  }
}
*/

type Event struct {
	// ID is a unique identifier for async, flow and object events.
	ID ID `json:"id,omitempty"`
	// The name of the event, as displayed in Trace Viewer
	Name string `json:"name"`
	// The event categories. This is a comma separated list of categories for the event.
	Category string `json:"cat"`
	// The event type. This is a single character which changes depending on the type of
	// event being output.
	Phase Phase `json:"ph"`
	// The tracing clock timestamp of the event, in microseconds.
	Timestamp float64 `json:"ts"`
	// Optional. The thread clock timestamp of the event, in microseconds.
	ThreadTimestamp *float64 `json:"tts,omitempty"`
	// The process ID for the process that output this event.
	ProcessID int `json:"pid"`
	// The thread ID for the thread that output this event.
	ThreadID int `json:"tid"`
	// Scope of instant events: "g" global, "p" process, "t" thread.
	Scope string `json:"s,omitempty"`

	// StackFrame is a reference to StackFrames map.
	StackFrame ID `json:"sf,omitempty"`
	// Stack can be used instead of StackFrame to provide raw frames.
	Stack []string `json:"stack,omitempty"`

	// Any arguments provided for the event.
	Args map[string]any `json:"args"`

	// Duration specifies the duration for Complete events.
	Duration float64 `json:"dur,omitempty"`
	// ThreadDuration is the thread clock duration of Complete events.
	ThreadDuration *float64 `json:"tdur,omitempty"`
}

// ID is an identifier that is written either as a string or as a number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

type Phase string

const (
	DurationBegin Phase = "B"
	DurationEnd   Phase = "E"
	Complete      Phase = "X"
	Instant       Phase = "i"
	LegacyInstant Phase = "I"
	Counter       Phase = "C"

	AsyncStart   Phase = "b"
	AsyncInstant Phase = "n"
	AsyncEnd     Phase = "e"

	DeprecatedAsyncStart    Phase = "S"
	DeprecatedAsyncStepInto Phase = "T"
	DeprecatedAsyncPast     Phase = "p"
	DeprecatedAsyncEnd      Phase = "F"

	FlowStart Phase = "s"
	FlowStep  Phase = "t"
	FlowEnd   Phase = "f"

	ObjectCreated   Phase = "N"
	ObjectSnapshot  Phase = "O"
	ObjectDestroyed Phase = "D"

	Metadata Phase = "M"

	Sampled Phase = "P"

	MemoryDumpGlobal  Phase = "V"
	MemoryDumpProcess Phase = "v"

	Mark Phase = "R"

	ClockSync Phase = "c"
	Context   Phase = ","
)

type StackFrame struct {
	Parent   ID     `json:"parent,omitempty"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

/*
 {
   'cpu': 0, 'tid': 1, 'ts': 1000.0,
   'name': 'cycles:HG', 'sf': 3, 'weight': 1
 }
*/

type Sample struct {
	CPU        int      `json:"cpu"`
	ThreadID   int      `json:"tid"`
	Timestamp  float64  `json:"ts"`
	Name       string   `json:"name"`
	StackFrame ID       `json:"sf"`
	Weight     *float64 `json:"weight,omitempty"`
}

// argString returns the string form of an argument.
func argString(args map[string]any, key string) (string, bool) {
	switch v := args[key].(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// argNumber returns the numeric value of an argument. Numbers written as
// strings are accepted.
func argNumber(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
