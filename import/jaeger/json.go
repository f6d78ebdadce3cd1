package jaeger

import "loov.dev/tracemodel/trace"

// File is the document returned by the jaeger query API.
type File struct {
	Data []Trace `json:"data"`
}

type TraceID string
type SpanID string
type ProcessID string

type TraceSpanID struct {
	TraceID TraceID `json:"traceID"`
	SpanID  SpanID  `json:"spanID"`
}

type Duration int64 // in microseconds

func (d Duration) Time() trace.Time { return trace.Time(d) * 1000 }

type Flags int32

const (
	SampledFlag = Flags(0b01)
	DebugFlag   = Flags(0b10)
)

type Trace struct {
	TraceID   TraceID               `json:"traceID"`
	Spans     []Span                `json:"spans"`
	Processes map[ProcessID]Process `json:"processes"`
	Warnings  []string              `json:"warnings,omitempty"`
}

type Span struct {
	TraceSpanID
	Flags         Flags     `json:"flags"`
	OperationName string    `json:"operationName"`
	References    []SpanRef `json:"references"`
	StartTime     Duration  `json:"startTime"`
	Duration      Duration  `json:"duration"`
	Tags          []Tag     `json:"tags"`
	Logs          []Log     `json:"logs"`
	ProcessID     ProcessID `json:"processID"`
	Warnings      []string  `json:"warnings,omitempty"`
}

type Log struct {
	Timestamp Duration `json:"timestamp"`
	Fields    []Tag    `json:"fields"`
}

type SpanRef struct {
	RefType SpanRefType `json:"refType"`
	TraceSpanID
}

type SpanRefType string

const (
	ChildOf     = SpanRefType("CHILD_OF")
	FollowsFrom = SpanRefType("FOLLOWS_FROM")
)

type Process struct {
	ServiceName string `json:"serviceName"`
	Tags        []Tag  `json:"tags"`
}

type Tag struct {
	Type  TagType `json:"type"`
	Key   string  `json:"key"`
	Value any     `json:"value"`
}

type TagType string

const (
	StringTag = TagType("string")
)

// tagArgs converts tags to slice arguments.
func tagArgs(tags []Tag) trace.Args {
	args := trace.Args{}
	for _, tag := range tags {
		args[tag.Key] = tag.Value
	}
	return args
}
