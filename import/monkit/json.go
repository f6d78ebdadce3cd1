package monkit

import (
	"time"

	"loov.dev/tracemodel/trace"
)

// File is a list of spans collected by monkit.
type File []Span

type Span struct {
	ID          SpanID       `json:"id"`
	ParentID    *SpanID      `json:"parent_id,omitempty"`
	Func        Func         `json:"func"`
	Trace       Trace        `json:"trace"`
	Start       UnixNano     `json:"start"`
	Finish      UnixNano     `json:"finish"`
	Orphaned    bool         `json:"orphaned"`
	Err         string       `json:"err"`
	Panicked    bool         `json:"panicked"`
	Args        []string     `json:"args"`
	Annotations []Annotation `json:"annotations"`
}

type Trace struct {
	ID TraceID `json:"id"`
}

type SpanID int64
type TraceID int64

type UnixNano int64

func (n UnixNano) Std() time.Duration { return time.Duration(n) }
func (n UnixNano) Time() trace.Time   { return trace.NewTime(n.Std()) }

type Func struct {
	Package string `json:"package"`
	Name    string `json:"name"`
}

// Annotation is a key and value pair.
type Annotation [2]string

func (s *Span) Title() string { return s.Func.Package + " " + s.Func.Name }

func (s *Span) args() trace.Args {
	args := trace.Args{"id": int64(s.ID)}
	if s.ParentID != nil {
		args["parent_id"] = int64(*s.ParentID)
	}
	if len(s.Args) > 0 {
		args["args"] = append([]string(nil), s.Args...)
	}
	if s.Err != "" {
		args["err"] = s.Err
	}
	if s.Panicked {
		args["panicked"] = true
	}
	if s.Orphaned {
		args["orphaned"] = true
	}
	for _, a := range s.Annotations {
		args[a[0]] = a[1]
	}
	return args
}
