package jaeger_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/import/jaeger"
	"loov.dev/tracemodel/trace"
)

const document = `{"data": [{
	"traceID": "a1",
	"spans": [
		{"traceID": "a1", "spanID": "02", "operationName": "query", "startTime": 1100, "duration": 300,
		 "references": [{"refType": "CHILD_OF", "traceID": "a1", "spanID": "01"}],
		 "tags": [{"key": "db", "type": "string", "value": "users"}],
		 "logs": [{"timestamp": 1200, "fields": [{"key": "event", "type": "string", "value": "retry"}]}],
		 "processID": "p1"},
		{"traceID": "a1", "spanID": "01", "operationName": "request", "startTime": 1000, "duration": 1000,
		 "processID": "p1"},
		{"traceID": "a1", "spanID": "03", "operationName": "notify", "startTime": 2500, "duration": 100,
		 "references": [{"refType": "FOLLOWS_FROM", "traceID": "a1", "spanID": "01"}],
		 "processID": "p2"},
		{"traceID": "a1", "spanID": "04", "operationName": "lost", "startTime": 2500, "duration": 100,
		 "processID": "p9"}
	],
	"processes": {
		"p1": {"serviceName": "frontend"},
		"p2": {"serviceName": "mailer"}
	}
}]}`

type sliceSummary struct {
	Title    string
	Start    trace.Time
	Duration trace.Time
	Depth    int
}

func summarize(slices []*trace.Slice) []sliceSummary {
	var out []sliceSummary
	var walk func(slices []*trace.Slice, depth int)
	walk = func(slices []*trace.Slice, depth int) {
		for _, s := range slices {
			out = append(out, sliceSummary{s.Title, s.Start, s.Duration, depth})
			walk(s.SubSlices, depth+1)
		}
	}
	walk(slices, 0)
	return out
}

func us(v int64) trace.Time { return trace.Time(v * 1000) }

func TestCanImport(t *testing.T) {
	assert.True(t, jaeger.CanImport([]byte(document)))
	assert.True(t, jaeger.CanImport([]byte(`{"data": [{"spans": []}]}`)))
	assert.False(t, jaeger.CanImport([]byte(`{"data": []}`)))
	assert.False(t, jaeger.CanImport([]byte(`{"traceEvents": []}`)))
	assert.False(t, jaeger.CanImport([]byte(`[{"ph": "B"}]`)))
}

func TestImport(t *testing.T) {
	options := trace.DefaultOptions()
	options.ShiftWorldToZero = false
	m, err := trace.Import(context.Background(), options, []byte(document))
	require.NoError(t, err)

	require.Len(t, m.Processes, 2)
	frontend := m.Processes[1]
	assert.Equal(t, "frontend", frontend.Name)
	assert.Equal(t, "mailer", m.Processes[2].Name)

	thread := frontend.Threads[1]
	require.NotNil(t, thread)
	assert.Equal(t, "a1", thread.Name)

	want := []sliceSummary{
		{"request", us(1000), us(1000), 0},
		{"query", us(1100), us(300), 1},
		{"retry", us(1200), 0, 2},
	}
	if diff := cmp.Diff(want, summarize(thread.SliceGroup.TopLevelSlices())); diff != "" {
		t.Errorf("slices mismatch (-want +got):\n%s", diff)
	}

	query := thread.SliceGroup.FindSlicesNamed("query")
	require.Len(t, query, 1)
	assert.Equal(t, "users", query[0].Args["db"])
	assert.Equal(t, "01", query[0].Args["parentSpanID"])
	assert.Equal(t, "frontend", query[0].Category)

	require.Len(t, m.FlowEvents, 2)
	out, in := m.FlowEvents[0], m.FlowEvents[1]
	assert.Equal(t, us(2000), out.Start)
	assert.Equal(t, us(2500), in.Start)
	assert.Same(t, in, out.Next)
	assert.Equal(t, "01->03", out.ID)

	var messages []string
	for _, w := range m.ImportWarnings() {
		messages = append(messages, w.Message)
	}
	assert.Equal(t, []string{"Span 04 references unknown process p9"}, messages)
}
