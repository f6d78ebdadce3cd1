package pprof_test

import (
	"bytes"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/export/pprof"
	"loov.dev/tracemodel/trace"
)

func newModel(t *testing.T) *trace.Model {
	t.Helper()
	m := trace.NewModel(trace.DefaultOptions())
	thread := m.GetOrCreateProcess(1).GetOrCreateThread(2)
	thread.Name = "main"

	root := trace.NewStackFrame(nil, "1", "app", "main", 0)
	child := trace.NewStackFrame(root, "2", "app", "work", 0)
	other := trace.NewStackFrame(root, "3", "app", "idle", 0)
	for _, frame := range []*trace.StackFrame{root, child, other} {
		require.NoError(t, m.AddStackFrame(frame))
	}

	m.AddSample(&trace.Sample{Thread: thread, Title: "cpu", Start: 10, LeafStackFrame: child, Weight: 1})
	m.AddSample(&trace.Sample{Thread: thread, Title: "cpu", Start: 20, LeafStackFrame: child, Weight: 3})
	m.AddSample(&trace.Sample{Thread: thread, Title: "cpu", Start: 30, LeafStackFrame: other, Weight: 1})
	m.UpdateBounds()
	return m
}

func TestConvert(t *testing.T) {
	p, err := pprof.Convert(newModel(t))
	require.NoError(t, err)

	require.Len(t, p.SampleType, 2)
	assert.Equal(t, "samples", p.SampleType[0].Type)
	assert.Equal(t, "weight", p.SampleType[1].Type)

	require.Len(t, p.Sample, 3)
	assert.Len(t, p.Location, 3)
	assert.Len(t, p.Function, 3)

	first := p.Sample[0]
	assert.Equal(t, []int64{1, 1}, first.Value)
	assert.Equal(t, []string{"main"}, first.Label["thread"])
	require.Len(t, first.Location, 2)
	assert.Equal(t, "work", first.Location[0].Line[0].Function.Name)
	assert.Equal(t, "main", first.Location[1].Line[0].Function.Name)

	assert.Same(t, first.Location[0], p.Sample[1].Location[0])
	assert.Equal(t, []int64{1, 3}, p.Sample[1].Value)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pprof.Write(&buf, newModel(t)))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, p.Sample, 3)
}

func TestConvertEmpty(t *testing.T) {
	p, err := pprof.Convert(trace.NewModel(trace.DefaultOptions()))
	require.NoError(t, err)
	assert.Empty(t, p.Sample)
}
