package trace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/trace"
)

func TestStackFrames(t *testing.T) {
	m := trace.NewModel(trace.DefaultOptions())
	root := trace.NewStackFrame(nil, "root", "", "root", 0)
	mainFrame := trace.NewStackFrame(root, "1", "js", "mainFrame", 0)
	mainFrame.SetKey("entry-1")
	leaf := trace.NewStackFrame(mainFrame, "2", "js", "leaf", 0)

	require.NoError(t, m.AddStackFrame(mainFrame))
	require.NoError(t, m.AddStackFrame(leaf))
	var cerr *trace.ContractError
	require.ErrorAs(t, m.AddStackFrame(leaf), &cerr)

	assert.Same(t, mainFrame, root.ChildWithKey("entry-1"))
	assert.Equal(t, []*trace.StackFrame{leaf, mainFrame, root}, leaf.Stack())

	thread := m.GetOrCreateProcess(1).GetOrCreateThread(1)
	m.AddSample(&trace.Sample{Thread: thread, Title: "tick", Start: 5, LeafStackFrame: leaf, Weight: 1})
	assert.Len(t, m.Samples, 1)
	assert.Len(t, thread.Samples, 1)
	assert.False(t, thread.IsEmpty())

	root.RemoveAllChildren()
	assert.Empty(t, root.Children())
	assert.Nil(t, mainFrame.Parent)
	assert.Equal(t, []*trace.StackFrame{leaf, mainFrame}, leaf.Stack())
}

func TestKernel(t *testing.T) {
	m := trace.NewModel(trace.DefaultOptions())
	assert.Equal(t, 0, m.Kernel.BestGuessAtCpuCount())

	require.NoError(t, m.Kernel.SetSoftwareMeasuredCpuCount(4))
	require.NoError(t, m.Kernel.SetSoftwareMeasuredCpuCount(4))
	var cerr *trace.ContractError
	require.ErrorAs(t, m.Kernel.SetSoftwareMeasuredCpuCount(2), &cerr)
	assert.Equal(t, 4, m.Kernel.BestGuessAtCpuCount())

	cpu := m.Kernel.GetOrCreateCpu(1)
	assert.Same(t, cpu, m.Kernel.GetOrCreateCpu(1))
	assert.Equal(t, "CPU 1", cpu.UserFriendlyName())
	assert.Equal(t, 1, m.Kernel.BestGuessAtCpuCount())
}
