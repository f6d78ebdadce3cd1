package linuxperf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/trace"
)

func schedLines(sleepState string) []string {
	return []string{
		"ndroid.launcher-584   [001] d..3 12622.506890: sched_switch: prev_comm=ndroid.launcher prev_pid=584 prev_prio=120 prev_state=R+ ==> next_comm=Binder_1 next_pid=217 next_prio=120",
		"       Binder_1-217   [001] d..3 12622.506918: sched_switch: prev_comm=Binder_1 prev_pid=217 prev_prio=120 prev_state=" + sleepState + " ==> next_comm=ndroid.launcher next_pid=584 next_prio=120",
		"ndroid.launcher-584   [001] d..4 12622.506936: sched_wakeup: comm=Binder_1 pid=217 prio=120 success=1 target_cpu=001",
		"ndroid.launcher-584   [001] d..3 12622.506950: sched_switch: prev_comm=ndroid.launcher prev_pid=584 prev_prio=120 prev_state=R+ ==> next_comm=Binder_1 next_pid=217 next_prio=120",
		"       Binder_1-217   [001] ...1 12622.507057: tracing_mark_write: B|128|queueBuffer",
		"       Binder_1-217   [001] ...1 12622.507175: tracing_mark_write: E",
		"       Binder_1-217   [001] d..3 12622.507253: sched_switch: prev_comm=Binder_1 prev_pid=217 prev_prio=120 prev_state=S ==> next_comm=ndroid.launcher next_pid=584 next_prio=120",
	}
}

func binderTimeSlices(t *testing.T, m *trace.Model) []*trace.ThreadTimeSlice {
	t.Helper()
	threads := m.FindAllThreadsNamed("Binder_1")
	require.Len(t, threads, 1)
	return threads[0].TimeSlices
}

func TestSchedWakeup(t *testing.T) {
	m := importLines(t, schedLines("D")...)
	assert.False(t, m.HasImportWarnings())

	slices := binderTimeSlices(t, m)
	require.Len(t, slices, 4)

	assert.Equal(t, "Running", slices[0].Title)
	assert.Equal(t, trace.Time(12622506890000), slices[0].Start)
	assert.Equal(t, trace.Time(28000), slices[0].Duration)
	require.NotNil(t, slices[0].CPU)
	assert.Equal(t, 1, slices[0].CPU.Number)

	assert.Equal(t, "Uninterruptible Sleep", slices[1].Title)
	assert.Equal(t, trace.Time(12622506918000), slices[1].Start)
	assert.Equal(t, trace.Time(18000), slices[1].Duration)

	assert.Equal(t, "Runnable", slices[2].Title)
	assert.Equal(t, trace.Time(12622506936000), slices[2].Start)
	assert.Equal(t, trace.Time(14000), slices[2].Duration)
	assert.Equal(t, 584, slices[2].Args["wakeup from tid"])

	assert.Equal(t, "Running", slices[3].Title)
	assert.Equal(t, trace.Time(12622506950000), slices[3].Start)
	assert.Equal(t, trace.Time(303000), slices[3].Duration)
}

func TestSchedUninterruptibleWakeKill(t *testing.T) {
	m := importLines(t, schedLines("D|K")...)
	assert.False(t, m.HasImportWarnings())

	slices := binderTimeSlices(t, m)
	require.Len(t, slices, 4)
	assert.Equal(t, "Uninterruptible Sleep | WakeKill", slices[1].Title)
	assert.Equal(t, trace.Time(12622506918000), slices[1].Start)
	assert.Equal(t, trace.Time(18000), slices[1].Duration)
}

func TestSchedUnknownSleepState(t *testing.T) {
	m := importLines(t, schedLines("F|O")...)
	require.True(t, m.HasImportWarnings())
	assert.Equal(t, "Unrecognized sleep state: F|O", m.ImportWarnings()[0].Message)

	slices := binderTimeSlices(t, m)
	require.Len(t, slices, 3)
	assert.Equal(t, "UNKNOWN", slices[1].Title)
	assert.Equal(t, trace.Time(32000), slices[1].Duration)
}

func TestSchedCpuSlices(t *testing.T) {
	m := importLines(t, schedLines("D")...)

	cpu := m.Kernel.Cpus[1]
	require.NotNil(t, cpu)
	// the last thread switched in never switches out
	require.Len(t, cpu.Slices, 3)

	first := cpu.Slices[0]
	assert.Equal(t, "Binder_1", first.Title)
	assert.Equal(t, 217, first.Tid)
	assert.Equal(t, trace.SchedState("D"), first.StateWhenDescheduled)
	assert.Equal(t, "Binder_1", first.ThreadThatWasRunning.Name)

	second := cpu.Slices[1]
	assert.Equal(t, "ndroid.launcher", second.Title)
	assert.Nil(t, second.ThreadThatWasRunning)

	assert.Equal(t, trace.SchedState("S"), cpu.Slices[2].StateWhenDescheduled)
}
