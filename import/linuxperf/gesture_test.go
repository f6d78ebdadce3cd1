package linuxperf_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gestureLines formats the markers as written by one thread, one
// microsecond apart.
func gestureLines(thread string, markers ...string) []string {
	lines := make([]string, len(markers))
	for i, marker := range markers {
		lines[i] = fmt.Sprintf("%s [000] ...1 875292.%06d: tracing_mark_write: %s", thread, 741648+i, marker)
	}
	return lines
}

var handleTimerFilters = []string{
	"LoggingFilterInterpreter",
	"AppleTrackpadFilterInterpreter",
	"Cr48ProfileSensorFilterInterpreter",
	"T5R2CorrectingFilterInterpreter",
	"StuckButtonInhibitorFilterInterpreter",
	"IntegralGestureFilterInterpreter",
	"ScalingFilterInterpreter",
	"SplitCorrectingFilterInterpreter",
	"AccelFilterInterpreter",
	"SensorJumpFilterInterpreter",
	"BoxFilterInterpreter",
	"LookaheadFilterInterpreter",
}

var syncInterpretFilters = []string{
	"IirFilterInterpreter",
	"PalmClassifyingFilterInterpreter",
	"ClickWiggleFilterInterpreter",
	"FlingStopFilterInterpreter",
	"ImmediateInterpreter",
}

func nested(tag string, names []string) (starts, ends []string) {
	for i := range names {
		starts = append(starts, tag+": start: "+names[i])
		ends = append(ends, tag+": end: "+names[len(names)-1-i])
	}
	return starts, ends
}

func TestGestureImport(t *testing.T) {
	timerStarts, timerEnds := nested("HandleTimer", handleTimerFilters)
	syncStarts, syncEnds := nested("SyncInterpret", syncInterpretFilters)

	var markers []string
	markers = append(markers,
		"log: start: TimerLogOutputs",
		"log: end: TimerLogOutputs",
		"log: start: LogTimerCallback",
		"log: end: LogTimerCallback")
	markers = append(markers, timerStarts...)
	markers = append(markers, syncStarts...)
	markers = append(markers, syncEnds...)
	markers = append(markers, timerEnds...)
	markers = append(markers,
		"log: start: TimerLogOutputs",
		"log: end: TimerLogOutputs",
		"log: start: LogHardwareState",
		"log: end: LogHardwareState")

	m := importLines(t, gestureLines("<...>-1837 ", markers...)...)
	assert.False(t, m.HasImportWarnings())

	threads := m.AllThreads()
	require.Len(t, threads, 1)
	thread := threads[0]
	assert.Equal(t, "gesture", thread.Name)

	slices := thread.Slices()
	require.Len(t, slices, 21)
	for _, s := range slices {
		assert.Equal(t, "touchpad_gesture", s.Category)
	}
	assert.Equal(t, "GestureLog", slices[0].Title)
	assert.Equal(t, "TimerLogOutputs", slices[0].Args["name"])
	assert.Equal(t, "HandleTimer", slices[2].Title)
	assert.Equal(t, "SyncInterpret", slices[14].Title)
}

func TestGestureUnusualStart(t *testing.T) {
	syncStarts, syncEnds := nested("SyncInterpret", syncInterpretFilters)
	_, timerEnds := nested("HandleTimer", handleTimerFilters)

	var markers []string
	markers = append(markers, syncStarts...)
	markers = append(markers, syncEnds...)
	markers = append(markers, timerEnds...)
	markers = append(markers, "log: start: TimerLogOutputs", "log: end: TimerLogOutputs")

	m := importLines(t, gestureLines("X-30368", markers...)...)
	assert.False(t, m.HasImportWarnings())
	assert.Len(t, m.AllThreads(), 1)
}

func TestGestureTitleMismatch(t *testing.T) {
	_, timerEnds := nested("HandleTimer", handleTimerFilters[:7])

	markers := append([]string{"SyncInterpret: start: ImmediateInterpreter"}, timerEnds...)
	m := importLines(t, gestureLines("X-30368", markers...)...)

	warnings := m.ImportWarnings()
	require.Len(t, warnings, 7)
	assert.Equal(t, "title_match_error", warnings[0].Type)
	assert.Equal(t, "Titles do not match. Title is SyncInterpret in openSlice, and is HandleTimer in endSlice", warnings[0].Message)
}
