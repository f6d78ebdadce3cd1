package etw_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/import/etw"
	"loov.dev/tracemodel/trace"
)

const (
	headerPayload = "AAABAAEGAACxHQAABAAAAAB8jmp/O88BWmICAAAAAAABAAEAFAAAAAAAAAAIAAAAAAAAAFoJAAAAAAAAAAAAAAAAAAAAAAAA" +
		"4AEAAFAAYQBjAGkAZgBpAGMAIABTAHQAYQBuAGQAYQByAGQAIABUAGkAbQBlAAAAAAAAAAAAAAAAAAAAAAAAAAAAAADeBwMA" +
		"AAAJAAEAAgADAAQAAAAAAFAAYQBjAGkAZgBpAGMAIABEAGEAeQBsAGkAZwBoAHQAIABUAGkAbQBlAAAAAAAAAAAAAAAAAAAA" +
		"AAAAAAAAAADeBwMAAAAJAAEAAgADAAQAxP///wAAAAAAAABQfzvPAcSsIwAAAAAAAAsPX387zwEBAAAAAAAAAE4AVAAgAEsA" +
		"ZQByAG4AZQBsACAATABvAGcAZwBlAHIAAABvAHUAdAAuAGUAdABsAAAA"
	processPayload = "YIBiD4D6//8AGgAAoBwAAAEAAAADAQAAAPBDHQEAAAAwVlMVoPj//wAAAACg+P//AQUAA" +
		"AAAAAUVAAAAAgMBAgMEBQYHCAkKCwwAAHhwZXJmLmV4ZQB4AHAAZQByAGYAIAAgAC0AZA" +
		"AgAG8AdQB0AC4AZQB0AGwAAAA="
	threadPayload    = "ABoAAGQAAAABAAAAAAAAAAIAAAAAAAAAAwAAAAAAAAAEAAAAAAAAAAUAAAAAAAAABgAAAAAAAAAHAAAAAAAAAAAAAAA="
	switchInPayload  = "ZAAAAAAAAAAICQAAAAACAAAAAAAAAAAA"
	switchOutPayload = "AAAAAGQAAAAICQAAAAAFAAAAAAAAAAAA"
)

const (
	eventTraceGUID = "68FDD900-4A3E-11D1-84F4-0000F80464E3"
	processGUID    = "3D6FA8D0-FE05-11D0-9DDA-00C04FD7BA7C"
	threadGUID     = "3D6FA8D1-FE05-11D0-9DDA-00C04FD7BA7C"
)

var trace64 = `{
	"name": "ETW",
	"content": [
		{"guid": "` + threadGUID + `", "op": 36, "ver": 2, "cpu": 0, "ts": 1000, "payload": "` + switchInPayload + `"},
		{"guid": "` + eventTraceGUID + `", "op": 0, "ver": 2, "cpu": 0, "ts": 100, "payload": "` + headerPayload + `"},
		{"guid": "` + processGUID + `", "op": 1, "ver": 3, "cpu": 0, "ts": 200, "payload": "` + processPayload + `"},
		{"guid": "` + threadGUID + `", "op": 1, "ver": 2, "cpu": 0, "ts": 300, "payload": "` + threadPayload + `"},
		{"guid": "` + threadGUID + `", "op": 36, "ver": 2, "cpu": 0, "ts": 3000, "payload": "` + switchOutPayload + `"},
		{"guid": "` + processGUID + `", "op": 1, "ver": 6, "cpu": 0, "ts": 3100, "payload": "AAAA"},
		{"guid": "00000000-0000-0000-0000-000000000000", "op": 1, "ver": 0, "cpu": 0, "ts": 3200, "payload": "AAAA"},
		{"guid": "` + threadGUID + `", "op": 36, "cpu": 0, "ts": 3300, "payload": "` + switchInPayload + `"}
	]
}`

func importETW(t *testing.T, data string) *trace.Model {
	t.Helper()
	options := trace.DefaultOptions()
	options.ShiftWorldToZero = false
	m, err := trace.Import(context.Background(), options, []byte(data))
	require.NoError(t, err)
	return m
}

func TestCanImport(t *testing.T) {
	assert.True(t, etw.CanImport([]byte(`{"name": "ETW", "content": []}`)))
	assert.True(t, etw.CanImport([]byte(trace64)))
	assert.False(t, etw.CanImport([]byte(`{"name": "ETW"}`)))
	assert.False(t, etw.CanImport([]byte(`{"name": "other", "content": []}`)))
	assert.False(t, etw.CanImport([]byte(`[{"ph": "B"}]`)))
	assert.False(t, etw.CanImport([]byte(`not json`)))
}

func TestImport(t *testing.T) {
	m := importETW(t, trace64)

	require.Len(t, m.Metadata, 1)
	assert.Equal(t, "etw-header", m.Metadata[0].Name)
	header, ok := m.Metadata[0].Value.(etw.EventTraceHeader)
	require.True(t, ok)
	assert.Equal(t, uint32(8), header.PointerSize)
	assert.Equal(t, uint32(4), header.NumberOfProcessors)
	assert.Equal(t, "01cf3b7f6a8e7c00", header.EndTime)
	assert.Equal(t, "000000000023acc4", header.PerfFreq)
	assert.Equal(t, uint32(480), header.TimeZoneInformation.Bias)
	assert.Equal(t, "Pacific Standard Time", header.TimeZoneInformation.StandardName)
	assert.Equal(t, "NT Kernel Logger", header.SessionNameString)
	assert.Equal(t, "out.etl", header.LogFileNameString)

	process, ok := m.Processes[6656]
	require.True(t, ok)
	assert.Equal(t, "xperf.exe", process.Name)
	thread, ok := process.Threads[100]
	require.True(t, ok)

	cpu := m.Kernel.Cpus[0]
	require.NotNil(t, cpu)
	require.Len(t, cpu.Slices, 1)
	slice := cpu.Slices[0]
	assert.Equal(t, trace.Time(100000), slice.Start)
	assert.Equal(t, trace.Time(200000), slice.Duration)
	assert.Equal(t, 100, slice.Tid)
	assert.Equal(t, 8, slice.Prio)
	assert.Equal(t, trace.SchedState("S"), slice.StateWhenDescheduled)
	assert.Equal(t, "xperf.exe", slice.Comm)
	assert.Equal(t, "xperf.exe 100", slice.Title)
	assert.Same(t, thread, slice.ThreadThatWasRunning)

	require.Len(t, thread.TimeSlices, 1)
	assert.Equal(t, "Running", thread.TimeSlices[0].Title)
	assert.Same(t, cpu, thread.TimeSlices[0].CPU)

	var messages []string
	for _, w := range m.ImportWarnings() {
		messages = append(messages, w.Message)
	}
	assert.Equal(t, []string{"Malformed " + processGUID + " event (opcode 1)"}, messages)
}

func TestUnknownThreads(t *testing.T) {
	m := importETW(t, `{"name": "ETW", "content": [
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 1, "ts": 10, "payload": "`+switchInPayload+`"},
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 1, "ts": 30, "payload": "`+switchOutPayload+`"}
	]}`)

	cpu := m.Kernel.Cpus[1]
	require.NotNil(t, cpu)
	require.Len(t, cpu.Slices, 1)
	assert.Equal(t, "tid 100", cpu.Slices[0].Title)
	assert.Nil(t, cpu.Slices[0].ThreadThatWasRunning)
	assert.Empty(t, m.ImportWarnings())
}

func TestUnnamedProcessComm(t *testing.T) {
	// thread start without a process start leaves the process unnamed
	m := importETW(t, `{"name": "ETW", "content": [
		{"guid": "`+eventTraceGUID+`", "op": 0, "ver": 2, "cpu": 0, "ts": 1, "payload": "`+headerPayload+`"},
		{"guid": "`+threadGUID+`", "op": 1, "ver": 2, "cpu": 0, "ts": 5, "payload": "`+threadPayload+`"},
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 0, "ts": 10, "payload": "`+switchInPayload+`"},
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 0, "ts": 30, "payload": "`+switchOutPayload+`"}
	]}`)

	cpu := m.Kernel.Cpus[0]
	require.NotNil(t, cpu)
	require.Len(t, cpu.Slices, 1)
	assert.Equal(t, "Process 6656", cpu.Slices[0].Comm)
	assert.Equal(t, "Process 6656 100", cpu.Slices[0].Title)
}

func TestMistypedEventsAreIgnored(t *testing.T) {
	m := importETW(t, `{"name": "ETW", "content": [
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 2, "ts": 10, "payload": "`+switchInPayload+`"},
		{"guid": "`+threadGUID+`", "op": "36", "ver": 2, "cpu": 2, "ts": 20, "payload": "`+switchOutPayload+`"},
		17,
		{"guid": "`+threadGUID+`", "op": 36, "ver": 2, "cpu": 2, "ts": 30, "payload": "`+switchOutPayload+`"}
	]}`)

	cpu := m.Kernel.Cpus[2]
	require.NotNil(t, cpu)
	require.Len(t, cpu.Slices, 1)
	assert.Equal(t, trace.Time(1000), cpu.Slices[0].Start)
	assert.Equal(t, trace.Time(2000), cpu.Slices[0].Duration)
	assert.Empty(t, m.ImportWarnings())
}

func TestTidsToPid(t *testing.T) {
	m := trace.NewModel(trace.DefaultOptions())
	imp := etw.New(m, nil)

	_, err := imp.GetPidFromWindowsTid(42)
	assert.Error(t, err)

	thread := imp.CreateThreadIfNeeded(7, 42)
	pid, err := imp.GetPidFromWindowsTid(42)
	require.NoError(t, err)
	assert.Equal(t, 7, pid)
	assert.Same(t, m.Processes[7].Threads[42], thread)
}
