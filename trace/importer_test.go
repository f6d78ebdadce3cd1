package trace_test

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/trace"
)

// lineImporter reads "pid tid title start duration" lines, where a
// duration of "-" leaves the slice open.
type lineImporter struct {
	m    *trace.Model
	data []byte
}

var secondaryRuns []bool

func (imp *lineImporter) ImportEvents(isSecondary bool) error {
	secondaryRuns = append(secondaryRuns, isSecondary)
	for _, line := range strings.Split(string(imp.data), "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) != 5 {
			continue
		}
		pid, _ := strconv.Atoi(fields[0])
		tid, _ := strconv.Atoi(fields[1])
		start, _ := strconv.ParseFloat(fields[3], 64)
		thread := imp.m.GetOrCreateProcess(pid).GetOrCreateThread(tid)
		if fields[4] == "-" {
			if _, err := thread.SliceGroup.BeginSlice("", fields[2], trace.FromMilliseconds(start), nil); err != nil {
				return err
			}
			continue
		}
		duration, _ := strconv.ParseFloat(fields[4], 64)
		thread.SliceGroup.PushCompleteSlice("", fields[2], trace.FromMilliseconds(start), trace.FromMilliseconds(duration), nil)
	}
	return nil
}

type bundleImporter struct{ data []byte }

func (bundleImporter) ImportEvents(isSecondary bool) error { return nil }

func (imp bundleImporter) ExtractSubtraces() ([][]byte, error) {
	var subtraces [][]byte
	for _, part := range bytes.Split(imp.data, []byte("\n---\n"))[1:] {
		subtraces = append(subtraces, part)
	}
	return subtraces, nil
}

func init() {
	trace.Register(trace.Format{
		Name:     "test-lines",
		Priority: 1,
		CanImport: func(data []byte) bool {
			return bytes.HasPrefix(data, []byte("#lines\n"))
		},
		New: func(m *trace.Model, data []byte) trace.Importer {
			return &lineImporter{m: m, data: data}
		},
	})
	trace.Register(trace.Format{
		Name:     "test-bundle",
		Priority: 0,
		CanImport: func(data []byte) bool {
			return bytes.HasPrefix(data, []byte("#bundle"))
		},
		New: func(m *trace.Model, data []byte) trace.Importer {
			return bundleImporter{data: data}
		},
	})
}

type recordingObserver struct {
	runs     []string
	warnings int
	finished bool
}

func (r *recordingObserver) ImporterRun(format string, secondary bool, duration time.Duration, err error) {
	r.runs = append(r.runs, format)
}
func (r *recordingObserver) ImportWarning(w trace.Warning) { r.warnings++ }
func (r *recordingObserver) ImportError(w trace.Warning)   {}
func (r *recordingObserver) ImportFinished(m *trace.Model) { r.finished = true }

func TestImportTraces(t *testing.T) {
	secondaryRuns = nil
	observer := &recordingObserver{}

	bundle := "#bundle\n---\n#lines\n1 1 a 10 5\n1 1 b 11 1\n---\n#lines\n2 7 open 12 -\n1 2 early 1 1"
	m, err := trace.Import(context.Background(), trace.Options{
		ShiftWorldToZero:     true,
		PruneEmptyContainers: true,
		Observer:             observer,
	}, []byte(bundle))
	require.NoError(t, err)

	assert.Equal(t, []string{"test-bundle", "test-lines", "test-lines"}, observer.runs)
	// the bundle only carries subtraces, so the first lines import is primary
	assert.Equal(t, []bool{false, true}, secondaryRuns)
	assert.True(t, observer.finished)

	threads := m.AllThreads()
	require.Len(t, threads, 3)
	assert.Equal(t, 1, threads[0].Parent.Pid)
	assert.Equal(t, 2, threads[1].Tid)
	assert.Equal(t, 7, threads[2].Tid)

	// world starts at the earliest slice
	assert.Equal(t, trace.Time(0), m.Bounds.Start)
	assert.Equal(t, ms(14), m.Bounds.Finish)

	a := threads[0].SliceGroup.FindSlicesNamed("a")[0]
	b := threads[0].SliceGroup.FindSlicesNamed("b")[0]
	assert.Same(t, a, b.Parent)
	assert.Equal(t, []*trace.Slice{a}, threads[0].SliceGroup.TopLevelSlices())

	open := threads[2].Slices()[0]
	assert.True(t, open.DidNotFinish)
	assert.Equal(t, ms(14), open.End())
}

func TestEmptyTraceIsNotPrimary(t *testing.T) {
	secondaryRuns = nil
	_, err := trace.Import(context.Background(), trace.DefaultOptions(),
		[]byte("[]"), []byte("#lines\n1 1 a 1 1"))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, secondaryRuns)
}

func TestImportTracesPrunes(t *testing.T) {
	m := trace.NewModel(trace.Options{PruneEmptyContainers: true})
	m.GetOrCreateProcess(9).GetOrCreateThread(9)
	require.NoError(t, m.ImportTraces(context.Background(), [][]byte{[]byte("#lines\n1 1 a 1 1")}))

	assert.Len(t, m.AllThreads(), 1)
	assert.NotContains(t, m.Processes, 9)
	assert.Equal(t, ms(1), m.Bounds.Start)
}

func TestImportTracesErrors(t *testing.T) {
	_, err := trace.Import(context.Background(), trace.DefaultOptions(), []byte("garbage"))
	require.ErrorIs(t, err, trace.ErrNoImporter)

	_, err = trace.Import(context.Background(), trace.Options{DisabledFormats: []string{"test-lines"}}, []byte("#lines\n"))
	require.ErrorIs(t, err, trace.ErrNoImporter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trace.Import(ctx, trace.DefaultOptions(), []byte("#lines\n"))
	require.ErrorIs(t, err, context.Canceled)

	// begin out of order is a contract violation, not a warning
	_, err = trace.Import(context.Background(), trace.DefaultOptions(), []byte("#lines\n1 1 a 5 -\n1 1 b 4 -"))
	var cerr *trace.ContractError
	require.ErrorAs(t, err, &cerr)
}

func TestImportBlank(t *testing.T) {
	m, err := trace.Import(context.Background(), trace.DefaultOptions(), []byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, m.AllThreads())
	assert.True(t, m.Bounds.IsEmpty())
}
