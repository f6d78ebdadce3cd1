package stats_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "loov.dev/tracemodel/import/tef"
	"loov.dev/tracemodel/stats"
	"loov.dev/tracemodel/trace"
)

const events = `[
	{"name": "a", "pid": 1, "tid": 2, "ts": 10, "ph": "B"},
	{"name": "a", "pid": 1, "tid": 2, "ts": 20, "ph": "E"},
	{"name": "b", "pid": 1, "tid": 3, "ts": 10, "dur": 5, "ph": "X"},
	{"name": "c", "pid": 1, "tid": 3, "ts": 12, "ph": "?"}
]`

func TestObserveImport(t *testing.T) {
	metrics := stats.New("test")

	options := trace.DefaultOptions()
	options.Observer = metrics
	m, err := trace.Import(context.Background(), options, []byte(events))
	require.NoError(t, err)

	counts := stats.Count(m)
	assert.Equal(t, 1, counts.Processes)
	assert.Equal(t, 2, counts.Threads)
	assert.Equal(t, 2, counts.Slices)

	n, err := testutil.GatherAndCount(metrics.Registry(), "test_imports_finished_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(1), gather(t, metrics, "test_import_warnings_total"))

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf))
	text := buf.String()
	assert.Contains(t, text, `test_importer_runs_total{format="tef",result="ok",secondary="false"} 1`)
	assert.Contains(t, text, `test_model_entities{entity="slices"} 2`)
	assert.Contains(t, text, `test_import_warnings_total{type="parse_error"} 1`)
}

func TestImporterRunError(t *testing.T) {
	metrics := stats.New("test")
	metrics.ImporterRun("tef", true, time.Millisecond, errors.New("failed"))
	metrics.ImportError(trace.Warning{Type: "parse_error", Message: "x"})

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf))
	assert.Contains(t, buf.String(), `test_importer_runs_total{format="tef",result="error",secondary="true"} 1`)
	assert.Contains(t, buf.String(), `test_import_errors_total{type="parse_error"} 1`)
}

func gather(t *testing.T, metrics *stats.Metrics, name string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
