// Package stats collects prometheus metrics about trace imports.
package stats

import (
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/zeebo/errs/v2"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the metrics exposition.
var Error = errs.Tag("stats")

// Metrics observes imports, it implements trace.Observer.
type Metrics struct {
	registry *prometheus.Registry

	importerRuns     *prometheus.CounterVec
	importerDuration *prometheus.HistogramVec
	warnings         *prometheus.CounterVec
	errors           *prometheus.CounterVec
	entities         *prometheus.GaugeVec
	imports          prometheus.Counter
}

var _ trace.Observer = (*Metrics)(nil)

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		importerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "importer_runs_total",
			Help:      "Number of importer runs by format and result.",
		}, []string{"format", "secondary", "result"}),
		importerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "importer_duration_seconds",
			Help:      "Time spent importing events by format.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"format"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_warnings_total",
			Help:      "Number of import warnings by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_errors_total",
			Help:      "Number of import errors by type.",
		}, []string{"type"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_entities",
			Help:      "Number of entities in the last imported model.",
		}, []string{"entity"}),
		imports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_finished_total",
			Help:      "Number of finished imports.",
		}),
	}
	m.registry.MustRegister(
		m.importerRuns,
		m.importerDuration,
		m.warnings,
		m.errors,
		m.entities,
		m.imports,
	)
	return m
}

// Registry returns the registry holding the import metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ImporterRun(format string, secondary bool, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.importerRuns.WithLabelValues(format, strconv.FormatBool(secondary), result).Inc()
	m.importerDuration.WithLabelValues(format).Observe(duration.Seconds())
}

func (m *Metrics) ImportWarning(w trace.Warning) { m.warnings.WithLabelValues(w.Type).Inc() }

func (m *Metrics) ImportError(w trace.Warning) { m.errors.WithLabelValues(w.Type).Inc() }

func (m *Metrics) ImportFinished(model *trace.Model) {
	m.imports.Inc()

	counts := Count(model)
	m.entities.WithLabelValues("processes").Set(float64(counts.Processes))
	m.entities.WithLabelValues("threads").Set(float64(counts.Threads))
	m.entities.WithLabelValues("slices").Set(float64(counts.Slices))
	m.entities.WithLabelValues("async_slices").Set(float64(counts.AsyncSlices))
	m.entities.WithLabelValues("counters").Set(float64(counts.Counters))
	m.entities.WithLabelValues("cpus").Set(float64(counts.Cpus))
	m.entities.WithLabelValues("cpu_slices").Set(float64(counts.CpuSlices))
	m.entities.WithLabelValues("samples").Set(float64(counts.Samples))
	m.entities.WithLabelValues("stack_frames").Set(float64(counts.StackFrames))
	m.entities.WithLabelValues("flow_events").Set(float64(counts.FlowEvents))
}

// WriteText writes the metrics in the prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return Error.Wrap(err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Counts summarizes the size of a model.
type Counts struct {
	Processes   int
	Threads     int
	Slices      int
	AsyncSlices int
	Counters    int
	Cpus        int
	CpuSlices   int
	Samples     int
	StackFrames int
	FlowEvents  int
}

func Count(model *trace.Model) Counts {
	c := Counts{
		Processes:   len(model.Processes),
		Counters:    len(model.AllCounters()),
		Cpus:        len(model.Kernel.Cpus),
		Samples:     len(model.Samples),
		StackFrames: len(model.StackFrames),
		FlowEvents:  len(model.FlowEvents),
	}
	for _, thread := range model.AllThreads() {
		c.Threads++
		c.Slices += thread.SliceGroup.Len()
		c.AsyncSlices += thread.AsyncSliceGroup.Len()
	}
	for _, cpu := range model.Kernel.Cpus {
		c.CpuSlices += len(cpu.Slices)
	}
	return c
}
