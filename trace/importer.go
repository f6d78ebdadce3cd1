package trace

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
)

// Importer converts one trace into model entities.
type Importer interface {
	// ImportEvents imports the trace. Secondary imports run after another
	// importer established the time base.
	ImportEvents(isSecondary bool) error
}

// SubtraceExtractor is implemented by importers of container formats.
type SubtraceExtractor interface {
	ExtractSubtraces() ([][]byte, error)
}

// Finalizer is implemented by importers that need a pass after all
// importers have run.
type Finalizer interface {
	FinalizeImport() error
}

// Format describes a trace format that can be sniffed and imported.
type Format struct {
	Name string
	// Priority orders importers, lower priorities run first.
	Priority  int
	CanImport func(data []byte) bool
	New       func(m *Model, data []byte) Importer
}

var registry struct {
	sync.Mutex
	formats []Format
}

// Register adds a format to the list of known formats. It is meant to be
// called from init.
func Register(format Format) {
	registry.Lock()
	defer registry.Unlock()
	for _, f := range registry.formats {
		if f.Name == format.Name {
			panic("trace: format " + format.Name + " registered twice")
		}
	}
	registry.formats = append(registry.formats, format)
}

// Formats returns the registered formats in registration order.
func Formats() []Format {
	registry.Lock()
	defer registry.Unlock()
	return append([]Format(nil), registry.formats...)
}

// ErrNoImporter is returned when no registered format accepts a trace.
var ErrNoImporter = contractError("ImportTraces", "Could not find an importer for the provided eventData")

// Observer is notified about the progress of an import.
type Observer interface {
	ImporterRun(format string, secondary bool, duration time.Duration, err error)
	ImportWarning(w Warning)
	ImportError(w Warning)
	ImportFinished(m *Model)
}

// Options configure ImportTraces.
type Options struct {
	ShiftWorldToZero     bool
	PruneEmptyContainers bool
	// DisabledFormats are skipped while sniffing.
	DisabledFormats []string

	Logger   *zap.Logger
	Observer Observer
}

func DefaultOptions() Options {
	return Options{
		ShiftWorldToZero:     true,
		PruneEmptyContainers: true,
	}
}

// Import creates a model from the traces.
func Import(ctx context.Context, options Options, traces ...[]byte) (*Model, error) {
	m := NewModel(options)
	if err := m.ImportTraces(ctx, traces); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) findFormat(data []byte) (Format, bool) {
	for _, format := range Formats() {
		if m.formatDisabled(format.Name) {
			continue
		}
		if format.CanImport(data) {
			return format, true
		}
	}
	return Format{}, false
}

func (m *Model) formatDisabled(name string) bool {
	for _, disabled := range m.options.DisabledFormats {
		if disabled == name {
			return true
		}
	}
	return false
}

type importerRun struct {
	format   Format
	importer Importer
}

// ImportTraces imports the traces into the model and finalizes it.
func (m *Model) ImportTraces(ctx context.Context, traces [][]byte) error {
	var runs []importerRun

	pending := append([][]byte(nil), traces...)
	for len(pending) > 0 {
		data := pending[0]
		pending = pending[1:]

		format, ok := m.findFormat(data)
		if !ok {
			return ErrNoImporter
		}
		importer := format.New(m, data)
		runs = append(runs, importerRun{format: format, importer: importer})

		if extractor, ok := importer.(SubtraceExtractor); ok {
			subtraces, err := extractor.ExtractSubtraces()
			if err != nil {
				return Error.Errorf("%s: %v", format.Name, err)
			}
			pending = append(pending, subtraces...)
		}
	}

	sort.SliceStable(runs, func(i, k int) bool {
		return runs[i].format.Priority < runs[k].format.Priority
	})

	primaryDone := false
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return err
		}
		secondary := primaryDone
		if importsEvents(run.importer) {
			primaryDone = true
		}

		start := time.Now()
		err := run.importer.ImportEvents(secondary)
		duration := time.Since(start)

		m.log.Debug("imported",
			zap.String("format", run.format.Name),
			zap.Int("priority", run.format.Priority),
			zap.Bool("secondary", secondary),
			zap.Duration("duration", duration),
			zap.Error(err))
		if m.options.Observer != nil {
			m.options.Observer.ImporterRun(run.format.Name, secondary, duration, err)
		}
		if err != nil {
			return errs.Wrap(err)
		}
	}

	for _, run := range runs {
		if finalizer, ok := run.importer.(Finalizer); ok {
			if err := finalizer.FinalizeImport(); err != nil {
				return errs.Wrap(err)
			}
		}
	}

	if err := m.finalize(); err != nil {
		return err
	}
	if m.options.Observer != nil {
		m.options.Observer.ImportFinished(m)
	}
	return nil
}

// importsEvents reports whether importer contributes events of its own.
// Containers and empty traces do not make the following import secondary.
func importsEvents(importer Importer) bool {
	if _, ok := importer.(SubtraceExtractor); ok {
		return false
	}
	_, empty := importer.(emptyImporter)
	return !empty
}

func (m *Model) finalize() error {
	m.UpdateBounds()
	if !m.Bounds.IsEmpty() {
		for _, p := range m.Processes {
			p.AutoCloseOpenSlices(m.Bounds.Finish)
		}
	}

	for _, p := range m.SortedProcesses() {
		if err := p.MergeKernelWithUserland(); err != nil {
			return errs.Wrap(err)
		}
		p.CreateSubSlices()
	}

	m.UpdateBounds()
	for _, p := range m.Processes {
		if !m.Bounds.IsEmpty() {
			p.Objects.AutoDeleteObjects(m.Bounds.Finish)
		}
		for _, err := range p.Objects.InitializeObjects() {
			m.ImportWarning(Warning{Type: "object_parse_error", Message: err.Error()})
		}
	}

	m.UpdateBounds()
	if m.options.ShiftWorldToZero {
		m.ShiftWorldToZero()
	}
	if m.options.PruneEmptyContainers {
		m.PruneEmptyContainers()
	}
	m.UpdateBounds()
	return nil
}

func init() {
	Register(Format{
		Name:      "empty",
		Priority:  0,
		CanImport: isBlank,
		New: func(m *Model, data []byte) Importer {
			return emptyImporter{}
		},
	})
}

func isBlank(data []byte) bool {
	return strings.TrimFunc(string(data), unicode.IsSpace) == "" ||
		string(data) == "[]" || string(data) == "{}"
}

type emptyImporter struct{}

func (emptyImporter) ImportEvents(isSecondary bool) error { return nil }
