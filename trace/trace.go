package trace

import (
	"sort"

	"go.uber.org/zap"
)

// Warning describes trace data that could not be imported as is.
type Warning struct {
	Type    string
	Message string
}

// Metadata is a named value attached to the whole trace.
type Metadata struct {
	Name  string
	Value any
}

// Model is the result of importing one or more traces.
type Model struct {
	Processes map[int]*Process
	Kernel    *Kernel

	Metadata      []Metadata
	StackFrames   map[string]*StackFrame
	Samples       []*Sample
	FlowEvents    []*FlowEvent
	InstantEvents []*Slice

	Bounds TimeRange

	options        Options
	log            *zap.Logger
	importWarnings []Warning
	importErrors   []Warning
}

// NewModel creates an empty model.
func NewModel(options Options) *Model {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	m := &Model{
		Processes:   map[int]*Process{},
		StackFrames: map[string]*StackFrame{},
		Bounds:      InvalidRange,
		options:     options,
		log:         options.Logger,
	}
	m.Kernel = NewKernel(m)
	return m
}

func (m *Model) Logger() *zap.Logger { return m.log }

func (m *Model) GetOrCreateProcess(pid int) *Process {
	p, ok := m.Processes[pid]
	if !ok {
		p = NewProcess(m, pid)
		m.Processes[pid] = p
	}
	return p
}

// SortedProcesses returns the processes ordered by sort index, then pid.
func (m *Model) SortedProcesses() []*Process {
	processes := make([]*Process, 0, len(m.Processes))
	for _, p := range m.Processes {
		processes = append(processes, p)
	}
	sort.Slice(processes, func(i, k int) bool {
		a, b := processes[i], processes[k]
		if a.SortIndex != b.SortIndex {
			return a.SortIndex < b.SortIndex
		}
		return a.Pid < b.Pid
	})
	return processes
}

// AllThreads returns every thread ordered by pid, then tid.
func (m *Model) AllThreads() []*Thread {
	pids := make([]int, 0, len(m.Processes))
	for pid := range m.Processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	var threads []*Thread
	for _, pid := range pids {
		p := m.Processes[pid]
		tids := make([]int, 0, len(p.Threads))
		for tid := range p.Threads {
			tids = append(tids, tid)
		}
		sort.Ints(tids)
		for _, tid := range tids {
			threads = append(threads, p.Threads[tid])
		}
	}
	return threads
}

// AllCounters returns the process counters followed by the cpu counters.
func (m *Model) AllCounters() []*Counter {
	var counters []*Counter
	for _, p := range m.SortedProcesses() {
		counters = append(counters, p.SortedCounters()...)
	}
	for _, cpu := range m.Kernel.SortedCpus() {
		counters = append(counters, cpu.SortedCounters()...)
	}
	return counters
}

func (m *Model) FindAllThreadsNamed(name string) []*Thread {
	var threads []*Thread
	for _, t := range m.AllThreads() {
		if t.Name == name {
			threads = append(threads, t)
		}
	}
	return threads
}

func (m *Model) AddMetadata(name string, value any) {
	m.Metadata = append(m.Metadata, Metadata{Name: name, Value: value})
}

// ImportWarning records a problem with the imported data.
func (m *Model) ImportWarning(w Warning) {
	m.importWarnings = append(m.importWarnings, w)
	m.log.Debug("import warning", zap.String("type", w.Type), zap.String("message", w.Message))
	if m.options.Observer != nil {
		m.options.Observer.ImportWarning(w)
	}
}

// ImportError records data that contradicts data imported earlier.
func (m *Model) ImportError(w Warning) {
	m.importErrors = append(m.importErrors, w)
	m.log.Debug("import error", zap.String("type", w.Type), zap.String("message", w.Message))
	if m.options.Observer != nil {
		m.options.Observer.ImportError(w)
	}
}

func (m *Model) ImportWarnings() []Warning { return m.importWarnings }
func (m *Model) ImportErrors() []Warning   { return m.importErrors }

func (m *Model) HasImportWarnings() bool { return len(m.importWarnings) > 0 }

func (m *Model) UpdateBounds() {
	m.Bounds = InvalidRange
	for _, p := range m.Processes {
		p.UpdateBounds()
		m.Bounds = m.Bounds.Expand(p.Bounds)
	}
	m.Kernel.UpdateBounds()
	m.Bounds = m.Bounds.Expand(m.Kernel.Bounds)
	for _, s := range m.InstantEvents {
		m.Bounds = m.Bounds.Add(s.Start)
	}
	for _, s := range m.Samples {
		m.Bounds = m.Bounds.Add(s.Start)
	}
	for _, f := range m.FlowEvents {
		m.Bounds = m.Bounds.Add(f.Start)
	}
}

func (m *Model) ShiftWorldToZero() {
	if m.Bounds.IsEmpty() {
		return
	}
	m.ShiftTimestampsForward(-m.Bounds.Start)
}

func (m *Model) ShiftTimestampsForward(amount Time) {
	for _, p := range m.Processes {
		p.ShiftTimestampsForward(amount)
	}
	m.Kernel.ShiftTimestampsForward(amount)
	for _, s := range m.InstantEvents {
		s.Start += amount
	}
	for _, s := range m.Samples {
		s.Start += amount
	}
	for _, f := range m.FlowEvents {
		f.Start += amount
	}
}

// PruneEmptyContainers removes threads and processes without content.
func (m *Model) PruneEmptyContainers() {
	for pid, p := range m.Processes {
		p.PruneEmptyContainers()
		if p.IsEmpty() {
			delete(m.Processes, pid)
		}
	}
}
