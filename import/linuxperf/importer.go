// Package linuxperf imports the text output of the Linux kernel function
// tracer, either raw or embedded in a systrace HTML page.
package linuxperf

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

func init() {
	trace.Register(trace.Format{
		Name:      "linuxperf",
		Priority:  2,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, string(data))
		},
	})
}

// Handler decodes one event. It returns false when the event is
// malformed.
type Handler func(ev *Event) bool

// ParserConstructor creates a sub-parser for an importer. Sub-parsers
// register a handler for every event they understand.
type ParserConstructor func(imp *Importer)

var parsers struct {
	sync.Mutex
	constructors []ParserConstructor
}

// RegisterParser adds a sub-parser that is created for every import. It is
// meant to be called from init.
func RegisterParser(ctor ParserConstructor) {
	parsers.Lock()
	defer parsers.Unlock()
	parsers.constructors = append(parsers.constructors, ctor)
}

func parserConstructors() []ParserConstructor {
	parsers.Lock()
	defer parsers.Unlock()
	return append([]ParserConstructor(nil), parsers.constructors...)
}

// CanImport reports whether data looks like ftrace text.
func CanImport(data []byte) bool {
	text := string(data)
	if _, ok := extractSystraceHTML(text); ok {
		return true
	}
	if strings.HasPrefix(text, "# tracer:") {
		return true
	}
	if first, _, ok := strings.Cut(text, "\n"); ok && first != "" {
		text = first
	}
	return autoDetectLineParser(text) != nil
}

// KernelThread is a thread created for kernel activity that has no
// userland counterpart, such as workqueue workers or driver timelines.
type KernelThread struct {
	Pid    int
	Thread *trace.Thread

	// OpenSlice is the title of a slice waiting for its end event.
	OpenSlice   string
	OpenSliceTS trace.Time

	lastActive      bool
	lastActiveTs    trace.Time
	lastActiveValue string

	openAsyncSlices map[string]*trace.AsyncSlice
}

type clockSyncRecord struct {
	perfTS   trace.Time
	parentTS trace.Time
}

type wakeup struct {
	ts      trace.Time
	tid     int
	fromTid int
}

// Importer imports one ftrace dump.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	text  string

	events           []*Event
	clockSyncRecords []clockSyncRecord
	cpuStates        map[int]*CpuState
	wakeups          []wakeup

	kernelThreads       map[string]*KernelThread
	threadsByLinuxPid   map[int]*trace.Thread
	pseudoThreadCounter int

	handlers   map[string]Handler
	finalizers []func()
}

// pseudoKernelPid is the process of threads that are synthesized for
// kernel activity.
const pseudoKernelPid = 0

func New(m *trace.Model, text string) *Importer {
	imp := &Importer{
		model:               m,
		log:                 m.Logger().Named("linuxperf"),
		text:                text,
		cpuStates:           map[int]*CpuState{},
		kernelThreads:       map[string]*KernelThread{},
		pseudoThreadCounter: 1,
		handlers:            map[string]Handler{},
	}
	imp.buildMapFromLinuxPidsToThreads()
	return imp
}

func (imp *Importer) Model() *trace.Model { return imp.model }

// RegisterEventHandler binds a handler to an event name. Events
// dispatched from tracing_mark_write are named "tracing_mark_write:tag".
func (imp *Importer) RegisterEventHandler(name string, handler Handler) {
	imp.handlers[name] = handler
}

// RegisterFinalizer makes fn run once all importers have imported their
// events.
func (imp *Importer) RegisterFinalizer(fn func()) {
	imp.finalizers = append(imp.finalizers, fn)
}

func (imp *Importer) FinalizeImport() error {
	for _, fn := range imp.finalizers {
		fn()
	}
	return nil
}

func (imp *Importer) warn(message string) {
	imp.model.ImportWarning(trace.Warning{Type: "parse_error", Message: message})
}

func (imp *Importer) buildMapFromLinuxPidsToThreads() {
	imp.threadsByLinuxPid = map[int]*trace.Thread{}
	for _, thread := range imp.model.AllThreads() {
		imp.threadsByLinuxPid[thread.Tid] = thread
	}
}

func (imp *Importer) GetOrCreateCpuState(cpu int) *CpuState {
	state, ok := imp.cpuStates[cpu]
	if !ok {
		state = &CpuState{cpu: imp.model.Kernel.GetOrCreateCpu(cpu)}
		imp.cpuStates[cpu] = state
	}
	return state
}

// GetOrCreateKernelThread returns the kernel thread with the name,
// creating it as thread tid of process pid.
func (imp *Importer) GetOrCreateKernelThread(name string, pid, tid int) *KernelThread {
	kthread, ok := imp.kernelThreads[name]
	if !ok {
		thread := imp.model.GetOrCreateProcess(pid).GetOrCreateThread(tid)
		thread.Name = name
		kthread = &KernelThread{Pid: pid, Thread: thread}
		imp.kernelThreads[name] = kthread
		imp.threadsByLinuxPid[pid] = thread
	}
	return kthread
}

// GetOrCreatePseudoThread returns a kernel thread with the name, numbered
// in order of creation in the pseudo kernel process.
func (imp *Importer) GetOrCreatePseudoThread(name string) *KernelThread {
	kthread, ok := imp.kernelThreads[name]
	if !ok {
		kthread = imp.GetOrCreateKernelThread(name, pseudoKernelPid, imp.pseudoThreadCounter)
		imp.pseudoThreadCounter++
	}
	return kthread
}

func (imp *Importer) ImportEvents(isSecondary bool) error {
	imp.createParsers()
	imp.parseLines()
	imp.importClockSyncRecords()

	timeShift, ok := imp.computeTimeTransform(isSecondary)
	if !ok {
		imp.model.ImportWarning(trace.Warning{
			Type:    "clock_sync",
			Message: "Cannot import kernel trace without a clock sync.",
		})
		return nil
	}

	imp.importCpuData(timeShift)
	imp.buildMapFromLinuxPidsToThreads()
	imp.buildPerThreadCpuSlicesFromCpuState()

	imp.log.Debug("imported",
		zap.Int("lines", len(imp.events)),
		zap.Int("cpus", len(imp.cpuStates)),
		zap.Int("kernel threads", len(imp.kernelThreads)))
	return nil
}

func (imp *Importer) createParsers() {
	for _, ctor := range parserConstructors() {
		ctor(imp)
	}

	imp.RegisterEventHandler("tracing_mark_write", imp.traceMarkingWriteEvent)
	// old style trace markers
	imp.RegisterEventHandler("0", imp.traceMarkingWriteEvent)

	// clock sync records are consumed before the events are dispatched
	ignore := func(*Event) bool { return true }
	imp.RegisterEventHandler("tracing_mark_write:trace_event_clock_sync", ignore)
	imp.RegisterEventHandler("0:trace_event_clock_sync", ignore)
}

func (imp *Importer) parseLines() {
	lines, ok := extractSystraceHTML(imp.text)
	if !ok {
		lines = strings.Split(imp.text, "\n")
	}

	var parse lineParser
	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if parse == nil {
			parse = autoDetectLineParser(line)
			if parse == nil {
				imp.warn("Cannot parse line: " + line)
				continue
			}
		}
		ev := parse(line)
		if ev == nil {
			imp.warn("Unrecognized line: " + line)
			continue
		}
		imp.events = append(imp.events, ev)
	}
}

func isTraceMarkingWrite(name string) bool {
	return name == "tracing_mark_write" || name == "0"
}

func (imp *Importer) importClockSyncRecords() {
	for _, ev := range imp.events {
		if !isTraceMarkingWrite(ev.Name) {
			continue
		}
		match := traceEventClockSync.FindStringSubmatch(ev.Details)
		if match == nil {
			continue
		}
		parentTS, ok := parseSeconds(match[1])
		if !ok {
			continue
		}
		imp.clockSyncRecords = append(imp.clockSyncRecords, clockSyncRecord{
			perfTS:   ev.Timestamp,
			parentTS: parentTS,
		})
	}
}

// computeTimeTransform returns the shift from the kernel clock to the
// clock of the other imported traces. A secondary import cannot proceed
// without a clock sync record.
func (imp *Importer) computeTimeTransform(isSecondary bool) (trace.Time, bool) {
	if len(imp.clockSyncRecords) == 0 {
		return 0, !isSecondary
	}
	// TODO: compute a scaling factor when there are multiple records.
	record := imp.clockSyncRecords[0]
	// a parent timestamp of zero means the clocks are identical
	if record.parentTS == 0 || record.parentTS == record.perfTS {
		return 0, true
	}
	return record.parentTS - record.perfTS, true
}

func (imp *Importer) importCpuData(timeShift trace.Time) {
	for _, line := range imp.events {
		handler, ok := imp.handlers[line.Name]
		if !ok {
			imp.warn("Unknown event " + line.Name + " (" + line.Line + ")")
			continue
		}
		ev := *line
		ev.Timestamp += timeShift
		if !handler(&ev) {
			imp.warn("Malformed " + line.Name + " event (" + line.Line + ")")
		}
	}
}

var traceMarkingWriteDetails = regexp.MustCompile(`^\s*(\w+):\s*(.*)$`)

// traceMarkingWriteEvent dispatches userland markers to the handler
// registered for "name:tag".
func (imp *Importer) traceMarkingWriteEvent(ev *Event) bool {
	sub := *ev
	if match := traceMarkingWriteDetails.FindStringSubmatch(ev.Details); match != nil {
		sub.SubEventName = match[1]
		sub.Details = match[2]
	} else {
		// events written by the Android framework
		switch tag := prefix(ev.Details, 2); tag {
		case "B|", "E", "E|", "X|", "C|", "S|", "F|":
			sub.SubEventName = "android"
		default:
			return false
		}
	}

	sub.Name = ev.Name + ":" + sub.SubEventName
	handler, ok := imp.handlers[sub.Name]
	if !ok {
		imp.warn("Unknown trace_marking_write event " + sub.Name)
		return true
	}
	return handler(&sub)
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// threadsWithCpuSlices groups the cpu slices by the thread that ran.
func (imp *Importer) threadsWithCpuSlices() map[*trace.Thread][]*trace.CpuSlice {
	numbers := make([]int, 0, len(imp.cpuStates))
	for number := range imp.cpuStates {
		numbers = append(numbers, number)
	}
	sort.Ints(numbers)

	byThread := map[*trace.Thread][]*trace.CpuSlice{}
	for _, number := range numbers {
		for _, slice := range imp.cpuStates[number].cpu.Slices {
			thread, ok := imp.threadsByLinuxPid[slice.Tid]
			if !ok {
				continue
			}
			slice.ThreadThatWasRunning = thread
			byThread[thread] = append(byThread[thread], slice)
		}
	}
	return byThread
}
