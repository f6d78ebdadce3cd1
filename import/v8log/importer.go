// Package v8log imports the profiling log written by V8 with --prof and
// --log-timer-events.
package v8log

import (
	"bytes"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

func init() {
	trace.Register(trace.Format{
		Name:      "v8log",
		Priority:  3,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, string(data))
		},
	})
}

var logPrefixes = [][]byte{
	[]byte("timer-event,"),
	[]byte("tick,"),
	[]byte("shared-library,"),
	[]byte("profiler,"),
	[]byte("code-creation,"),
}

// CanImport reports whether data starts with a known V8 log record.
func CanImport(data []byte) bool {
	for _, prefix := range logPrefixes {
		if bytes.HasPrefix(data, prefix) {
			return true
		}
	}
	return false
}

// Pid of the process holding the synthesized V8 threads.
const v8Pid = -32

// v8BinarySuffixes identify the libraries holding the V8 runtime.
var v8BinarySuffixes = []string{"/d8", "/libv8.so"}

const (
	kindV8Runtime = -1
	kindExternal  = -3
)

type timerArgs struct {
	pause       bool
	noExecution bool
}

// timerEvents lists the timers that are imported, other timers are
// dropped.
var timerEvents = map[string]timerArgs{
	"V8.Execute":              {pause: false, noExecution: false},
	"V8.External":             {pause: false, noExecution: true},
	"V8.CompileFullCode":      {pause: true, noExecution: true},
	"V8.RecompileSynchronous": {pause: true, noExecution: true},
	"V8.RecompileParallel":    {pause: false, noExecution: false},
	"V8.CompileEval":          {pause: true, noExecution: true},
	"V8.Parse":                {pause: true, noExecution: true},
	"V8.PreParse":             {pause: true, noExecution: true},
	"V8.ParseLazy":            {pause: true, noExecution: true},
	"V8.GCScavenger":          {pause: true, noExecution: true},
	"V8.GCCompactor":          {pause: true, noExecution: true},
	"V8.GCContext":            {pause: true, noExecution: true},
}

func (a timerArgs) args() trace.Args {
	return trace.Args{"pause": a.pause, "no_execution": a.noExecution}
}

// PlotRange is the time range requested by a plot-range record.
type PlotRange struct {
	Start, End int64
}

// Importer imports one V8 log.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	text  string

	codeMap     *CodeMap
	timerThread *trace.Thread
	thread      *trace.Thread
	rootFrame   *trace.StackFrame
	lastFrameID int

	// Distortion is the per-entry logging overhead in microseconds.
	Distortion    float64
	HasDistortion bool
	PlotRange     *PlotRange
}

func New(m *trace.Model, text string) *Importer {
	return &Importer{
		model:     m,
		log:       m.Logger().Named("v8log"),
		text:      text,
		codeMap:   NewCodeMap(),
		rootFrame: trace.NewStackFrame(nil, "v8-root-stack-frame", "v8-root-stack-frame", "v8-root-stack-frame", 0),
	}
}

// CodeMap returns the code map built while importing.
func (imp *Importer) CodeMap() *CodeMap { return imp.codeMap }

func us(v int64) trace.Time { return trace.Time(v * 1000) }

func (imp *Importer) ImportEvents(isSecondary bool) error {
	reader := &logReader{table: map[string]dispatch{
		"timer-event":       {[]fieldParser{rawField, intField, intField}, imp.timerEvent},
		"timer-event-start": {[]fieldParser{rawField, intField}, imp.timerEventStart},
		"timer-event-end":   {[]fieldParser{rawField, intField}, imp.timerEventEnd},
		"shared-library":    {[]fieldParser{rawField, intField, intField}, imp.sharedLibrary},
		"code-creation":     {[]fieldParser{rawField, intField, intField, intField, rawField}, imp.codeCreation},
		"code-move":         {[]fieldParser{intField, intField}, imp.codeMove},
		"code-delete":       {[]fieldParser{intField}, imp.codeDelete},
		"tick":              {[]fieldParser{intField, intField, rawField, rawField, intField, varArgs}, imp.tick},
		"distortion":        {[]fieldParser{intField}, imp.distortion},
		"plot-range":        {[]fieldParser{intField, intField}, imp.plotRange},
	}}

	process := imp.model.GetOrCreateProcess(v8Pid)
	imp.timerThread = process.GetOrCreateThread(1)
	imp.timerThread.Name = "V8 Timers"
	imp.thread = process.GetOrCreateThread(2)
	imp.thread.Name = "V8"

	lines := 0
	for _, line := range strings.Split(imp.text, "\n") {
		reader.processLine(line)
		lines++
	}

	// frames below the synthetic root become roots themselves
	imp.rootFrame.RemoveAllChildren()

	if imp.HasDistortion {
		imp.model.AddMetadata("v8-distortion", imp.Distortion)
	}
	if imp.PlotRange != nil {
		imp.model.AddMetadata("v8-plot-range", *imp.PlotRange)
	}

	imp.log.Debug("imported v8 log",
		zap.Int("lines", lines),
		zap.Int("codeEntries", len(imp.codeMap.dynamics.ranges)))
	return nil
}

func (imp *Importer) timerEvent(f []field) {
	name := f[0].raw
	timer, ok := timerEvents[name]
	if !ok || !f[1].ok || !f[2].ok {
		return
	}
	imp.timerThread.SliceGroup.PushSlice(trace.NewSlice("v8", name, trace.StringColorID(name),
		us(f[1].num), timer.args(), us(f[2].num)))
}

func (imp *Importer) timerEventStart(f []field) {
	name := f[0].raw
	timer, ok := timerEvents[name]
	if !ok || !f[1].ok {
		return
	}
	if _, err := imp.timerThread.SliceGroup.BeginSlice("v8", name, us(f[1].num), timer.args()); err != nil {
		imp.log.Debug("dropped timer event start", zap.String("timer", name), zap.Error(err))
	}
}

func (imp *Importer) timerEventEnd(f []field) {
	if !f[1].ok {
		return
	}
	group := imp.timerThread.SliceGroup
	if group.OpenSliceCount() == 0 {
		return
	}
	if _, err := group.EndSlice(us(f[1].num)); err != nil {
		imp.log.Debug("dropped timer event end", zap.String("timer", f[0].raw), zap.Error(err))
	}
}

func (imp *Importer) sharedLibrary(f []field) {
	name := f[0].raw
	start, end := f[1].num, f[2].num
	if !f[1].ok || !f[2].ok {
		return
	}
	kind := int64(kindExternal)
	for _, suffix := range v8BinarySuffixes {
		if strings.HasSuffix(name, suffix) {
			kind = kindV8Runtime
			break
		}
	}
	imp.codeMap.AddLibrary(start, imp.codeMap.NewEntry(end-start, name, kind))
}

func (imp *Importer) codeCreation(f []field) {
	kind, address, size := f[1], f[2], f[3]
	if !address.ok || !size.ok {
		return
	}
	imp.codeMap.AddCode(address.num, imp.codeMap.NewEntry(size.num, f[4].raw, kind.num))
}

func (imp *Importer) codeMove(f []field) {
	if f[0].ok && f[1].ok {
		imp.codeMap.MoveCode(f[0].num, f[1].num)
	}
}

func (imp *Importer) codeDelete(f []field) {
	if f[0].ok {
		imp.codeMap.DeleteCode(f[0].num)
	}
}

func (imp *Importer) newFrameID() string {
	imp.lastFrameID++
	return "v8sf-" + strconv.Itoa(imp.lastFrameID)
}

// tick adds a sample. The stack of the tick is listed from the leaf to the
// root, it is replayed from the root so that frames are shared.
func (imp *Importer) tick(f []field) {
	pc, start, stack := f[0].num, f[1].num, f[5].rest
	if !f[1].ok {
		return
	}

	var leaf *trace.StackFrame
	addrs := processStack(pc, stack)
	if len(addrs) > 0 {
		leaf = imp.rootFrame
		for i := len(addrs) - 1; i >= 0; i-- {
			entry := imp.codeMap.FindEntry(addrs[i])
			key, title := "Unknown", "Unknown"
			if entry != nil {
				key, title = strconv.Itoa(entry.ID), entry.Name
			}
			child := leaf.ChildWithKey(key)
			if child == nil {
				child = trace.NewStackFrame(leaf, imp.newFrameID(), "v8", title, trace.StringColorID(title))
				child.SetKey(key)
				if err := imp.model.AddStackFrame(child); err != nil {
					imp.log.Debug("duplicate stack frame", zap.Error(err))
				}
			}
			leaf = child
		}
	} else {
		entry := imp.codeMap.FindEntry(pc)
		id, title := "v8pc-Unknown", "Unknown"
		if entry != nil {
			id, title = "v8pc-"+strconv.Itoa(entry.ID), entry.Name
		}
		leaf = imp.model.StackFrames[id]
		if leaf == nil {
			leaf = trace.NewStackFrame(nil, id, "v8", title, trace.StringColorID(title))
			_ = imp.model.AddStackFrame(leaf)
		}
	}

	imp.model.AddSample(&trace.Sample{
		Thread:         imp.thread,
		Title:          "V8 PC",
		Start:          us(start),
		LeafStackFrame: leaf,
		Weight:         1,
	})
}

func (imp *Importer) distortion(f []field) {
	if f[0].ok {
		imp.Distortion = float64(f[0].num) / 1e6
		imp.HasDistortion = true
	}
}

func (imp *Importer) plotRange(f []field) {
	if f[0].ok && f[1].ok {
		imp.PlotRange = &PlotRange{Start: f[0].num, End: f[1].num}
	}
}
