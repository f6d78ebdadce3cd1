package etw

import (
	"strconv"

	"loov.dev/tracemodel/trace"
)

const threadGUID = "3D6FA8D1-FE05-11D0-9DDA-00C04FD7BA7C"

const (
	threadStartOpcode   = 1
	threadEndOpcode     = 2
	threadDCStartOpcode = 3
	threadDCEndOpcode   = 4
	threadCSwitchOpcode = 36
)

// ThreadFields are the fields of the Thread_TypeGroup1 events.
type ThreadFields struct {
	ProcessID      uint32
	ThreadID       uint32
	StackBase      uint64
	StackLimit     uint64
	UserStackBase  uint64
	UserStackLimit uint64
	StartAddr      uint64
	Affinity       uint64
	Win32StartAddr uint64
	TebBase        uint64
	SubProcessTag  uint32
	BasePriority   uint8
	PagePriority   uint8
	IoPriority     uint8
	ThreadFlags    uint8
	WaitMode       int8
}

// CSwitchFields are the fields of a context switch.
type CSwitchFields struct {
	NewThreadID         uint32
	OldThreadID         uint32
	NewThreadPriority   int8
	OldThreadPriority   int8
	PreviousCState      uint8
	SpareByte           int8
	OldThreadWaitReason int8
	OldThreadWaitMode   int8
	OldThreadState      int8
	OldThreadWaitIdeal  int8
	NewThreadWaitTime   uint32
	Reserved            uint32
}

func registerThreadParser(imp *Importer) {
	start := func(header *Header, d *Decoder) bool {
		fields, ok := DecodeThreadFields(header, d)
		if !ok {
			return false
		}
		imp.CreateThreadIfNeeded(int(fields.ProcessID), int(fields.ThreadID))
		return true
	}
	end := func(header *Header, d *Decoder) bool {
		_, ok := DecodeThreadFields(header, d)
		return ok
	}
	cswitch := func(header *Header, d *Decoder) bool {
		fields, ok := DecodeCSwitchFields(header, d)
		if !ok {
			return false
		}
		imp.switchThread(header, fields)
		return true
	}

	imp.RegisterEventHandler(threadGUID, threadStartOpcode, start)
	imp.RegisterEventHandler(threadGUID, threadDCStartOpcode, start)
	imp.RegisterEventHandler(threadGUID, threadEndOpcode, end)
	imp.RegisterEventHandler(threadGUID, threadDCEndOpcode, end)
	imp.RegisterEventHandler(threadGUID, threadCSwitchOpcode, cswitch)
}

// DecodeThreadFields decodes versions 0 to 3 of the thread events.
// Version 1 end events carry only the ids.
func DecodeThreadFields(header *Header, d *Decoder) (ThreadFields, bool) {
	var f ThreadFields
	if header.Version > 3 {
		return f, false
	}

	f.ProcessID = d.DecodeUInt32()
	f.ThreadID = d.DecodeUInt32()

	switch header.Version {
	case 0:
	case 1:
		if header.Opcode == threadStartOpcode || header.Opcode == threadDCStartOpcode {
			f.StackBase = d.DecodeUInteger(header.Is64)
			f.StackLimit = d.DecodeUInteger(header.Is64)
			f.UserStackBase = d.DecodeUInteger(header.Is64)
			f.UserStackLimit = d.DecodeUInteger(header.Is64)
			f.StartAddr = d.DecodeUInteger(header.Is64)
			f.Win32StartAddr = d.DecodeUInteger(header.Is64)
			f.WaitMode = d.DecodeInt8()
			d.Skip(3)
		}
	default:
		f.StackBase = d.DecodeUInteger(header.Is64)
		f.StackLimit = d.DecodeUInteger(header.Is64)
		f.UserStackBase = d.DecodeUInteger(header.Is64)
		f.UserStackLimit = d.DecodeUInteger(header.Is64)
		if header.Version == 2 {
			f.StartAddr = d.DecodeUInteger(header.Is64)
		} else {
			f.Affinity = d.DecodeUInteger(header.Is64)
		}
		f.Win32StartAddr = d.DecodeUInteger(header.Is64)
		f.TebBase = d.DecodeUInteger(header.Is64)
		f.SubProcessTag = d.DecodeUInt32()
		if header.Version == 3 {
			f.BasePriority = d.DecodeUInt8()
			f.PagePriority = d.DecodeUInt8()
			f.IoPriority = d.DecodeUInt8()
			f.ThreadFlags = d.DecodeUInt8()
		}
	}

	return f, d.Err() == nil
}

// DecodeCSwitchFields decodes version 2 of the context switch event.
func DecodeCSwitchFields(header *Header, d *Decoder) (CSwitchFields, bool) {
	var f CSwitchFields
	if header.Version != 2 {
		return f, false
	}

	f.NewThreadID = d.DecodeUInt32()
	f.OldThreadID = d.DecodeUInt32()
	f.NewThreadPriority = d.DecodeInt8()
	f.OldThreadPriority = d.DecodeInt8()
	f.PreviousCState = d.DecodeUInt8()
	f.SpareByte = d.DecodeInt8()
	f.OldThreadWaitReason = d.DecodeInt8()
	f.OldThreadWaitMode = d.DecodeInt8()
	f.OldThreadState = d.DecodeInt8()
	f.OldThreadWaitIdeal = d.DecodeInt8()
	f.NewThreadWaitTime = d.DecodeUInt32()
	f.Reserved = d.DecodeUInt32()

	return f, d.Err() == nil
}

// cpuState tracks the thread running on a cpu between context switches.
type cpuState struct {
	cpu *trace.Cpu

	active     bool
	activeTs   trace.Time
	activeTid  int
	activePrio int
}

// kernelThreadStates maps KTHREAD_STATE values to scheduler states.
var kernelThreadStates = map[int8]trace.SchedState{
	0: "R", // initialized
	1: "R", // ready
	2: "R", // running
	3: "R", // standby
	4: "X", // terminated
	5: "S", // waiting
	6: "D", // transition
	7: "R", // deferred ready
}

func (imp *Importer) cpuState(number int) *cpuState {
	state, ok := imp.cpus[number]
	if !ok {
		state = &cpuState{cpu: imp.model.Kernel.GetOrCreateCpu(number)}
		imp.cpus[number] = state
	}
	return state
}

// switchThread ends the slice of the thread that was running on the cpu
// of the event, unless it was the idle thread, and makes the new thread
// the running one.
func (imp *Importer) switchThread(header *Header, f CSwitchFields) {
	state := imp.cpuState(header.CPU)
	prevState, ok := kernelThreadStates[f.OldThreadState]
	if !ok {
		prevState = "R"
	}
	imp.endRunningSlice(state, header.Timestamp, prevState)

	state.active = true
	state.activeTs = header.Timestamp
	state.activeTid = int(f.NewThreadID)
	state.activePrio = int(f.NewThreadPriority)
}

func (imp *Importer) endRunningSlice(state *cpuState, ts trace.Time, prevState trace.SchedState) {
	if !state.active || state.activeTid == 0 {
		return
	}

	thread := imp.threadFromWindowsTid(state.activeTid)
	name := "tid " + strconv.Itoa(state.activeTid)
	comm := ""
	if thread != nil {
		comm = thread.Parent.Name
		if comm == "" {
			comm = thread.Parent.UserFriendlyName()
		}
		name = comm + " " + thread.UserFriendlyName()
	}

	slice := &trace.CpuSlice{
		Slice:                *trace.NewSlice("", name, trace.StringColorID(name), state.activeTs, nil, ts-state.activeTs),
		Comm:                 comm,
		Tid:                  state.activeTid,
		Prio:                 state.activePrio,
		StateWhenDescheduled: prevState,
		CPU:                  state.cpu,
		ThreadThatWasRunning: thread,
	}
	slice.Args = trace.Args{
		"tid":                  state.activeTid,
		"prio":                 state.activePrio,
		"stateWhenDescheduled": string(prevState),
	}
	state.cpu.Slices = append(state.cpu.Slices, slice)

	if thread != nil {
		running := trace.NewThreadTimeSlice("Running", trace.RunningColorID, slice.Start, nil, slice.Duration)
		running.CPU = state.cpu
		thread.TimeSlices = append(thread.TimeSlices, running)
	}
	state.active = false
}

// closeCpuSlices ends the slices still running at the last context switch
// seen on any cpu.
func (imp *Importer) closeCpuSlices() {
	var last trace.Time
	for _, state := range imp.cpus {
		if state.active && state.activeTs > last {
			last = state.activeTs
		}
	}
	for _, state := range imp.cpus {
		if state.active && state.activeTs < last {
			imp.endRunningSlice(state, last, "R")
		}
	}
}
