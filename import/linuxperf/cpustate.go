package linuxperf

import (
	"sort"

	"loov.dev/tracemodel/trace"
)

// CpuState tracks the thread that is running on a cpu.
type CpuState struct {
	cpu *trace.Cpu

	active     bool
	activeTs   trace.Time
	activePid  int
	activeComm string
	activePrio int
}

func (state *CpuState) Cpu() *trace.Cpu { return state.cpu }

// SwitchRunningLinuxPid ends the slice of the running thread, unless it
// was the idle task, and makes pid the running thread.
func (state *CpuState) SwitchRunningLinuxPid(imp *Importer, prevState trace.SchedState, ts trace.Time, pid int, comm string, prio int) {
	if state.active && state.activePid != 0 {
		name := state.activeComm
		if thread, ok := imp.threadsByLinuxPid[state.activePid]; ok {
			name = thread.UserFriendlyName()
		}

		slice := &trace.CpuSlice{
			Slice:                *trace.NewSlice("", name, trace.StringColorID(name), state.activeTs, nil, ts-state.activeTs),
			Comm:                 state.activeComm,
			Tid:                  state.activePid,
			Prio:                 state.activePrio,
			StateWhenDescheduled: prevState,
			CPU:                  state.cpu,
		}
		slice.Args = trace.Args{
			"comm":                 state.activeComm,
			"tid":                  state.activePid,
			"prio":                 state.activePrio,
			"stateWhenDescheduled": string(prevState),
		}
		state.cpu.Slices = append(state.cpu.Slices, slice)
	}

	state.active = true
	state.activeTs = ts
	state.activePid = pid
	state.activeComm = comm
	state.activePrio = prio
}

// MarkPidRunnable records a wakeup of the thread pid by the thread
// fromPid. Kernel pids identify threads.
func (imp *Importer) MarkPidRunnable(ts trace.Time, pid, fromPid int) {
	imp.wakeups = append(imp.wakeups, wakeup{ts: ts, tid: pid, fromTid: fromPid})
}

type sleepState struct {
	title   string
	colorID int
	// wakeable states are interrupted by a runnable slice at wakeup
	wakeable bool
}

var sleepStates = map[trace.SchedState]sleepState{
	"S":   {"Sleeping", trace.SleepingColorID, true},
	"R":   {"Runnable", trace.RunnableColorID, false},
	"R+":  {"Runnable", trace.RunnableColorID, false},
	"D":   {"Uninterruptible Sleep", trace.IOWaitColorID, true},
	"T":   {"__TASK_STOPPED", trace.IOWaitColorID, false},
	"t":   {"debug", trace.IOWaitColorID, false},
	"Z":   {"Zombie", trace.IOWaitColorID, false},
	"X":   {"Exit Dead", trace.IOWaitColorID, false},
	"x":   {"Task Dead", trace.IOWaitColorID, false},
	"K":   {"Wakekill", trace.IOWaitColorID, false},
	"W":   {"Waking", trace.IOWaitColorID, false},
	"D|K": {"Uninterruptible Sleep | WakeKill", trace.IOWaitColorID, true},
	"D|W": {"Uninterruptible Sleep | Waking", trace.IOWaitColorID, true},
}

// buildPerThreadCpuSlicesFromCpuState derives the scheduling time slices
// of every thread from the cpu slices and the wakeups.
func (imp *Importer) buildPerThreadCpuSlicesFromCpuState() {
	cpuSlices := imp.threadsWithCpuSlices()

	wakeups := map[*trace.Thread][]wakeup{}
	for _, w := range imp.wakeups {
		thread, ok := imp.threadsByLinuxPid[w.tid]
		if !ok {
			continue
		}
		wakeups[thread] = append(wakeups[thread], w)
	}

	for _, thread := range imp.model.AllThreads() {
		slices, ok := cpuSlices[thread]
		if !ok {
			continue
		}
		sort.SliceStable(slices, func(i, k int) bool { return slices[i].Start < slices[k].Start })
		pending := wakeups[thread]
		sort.SliceStable(pending, func(i, k int) bool { return pending[i].ts < pending[k].ts })

		thread.TimeSlices = imp.timeSlicesFor(slices, pending)
	}
}

func (imp *Importer) timeSlicesFor(slices []*trace.CpuSlice, wakeups []wakeup) []*trace.ThreadTimeSlice {
	var out []*trace.ThreadTimeSlice
	runnable := func(w wakeup, until trace.Time) {
		out = append(out, trace.NewThreadTimeSlice("Runnable", trace.RunnableColorID, w.ts,
			trace.Args{"wakeup from tid": w.fromTid}, until-w.ts))
	}
	running := func(slice *trace.CpuSlice) {
		s := trace.NewThreadTimeSlice("Running", trace.RunningColorID, slice.Start, nil, slice.Duration)
		s.CPU = slice.CPU
		out = append(out, s)
	}

	first := slices[0]
	if len(wakeups) > 0 && wakeups[0].ts < first.Start {
		runnable(wakeups[0], first.Start)
		wakeups = wakeups[1:]
	}
	running(first)

	for i := 1; i < len(slices); i++ {
		prev, next := slices[i-1], slices[i]
		gap := next.Start - prev.End()

		// the first wakeup after prev ended interrupts the sleep
		var woken *wakeup
		for len(wakeups) > 0 && wakeups[0].ts < next.Start {
			w := wakeups[0]
			wakeups = wakeups[1:]
			if woken == nil && w.ts > prev.End() {
				woken = &w
			}
		}

		state, known := sleepStates[prev.StateWhenDescheduled]
		switch {
		case !known:
			out = append(out, trace.NewThreadTimeSlice("UNKNOWN", trace.IOWaitColorID, prev.End(), nil, gap))
			imp.warn("Unrecognized sleep state: " + string(prev.StateWhenDescheduled))
		case state.wakeable && woken != nil:
			out = append(out, trace.NewThreadTimeSlice(state.title, state.colorID, prev.End(), nil, woken.ts-prev.End()))
			runnable(*woken, next.Start)
		default:
			out = append(out, trace.NewThreadTimeSlice(state.title, state.colorID, prev.End(), nil, gap))
		}

		running(next)
	}
	return out
}
