package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newSchedParser) }

var (
	schedSwitch = regexp.MustCompile(`prev_comm=(.+) prev_pid=(\d+) prev_prio=(\d+) prev_state=(\S\+?|\S\|\S) ==> next_comm=(.+) next_pid=(\d+) next_prio=(\d+)`)
	schedWakeup = regexp.MustCompile(`comm=(.+) pid=(\d+) prio=(\d+) success=(\d+) target_cpu=(\d+)`)
)

type schedParser struct{ imp *Importer }

func newSchedParser(imp *Importer) {
	p := &schedParser{imp: imp}
	imp.RegisterEventHandler("sched_switch", p.switchEvent)
	imp.RegisterEventHandler("sched_wakeup", p.wakeupEvent)
}

func (p *schedParser) switchEvent(ev *Event) bool {
	match := schedSwitch.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	prevState := trace.SchedState(match[4])
	nextComm := match[5]
	nextPid, _ := strconv.Atoi(match[6])
	nextPrio, _ := strconv.Atoi(match[7])

	state := p.imp.GetOrCreateCpuState(ev.CPU)
	state.SwitchRunningLinuxPid(p.imp, prevState, ev.Timestamp, nextPid, nextComm, nextPrio)
	return true
}

func (p *schedParser) wakeupEvent(ev *Event) bool {
	match := schedWakeup.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	pid, _ := strconv.Atoi(match[2])
	p.imp.MarkPidRunnable(ev.Timestamp, pid, ev.Pid)
	return true
}
