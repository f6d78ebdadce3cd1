package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newPowerParser) }

var (
	powerStartState = regexp.MustCompile(`type=(\d+) state=(\d) cpu_id=(\d+)`)
	powerFreqState  = regexp.MustCompile(`type=(\d+) state=(\d+) cpu_id=(\d+)`)
	powerState      = regexp.MustCompile(`state=(\d+) cpu_id=(\d+)`)
)

// cpuIdleExit is the cpu_idle state reported when a cpu leaves idle.
const cpuIdleExit = 4294967295

// powerParser imports cpu frequency and idle state changes as per cpu
// counters.
type powerParser struct{ imp *Importer }

func newPowerParser(imp *Importer) {
	p := &powerParser{imp: imp}
	imp.RegisterEventHandler("power_start", p.powerStart)
	imp.RegisterEventHandler("power_frequency", p.powerFrequency)
	imp.RegisterEventHandler("cpu_frequency", p.cpuFrequency)
	imp.RegisterEventHandler("cpu_idle", p.cpuIdle)
}

func (p *powerParser) cpuCounter(cpu int, name string, ts trace.Time, value float64) {
	counter := p.imp.GetOrCreateCpuState(cpu).Cpu().GetOrCreateCounter("", name)
	addCounterValue(counter, "state", ts, value)
}

func (p *powerParser) cState(ts trace.Time, cpu int, state float64) {
	p.cpuCounter(cpu, "C-State", ts, state)
}

func (p *powerParser) pState(ts trace.Time, cpu int, frequency float64) {
	p.cpuCounter(cpu, "Clock Frequency", ts, frequency)
}

func (p *powerParser) powerStart(ev *Event) bool {
	match := powerStartState.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	if match[1] != "1" {
		p.imp.warn("Don't understand power_start events of type " + match[1])
		return true
	}
	state, _ := strconv.ParseFloat(match[2], 64)
	cpu, _ := strconv.Atoi(match[3])
	p.cState(ev.Timestamp, cpu, state)
	return true
}

func (p *powerParser) powerFrequency(ev *Event) bool {
	match := powerFreqState.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	state, _ := strconv.ParseFloat(match[2], 64)
	cpu, _ := strconv.Atoi(match[3])
	p.pState(ev.Timestamp, cpu, state)
	return true
}

func (p *powerParser) cpuFrequency(ev *Event) bool {
	match := powerState.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	state, _ := strconv.ParseFloat(match[1], 64)
	cpu, _ := strconv.Atoi(match[2])
	p.pState(ev.Timestamp, cpu, state)
	return true
}

func (p *powerParser) cpuIdle(ev *Event) bool {
	match := powerState.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	state, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return false
	}
	cpu, _ := strconv.Atoi(match[2])
	// idle states are shifted up so that zero means running
	value := float64(state) + 1
	if state == cpuIdleExit {
		value = 0
	}
	p.cState(ev.Timestamp, cpu, value)
	return true
}
