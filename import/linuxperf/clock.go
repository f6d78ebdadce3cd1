package linuxperf

import (
	"regexp"
	"strconv"
)

func init() { RegisterParser(newClockParser) }

var clockRate = regexp.MustCompile(`(\S+) state=(\d+) cpu_id=(\d+)`)

// clockParser imports clock rates as counters of the pseudo kernel
// process.
type clockParser struct{ imp *Importer }

func newClockParser(imp *Importer) {
	p := &clockParser{imp: imp}
	imp.RegisterEventHandler("clock_set_rate", p.counterEvent(""))
	imp.RegisterEventHandler("clock_enable", p.counterEvent(":enabled"))
	imp.RegisterEventHandler("clock_disable", p.counterEvent(":enabled"))
}

func (p *clockParser) counterEvent(suffix string) Handler {
	return func(ev *Event) bool {
		match := clockRate.FindStringSubmatch(ev.Details)
		if match == nil {
			return false
		}
		value, _ := strconv.ParseFloat(match[2], 64)
		counter := p.imp.model.GetOrCreateProcess(pseudoKernelPid).GetOrCreateCounter("", match[1]+suffix)
		addCounterValue(counter, "value", ev.Timestamp, value)
		return true
	}
}
