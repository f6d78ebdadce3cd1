package linuxperf

import (
	"regexp"
	"strconv"
)

func init() { RegisterParser(newBusParser) }

var memoryBusUsage = regexp.MustCompile(`bus=(\S+) rw_bytes=(\d+) r_bytes=(\d+) w_bytes=(\d+) cycles=(\d+) ns=(\d+)`)

// busParser imports memory bus bandwidth, in MiB/s, as read and write
// counters per bus.
type busParser struct{ imp *Importer }

func newBusParser(imp *Importer) {
	p := &busParser{imp: imp}
	imp.RegisterEventHandler("memory_bus_usage", p.busUsage)
}

func (p *busParser) busUsage(ev *Event) bool {
	match := memoryBusUsage.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	name := match[1]
	readBytes, _ := strconv.ParseFloat(match[3], 64)
	writeBytes, _ := strconv.ParseFloat(match[4], 64)
	ns, _ := strconv.ParseFloat(match[6], 64)
	if ns == 0 {
		return false
	}

	bandwidth := func(bytes float64) float64 {
		return bytes * 1e9 / ns / (1024 * 1024)
	}

	process := p.imp.model.GetOrCreateProcess(pseudoKernelPid)
	addCounterValue(process.GetOrCreateCounter("", "bus "+name+" read"), "value", ev.Timestamp, bandwidth(readBytes))
	addCounterValue(process.GetOrCreateCounter("", "bus "+name+" write"), "value", ev.Timestamp, bandwidth(writeBytes))
	return true
}
