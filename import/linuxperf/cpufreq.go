package linuxperf

import (
	"strconv"
	"strings"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newCpufreqParser) }

// cpufreqParser imports decisions of the interactive cpufreq governor as
// instant slices.
type cpufreqParser struct{ imp *Importer }

func newCpufreqParser(imp *Importer) {
	p := &cpufreqParser{imp: imp}
	for _, name := range []string{
		"cpufreq_interactive_up",
		"cpufreq_interactive_down",
		"cpufreq_interactive_already",
		"cpufreq_interactive_notyet",
		"cpufreq_interactive_setspeed",
		"cpufreq_interactive_target",
	} {
		imp.RegisterEventHandler(name, p.governorEvent)
	}
	imp.RegisterEventHandler("cpufreq_interactive_boost", p.boostEvent)
	imp.RegisterEventHandler("cpufreq_interactive_unboost", p.boostEvent)
}

// splitCpufreqData parses "key=value key=value" with integer values.
func splitCpufreqData(details string) trace.Args {
	args := trace.Args{}
	for _, item := range strings.Fields(details) {
		key, value, _ := strings.Cut(item, "=")
		n, err := strconv.Atoi(value)
		if err != nil {
			args[key] = value
			continue
		}
		args[key] = n
	}
	return args
}

func (p *cpufreqParser) governorEvent(ev *Event) bool {
	p.imp.GetOrCreatePseudoThread("cpufreq").pushInstant(ev.Timestamp, ev.Name, splitCpufreqData(ev.Details))
	return true
}

func (p *cpufreqParser) boostEvent(ev *Event) bool {
	p.imp.GetOrCreatePseudoThread("cpufreq_boost").pushInstant(ev.Timestamp, ev.Name, trace.Args{"type": ev.Details})
	return true
}
