package linuxperf

import (
	"regexp"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newKernelFuncParser) }

var funcEnter = regexp.MustCompile(`func=(.+)`)

// kernelFuncParser imports function graph tracer entries and returns as
// slices on the kernel slice group of the thread.
type kernelFuncParser struct{ imp *Importer }

func newKernelFuncParser(imp *Importer) {
	p := &kernelFuncParser{imp: imp}
	imp.RegisterEventHandler("graph_ent", p.enter)
	imp.RegisterEventHandler("graph_ret", p.ret)
}

// kernelSlices returns the kernel slice group of the thread of ev, or nil
// when the event cannot be placed.
func (imp *Importer) kernelSlices(ev *Event) *trace.SliceGroup {
	if !ev.HasTgid {
		return nil
	}
	thread := imp.model.GetOrCreateProcess(ev.Tgid).GetOrCreateThread(ev.Pid)
	thread.Name = ev.ThreadName
	slices := thread.KernelSliceGroup
	if !slices.IsTimestampValidForBeginOrEnd(ev.Timestamp) {
		imp.model.ImportError(trace.Warning{Type: "parse_error", Message: "Timestamps are moving backward."})
		return nil
	}
	return slices
}

func (p *kernelFuncParser) enter(ev *Event) bool {
	match := funcEnter.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	slices := p.imp.kernelSlices(ev)
	if slices == nil {
		return false
	}
	_, err := slices.BeginSlice("", match[1], ev.Timestamp, nil)
	return err == nil
}

func (p *kernelFuncParser) ret(ev *Event) bool {
	slices := p.imp.kernelSlices(ev)
	if slices == nil {
		return false
	}
	if slices.OpenSliceCount() > 0 {
		if _, err := slices.EndSlice(ev.Timestamp); err != nil {
			return false
		}
	}
	return true
}
