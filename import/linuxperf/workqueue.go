package linuxperf

import (
	"regexp"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newWorkqueueParser) }

var (
	workqueueExecuteStart = regexp.MustCompile(`work struct (.+): function (\S+)`)
	workqueueExecuteEnd   = regexp.MustCompile(`work struct (.+)`)
)

type workqueueParser struct{ imp *Importer }

func newWorkqueueParser(imp *Importer) {
	p := &workqueueParser{imp: imp}
	imp.RegisterEventHandler("workqueue_execute_start", p.executeStart)
	imp.RegisterEventHandler("workqueue_execute_end", p.executeEnd)
	imp.RegisterEventHandler("workqueue_queue_work", ignoreEvent)
	imp.RegisterEventHandler("workqueue_activate_work", ignoreEvent)
}

func ignoreEvent(*Event) bool { return true }

func (p *workqueueParser) executeStart(ev *Event) bool {
	match := workqueueExecuteStart.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	kthread := p.imp.GetOrCreateKernelThread(ev.ThreadName, ev.Pid, ev.Pid)
	kthread.OpenSliceTS = ev.Timestamp
	kthread.OpenSlice = match[2]
	return true
}

func (p *workqueueParser) executeEnd(ev *Event) bool {
	if !workqueueExecuteEnd.MatchString(ev.Details) {
		return false
	}
	kthread := p.imp.GetOrCreateKernelThread(ev.ThreadName, ev.Pid, ev.Pid)
	kthread.closeSlice(ev.Timestamp, nil)
	return true
}

// closeSlice pushes the open slice, if any, ending at ts.
func (kthread *KernelThread) closeSlice(ts trace.Time, args trace.Args) {
	if kthread.OpenSlice != "" {
		kthread.Thread.SliceGroup.PushSlice(trace.NewSlice("", kthread.OpenSlice,
			trace.StringColorID(kthread.OpenSlice), kthread.OpenSliceTS, args, ts-kthread.OpenSliceTS))
	}
	kthread.OpenSlice = ""
}

// pushInstant pushes a zero length slice titled title.
func (kthread *KernelThread) pushInstant(ts trace.Time, title string, args trace.Args) {
	kthread.OpenSlice = title
	kthread.Thread.SliceGroup.PushSlice(trace.NewSlice("", title, trace.StringColorID(title), ts, args, 0))
}
