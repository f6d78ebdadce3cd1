package tef

import (
	"sort"
	"strconv"

	"loov.dev/tracemodel/trace"
)

// importStackFrames adds the frames of the stackFrames dictionary to the
// model. Parents are added before their children.
func (imp *Importer) importStackFrames() {
	ids := make([]string, 0, len(imp.file.StackFrames))
	for id := range imp.file.StackFrames {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	created := map[string]*trace.StackFrame{}
	visiting := map[string]bool{}

	var create func(id string) *trace.StackFrame
	create = func(id string) *trace.StackFrame {
		if frame, ok := created[id]; ok {
			return frame
		}
		raw, ok := imp.file.StackFrames[id]
		if !ok {
			imp.warn("Stack frame %s is not defined.", id)
			return nil
		}
		if visiting[id] {
			imp.warn("Stack frame %s is its own ancestor.", id)
			return nil
		}
		visiting[id] = true

		var parent *trace.StackFrame
		if raw.Parent != "" {
			parent = create(string(raw.Parent))
		}
		frame := trace.NewStackFrame(parent, id, raw.Category, raw.Name, trace.StringColorID(raw.Name))
		if err := imp.model.AddStackFrame(frame); err != nil {
			imp.warn("%v", err)
			frame = imp.model.StackFrames[id]
		}
		created[id] = frame
		return frame
	}

	for _, id := range ids {
		create(id)
	}
}

// frameForStack returns the leaf frame of a raw stack, listed from the root
// to the leaf. Frames are shared between stacks with a common prefix.
func (imp *Importer) frameForStack(stack []string) *trace.StackFrame {
	var frame *trace.StackFrame
	for _, title := range stack {
		var next *trace.StackFrame
		if frame == nil {
			next = imp.model.StackFrames[rawStackRootID(title)]
		} else {
			next = frame.ChildWithKey(title)
		}
		if next == nil {
			id := rawStackRootID(title)
			if frame != nil {
				id = frame.ID + "/" + strconv.Itoa(len(frame.Children()))
			}
			next = trace.NewStackFrame(frame, id, "", title, trace.StringColorID(title))
			next.SetKey(title)
			if err := imp.model.AddStackFrame(next); err != nil {
				imp.warn("%v", err)
			}
		}
		frame = next
	}
	return frame
}

func rawStackRootID(title string) string { return "tef-stack:" + title }

// processSample adds a P event as a sample of its thread.
func (imp *Importer) processSample(ev *Event) {
	var leaf *trace.StackFrame
	switch {
	case ev.StackFrame != "":
		frame, ok := imp.model.StackFrames[string(ev.StackFrame)]
		if !ok {
			imp.warn("Sample %s refers to an unknown stack frame %s.", ev.Name, ev.StackFrame)
			return
		}
		leaf = frame
	case len(ev.Stack) > 0:
		leaf = imp.frameForStack(ev.Stack)
	}

	imp.model.AddSample(&trace.Sample{
		Thread:         imp.thread(ev),
		Title:          ev.Name,
		Start:          ts(ev.Timestamp),
		LeafStackFrame: leaf,
		Weight:         1,
		Args:           copyArgs(ev.Args),
	})
}

// importSamples adds the samples of the samples array. Samples carry a tid
// only, so they are attached to the first thread with that tid.
func (imp *Importer) importSamples() {
	if len(imp.file.Samples) == 0 {
		return
	}
	threads := map[int]*trace.Thread{}
	for _, thread := range imp.model.AllThreads() {
		if _, exists := threads[thread.Tid]; !exists {
			threads[thread.Tid] = thread
		}
	}

	for _, sample := range imp.file.Samples {
		thread, ok := threads[sample.ThreadID]
		if !ok {
			thread = imp.model.GetOrCreateProcess(0).GetOrCreateThread(sample.ThreadID)
			threads[sample.ThreadID] = thread
		}

		var leaf *trace.StackFrame
		if sample.StackFrame != "" {
			leaf = imp.model.StackFrames[string(sample.StackFrame)]
			if leaf == nil {
				imp.warn("Sample %s refers to an unknown stack frame %s.", sample.Name, sample.StackFrame)
				continue
			}
		}

		weight := 1.0
		if sample.Weight != nil {
			weight = *sample.Weight
		}
		imp.model.AddSample(&trace.Sample{
			Thread:         thread,
			Title:          sample.Name,
			Start:          ts(sample.Timestamp),
			LeafStackFrame: leaf,
			Weight:         weight,
			Args:           trace.Args{"cpu": sample.CPU},
		})
	}
}
