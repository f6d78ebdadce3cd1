package linuxperf

import (
	"regexp"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newSyncParser) }

var (
	syncTimeline = regexp.MustCompile(`name=(\S+) value=(\S*)`)
	syncWait     = regexp.MustCompile(`(\S+) name=(\S+) state=(\d+)`)
	syncPt       = regexp.MustCompile(`name=(\S+) value=(\S*)`)
)

// syncParser imports Android sync framework timelines and fence waits.
type syncParser struct{ imp *Importer }

func newSyncParser(imp *Importer) {
	p := &syncParser{imp: imp}
	imp.RegisterEventHandler("sync_timeline", p.timeline)
	imp.RegisterEventHandler("sync_wait", p.wait)
	imp.RegisterEventHandler("sync_pt", p.pt)
}

// timeline shows every timeline value as a slice lasting until the next
// value.
func (p *syncParser) timeline(ev *Event) bool {
	match := syncTimeline.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	kthread := p.imp.GetOrCreatePseudoThread(match[1])
	if kthread.lastActive {
		value := kthread.lastActiveValue
		if value == "" {
			value = " "
		}
		kthread.Thread.SliceGroup.PushSlice(trace.NewSlice("", value, trace.StringColorID(value),
			kthread.lastActiveTs, nil, ev.Timestamp-kthread.lastActiveTs))
	}
	kthread.lastActive = true
	kthread.lastActiveTs = ev.Timestamp
	kthread.lastActiveValue = match[2]
	return true
}

func (p *syncParser) wait(ev *Event) bool {
	match := syncWait.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	slices := p.imp.kernelSlices(ev)
	if slices == nil {
		return false
	}

	switch match[1] {
	case "begin":
		title := `fence_wait("` + match[2] + `")`
		_, err := slices.BeginSlice("", title, ev.Timestamp, trace.Args{"Start state": match[3]})
		return err == nil
	case "end":
		if slices.OpenSliceCount() > 0 {
			_, err := slices.EndSlice(ev.Timestamp)
			return err == nil
		}
		return true
	default:
		return false
	}
}

func (p *syncParser) pt(ev *Event) bool {
	return syncPt.MatchString(ev.Details)
}
