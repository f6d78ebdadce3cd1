package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newExynosParser) }

var exynosFlip = regexp.MustCompile(`pipe=(\d+)`)

// exynosParser imports Exynos display page flips as slices from the
// request to the completion.
type exynosParser struct{ imp *Importer }

func newExynosParser(imp *Importer) {
	p := &exynosParser{imp: imp}
	imp.RegisterEventHandler("exynos_flip_request", p.flip)
	imp.RegisterEventHandler("exynos_flip_complete", p.flip)
}

func (p *exynosParser) flip(ev *Event) bool {
	match := exynosFlip.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	pipe, _ := strconv.Atoi(match[1])

	kthread := p.imp.GetOrCreatePseudoThread("exynos_flip")
	if ev.Name == "exynos_flip_request" {
		kthread.OpenSliceTS = ev.Timestamp
		kthread.OpenSlice = "flip:" + match[1]
		return true
	}
	kthread.closeSlice(ev.Timestamp, trace.Args{"pipe": pipe})
	return true
}
