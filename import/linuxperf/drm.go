package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newDrmParser) }

var drmVblank = regexp.MustCompile(`crtc=(\d+), seq=(\d+)`)

type drmParser struct{ imp *Importer }

func newDrmParser(imp *Importer) {
	p := &drmParser{imp: imp}
	imp.RegisterEventHandler("drm_vblank_event", p.vblank)
}

func (p *drmParser) vblank(ev *Event) bool {
	match := drmVblank.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	crtc, _ := strconv.Atoi(match[1])
	seq, _ := strconv.Atoi(match[2])
	p.imp.GetOrCreatePseudoThread("drm_vblank").pushInstant(ev.Timestamp, "vblank:"+match[1], trace.Args{
		"crtc": crtc,
		"seq":  seq,
	})
	return true
}
