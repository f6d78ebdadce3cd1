package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newI915Parser) }

var (
	i915ObjectCreate       = regexp.MustCompile(`obj=(\w+), size=(\d+)`)
	i915ObjectBind         = regexp.MustCompile(`obj=(\w+), offset=(\w+), size=(\d+)`)
	i915ObjectChangeDomain = regexp.MustCompile(`obj=(\w+), read=(\w+=>\w+), write=(\w+=>\w+)`)
	i915ObjectPreadWrite   = regexp.MustCompile(`obj=(\w+), offset=(\d+), len=(\d+)`)
	i915ObjectFault        = regexp.MustCompile(`obj=(\w+), (\w+) index=(\d+)`)
	i915Object             = regexp.MustCompile(`obj=(\w+)`)
	i915RingSeqno          = regexp.MustCompile(`dev=(\d+), ring=(\d+), seqno=(\d+)`)
	i915RingFlush          = regexp.MustCompile(`dev=(\d+), ring=(\w+), invalidate=(\w+), flush=(\w+)`)
	i915Ring               = regexp.MustCompile(`dev=(\d+), ring=(\d+)`)
	i915RegRW              = regexp.MustCompile(`(\w+) reg=(\w+), len=(\d+), val=(\(\w+, \w+\))`)
	i915Flip               = regexp.MustCompile(`plane=(\d+), obj=(\w+)`)
)

// i915Parser imports Intel graphics driver events as instant slices on
// pseudo threads, and page flips as slices.
type i915Parser struct{ imp *Importer }

func newI915Parser(imp *Importer) {
	p := &i915Parser{imp: imp}
	imp.RegisterEventHandler("i915_gem_object_create", p.gemObjectCreate)
	imp.RegisterEventHandler("i915_gem_object_bind", p.gemObjectBind)
	imp.RegisterEventHandler("i915_gem_object_unbind", p.gemObjectBind)
	imp.RegisterEventHandler("i915_gem_object_change_domain", p.gemObjectChangeDomain)
	imp.RegisterEventHandler("i915_gem_object_pread", p.gemObjectPreadWrite)
	imp.RegisterEventHandler("i915_gem_object_pwrite", p.gemObjectPreadWrite)
	imp.RegisterEventHandler("i915_gem_object_fault", p.gemObjectFault)
	imp.RegisterEventHandler("i915_gem_object_clflush", p.gemObjectDestroy)
	imp.RegisterEventHandler("i915_gem_object_destroy", p.gemObjectDestroy)
	imp.RegisterEventHandler("i915_gem_ring_dispatch", p.gemRequest)
	imp.RegisterEventHandler("i915_gem_ring_flush", p.gemRingFlush)
	for _, name := range []string{
		"i915_gem_request",
		"i915_gem_request_add",
		"i915_gem_request_complete",
		"i915_gem_request_retire",
		"i915_gem_request_wait_begin",
		"i915_gem_request_wait_end",
	} {
		imp.RegisterEventHandler(name, p.gemRequest)
	}
	imp.RegisterEventHandler("i915_gem_ring_wait_begin", p.gemRingWait)
	imp.RegisterEventHandler("i915_gem_ring_wait_end", p.gemRingWait)
	imp.RegisterEventHandler("i915_reg_rw", p.regRW)
	imp.RegisterEventHandler("i915_flip_request", p.flip)
	imp.RegisterEventHandler("i915_flip_complete", p.flip)
}

func (p *i915Parser) gemObjectSlice(ev *Event, obj string, args trace.Args) {
	p.imp.GetOrCreatePseudoThread("i915_gem").pushInstant(ev.Timestamp, ev.Name+":"+obj, args)
}

func (p *i915Parser) gemRingSlice(ev *Event, dev, ring int, args trace.Args) {
	title := ev.Name + ":" + strconv.Itoa(dev) + "." + strconv.Itoa(ring)
	p.imp.GetOrCreatePseudoThread("i915_gem_ring").pushInstant(ev.Timestamp, title, args)
}

func (p *i915Parser) gemObjectCreate(ev *Event) bool {
	match := i915ObjectCreate.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	size, _ := strconv.Atoi(match[2])
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1], "size": size})
	return true
}

func (p *i915Parser) gemObjectBind(ev *Event) bool {
	match := i915ObjectBind.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	size, _ := strconv.Atoi(match[3])
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1], "offset": match[2], "size": size})
	return true
}

func (p *i915Parser) gemObjectChangeDomain(ev *Event) bool {
	match := i915ObjectChangeDomain.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1], "read": match[2], "write": match[3]})
	return true
}

func (p *i915Parser) gemObjectPreadWrite(ev *Event) bool {
	match := i915ObjectPreadWrite.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	offset, _ := strconv.Atoi(match[2])
	length, _ := strconv.Atoi(match[3])
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1], "offset": offset, "len": length})
	return true
}

func (p *i915Parser) gemObjectFault(ev *Event) bool {
	match := i915ObjectFault.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	index, _ := strconv.Atoi(match[3])
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1], "type": match[2], "index": index})
	return true
}

func (p *i915Parser) gemObjectDestroy(ev *Event) bool {
	match := i915Object.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	p.gemObjectSlice(ev, match[1], trace.Args{"obj": match[1]})
	return true
}

func (p *i915Parser) gemRequest(ev *Event) bool {
	match := i915RingSeqno.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	dev, _ := strconv.Atoi(match[1])
	ring, _ := strconv.Atoi(match[2])
	seqno, _ := strconv.Atoi(match[3])
	p.gemRingSlice(ev, dev, ring, trace.Args{"dev": dev, "ring": ring, "seqno": seqno})
	return true
}

func (p *i915Parser) gemRingFlush(ev *Event) bool {
	match := i915RingFlush.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	dev, _ := strconv.Atoi(match[1])
	ring, _ := strconv.Atoi(match[2])
	p.gemRingSlice(ev, dev, ring, trace.Args{
		"dev":        dev,
		"ring":       ring,
		"invalidate": match[3],
		"flush":      match[4],
	})
	return true
}

func (p *i915Parser) gemRingWait(ev *Event) bool {
	match := i915Ring.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	dev, _ := strconv.Atoi(match[1])
	ring, _ := strconv.Atoi(match[2])
	p.gemRingSlice(ev, dev, ring, trace.Args{"dev": dev, "ring": ring})
	return true
}

func (p *i915Parser) regRW(ev *Event) bool {
	match := i915RegRW.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	rw, reg := match[1], match[2]
	p.imp.GetOrCreatePseudoThread("i915_reg").pushInstant(ev.Timestamp, rw+":"+reg, trace.Args{
		"rw":   rw,
		"reg":  reg,
		"len":  match[3],
		"data": match[4],
	})
	return true
}

func (p *i915Parser) flip(ev *Event) bool {
	match := i915Flip.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	plane, _ := strconv.Atoi(match[1])
	obj := match[2]

	kthread := p.imp.GetOrCreatePseudoThread("i915_flip")
	if ev.Name == "i915_flip_request" {
		kthread.OpenSliceTS = ev.Timestamp
		kthread.OpenSlice = "flip:" + obj + "/" + match[1]
		return true
	}
	kthread.closeSlice(ev.Timestamp, trace.Args{"obj": obj, "plane": plane})
	return true
}
