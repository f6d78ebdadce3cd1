package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newMaliParser) }

// maliBlock is a group of Mali GPU hardware counters.
type maliBlock struct {
	category string
	prefix   string
}

var (
	maliJM       = maliBlock{"mali:jm", "JM: "}
	maliTiler    = maliBlock{"mali:tiler", "Tiler: "}
	maliFragment = maliBlock{"mali:fragment", "Fragment: "}
	maliCompute  = maliBlock{"mali:compute", "Compute: "}
	maliTripipe  = maliBlock{"mali:shader", "Tripipe: "}
	maliArith    = maliBlock{"mali:arith", "Arith: "}
	maliLS       = maliBlock{"mali:ls", "LS: "}
	maliTexture  = maliBlock{"mali:texture", "Texture: "}
	maliLSC      = maliBlock{"mali:lsc", "LSC: "}
	maliAXI      = maliBlock{"mali:axi", "AXI: "}
	maliMMU      = maliBlock{"mali:mmu", "MMU: "}
	maliL2       = maliBlock{"mali:l2", "L2: "}
)

const (
	hwcCount  = "count"
	hwcCycles = "cycles"
)

type maliCounter struct {
	event  string
	block  maliBlock
	title  string
	series string
}

// maliCounters lists the hardware counter events, except the per job
// slot counters created by jobSlotCounters.
var maliCounters = []maliCounter{
	{"mali_hwc_MESSAGES_SENT", maliJM, "Messages Sent", hwcCount},
	{"mali_hwc_MESSAGES_RECEIVED", maliJM, "Messages Received", hwcCount},
	{"mali_hwc_GPU_ACTIVE", maliJM, "GPU Active", hwcCycles},
	{"mali_hwc_IRQ_ACTIVE", maliJM, "IRQ Active", hwcCycles},
	{"mali_hwc_TRIANGLES", maliTiler, "Triangles", hwcCount},
	{"mali_hwc_QUADS", maliTiler, "Quads", hwcCount},
	{"mali_hwc_POLYGONS", maliTiler, "Polygons", hwcCount},
	{"mali_hwc_POINTS", maliTiler, "Points", hwcCount},
	{"mali_hwc_LINES", maliTiler, "Lines", hwcCount},
	{"mali_hwc_VCACHE_HIT", maliTiler, "VCache Hit", hwcCount},
	{"mali_hwc_VCACHE_MISS", maliTiler, "VCache Miss", hwcCount},
	{"mali_hwc_FRONT_FACING", maliTiler, "Front Facing", hwcCount},
	{"mali_hwc_BACK_FACING", maliTiler, "Back Facing", hwcCount},
	{"mali_hwc_PRIM_VISIBLE", maliTiler, "Prim Visible", hwcCount},
	{"mali_hwc_PRIM_CULLED", maliTiler, "Prim Culled", hwcCount},
	{"mali_hwc_PRIM_CLIPPED", maliTiler, "Prim Clipped", hwcCount},
	{"mali_hwc_WRBUF_HIT", maliTiler, "Wrbuf Hit", hwcCount},
	{"mali_hwc_WRBUF_MISS", maliTiler, "Wrbuf Miss", hwcCount},
	{"mali_hwc_WRBUF_LINE", maliTiler, "Wrbuf Line", hwcCount},
	{"mali_hwc_WRBUF_PARTIAL", maliTiler, "Wrbuf Partial", hwcCount},
	{"mali_hwc_WRBUF_STALL", maliTiler, "Wrbuf Stall", hwcCount},
	{"mali_hwc_ACTIVE", maliTiler, "Tiler Active", hwcCycles},
	{"mali_hwc_INDEX_WAIT", maliTiler, "Index Wait", hwcCycles},
	{"mali_hwc_INDEX_RANGE_WAIT", maliTiler, "Index Range Wait", hwcCycles},
	{"mali_hwc_VERTEX_WAIT", maliTiler, "Vertex Wait", hwcCycles},
	{"mali_hwc_PCACHE_WAIT", maliTiler, "Pcache Wait", hwcCycles},
	{"mali_hwc_WRBUF_WAIT", maliTiler, "Wrbuf Wait", hwcCycles},
	{"mali_hwc_BUS_READ", maliTiler, "Bus Read", hwcCycles},
	{"mali_hwc_BUS_WRITE", maliTiler, "Bus Write", hwcCycles},
	{"mali_hwc_TILER_UTLB_STALL", maliTiler, "Tiler UTLB Stall", hwcCycles},
	{"mali_hwc_TILER_UTLB_HIT", maliTiler, "Tiler UTLB Hit", hwcCycles},
	{"mali_hwc_FRAG_ACTIVE", maliFragment, "Active", hwcCycles},
	{"mali_hwc_FRAG_PRIMATIVES", maliFragment, "Primitives", hwcCount},
	{"mali_hwc_FRAG_PRIMATIVES_DROPPED", maliFragment, "Primitives Dropped", hwcCount},
	{"mali_hwc_FRAG_CYCLE_DESC", maliFragment, "Descriptor Processing", hwcCycles},
	{"mali_hwc_FRAG_CYCLES_PLR", maliFragment, "PLR Processing??", hwcCycles},
	{"mali_hwc_FRAG_CYCLES_VERT", maliFragment, "Vertex Processing", hwcCycles},
	{"mali_hwc_FRAG_CYCLES_TRISETUP", maliFragment, "Triangle Setup", hwcCycles},
	{"mali_hwc_FRAG_CYCLES_RAST", maliFragment, "Rasterization???", hwcCycles},
	{"mali_hwc_FRAG_THREADS", maliFragment, "Threads", hwcCount},
	{"mali_hwc_FRAG_DUMMY_THREADS", maliFragment, "Dummy Threads", hwcCount},
	{"mali_hwc_FRAG_QUADS_RAST", maliFragment, "Quads Rast", hwcCount},
	{"mali_hwc_FRAG_QUADS_EZS_TEST", maliFragment, "Quads EZS Test", hwcCount},
	{"mali_hwc_FRAG_QUADS_EZS_KILLED", maliFragment, "Quads EZS Killed", hwcCount},
	{"mali_hwc_FRAG_QUADS_LZS_TEST", maliFragment, "Quads LZS Test", hwcCount},
	{"mali_hwc_FRAG_QUADS_LZS_KILLED", maliFragment, "Quads LZS Killed", hwcCount},
	{"mali_hwc_FRAG_CYCLE_NO_TILE", maliFragment, "No Tiles", hwcCycles},
	{"mali_hwc_FRAG_NUM_TILES", maliFragment, "Tiles", hwcCount},
	{"mali_hwc_FRAG_TRANS_ELIM", maliFragment, "Transactions Eliminated", hwcCount},
	{"mali_hwc_COMPUTE_ACTIVE", maliCompute, "Active", hwcCycles},
	{"mali_hwc_COMPUTE_TASKS", maliCompute, "Tasks", hwcCount},
	{"mali_hwc_COMPUTE_THREADS", maliCompute, "Threads Started", hwcCount},
	{"mali_hwc_COMPUTE_CYCLES_DESC", maliCompute, "Waiting for Descriptors", hwcCycles},
	{"mali_hwc_TRIPIPE_ACTIVE", maliTripipe, "Active", hwcCycles},
	{"mali_hwc_ARITH_WORDS", maliArith, "Instructions (/Pipes)", hwcCount},
	{"mali_hwc_ARITH_CYCLES_REG", maliArith, "Reg scheduling stalls (/Pipes)", hwcCycles},
	{"mali_hwc_ARITH_CYCLES_L0", maliArith, "L0 cache miss stalls (/Pipes)", hwcCycles},
	{"mali_hwc_ARITH_FRAG_DEPEND", maliArith, "Frag dep check failures (/Pipes)", hwcCount},
	{"mali_hwc_LS_WORDS", maliLS, "Instruction Words Completed", hwcCount},
	{"mali_hwc_LS_ISSUES", maliLS, "Full Pipeline Issues", hwcCount},
	{"mali_hwc_LS_RESTARTS", maliLS, "Restarts (unpairable insts)", hwcCount},
	{"mali_hwc_LS_REISSUES_MISS", maliLS, "Pipeline reissue (cache miss/uTLB)", hwcCount},
	{"mali_hwc_LS_REISSUES_VD", maliLS, "Pipeline reissue (varying data)", hwcCount},
	{"mali_hwc_LS_REISSUE_ATTRIB_MISS", maliLS, "Pipeline reissue (attribute cache miss)", hwcCount},
	{"mali_hwc_LS_REISSUE_NO_WB", maliLS, "Writeback not used", hwcCount},
	{"mali_hwc_TEX_WORDS", maliTexture, "Words", hwcCount},
	{"mali_hwc_TEX_BUBBLES", maliTexture, "Bubbles", hwcCount},
	{"mali_hwc_TEX_WORDS_L0", maliTexture, "Words L0", hwcCount},
	{"mali_hwc_TEX_WORDS_DESC", maliTexture, "Words Desc", hwcCount},
	{"mali_hwc_TEX_THREADS", maliTexture, "Threads", hwcCount},
	{"mali_hwc_TEX_RECIRC_FMISS", maliTexture, "Recirc due to Full Miss", hwcCount},
	{"mali_hwc_TEX_RECIRC_DESC", maliTexture, "Recirc due to Desc Miss", hwcCount},
	{"mali_hwc_TEX_RECIRC_MULTI", maliTexture, "Recirc due to Multipass", hwcCount},
	{"mali_hwc_TEX_RECIRC_PMISS", maliTexture, "Recirc due to Partial Cache Miss", hwcCount},
	{"mali_hwc_TEX_RECIRC_CONF", maliTexture, "Recirc due to Cache Conflict", hwcCount},
	{"mali_hwc_LSC_READ_HITS", maliLSC, "Read Hits", hwcCount},
	{"mali_hwc_LSC_READ_MISSES", maliLSC, "Read Misses", hwcCount},
	{"mali_hwc_LSC_WRITE_HITS", maliLSC, "Write Hits", hwcCount},
	{"mali_hwc_LSC_WRITE_MISSES", maliLSC, "Write Misses", hwcCount},
	{"mali_hwc_LSC_ATOMIC_HITS", maliLSC, "Atomic Hits", hwcCount},
	{"mali_hwc_LSC_ATOMIC_MISSES", maliLSC, "Atomic Misses", hwcCount},
	{"mali_hwc_LSC_LINE_FETCHES", maliLSC, "Line Fetches", hwcCount},
	{"mali_hwc_LSC_DIRTY_LINE", maliLSC, "Dirty Lines", hwcCount},
	{"mali_hwc_LSC_SNOOPS", maliLSC, "Snoops", hwcCount},
	{"mali_hwc_AXI_TLB_STALL", maliAXI, "Address channel stall", hwcCount},
	{"mali_hwc_AXI_TLB_MISS", maliAXI, "Cache Miss", hwcCount},
	{"mali_hwc_AXI_TLB_TRANSACTION", maliAXI, "Transactions", hwcCount},
	{"mali_hwc_LS_TLB_MISS", maliAXI, "LS Cache Miss", hwcCount},
	{"mali_hwc_LS_TLB_HIT", maliAXI, "LS Cache Hit", hwcCount},
	{"mali_hwc_AXI_BEATS_READ", maliAXI, "Read Beats", hwcCount},
	{"mali_hwc_AXI_BEATS_WRITE", maliAXI, "Write Beats", hwcCount},
	{"mali_hwc_MMU_TABLE_WALK", maliMMU, "Page Table Walks", hwcCount},
	{"mali_hwc_MMU_REPLAY_MISS", maliMMU, "Cache Miss from Replay Buffer", hwcCount},
	{"mali_hwc_MMU_REPLAY_FULL", maliMMU, "Replay Buffer Full", hwcCount},
	{"mali_hwc_MMU_NEW_MISS", maliMMU, "Cache Miss on New Request", hwcCount},
	{"mali_hwc_MMU_HIT", maliMMU, "Cache Hit", hwcCount},
	{"mali_hwc_UTLB_STALL", maliMMU, "UTLB Stalled", hwcCycles},
	{"mali_hwc_UTLB_REPLAY_MISS", maliMMU, "UTLB Replay Miss", hwcCycles},
	{"mali_hwc_UTLB_REPLAY_FULL", maliMMU, "UTLB Replay Full", hwcCycles},
	{"mali_hwc_UTLB_NEW_MISS", maliMMU, "UTLB New Miss", hwcCycles},
	{"mali_hwc_UTLB_HIT", maliMMU, "UTLB Hit", hwcCycles},
	{"mali_hwc_L2_READ_BEATS", maliL2, "Read Beats", hwcCount},
	{"mali_hwc_L2_WRITE_BEATS", maliL2, "Write Beats", hwcCount},
	{"mali_hwc_L2_ANY_LOOKUP", maliL2, "Any Lookup", hwcCount},
	{"mali_hwc_L2_READ_LOOKUP", maliL2, "Read Lookup", hwcCount},
	{"mali_hwc_L2_SREAD_LOOKUP", maliL2, "Shareable Read Lookup", hwcCount},
	{"mali_hwc_L2_READ_REPLAY", maliL2, "Read Replayed", hwcCount},
	{"mali_hwc_L2_READ_SNOOP", maliL2, "Read Snoop", hwcCount},
	{"mali_hwc_L2_READ_HIT", maliL2, "Read Cache Hit", hwcCount},
	{"mali_hwc_L2_CLEAN_MISS", maliL2, "CleanUnique Miss", hwcCount},
	{"mali_hwc_L2_WRITE_LOOKUP", maliL2, "Write Lookup", hwcCount},
	{"mali_hwc_L2_SWRITE_LOOKUP", maliL2, "Shareable Write Lookup", hwcCount},
	{"mali_hwc_L2_WRITE_REPLAY", maliL2, "Write Replayed", hwcCount},
	{"mali_hwc_L2_WRITE_SNOOP", maliL2, "Write Snoop", hwcCount},
	{"mali_hwc_L2_WRITE_HIT", maliL2, "Write Cache Hit", hwcCount},
	{"mali_hwc_L2_EXT_READ_FULL", maliL2, "ExtRD with BIU Full", hwcCount},
	{"mali_hwc_L2_EXT_READ_HALF", maliL2, "ExtRD with BIU >1/2 Full", hwcCount},
	{"mali_hwc_L2_EXT_WRITE_FULL", maliL2, "ExtWR with BIU Full", hwcCount},
	{"mali_hwc_L2_EXT_WRITE_HALF", maliL2, "ExtWR with BIU >1/2 Full", hwcCount},
	{"mali_hwc_L2_EXT_READ", maliL2, "External Read (ExtRD)", hwcCount},
	{"mali_hwc_L2_EXT_READ_LINE", maliL2, "ExtRD (linefill)", hwcCount},
	{"mali_hwc_L2_EXT_WRITE", maliL2, "External Write (ExtWR)", hwcCount},
	{"mali_hwc_L2_EXT_WRITE_LINE", maliL2, "ExtWR (linefill)", hwcCount},
	{"mali_hwc_L2_EXT_WRITE_SMALL", maliL2, "ExtWR (burst size <64B)", hwcCount},
	{"mali_hwc_L2_EXT_BARRIER", maliL2, "External Barrier", hwcCount},
	{"mali_hwc_L2_EXT_AR_STALL", maliL2, "Address Read stalls", hwcCount},
	{"mali_hwc_L2_EXT_R_BUF_FULL", maliL2, "Response Buffer full stalls", hwcCount},
	{"mali_hwc_L2_EXT_RD_BUF_FULL", maliL2, "Read Data Buffer full stalls", hwcCount},
	{"mali_hwc_L2_EXT_R_RAW", maliL2, "RAW hazard stalls", hwcCount},
	{"mali_hwc_L2_EXT_W_STALL", maliL2, "Write Data stalls", hwcCount},
	{"mali_hwc_L2_EXT_W_BUF_FULL", maliL2, "Write Data Buffer full", hwcCount},
	{"mali_hwc_L2_EXT_R_W_HAZARD", maliL2, "WAW or WAR hazard stalls", hwcCount},
	{"mali_hwc_L2_TAG_HAZARD", maliL2, "Tag hazard replays", hwcCount},
	{"mali_hwc_L2_SNOOP_FULL", maliL2, "Snoop buffer full", hwcCycles},
	{"mali_hwc_L2_REPLAY_FULL", maliL2, "Replay buffer full", hwcCycles},}

func jobSlotCounters() []maliCounter {
	var counters []maliCounter
	for i := 0; i < 7; i++ {
		slot := "JS" + strconv.Itoa(i)
		event := "mali_hwc_" + slot
		counters = append(counters,
			maliCounter{event + "_JOBS", maliJM, slot + " Jobs", hwcCount},
			maliCounter{event + "_TASKS", maliJM, slot + " Tasks", hwcCount},
			maliCounter{event + "_ACTIVE", maliJM, slot + " Active", hwcCycles},
			maliCounter{event + "_WAIT_READ", maliJM, slot + " Wait Read", hwcCycles},
			maliCounter{event + "_WAIT_ISSUE", maliJM, slot + " Wait Issue", hwcCycles},
			maliCounter{event + "_WAIT_DEPEND", maliJM, slot + " Wait Depend", hwcCycles},
			maliCounter{event + "_WAIT_FINISH", maliJM, slot + " Wait Finish", hwcCycles},
		)
	}
	return counters
}

var (
	maliHWCValue = regexp.MustCompile(`val=(\d+)`)

	maliDVFSUtilization = regexp.MustCompile(`utilization=(\d+)`)
	maliDVFSFrequency   = regexp.MustCompile(`frequency=(\d+)`)
	maliDVFSVoltage     = regexp.MustCompile(`voltage=(\d+)`)

	maliLineWithThread = regexp.MustCompile(`^\s*\(([\w\-]*)\)\s*(\w+):\s*([\w\\/.\-]*@\d*):?\s*(.*)$`)
	maliLineNoThread   = regexp.MustCompile(`^\s*()(\w+):\s*([\w\\/.\-]*):?\s*(.*)$`)
	maliFunc           = regexp.MustCompile(`^(\w*)(?:\(\))?:?\s*(.*)$`)
)

// maliParser imports Mali GPU dvfs and hardware counter events, and the
// driver call trace written through tracing_mark_write.
type maliParser struct {
	imp *Importer
	// driverLine is detected from the first driver event.
	driverLine *regexp.Regexp
}

func newMaliParser(imp *Importer) {
	p := &maliParser{imp: imp}
	imp.RegisterEventHandler("mali_dvfs_event", p.dvfs(maliDVFSUtilization, "DVFS Utilization", "utilization"))
	imp.RegisterEventHandler("mali_dvfs_set_clock", p.dvfs(maliDVFSFrequency, "DVFS Frequency", "frequency"))
	imp.RegisterEventHandler("mali_dvfs_set_voltage", p.dvfs(maliDVFSVoltage, "DVFS Voltage", "voltage"))

	for _, counter := range append(append([]maliCounter(nil), maliCounters...), jobSlotCounters()...) {
		imp.RegisterEventHandler(counter.event, p.hwc(counter))
	}

	imp.RegisterEventHandler("tracing_mark_write:mali_driver", p.driverEvent)
	imp.RegisterEventHandler("0:mali_driver", p.driverEvent)
}

func (p *maliParser) dvfs(re *regexp.Regexp, counterName, seriesName string) Handler {
	return func(ev *Event) bool {
		match := re.FindStringSubmatch(ev.Details)
		if match == nil {
			return false
		}
		value, _ := strconv.ParseFloat(match[1], 64)
		counter := p.imp.model.GetOrCreateProcess(pseudoKernelPid).GetOrCreateCounter("DVFS", counterName)
		addCounterValue(counter, seriesName, ev.Timestamp, value)
		return true
	}
}

func (p *maliParser) hwc(c maliCounter) Handler {
	return func(ev *Event) bool {
		match := maliHWCValue.FindStringSubmatch(ev.Details)
		if match == nil {
			return false
		}
		value, _ := strconv.ParseFloat(match[1], 64)
		counter := p.imp.model.GetOrCreateProcess(pseudoKernelPid).GetOrCreateCounter(c.block.category, c.block.prefix+c.title)
		addCounterValue(counter, c.series, ev.Timestamp, value)
		return true
	}
}

// driverEvent imports "[(thread)] cros_trace_print_enter: file@line: func"
// and the matching exit. Driver threads are named, not numbered, and
// become pseudo threads.
func (p *maliParser) driverEvent(ev *Event) bool {
	if p.driverLine == nil {
		switch {
		case maliLineWithThread.MatchString(ev.Details):
			p.driverLine = maliLineWithThread
		case maliLineNoThread.MatchString(ev.Details):
			p.driverLine = maliLineNoThread
		default:
			return false
		}
	}
	match := p.driverLine.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}

	name := match[1]
	if name == "" {
		name = "mali"
	}
	thread := p.imp.GetOrCreatePseudoThread(name).Thread
	blockinfo := match[3]

	switch match[2] {
	case "cros_trace_print_enter":
		fn := maliFunc.FindStringSubmatch(match[4])
		if fn == nil {
			return false
		}
		_, err := thread.SliceGroup.BeginSlice("gpu-driver", fn[1], ev.Timestamp, trace.Args{
			"args":      fn[2],
			"blockinfo": blockinfo,
		})
		return err == nil
	case "cros_trace_print_exit":
		if thread.SliceGroup.OpenSliceCount() == 0 {
			return true
		}
		_, err := thread.SliceGroup.EndSlice(ev.Timestamp)
		return err == nil
	}
	return true
}
