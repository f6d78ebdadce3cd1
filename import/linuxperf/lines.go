package linuxperf

import (
	"regexp"
	"strconv"
	"strings"

	"loov.dev/tracemodel/internal/linereader"
	"loov.dev/tracemodel/trace"
)

// Event is one line of an ftrace text dump.
type Event struct {
	Line string

	ThreadName string
	Pid        int
	// Tgid is the process id, only set when the trace was recorded with
	// the print-tgid option.
	Tgid    int
	HasTgid bool
	CPU     int

	Timestamp trace.Time
	Name      string
	Details   string

	// SubEventName is set on events dispatched from tracing_mark_write.
	SubEventName string
}

// lineParser parses one line, it returns nil when the line does not match.
type lineParser func(line string) *Event

var (
	// 3.2 and later with the print-tgid option:
	//   <idle>-0    (    0) [001] d...  1.23: sched_switch
	lineWithTgid = regexp.MustCompile(`^\s*(.+)-(\d+)\s+\(\s*(\d+|-+)\)\s\[(\d+)\]\s+[dX.][N.][Hhs.][0-9a-f.]\s+(\d+\.\d+):\s+(\S+):\s(.*)$`)

	// 3.2 and later, including the irq-info:
	//   <idle>-0     [001] d...  1.23: sched_switch
	lineWithIRQInfo = regexp.MustCompile(`^\s*(.+)-(\d+)\s+\[(\d+)\]\s+[dX.][N.][Hhs.][0-9a-f.]\s+(\d+\.\d+):\s+(\S+):\s(.*)$`)

	// before 3.2:
	//   <idle>-0     [001]  1.23: sched_switch
	lineWithLegacyFmt = regexp.MustCompile(`^\s*(.+)-(\d+)\s+\[(\d+)\]\s*(\d+\.\d+):\s+(\S+):\s(.*)$`)

	traceEventClockSync = regexp.MustCompile(`trace_event_clock_sync: parent_ts=(\d+\.?\d*)`)
)

func parseLineWithTgid(line string) *Event {
	groups := lineWithTgid.FindStringSubmatch(line)
	if groups == nil {
		return nil
	}
	ev := newEvent(line, groups[1], groups[2], groups[4], groups[5], groups[6], groups[7])
	if ev != nil && !strings.HasPrefix(groups[3], "-") {
		ev.Tgid, _ = strconv.Atoi(groups[3])
		ev.HasTgid = true
	}
	return ev
}

func parseLineWithIRQInfo(line string) *Event {
	groups := lineWithIRQInfo.FindStringSubmatch(line)
	if groups == nil {
		return nil
	}
	return newEvent(line, groups[1], groups[2], groups[3], groups[4], groups[5], groups[6])
}

func parseLineWithLegacyFmt(line string) *Event {
	groups := lineWithLegacyFmt.FindStringSubmatch(line)
	if groups == nil {
		return nil
	}
	return newEvent(line, groups[1], groups[2], groups[3], groups[4], groups[5], groups[6])
}

func newEvent(line, threadName, pid, cpu, timestamp, name, details string) *Event {
	ts, ok := parseSeconds(timestamp)
	if !ok {
		return nil
	}
	ev := &Event{
		Line:       line,
		ThreadName: threadName,
		Timestamp:  ts,
		Name:       name,
		Details:    details,
	}
	ev.Pid, _ = strconv.Atoi(pid)
	ev.CPU, _ = strconv.Atoi(cpu)
	return ev
}

// autoDetectLineParser picks the parser for the format of line. JSON
// input is never claimed.
func autoDetectLineParser(line string) lineParser {
	if strings.HasPrefix(line, "{") {
		return nil
	}
	switch {
	case lineWithTgid.MatchString(line):
		return parseLineWithTgid
	case lineWithIRQInfo.MatchString(line):
		return parseLineWithIRQInfo
	case lineWithLegacyFmt.MatchString(line):
		return parseLineWithLegacyFmt
	}
	return nil
}

// parseSeconds converts a decimal number of seconds into a time without
// going through floating point.
func parseSeconds(s string) (trace.Time, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	seconds, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nanos int64
	if frac != "" {
		nanos, err = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, false
		}
	}
	return trace.Time(seconds*1e9 + nanos), true
}

var (
	systraceScript    = regexp.MustCompile(`^  <script>$`)
	systraceData      = regexp.MustCompile(`^  var linuxPerfData = "\\$`)
	systraceScriptEnd = regexp.MustCompile(`^  </script>$`)
	systraceBodyEnd   = regexp.MustCompile(`^</body>$`)
	systraceHTMLEnd   = regexp.MustCompile(`^</html>$`)
)

// extractSystraceHTML returns the ftrace lines embedded in an HTML page
// written by systrace.
func extractSystraceHTML(text string) ([]string, bool) {
	if !strings.HasPrefix(text, "<!DOCTYPE HTML>") {
		return nil, false
	}
	r := linereader.New(text)
	if !r.AdvanceToLineMatching(systraceScript) {
		return nil, false
	}
	if !r.AdvanceToLineMatching(systraceData) {
		return nil, false
	}

	r.BeginSavingLines()
	if !r.AdvanceToLineMatching(systraceScriptEnd) {
		return nil, false
	}
	raw := r.EndSavingLines()
	// the first line opens the string and the last closes the script
	if len(raw) < 3 {
		return nil, false
	}
	raw = raw[1 : len(raw)-1]

	if !r.AdvanceToLineMatching(systraceBodyEnd) {
		return nil, false
	}
	if !r.AdvanceToLineMatching(systraceHTMLEnd) {
		return nil, false
	}

	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = strings.TrimSuffix(line, `\n\`)
	}
	last := lines[len(lines)-1]
	if !strings.HasSuffix(last, `\n";`) {
		return nil, false
	}
	lines[len(lines)-1] = strings.TrimSuffix(last, `\n";`)
	return lines, true
}
