package v8log

import (
	"encoding/csv"
	"strings"
)

// fieldParser converts one positional field of a log record.
type fieldParser int

const (
	rawField fieldParser = iota
	intField
	// varArgs collects the remaining fields.
	varArgs
)

// field is a parsed record field.
type field struct {
	raw  string
	num  int64
	ok   bool
	rest []string
}

// dispatch describes how the fields of one record type are parsed.
type dispatch struct {
	parsers []fieldParser
	process func(fields []field)
}

// logReader dispatches the records of a V8 log.
type logReader struct {
	table map[string]dispatch
}

// parseLine splits a CSV encoded log line. Quoted fields use "" to escape a
// quote.
func parseLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// processLine dispatches a line. Unknown records and lines that cannot be
// split are ignored.
func (r *logReader) processLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	fields, err := parseLine(line)
	if err != nil || len(fields) == 0 {
		return
	}
	d, ok := r.table[fields[0]]
	if !ok {
		return
	}

	parsed := make([]field, 0, len(d.parsers))
	for i, parser := range d.parsers {
		var raw string
		if 1+i < len(fields) {
			raw = fields[1+i]
		}
		switch parser {
		case rawField:
			parsed = append(parsed, field{raw: raw, ok: 1+i < len(fields)})
		case intField:
			n, ok := parseInt(raw)
			parsed = append(parsed, field{raw: raw, num: n, ok: ok})
		case varArgs:
			var rest []string
			if 1+i < len(fields) {
				rest = fields[1+i:]
			}
			parsed = append(parsed, field{rest: rest, ok: true})
		}
	}
	d.process(parsed)
}

// parseInt parses the leading integer of s. Numbers prefixed with 0x are
// hexadecimal.
func parseInt(s string) (int64, bool) {
	return parseIntBase(s, 10)
}

// parseIntBase parses the leading integer of s in the given base, a 0x
// prefix always selects base 16. Trailing garbage is ignored.
func parseIntBase(s string, base int64) (int64, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	var n int64
	digits := 0
	for _, c := range s {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'z':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'Z':
			d = int64(c-'A') + 10
		default:
			d = base
		}
		if d >= base {
			break
		}
		n = n*base + d
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if negative {
		n = -n
	}
	return n, true
}

// processStack resolves the frames of a tick. Frames are absolute hex
// addresses or offsets from the previous frame. Overflow markers are
// skipped and an empty frame ends the stack.
func processStack(pc int64, stack []string) []int64 {
	var out []int64
	prev := pc
	for _, frame := range stack {
		if frame == "" {
			break
		}
		switch frame[0] {
		case '+', '-':
			offset, ok := parseIntBase(frame, 16)
			if !ok {
				continue
			}
			prev += offset
			out = append(out, prev)
		case 'o':
		default:
			addr, ok := parseIntBase(frame, 16)
			if !ok {
				continue
			}
			out = append(out, addr)
		}
	}
	return out
}
