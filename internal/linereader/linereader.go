// Package linereader scans text documents line by line while optionally
// saving the lines it passes over.
package linereader

import (
	"regexp"
	"strings"
)

// Reader walks the lines of a document.
type Reader struct {
	lines   []string
	current int

	saving bool
	saved  []string
}

func New(text string) *Reader {
	return &Reader{lines: strings.Split(text, "\n")}
}

// AdvanceToLineMatching moves forward until a line matches re. The matching
// line stays current, so the next call examines it again.
func (r *Reader) AdvanceToLineMatching(re *regexp.Regexp) bool {
	for ; r.current < len(r.lines); r.current++ {
		line := r.lines[r.current]
		if r.saving {
			r.saved = append(r.saved, line)
		}
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// LineNumber returns the zero based index of the current line.
func (r *Reader) LineNumber() int { return r.current }

// BeginSavingLines starts recording every line examined by
// AdvanceToLineMatching.
func (r *Reader) BeginSavingLines() {
	r.saving = true
	r.saved = nil
}

// EndSavingLines stops recording and returns the recorded lines.
func (r *Reader) EndSavingLines() []string {
	saved := r.saved
	r.saving = false
	r.saved = nil
	return saved
}
