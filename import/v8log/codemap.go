package v8log

import (
	"sort"
	"strconv"
)

// pageAlignment is the log2 of the page size used to mark library pages.
const pageAlignment = 12

// CodeEntry is a named range of machine code.
type CodeEntry struct {
	ID   int
	Size int64
	Name string
	// Kind is the V8 code kind, -1 for the V8 runtime and -3 for other
	// shared libraries.
	Kind int64
}

type codeRange struct {
	start int64
	entry *CodeEntry
}

// codeTable is a set of non-overlapping code ranges ordered by address.
type codeTable struct {
	ranges []codeRange
}

func (t *codeTable) search(addr int64) int {
	return sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].start >= addr })
}

func (t *codeTable) insert(start int64, entry *CodeEntry) {
	i := t.search(start)
	if i < len(t.ranges) && t.ranges[i].start == start {
		t.ranges[i].entry = entry
		return
	}
	t.ranges = append(t.ranges, codeRange{})
	copy(t.ranges[i+1:], t.ranges[i:])
	t.ranges[i] = codeRange{start: start, entry: entry}
}

func (t *codeTable) remove(start int64) (*CodeEntry, bool) {
	i := t.search(start)
	if i >= len(t.ranges) || t.ranges[i].start != start {
		return nil, false
	}
	entry := t.ranges[i].entry
	t.ranges = append(t.ranges[:i], t.ranges[i+1:]...)
	return entry, true
}

// deleteCovered removes the ranges starting in [start, end) and the range
// that contains start.
func (t *codeTable) deleteCovered(start, end int64) {
	i := t.search(start)
	if i > 0 && t.ranges[i-1].start+t.ranges[i-1].entry.Size > start {
		i--
	}
	k := i
	for k < len(t.ranges) && t.ranges[k].start < end {
		k++
	}
	t.ranges = append(t.ranges[:i], t.ranges[k:]...)
}

// find returns the entry that contains addr.
func (t *codeTable) find(addr int64) *CodeEntry {
	i := sort.Search(len(t.ranges), func(i int) bool { return t.ranges[i].start > addr }) - 1
	if i < 0 {
		return nil
	}
	r := t.ranges[i]
	if addr >= r.start && addr < r.start+r.entry.Size {
		return r.entry
	}
	return nil
}

// CodeMap maps addresses to code entries. Dynamic code can move and be
// deleted, static code and libraries stay in place.
type CodeMap struct {
	dynamics  codeTable
	statics   codeTable
	libraries codeTable
	pages     map[int64]bool

	lastID int
	// names counts the dynamic entries with the same name.
	names map[string]int
}

func NewCodeMap() *CodeMap {
	return &CodeMap{
		pages: map[int64]bool{},
		names: map[string]int{},
	}
}

// NewEntry creates an entry with a unique id.
func (m *CodeMap) NewEntry(size int64, name string, kind int64) *CodeEntry {
	m.lastID++
	return &CodeEntry{ID: m.lastID, Size: size, Name: name, Kind: kind}
}

// AddCode adds dynamic code, replacing the code it overlaps.
func (m *CodeMap) AddCode(start int64, entry *CodeEntry) {
	m.dynamics.deleteCovered(start, start+entry.Size)
	if n := m.names[entry.Name]; n > 0 {
		m.names[entry.Name] = n + 1
		entry.Name += " {" + strconv.Itoa(n) + "}"
	} else {
		m.names[entry.Name] = 1
	}
	m.dynamics.insert(start, entry)
}

// MoveCode moves the dynamic code at from to to. It reports false when no
// code starts at from.
func (m *CodeMap) MoveCode(from, to int64) bool {
	entry, ok := m.dynamics.remove(from)
	if !ok {
		return false
	}
	m.dynamics.deleteCovered(to, to+entry.Size)
	m.dynamics.insert(to, entry)
	return true
}

// DeleteCode removes the dynamic code starting at start.
func (m *CodeMap) DeleteCode(start int64) bool {
	_, ok := m.dynamics.remove(start)
	return ok
}

// AddLibrary adds a shared library and marks its pages.
func (m *CodeMap) AddLibrary(start int64, entry *CodeEntry) {
	m.markPages(start, start+entry.Size)
	m.libraries.insert(start, entry)
}

// AddStaticCode adds code that never moves, such as functions of a
// library.
func (m *CodeMap) AddStaticCode(start int64, entry *CodeEntry) {
	m.statics.insert(start, entry)
}

func (m *CodeMap) markPages(start, end int64) {
	for addr := start; addr <= end; addr += 1 << pageAlignment {
		m.pages[addr>>pageAlignment] = true
	}
}

// FindEntry returns the entry containing addr or nil. Library pages are
// searched in static code and libraries only.
func (m *CodeMap) FindEntry(addr int64) *CodeEntry {
	if m.pages[addr>>pageAlignment] {
		if entry := m.statics.find(addr); entry != nil {
			return entry
		}
		return m.libraries.find(addr)
	}
	return m.dynamics.find(addr)
}

// DynamicEntries returns the dynamic code in address order.
func (m *CodeMap) DynamicEntries() []*CodeEntry {
	entries := make([]*CodeEntry, 0, len(m.dynamics.ranges))
	for _, r := range m.dynamics.ranges {
		entries = append(entries, r.entry)
	}
	return entries
}
