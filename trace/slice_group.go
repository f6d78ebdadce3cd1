package trace

import (
	"fmt"
	"sort"
	"strings"
)

// SliceGroup is the ordered list of slices of one timeline. Slices are kept in
// the order they were begun or pushed.
type SliceGroup struct {
	Slices []*Slice
	Bounds TimeRange

	topLevelSlices    []*Slice
	openPartialSlices []*Slice
}

func NewSliceGroup() *SliceGroup {
	return &SliceGroup{Bounds: InvalidRange}
}

func (g *SliceGroup) Len() int { return len(g.Slices) }

// PushSlice appends an already constructed slice.
func (g *SliceGroup) PushSlice(s *Slice) *Slice {
	g.Slices = append(g.Slices, s)
	return s
}

func (g *SliceGroup) PushSlices(slices []*Slice) {
	g.Slices = append(g.Slices, slices...)
}

func (g *SliceGroup) OpenSliceCount() int { return len(g.openPartialSlices) }

// MostRecentlyOpenedPartialSlice returns the innermost open slice or nil.
func (g *SliceGroup) MostRecentlyOpenedPartialSlice() *Slice {
	if len(g.openPartialSlices) == 0 {
		return nil
	}
	return g.openPartialSlices[len(g.openPartialSlices)-1]
}

// IsTimestampValidForBeginOrEnd reports whether ts is not before the start
// of the innermost open slice.
func (g *SliceGroup) IsTimestampValidForBeginOrEnd(ts Time) bool {
	top := g.MostRecentlyOpenedPartialSlice()
	return top == nil || ts >= top.Start
}

// BeginSlice opens a slice. It is closed by the matching EndSlice.
func (g *SliceGroup) BeginSlice(category, title string, ts Time, args Args) (*Slice, error) {
	if !g.IsTimestampValidForBeginOrEnd(ts) {
		return nil, contractError("BeginSlice", "Slices must be added in increasing timestamp order")
	}

	s := NewSlice(category, title, StringColorID(title), ts, args, 0)
	s.DidNotFinish = true
	g.openPartialSlices = append(g.openPartialSlices, s)
	g.PushSlice(s)
	return s, nil
}

// EndSlice closes the most recently opened slice.
func (g *SliceGroup) EndSlice(ts Time) (*Slice, error) {
	s := g.MostRecentlyOpenedPartialSlice()
	if s == nil {
		return nil, contractError("EndSlice", "endSlice called without an open slice")
	}
	if ts < s.Start {
		return nil, contractError("EndSlice", fmt.Sprintf("Slice %s end time is before its start.", s.Title))
	}

	g.openPartialSlices = g.openPartialSlices[:len(g.openPartialSlices)-1]
	s.Duration = ts - s.Start
	s.DidNotFinish = false
	return s, nil
}

// PushCompleteSlice adds a slice with a known duration.
func (g *SliceGroup) PushCompleteSlice(category, title string, ts, duration Time, args Args) *Slice {
	s := NewSlice(category, title, StringColorID(title), ts, args, duration)
	return g.PushSlice(s)
}

// PushUnfinishedSlice adds a complete slice whose duration is unknown. It
// is closed by AutoCloseOpenSlices.
func (g *SliceGroup) PushUnfinishedSlice(category, title string, ts Time, args Args) *Slice {
	s := NewSlice(category, title, StringColorID(title), ts, args, 0)
	s.DidNotFinish = true
	return g.PushSlice(s)
}

// AutoCloseOpenSlices closes every unfinished slice at max, or at the end of
// the group when max is nil. Closed slices keep DidNotFinish set.
func (g *SliceGroup) AutoCloseOpenSlices(max *Time) {
	if max == nil {
		g.UpdateBounds()
		end := g.Bounds.Finish
		max = &end
	}
	for _, s := range g.Slices {
		if s.DidNotFinish {
			s.Duration = *max - s.Start
		}
	}
	g.openPartialSlices = nil
}

func (g *SliceGroup) ShiftTimestampsForward(amount Time) {
	for _, s := range g.Slices {
		s.Start += amount
		if s.HasCPU {
			s.CPUStart += amount
		}
	}
}

func (g *SliceGroup) UpdateBounds() {
	g.Bounds = InvalidRange
	for _, s := range g.Slices {
		g.Bounds = g.Bounds.Add(s.Start)
		g.Bounds = g.Bounds.Add(s.End())
	}
}

// TopLevelSlices returns the roots computed by CreateSubSlices.
func (g *SliceGroup) TopLevelSlices() []*Slice { return g.topLevelSlices }

// FindSlicesNamed returns slices with the given title in insertion order.
func (g *SliceGroup) FindSlicesNamed(title string) []*Slice {
	var found []*Slice
	for _, s := range g.Slices {
		if s.Title == title {
			found = append(found, s)
		}
	}
	return found
}

// CopySlice returns a copy of s without any nesting information.
func (g *SliceGroup) CopySlice(s *Slice) *Slice { return s.copy() }

// CreateSubSlices rebuilds the nesting of the slices. Slices are visited by
// start time; ties keep insertion order so that an enclosing slice that was
// begun first becomes the parent.
func (g *SliceGroup) CreateSubSlices() {
	g.topLevelSlices = nil
	if len(g.Slices) == 0 {
		return
	}

	ops := make([]int, len(g.Slices))
	for i, s := range g.Slices {
		s.Parent = nil
		s.SubSlices = nil
		s.SelfTime = s.Duration
		s.CPUSelfTime = s.CPUDuration
		ops[i] = i
	}
	sort.SliceStable(ops, func(i, k int) bool {
		return g.Slices[ops[i]].Start < g.Slices[ops[k]].Start
	})

	root := g.Slices[ops[0]]
	g.topLevelSlices = append(g.topLevelSlices, root)
	for _, index := range ops[1:] {
		s := g.Slices[index]
		if !addSliceIfBounds(root, s) {
			root = s
			g.topLevelSlices = append(g.topLevelSlices, root)
		}
	}
}

func addSliceIfBounds(root, child *Slice) bool {
	if !root.Bounds(child.Interval) {
		return false
	}
	if n := len(root.SubSlices); n > 0 {
		if addSliceIfBounds(root.SubSlices[n-1], child) {
			return true
		}
	}
	child.Parent = root
	root.SubSlices = append(root.SubSlices, child)
	root.SelfTime -= child.Duration
	if child.HasCPU {
		root.CPUSelfTime -= child.CPUDuration
	}
	return true
}

const continuedSuffix = " (cont.)"

// Merge combines two groups into a new group. Slices of a are kept intact,
// slices of b that straddle the end of a slice of a are split there, the
// later parts titled with a " (cont.)" suffix. Neither group may have open
// slices.
func Merge(a, b *SliceGroup) (*SliceGroup, error) {
	if len(a.openPartialSlices) > 0 {
		return nil, contractError("Merge", "groupA has open partial slices")
	}
	if len(b.openPartialSlices) > 0 {
		return nil, contractError("Merge", "groupB has open partial slices")
	}

	m := &merger{result: NewSliceGroup()}
	ia, ib := 0, 0
	for ia < len(a.Slices) || ib < len(b.Slices) {
		var next *Slice
		fromB := false
		if ia < len(a.Slices) && (ib >= len(b.Slices) || a.Slices[ia].Start <= b.Slices[ib].Start) {
			next = a.Slices[ia].copy()
			ia++
		} else {
			next = b.Slices[ib].copy()
			fromB = true
			ib++
		}

		if err := m.closeOpenSlices(next.Start, true); err != nil {
			return nil, err
		}
		m.result.PushSlice(next)

		if fromB {
			m.openB = append(m.openB, next)
		} else {
			if err := m.splitOpenSlices(next.Start); err != nil {
				return nil, err
			}
			m.openA = append(m.openA, next)
		}
	}
	if err := m.closeOpenSlices(0, false); err != nil {
		return nil, err
	}
	return m.result, nil
}

type merger struct {
	result *SliceGroup
	openA  []*Slice
	openB  []*Slice
}

// splitOpenSlices cuts every open slice of b at when.
func (m *merger) splitOpenSlices(when Time) error {
	for i, old := range m.openB {
		oldEnd := old.End()
		if when < old.Start || oldEnd < when {
			return contractError("Merge", "slice should not be split")
		}

		split := old.copy()
		split.Start = when
		split.Duration = oldEnd - when
		if !strings.Contains(split.Title, continuedSuffix) {
			split.Title += continuedSuffix
		}
		old.Duration = when - old.Start

		m.openB[i] = split
		m.result.PushSlice(split)
	}
	return nil
}

// closeOpenSlices pops the open slices that end at or before upTo, or all of
// them when limited is false.
func (m *merger) closeOpenSlices(upTo Time, limited bool) error {
	for len(m.openA) > 0 || len(m.openB) > 0 {
		var nextA, nextB *Slice
		if n := len(m.openA); n > 0 {
			nextA = m.openA[n-1]
		}
		if n := len(m.openB); n > 0 {
			nextB = m.openB[n-1]
		}

		if limited &&
			(nextA == nil || nextA.End() > upTo) &&
			(nextB == nil || nextB.End() > upTo) {
			return nil
		}

		if nextB == nil || (nextA != nil && nextA.End() < nextB.End()) {
			if err := m.splitOpenSlices(nextA.End()); err != nil {
				return err
			}
			m.openA = m.openA[:len(m.openA)-1]
		} else {
			m.openB = m.openB[:len(m.openB)-1]
		}
	}
	return nil
}
