package trace

import (
	"fmt"
	"sort"
)

// AsyncSliceGroup holds slices that may overlap and span threads.
type AsyncSliceGroup struct {
	Slices []*AsyncSlice
	Bounds TimeRange
}

func NewAsyncSliceGroup() *AsyncSliceGroup {
	return &AsyncSliceGroup{Bounds: InvalidRange}
}

func (g *AsyncSliceGroup) Push(s *AsyncSlice) *AsyncSlice {
	g.Slices = append(g.Slices, s)
	return s
}

func (g *AsyncSliceGroup) Len() int { return len(g.Slices) }

func (g *AsyncSliceGroup) ShiftTimestampsForward(amount Time) {
	for _, s := range g.Slices {
		s.Start += amount
		for _, sub := range s.SubSlices {
			sub.Start += amount
		}
	}
}

func (g *AsyncSliceGroup) UpdateBounds() {
	g.Bounds = InvalidRange
	for _, s := range g.Slices {
		g.Bounds = g.Bounds.Add(s.Start)
		g.Bounds = g.Bounds.Add(s.End())
	}
}

// AutoCloseOpenSlices extends unfinished slices to max.
func (g *AsyncSliceGroup) AutoCloseOpenSlices(max Time) {
	for _, s := range g.Slices {
		if !s.DidNotFinish {
			continue
		}
		s.Duration = max - s.Start
		if n := len(s.SubSlices); n > 0 {
			last := s.SubSlices[n-1]
			last.Duration = max - last.Start
		}
	}
}

// AsyncKey identifies an async slice while it is open.
type AsyncKey struct {
	Category string
	Name     string
	ID       string
}

type asyncStep struct {
	ts    Time
	title string
	args  Args
}

type openAsync struct {
	slice *AsyncSlice
	steps []asyncStep
}

// OpenAsyncSlices matches Start, Step and Finish events of async slices.
// Finished slices are pushed onto the async group of the thread that
// started them.
type OpenAsyncSlices struct {
	open  map[AsyncKey]*openAsync
	order []AsyncKey
}

func NewOpenAsyncSlices() *OpenAsyncSlices {
	return &OpenAsyncSlices{open: map[AsyncKey]*openAsync{}}
}

// Start opens a slice. It returns false when a slice with the same key is
// already open; the earlier slice is kept.
func (o *OpenAsyncSlices) Start(key AsyncKey, ts Time, thread *Thread, args Args) (*AsyncSlice, bool) {
	if _, exists := o.open[key]; exists {
		return nil, false
	}
	s := NewAsyncSlice(key.Category, key.Name, StringColorID(key.Name), ts, args)
	s.ID = key.ID
	s.StartThread = thread
	s.DidNotFinish = true
	o.open[key] = &openAsync{slice: s}
	o.order = append(o.order, key)
	return s, true
}

// Step marks a phase change inside an open slice.
func (o *OpenAsyncSlices) Step(key AsyncKey, ts Time, title string, args Args) (*AsyncSlice, bool) {
	entry, ok := o.open[key]
	if !ok {
		return nil, false
	}
	entry.steps = append(entry.steps, asyncStep{ts: ts, title: title, args: args})
	return entry.slice, true
}

// IsOpen reports whether a slice with the key is waiting for its Finish.
func (o *OpenAsyncSlices) IsOpen(key AsyncKey) bool {
	_, ok := o.open[key]
	return ok
}

// Finish closes a slice, builds its sub-slices from the recorded steps and
// pushes it to the starting thread.
func (o *OpenAsyncSlices) Finish(key AsyncKey, ts Time, thread *Thread, args Args) (*AsyncSlice, bool) {
	entry, ok := o.open[key]
	if !ok {
		return nil, false
	}
	delete(o.open, key)

	s := entry.slice
	s.Duration = ts - s.Start
	s.DidNotFinish = false
	s.EndThread = thread
	for k, v := range args {
		s.Args[k] = v
	}

	s.SubSlices = nil
	start, title, stepArgs := s.Start, s.Title, s.Args
	for _, step := range entry.steps {
		s.SubSlices = append(s.SubSlices, NewSlice(s.Category, title, s.ColorID, start, stepArgs, step.ts-start))
		start, title, stepArgs = step.ts, s.Title+":"+step.title, step.args
	}
	s.SubSlices = append(s.SubSlices, NewSlice(s.Category, title, s.ColorID, start, stepArgs, ts-start))

	if s.StartThread != nil {
		s.StartThread.AsyncSliceGroup.Push(s)
	}
	return s, true
}

// Unmatched returns the slices that were started but never finished, in
// start order.
func (o *OpenAsyncSlices) Unmatched() []*AsyncSlice {
	var slices []*AsyncSlice
	for _, key := range o.order {
		if entry, ok := o.open[key]; ok {
			slices = append(slices, entry.slice)
		}
	}
	sort.SliceStable(slices, func(i, k int) bool { return slices[i].Start < slices[k].Start })
	return slices
}

// ReportUnmatched adds a warning for every slice that was never finished.
func (o *OpenAsyncSlices) ReportUnmatched(m *Model) {
	for _, s := range o.Unmatched() {
		m.ImportWarning(Warning{
			Type:    "async_slice_parse_error",
			Message: fmt.Sprintf("Async slice %s (id %s) started at %v was never finished", s.Title, s.ID, s.Start),
		})
	}
}
