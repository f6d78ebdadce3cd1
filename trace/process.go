package trace

import (
	"sort"
	"strconv"
	"strings"
)

// Process owns threads, counters and objects with the same pid.
type Process struct {
	Model     *Model
	Pid       int
	Name      string
	Labels    []string
	SortIndex int

	Threads       map[int]*Thread
	Counters      map[string]*Counter
	Objects       *ObjectCollection
	InstantEvents []*Slice

	Bounds TimeRange
}

func NewProcess(model *Model, pid int) *Process {
	p := &Process{
		Model:    model,
		Pid:      pid,
		Threads:  map[int]*Thread{},
		Counters: map[string]*Counter{},
		Bounds:   InvalidRange,
	}
	p.Objects = NewObjectCollection(p)
	return p
}

func (p *Process) counterOrder() (int, int) { return 0, p.Pid }

func (p *Process) GetOrCreateThread(tid int) *Thread {
	thread, ok := p.Threads[tid]
	if !ok {
		thread = NewThread(p, tid)
		p.Threads[tid] = thread
	}
	return thread
}

func (p *Process) GetOrCreateCounter(category, name string) *Counter {
	key := counterKey(category, name)
	counter, ok := p.Counters[key]
	if !ok {
		counter = newCounter(p, len(p.Counters), category, name)
		p.Counters[key] = counter
	}
	return counter
}

// SortedThreads returns the threads ordered by sort index, then tid.
func (p *Process) SortedThreads() []*Thread {
	threads := make([]*Thread, 0, len(p.Threads))
	for _, t := range p.Threads {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, k int) bool {
		a, b := threads[i], threads[k]
		if a.SortIndex != b.SortIndex {
			return a.SortIndex < b.SortIndex
		}
		return a.Tid < b.Tid
	})
	return threads
}

func (p *Process) SortedCounters() []*Counter {
	return sortedCounters(p.Counters)
}

func sortedCounters(counters map[string]*Counter) []*Counter {
	list := make([]*Counter, 0, len(counters))
	for _, c := range counters {
		list = append(list, c)
	}
	sort.Slice(list, func(i, k int) bool {
		return CompareCounters(list[i], list[k]) < 0
	})
	return list
}

func (p *Process) UserFriendlyName() string {
	name := p.Name
	if name == "" {
		name = "Process " + strconv.Itoa(p.Pid)
	} else {
		name += " (pid " + strconv.Itoa(p.Pid) + ")"
	}
	if len(p.Labels) > 0 {
		name += ": " + strings.Join(p.Labels, ", ")
	}
	return name
}

func (p *Process) AutoCloseOpenSlices(max Time) {
	for _, t := range p.Threads {
		t.AutoCloseOpenSlices(max)
	}
}

func (p *Process) MergeKernelWithUserland() error {
	for _, t := range p.SortedThreads() {
		if err := t.MergeKernelWithUserland(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Process) CreateSubSlices() {
	for _, t := range p.Threads {
		t.CreateSubSlices()
	}
}

func (p *Process) ShiftTimestampsForward(amount Time) {
	for _, t := range p.Threads {
		t.ShiftTimestampsForward(amount)
	}
	for _, c := range p.Counters {
		c.ShiftTimestampsForward(amount)
	}
	for _, s := range p.InstantEvents {
		s.Start += amount
	}
	p.Objects.ShiftTimestampsForward(amount)
}

// PruneEmptyContainers drops threads without any content.
func (p *Process) PruneEmptyContainers() {
	for tid, t := range p.Threads {
		if t.IsEmpty() {
			delete(p.Threads, tid)
		}
	}
}

func (p *Process) IsEmpty() bool {
	return len(p.Threads) == 0 &&
		len(p.Counters) == 0 &&
		p.Objects.Len() == 0 &&
		len(p.InstantEvents) == 0
}

func (p *Process) UpdateBounds() {
	p.Bounds = InvalidRange
	for _, t := range p.Threads {
		t.UpdateBounds()
		p.Bounds = p.Bounds.Expand(t.Bounds)
	}
	for _, c := range p.Counters {
		c.UpdateBounds()
		p.Bounds = p.Bounds.Expand(c.Bounds)
	}
	for _, s := range p.InstantEvents {
		p.Bounds = p.Bounds.Add(s.Start)
	}
	p.Objects.UpdateBounds()
	p.Bounds = p.Bounds.Expand(p.Objects.Bounds)
}
