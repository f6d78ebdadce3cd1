package trace

import (
	"sort"
	"strconv"
)

// SchedState is the state a thread was left in when it was descheduled,
// as reported by the kernel, e.g. "R", "S" or "D|K".
type SchedState string

// CpuSlice is a period during which one thread ran on a cpu.
type CpuSlice struct {
	Slice

	Comm                 string
	Tid                  int
	Prio                 int
	StateWhenDescheduled SchedState

	CPU                  *Cpu
	ThreadThatWasRunning *Thread
}

// ThreadTimeSlice is a period of one scheduling state of a thread.
type ThreadTimeSlice struct {
	Slice

	// CPU is set on Running slices.
	CPU *Cpu
}

func NewThreadTimeSlice(title string, colorID int, start Time, args Args, duration Time) *ThreadTimeSlice {
	return &ThreadTimeSlice{Slice: *NewSlice("", title, colorID, start, args, duration)}
}

// Cpu is the scheduling timeline and the counters of one cpu.
type Cpu struct {
	Kernel   *Kernel
	Number   int
	Slices   []*CpuSlice
	Counters map[string]*Counter

	Bounds TimeRange
}

func (c *Cpu) counterOrder() (int, int) { return 1, c.Number }

func (c *Cpu) UserFriendlyName() string { return "CPU " + strconv.Itoa(c.Number) }

func (c *Cpu) GetOrCreateCounter(category, name string) *Counter {
	key := counterKey(category, name)
	counter, ok := c.Counters[key]
	if !ok {
		counter = newCounter(c, len(c.Counters), category, name)
		c.Counters[key] = counter
	}
	return counter
}

func (c *Cpu) SortedCounters() []*Counter { return sortedCounters(c.Counters) }

func (c *Cpu) ShiftTimestampsForward(amount Time) {
	for _, s := range c.Slices {
		s.Start += amount
	}
	for _, counter := range c.Counters {
		counter.ShiftTimestampsForward(amount)
	}
}

func (c *Cpu) UpdateBounds() {
	c.Bounds = InvalidRange
	if n := len(c.Slices); n > 0 {
		c.Bounds = c.Bounds.Add(c.Slices[0].Start)
		c.Bounds = c.Bounds.Add(c.Slices[n-1].End())
	}
	for _, counter := range c.Counters {
		counter.UpdateBounds()
		c.Bounds = c.Bounds.Expand(counter.Bounds)
	}
}

// Kernel owns the cpus of the traced machine.
type Kernel struct {
	Model *Model
	Cpus  map[int]*Cpu

	softwareMeasuredCpuCount int
	Bounds                   TimeRange
}

func NewKernel(model *Model) *Kernel {
	return &Kernel{
		Model:  model,
		Cpus:   map[int]*Cpu{},
		Bounds: InvalidRange,
	}
}

func (k *Kernel) GetOrCreateCpu(number int) *Cpu {
	cpu, ok := k.Cpus[number]
	if !ok {
		cpu = &Cpu{
			Kernel:   k,
			Number:   number,
			Counters: map[string]*Counter{},
			Bounds:   InvalidRange,
		}
		k.Cpus[number] = cpu
	}
	return cpu
}

// SortedCpus returns the cpus ordered by number.
func (k *Kernel) SortedCpus() []*Cpu {
	cpus := make([]*Cpu, 0, len(k.Cpus))
	for _, cpu := range k.Cpus {
		cpus = append(cpus, cpu)
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i].Number < cpus[j].Number })
	return cpus
}

func (k *Kernel) SoftwareMeasuredCpuCount() int { return k.softwareMeasuredCpuCount }

// SetSoftwareMeasuredCpuCount records the cpu count reported by software.
// Once set, it cannot be changed to a different value.
func (k *Kernel) SetSoftwareMeasuredCpuCount(count int) error {
	if k.softwareMeasuredCpuCount != 0 && k.softwareMeasuredCpuCount != count {
		return contractError("SetSoftwareMeasuredCpuCount", "Cannot change the softwareMeasuredCpuCount once it is set")
	}
	k.softwareMeasuredCpuCount = count
	return nil
}

// BestGuessAtCpuCount prefers the cpus seen in the trace over the software
// measured count.
func (k *Kernel) BestGuessAtCpuCount() int {
	if len(k.Cpus) != 0 {
		return len(k.Cpus)
	}
	return k.softwareMeasuredCpuCount
}

func (k *Kernel) ShiftTimestampsForward(amount Time) {
	for _, cpu := range k.Cpus {
		cpu.ShiftTimestampsForward(amount)
	}
}

func (k *Kernel) UpdateBounds() {
	k.Bounds = InvalidRange
	for _, cpu := range k.Cpus {
		cpu.UpdateBounds()
		k.Bounds = k.Bounds.Expand(cpu.Bounds)
	}
}
