package trace

import "strconv"

// Thread is a timeline of a process.
type Thread struct {
	Parent    *Process
	Tid       int
	Name      string
	SortIndex int

	SliceGroup       *SliceGroup
	KernelSliceGroup *SliceGroup
	AsyncSliceGroup  *AsyncSliceGroup

	// TimeSlices describe the scheduling state of the thread over time.
	TimeSlices []*ThreadTimeSlice
	Samples    []*Sample

	Bounds TimeRange
}

func NewThread(parent *Process, tid int) *Thread {
	return &Thread{
		Parent:           parent,
		Tid:              tid,
		SliceGroup:       NewSliceGroup(),
		KernelSliceGroup: NewSliceGroup(),
		AsyncSliceGroup:  NewAsyncSliceGroup(),
		Bounds:           InvalidRange,
	}
}

// Slices returns the synchronous slices of the thread.
func (t *Thread) Slices() []*Slice { return t.SliceGroup.Slices }

func (t *Thread) IsEmpty() bool {
	return t.SliceGroup.Len() == 0 &&
		t.SliceGroup.OpenSliceCount() == 0 &&
		t.KernelSliceGroup.Len() == 0 &&
		t.AsyncSliceGroup.Len() == 0 &&
		len(t.TimeSlices) == 0 &&
		len(t.Samples) == 0
}

func (t *Thread) UserFriendlyName() string {
	if t.Name != "" {
		return t.Name
	}
	return strconv.Itoa(t.Tid)
}

func (t *Thread) AutoCloseOpenSlices(max Time) {
	t.SliceGroup.AutoCloseOpenSlices(&max)
	t.KernelSliceGroup.AutoCloseOpenSlices(&max)
	t.AsyncSliceGroup.AutoCloseOpenSlices(max)
}

// MergeKernelWithUserland folds the kernel slices into the slice group,
// splitting kernel slices that straddle userland slice boundaries.
func (t *Thread) MergeKernelWithUserland() error {
	if t.KernelSliceGroup.Len() == 0 {
		return nil
	}
	merged, err := Merge(t.SliceGroup, t.KernelSliceGroup)
	if err != nil {
		return err
	}
	t.SliceGroup = merged
	t.KernelSliceGroup = NewSliceGroup()
	return nil
}

func (t *Thread) CreateSubSlices() {
	t.SliceGroup.CreateSubSlices()
	t.KernelSliceGroup.CreateSubSlices()
}

func (t *Thread) ShiftTimestampsForward(amount Time) {
	t.SliceGroup.ShiftTimestampsForward(amount)
	t.KernelSliceGroup.ShiftTimestampsForward(amount)
	t.AsyncSliceGroup.ShiftTimestampsForward(amount)
	for _, s := range t.TimeSlices {
		s.Start += amount
	}
}

func (t *Thread) UpdateBounds() {
	t.Bounds = InvalidRange

	t.SliceGroup.UpdateBounds()
	t.Bounds = t.Bounds.Expand(t.SliceGroup.Bounds)
	t.KernelSliceGroup.UpdateBounds()
	t.Bounds = t.Bounds.Expand(t.KernelSliceGroup.Bounds)
	t.AsyncSliceGroup.UpdateBounds()
	t.Bounds = t.Bounds.Expand(t.AsyncSliceGroup.Bounds)

	if n := len(t.TimeSlices); n > 0 {
		t.Bounds = t.Bounds.Add(t.TimeSlices[0].Start)
		t.Bounds = t.Bounds.Add(t.TimeSlices[n-1].End())
	}
	for _, sample := range t.Samples {
		t.Bounds = t.Bounds.Add(sample.Start)
	}
}
