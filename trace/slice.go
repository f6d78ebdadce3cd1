package trace

// Args holds the arguments attached to an event.
type Args map[string]any

// Interval is the time span shared by slices and cpu slices.
type Interval struct {
	Start    Time
	Duration Time
}

func (iv Interval) End() Time { return iv.Start + iv.Duration }

// Bounds reports whether iv contains other. Ends are compared at
// microsecond granularity, so that ends reconstructed from sums of
// durations still contain their children.
func (iv Interval) Bounds(other Interval) bool {
	return iv.Start <= other.Start &&
		iv.End().RoundMicros() >= other.End().RoundMicros()
}

// Slice is a named, categorized interval on a timeline.
type Slice struct {
	Interval

	Category string
	Title    string
	ColorID  int
	Args     Args

	// DidNotFinish is set while the slice is open and stays set when the
	// slice is auto-closed at the end of import.
	DidNotFinish bool

	HasCPU      bool
	CPUStart    Time
	CPUDuration Time

	Parent      *Slice
	SubSlices   []*Slice
	SelfTime    Time
	CPUSelfTime Time
}

// NewSlice creates a slice, args may be nil.
func NewSlice(category, title string, colorID int, start Time, args Args, duration Time) *Slice {
	if args == nil {
		args = Args{}
	}
	return &Slice{
		Interval: Interval{Start: start, Duration: duration},
		Category: category,
		Title:    title,
		ColorID:  colorID,
		Args:     args,
	}
}

// SetCPU records the thread clock start and duration of the slice.
func (s *Slice) SetCPU(start, duration Time) {
	s.HasCPU = true
	s.CPUStart = start
	s.CPUDuration = duration
}

// copy returns a detached copy sharing the args of s.
func (s *Slice) copy() *Slice {
	return &Slice{
		Interval:     s.Interval,
		Category:     s.Category,
		Title:        s.Title,
		ColorID:      s.ColorID,
		Args:         s.Args,
		DidNotFinish: s.DidNotFinish,
		HasCPU:       s.HasCPU,
		CPUStart:     s.CPUStart,
		CPUDuration:  s.CPUDuration,
	}
}

// AsyncSlice is a slice that may span threads and overlap other slices.
// SubSlices of an async slice hold its steps.
type AsyncSlice struct {
	Slice

	ID          string
	StartThread *Thread
	EndThread   *Thread
}

// NewAsyncSlice creates an open async slice.
func NewAsyncSlice(category, title string, colorID int, start Time, args Args) *AsyncSlice {
	return &AsyncSlice{Slice: *NewSlice(category, title, colorID, start, args, 0)}
}
