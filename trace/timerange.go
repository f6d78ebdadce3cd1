package trace

import "math"

// TimeRange is a closed interval. InvalidRange is the empty range, which
// absorbs into any other range on Expand or Add.
type TimeRange struct {
	Start  Time
	Finish Time
}

var InvalidRange = TimeRange{
	Start:  math.MaxInt64,
	Finish: math.MinInt64,
}

func (a TimeRange) IsEmpty() bool { return a.Start > a.Finish }

func (a TimeRange) Duration() Time {
	if a.IsEmpty() {
		return 0
	}
	return a.Finish - a.Start
}

func (a TimeRange) Less(b TimeRange) bool {
	if a.Start == b.Start {
		return a.Finish < b.Finish
	}
	return a.Start < b.Start
}

func (a TimeRange) Expand(b TimeRange) TimeRange {
	return TimeRange{
		Start:  a.Start.Min(b.Start),
		Finish: a.Finish.Max(b.Finish),
	}
}

// Add returns the range extended to include t.
func (a TimeRange) Add(t Time) TimeRange {
	return TimeRange{
		Start:  a.Start.Min(t),
		Finish: a.Finish.Max(t),
	}
}

func (a TimeRange) Contains(t Time) bool {
	return a.Start <= t && t <= a.Finish
}
