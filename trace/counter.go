package trace

import (
	"math"
	"sort"
	"strings"
)

type CounterSample struct {
	Timestamp Time
	Value     float64
}

// CounterSeries is one named value of a counter over time.
type CounterSeries struct {
	Name    string
	ColorID int
	Samples []CounterSample
}

func NewCounterSeries(name string, colorID int) *CounterSeries {
	return &CounterSeries{Name: name, ColorID: colorID}
}

func (s *CounterSeries) AddCounterSample(ts Time, value float64) *CounterSample {
	s.Samples = append(s.Samples, CounterSample{Timestamp: ts, Value: value})
	return &s.Samples[len(s.Samples)-1]
}

// counterOwner is a process or a cpu.
type counterOwner interface {
	counterOrder() (kind, id int)
}

// Counter is a set of series that share sample timestamps. The timestamps of
// the first series are the timestamps of the counter.
type Counter struct {
	parent counterOwner

	ID       int
	Category string
	Name     string
	Series   []*CounterSeries

	Bounds   TimeRange
	Totals   []float64
	MaxTotal float64
}

func newCounter(parent counterOwner, id int, category, name string) *Counter {
	return &Counter{
		parent:   parent,
		ID:       id,
		Category: category,
		Name:     name,
		Bounds:   InvalidRange,
	}
}

// NewCounter creates a counter that does not belong to a process or a cpu.
func NewCounter(category, name string) *Counter {
	return newCounter(nil, 0, category, name)
}

func (c *Counter) AddSeries(series *CounterSeries) *CounterSeries {
	c.Series = append(c.Series, series)
	return series
}

// SeriesNamed returns the series with the given name, or nil.
func (c *Counter) SeriesNamed(name string) *CounterSeries {
	for _, s := range c.Series {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (c *Counter) NumSeries() int { return len(c.Series) }

func (c *Counter) NumSamples() int {
	if len(c.Series) == 0 {
		return 0
	}
	return len(c.Series[0].Samples)
}

func (c *Counter) Timestamps() []Time {
	if len(c.Series) == 0 {
		return nil
	}
	timestamps := make([]Time, 0, len(c.Series[0].Samples))
	for _, sample := range c.Series[0].Samples {
		timestamps = append(timestamps, sample.Timestamp)
	}
	return timestamps
}

// SampleValue returns the value of a series at a sample index, series that
// are missing the sample count as zero.
func (c *Counter) SampleValue(index, series int) float64 {
	samples := c.Series[series].Samples
	if index >= len(samples) {
		return 0
	}
	return samples[index].Value
}

// SampleStatistics summarizes one series over a selection of samples.
type SampleStatistics struct {
	Min, Max, Avg float64
	Start, End    float64
}

// GetSampleStatistics summarizes every series over the given sample indices.
func (c *Counter) GetSampleStatistics(indices []int) []SampleStatistics {
	if len(indices) == 0 {
		return nil
	}
	indices = append([]int(nil), indices...)
	sort.Ints(indices)

	stats := make([]SampleStatistics, 0, len(c.Series))
	for series := range c.Series {
		sum := 0.0
		min, max := math.Inf(1), math.Inf(-1)
		for _, index := range indices {
			v := c.SampleValue(index, series)
			sum += v
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
		stats = append(stats, SampleStatistics{
			Min:   min,
			Max:   max,
			Avg:   sum / float64(len(indices)),
			Start: c.SampleValue(indices[0], series),
			End:   c.SampleValue(indices[len(indices)-1], series),
		})
	}
	return stats
}

func (c *Counter) ShiftTimestampsForward(amount Time) {
	for _, series := range c.Series {
		for i := range series.Samples {
			series.Samples[i].Timestamp += amount
		}
	}
}

// UpdateBounds recomputes the bounds and the stacked totals. Totals holds the
// running sum over series for every sample, MaxTotal the largest sum.
func (c *Counter) UpdateBounds() {
	c.Bounds = InvalidRange
	c.Totals = c.Totals[:0]
	c.MaxTotal = 0

	n := c.NumSamples()
	if n == 0 {
		return
	}
	timestamps := c.Series[0].Samples
	c.Bounds = c.Bounds.Add(timestamps[0].Timestamp)
	c.Bounds = c.Bounds.Add(timestamps[n-1].Timestamp)

	maxTotal := math.Inf(-1)
	for i := 0; i < n; i++ {
		total := 0.0
		for series := range c.Series {
			total += c.SampleValue(i, series)
			c.Totals = append(c.Totals, total)
		}
		maxTotal = math.Max(maxTotal, total)
	}
	c.MaxTotal = maxTotal
}

// CompareCounters orders counters by owner, then name, then id.
func CompareCounters(x, y *Counter) int {
	xk, xi := ownerOrder(x.parent)
	yk, yi := ownerOrder(y.parent)
	switch {
	case xk != yk:
		return xk - yk
	case xi != yi:
		return xi - yi
	}
	if c := strings.Compare(x.Name, y.Name); c != 0 {
		return c
	}
	return x.ID - y.ID
}

func ownerOrder(owner counterOwner) (int, int) {
	if owner == nil {
		return -1, 0
	}
	return owner.counterOrder()
}

func counterKey(category, name string) string {
	return category + "." + name
}
