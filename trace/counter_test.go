package trace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/trace"
)

func newTwoSeriesCounter() *trace.Counter {
	m := trace.NewModel(trace.DefaultOptions())
	counter := m.GetOrCreateProcess(1).GetOrCreateCounter("cat", "ctr")
	a := counter.AddSeries(trace.NewCounterSeries("a", 0))
	b := counter.AddSeries(trace.NewCounterSeries("b", 1))
	for i, v := range [][2]float64{{0, 5}, {1, 6}, {2, 7}, {3, 8}, {4, 9}, {5, 10}, {6, 11}, {7, 12}, {8, 13}, {9, 14}} {
		ts := trace.Time(i) * 10
		a.AddCounterSample(ts, v[0])
		b.AddCounterSample(ts, v[1])
	}
	return counter
}

func TestCounterBasics(t *testing.T) {
	counter := newTwoSeriesCounter()
	assert.Equal(t, 2, counter.NumSeries())
	assert.Equal(t, 10, counter.NumSamples())
	assert.Equal(t, trace.Time(90), counter.Timestamps()[9])

	counter.UpdateBounds()
	assert.Equal(t, trace.TimeRange{Start: 0, Finish: 90}, counter.Bounds)
	assert.Equal(t, 23.0, counter.MaxTotal)
	require.Len(t, counter.Totals, 20)
	assert.Equal(t, []float64{0, 5, 1, 7}, counter.Totals[:4])

	counter.ShiftTimestampsForward(5)
	counter.UpdateBounds()
	assert.Equal(t, trace.TimeRange{Start: 5, Finish: 95}, counter.Bounds)
}

func TestCounterSampleStatistics(t *testing.T) {
	counter := newTwoSeriesCounter()
	stats := counter.GetSampleStatistics([]int{3, 1, 2})
	assert.Equal(t, []trace.SampleStatistics{
		{Min: 1, Max: 3, Avg: 2, Start: 1, End: 3},
		{Min: 6, Max: 8, Avg: 7, Start: 6, End: 8},
	}, stats)
	assert.Nil(t, counter.GetSampleStatistics(nil))
}

func TestCounterOrdering(t *testing.T) {
	m := trace.NewModel(trace.DefaultOptions())
	p2 := m.GetOrCreateProcess(2)
	p1 := m.GetOrCreateProcess(1)
	cpu := m.Kernel.GetOrCreateCpu(0)

	cpuCounter := cpu.GetOrCreateCounter("", "Clock Frequency")
	b := p2.GetOrCreateCounter("", "b")
	a := p2.GetOrCreateCounter("", "a")
	z := p1.GetOrCreateCounter("", "z")
	assert.Same(t, a, p2.GetOrCreateCounter("", "a"))

	assert.Equal(t, []*trace.Counter{z, a, b, cpuCounter}, m.AllCounters())
	assert.Less(t, trace.CompareCounters(z, a), 0)
	assert.Greater(t, trace.CompareCounters(cpuCounter, b), 0)
}
