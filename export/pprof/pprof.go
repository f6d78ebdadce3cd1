// Package pprof converts the samples of a model into a pprof profile.
package pprof

import (
	"io"
	"math"

	"github.com/google/pprof/profile"
	"github.com/zeebo/errs/v2"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the pprof export.
var Error = errs.Tag("pprof")

// converter deduplicates functions and locations by stack frame.
type converter struct {
	profile   *profile.Profile
	functions map[string]*profile.Function
	locations map[*trace.StackFrame]*profile.Location
}

// Convert creates a profile with one sample per model sample. Locations
// follow the stack of the sample from the leaf to the root.
func Convert(m *trace.Model) (*profile.Profile, error) {
	c := &converter{
		profile: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "samples", Unit: "count"},
				{Type: "weight", Unit: "count"},
			},
			PeriodType: &profile.ValueType{Type: "samples", Unit: "count"},
			Period:     1,
		},
		functions: map[string]*profile.Function{},
		locations: map[*trace.StackFrame]*profile.Location{},
	}
	if !m.Bounds.IsEmpty() {
		c.profile.TimeNanos = int64(m.Bounds.Start)
		c.profile.DurationNanos = int64(m.Bounds.Duration())
	}

	for _, sample := range m.Samples {
		c.addSample(sample)
	}

	if err := c.profile.CheckValid(); err != nil {
		return nil, Error.Wrap(err)
	}
	return c.profile, nil
}

func (c *converter) addSample(sample *trace.Sample) {
	s := &profile.Sample{
		Value: []int64{1, int64(math.Round(sample.Weight))},
		Label: map[string][]string{},
	}
	if sample.Thread != nil {
		s.Label["thread"] = []string{sample.Thread.UserFriendlyName()}
	}
	if sample.Title != "" {
		s.Label["title"] = []string{sample.Title}
	}
	if sample.LeafStackFrame != nil {
		for _, frame := range sample.LeafStackFrame.Stack() {
			s.Location = append(s.Location, c.location(frame))
		}
	}
	c.profile.Sample = append(c.profile.Sample, s)
}

func (c *converter) location(frame *trace.StackFrame) *profile.Location {
	if loc, ok := c.locations[frame]; ok {
		return loc
	}
	loc := &profile.Location{
		ID:   uint64(len(c.profile.Location) + 1),
		Line: []profile.Line{{Function: c.function(frame)}},
	}
	c.locations[frame] = loc
	c.profile.Location = append(c.profile.Location, loc)
	return loc
}

func (c *converter) function(frame *trace.StackFrame) *profile.Function {
	key := frame.Category + "\x00" + frame.Title
	if fn, ok := c.functions[key]; ok {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(c.profile.Function) + 1),
		Name:       frame.Title,
		SystemName: frame.Title,
		Filename:   frame.Category,
	}
	c.functions[key] = fn
	c.profile.Function = append(c.profile.Function, fn)
	return fn
}

// Write converts the model and writes the gzip compressed profile.
func Write(w io.Writer, m *trace.Model) error {
	p, err := Convert(m)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return Error.Wrap(err)
	}
	return nil
}
