package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/clingy"
	"github.com/zeebo/errs/v2"

	"loov.dev/tracemodel/export/pprof"
	"loov.dev/tracemodel/stats"
	"loov.dev/tracemodel/trace"
)

type cmdSummary struct {
	env   *environment
	files []string
}

func (c *cmdSummary) Setup(params clingy.Parameters) {
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdSummary) Execute(ctx clingy.Context) error {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}
	writeSummary(ctx.Stdout(), s)
	return nil
}

func writeSummary(w io.Writer, s *session) {
	m := s.model
	counts := stats.Count(m)

	fmt.Fprintf(w, "files:        %d (%s)\n", len(s.inputs), humanize.Bytes(s.totalBytes()))
	if m.Bounds.IsEmpty() {
		fmt.Fprintf(w, "bounds:       empty\n")
	} else {
		fmt.Fprintf(w, "bounds:       %v .. %v (%v)\n", m.Bounds.Start, m.Bounds.Finish, m.Bounds.Duration().Std())
	}
	fmt.Fprintf(w, "processes:    %s\n", formatCount(counts.Processes))
	fmt.Fprintf(w, "threads:      %s\n", formatCount(counts.Threads))
	fmt.Fprintf(w, "slices:       %s\n", formatCount(counts.Slices))
	fmt.Fprintf(w, "async slices: %s\n", formatCount(counts.AsyncSlices))
	fmt.Fprintf(w, "counters:     %s\n", formatCount(counts.Counters))
	fmt.Fprintf(w, "cpus:         %s (%s slices)\n", formatCount(counts.Cpus), formatCount(counts.CpuSlices))
	fmt.Fprintf(w, "samples:      %s (%s frames)\n", formatCount(counts.Samples), formatCount(counts.StackFrames))
	fmt.Fprintf(w, "flow events:  %s\n", formatCount(counts.FlowEvents))
	fmt.Fprintf(w, "warnings:     %s\n", formatCount(len(m.ImportWarnings())))
	fmt.Fprintf(w, "errors:       %s\n", formatCount(len(m.ImportErrors())))
	for _, meta := range m.Metadata {
		fmt.Fprintf(w, "metadata:     %s\n", meta.Name)
	}
}

type cmdWarnings struct {
	env   *environment
	files []string
}

func (c *cmdWarnings) Setup(params clingy.Parameters) {
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdWarnings) Execute(ctx clingy.Context) error {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}

	w := ctx.Stdout()
	for _, e := range s.model.ImportErrors() {
		fmt.Fprintf(w, "error   [%s] %s\n", e.Type, e.Message)
	}
	for _, warning := range s.model.ImportWarnings() {
		fmt.Fprintf(w, "warning [%s] %s\n", warning.Type, warning.Message)
	}
	return nil
}

type cmdThreads struct {
	env    *environment
	slices bool
	files  []string
}

func (c *cmdThreads) Setup(params clingy.Parameters) {
	c.slices = params.Flag("slices", "Print the slice tree of every thread", false,
		clingy.Transform(strconv.ParseBool), clingy.Boolean,
	).(bool)
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdThreads) Execute(ctx clingy.Context) error {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}

	w := ctx.Stdout()
	for _, process := range s.model.SortedProcesses() {
		fmt.Fprintf(w, "%s\n", process.UserFriendlyName())
		for _, thread := range process.SortedThreads() {
			fmt.Fprintf(w, "  %s: %s slices, %s async, %s time slices\n",
				thread.UserFriendlyName(),
				formatCount(thread.SliceGroup.Len()),
				formatCount(thread.AsyncSliceGroup.Len()),
				formatCount(len(thread.TimeSlices)))

			if c.slices {
				for _, node := range renderOrder(thread.SliceGroup.TopLevelSlices()) {
					fmt.Fprintf(w, "    %s%s %v +%v\n",
						strings.Repeat("  ", node.depth), node.slice.Title,
						node.slice.Start, node.slice.Duration)
				}
			}
		}
	}
	return nil
}

// renderNode is a slice together with its nesting depth.
type renderNode struct {
	slice *trace.Slice
	depth int
}

// renderOrder flattens the slice tree in depth first order.
func renderOrder(roots []*trace.Slice) []renderNode {
	var order []renderNode
	var include func(slices []*trace.Slice, depth int)
	include = func(slices []*trace.Slice, depth int) {
		for _, slice := range slices {
			order = append(order, renderNode{slice: slice, depth: depth})
			include(slice.SubSlices, depth+1)
		}
	}
	include(roots, 0)
	return order
}

type cmdCounters struct {
	env   *environment
	files []string
}

func (c *cmdCounters) Setup(params clingy.Parameters) {
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdCounters) Execute(ctx clingy.Context) error {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}

	w := ctx.Stdout()
	for _, counter := range s.model.AllCounters() {
		name := counter.Name
		if counter.Category != "" {
			name = counter.Category + "." + counter.Name
		}
		fmt.Fprintf(w, "%s: max total %s\n", name, humanize.FtoaWithDigits(counter.MaxTotal, 3))
		for _, series := range counter.Series {
			fmt.Fprintf(w, "  %s: %s samples\n", series.Name, formatCount(len(series.Samples)))
		}
	}
	return nil
}

type cmdMetrics struct {
	env   *environment
	files []string
}

func (c *cmdMetrics) Setup(params clingy.Parameters) {
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdMetrics) Execute(ctx clingy.Context) error {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}
	return s.metrics.WriteText(ctx.Stdout())
}

type cmdPprof struct {
	env    *environment
	output string
	files  []string
}

func (c *cmdPprof) Setup(params clingy.Parameters) {
	c.output = params.Flag("output", "Destination of the profile", "profile.pb.gz",
		clingy.Short('o'),
	).(string)
	c.files = params.Arg("files", "Trace files to import", clingy.Repeated).([]string)
}

func (c *cmdPprof) Execute(ctx clingy.Context) (err error) {
	s, err := c.env.load(ctx, c.files)
	if err != nil {
		return err
	}
	if len(s.model.Samples) == 0 {
		return errs.Errorf("no samples in %q", c.files)
	}

	f, err := os.Create(c.output)
	if err != nil {
		return errs.Errorf("failed to create %q: %w", c.output, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errs.Wrap(closeErr)
		}
	}()

	if err := pprof.Write(f, s.model); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Stdout(), "wrote %s samples to %s\n", formatCount(len(s.model.Samples)), c.output)
	return nil
}
