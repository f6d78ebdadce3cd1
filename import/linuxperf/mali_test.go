package linuxperf_test

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maliDriverCalls = []string{
	"cros_trace_print_enter: gles/src/dispatch/mali_gles_dispatch_entrypoints.c%992: glTexSubImage2D",
	"cros_trace_print_enter: gles/src/texture/mali_gles_texture_api.c%996: gles_texture_tex_sub_image_2d",
	"cros_trace_print_enter: gles/src/texture/mali_gles_texture_slave.c%295: gles_texturep_slave_map_master",
	"cros_trace_print_exit: gles/src/texture/mali_gles_texture_slave.c%295: ",
	"cros_trace_print_enter: gles/src/texture/mali_gles_texture_slave.c%1505: gles2_texturep_upload_2d",
	"cros_trace_print_enter: gles/src/texture/mali_gles_texture_slave.c%1612: gles2_texturep_upload_2d: pixel array: wait for dependencies",
	"cros_trace_print_enter: cobj/src/mali_cobj_surface_operations.c%1693: cobj_convert_pixels_to_surface",
	"cros_trace_print_enter: cobj/src/mali_cobj_surface_operations.c%1461: cobj_convert_pixels",
	"cros_trace_print_enter: cobj/src/mali_cobj_surface_operations.c%1505: cobj_convert_pixels: fast-path linear copy",
	"cros_trace_print_enter: cobj/src/mali_cobj_surface_operations.c%1511: cobj_convert_pixels: reorder-only",
	"cros_trace_print_exit: cobj/src/mali_cobj_surface_operations.c%1511",
	"cros_trace_print_exit: cobj/src/mali_cobj_surface_operations.c%1505",
	"cros_trace_print_exit: cobj/src/mali_cobj_surface_operations.c%1461",
	"cros_trace_print_exit: cobj/src/mali_cobj_surface_operations.c%1693",
	"cros_trace_print_exit: gles/src/texture/mali_gles_texture_slave.c%1612",
	"cros_trace_print_exit: gles/src/texture/mali_gles_texture_slave.c%1505",
	"cros_trace_print_exit: gles/src/texture/mali_gles_texture_api.c%996",
	"cros_trace_print_exit: gles/src/dispatch/mali_gles_dispatch_entrypoints.c%992",
}

// maliDriverLines formats the driver calls, prefix is written before the
// call and lineSeparator between the file and the line number.
func maliDriverLines(prefix, lineSeparator string) []string {
	var lines []string
	for i, call := range maliDriverCalls {
		lines = append(lines, fmt.Sprintf("           chrome-1780  [001] ...1   28.5626%02d: tracing_mark_write: mali_driver: %s%s",
			i, prefix, strings.Replace(call, "%", lineSeparator, 1)))
	}
	return lines
}

func TestMaliDriver(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		thread string
	}{
		{"no thread", maliDriverLines("", ""), "mali"},
		{"with thread", maliDriverLines("(mali-1878934320) ", "@"), "mali-1878934320"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := importLines(t, test.lines...)
			assert.Empty(t, m.ImportErrors())
			assert.Empty(t, m.ImportWarnings())

			threads := m.AllThreads()
			require.Len(t, threads, 1)
			thread := threads[0]
			assert.Equal(t, test.thread, thread.Name)
			require.Equal(t, 9, thread.SliceGroup.Len())

			upload := thread.SliceGroup.FindSlicesNamed("gles2_texturep_upload_2d")
			require.Len(t, upload, 2)
			assert.Equal(t, "gpu-driver", upload[1].Category)
			assert.Equal(t, "pixel array: wait for dependencies", upload[1].Args["args"])
			assert.False(t, upload[1].DidNotFinish)
		})
	}
}

func TestMaliDVFS(t *testing.T) {
	tests := []struct {
		event, details, counter, series string
	}{
		{"mali_dvfs_set_clock", "frequency=%d", "DVFS Frequency", "frequency"},
		{"mali_dvfs_set_voltage", "voltage=%d", "DVFS Voltage", "voltage"},
		{"mali_dvfs_event", "utilization=%d", "DVFS Utilization", "utilization"},
	}
	for _, test := range tests {
		t.Run(test.counter, func(t *testing.T) {
			m := importLines(t,
				"     kworker/u:0-5     [001] ....  1174.839552: "+test.event+": "+strings.Replace(test.details, "%d", "266", 1),
				"     kworker/u:0-5     [000] ....  1183.840486: "+test.event+": "+strings.Replace(test.details, "%d", "400", 1),
			)
			assert.Empty(t, m.ImportErrors())
			assert.Empty(t, m.ImportWarnings())

			counters := m.AllCounters()
			require.Len(t, counters, 1)
			counter := counters[0]
			assert.Equal(t, test.counter, counter.Name)
			assert.Equal(t, "DVFS", counter.Category)
			require.Len(t, counter.Series, 1)
			assert.Equal(t, test.series, counter.Series[0].Name)
			assert.Len(t, counter.Series[0].Samples, 2)
			assert.Equal(t, 400.0, counter.SampleValue(1, 0))
		})
	}
}

func TestMaliHardwareCounters(t *testing.T) {
	data, err := os.ReadFile("testdata/mali_hwc.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	m := importLines(t, lines...)
	assert.Empty(t, m.ImportErrors())
	assert.Empty(t, m.ImportWarnings())

	counters := m.AllCounters()
	require.Len(t, counters, len(lines))
	for _, counter := range counters {
		assert.Equal(t, 1, counter.NumSamples(), counter.Name)
	}

	active := findCounter(m, "JM: GPU Active")
	require.NotNil(t, active)
	assert.Equal(t, "mali:jm", active.Category)
	assert.Equal(t, "cycles", active.Series[0].Name)

	jobs := findCounter(m, "JM: JS0 Jobs")
	if assert.NotNil(t, jobs) {
		assert.Equal(t, "count", jobs.Series[0].Name)
	}
}
