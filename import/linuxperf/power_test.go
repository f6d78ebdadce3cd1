package linuxperf_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loov.dev/tracemodel/trace"
)

func cpuCounter(t *testing.T, m *trace.Model, cpu int, name string) *trace.Counter {
	t.Helper()
	c, ok := m.Kernel.Cpus[cpu]
	require.True(t, ok, "cpu %d", cpu)
	for _, counter := range c.Counters {
		if counter.Name == name {
			return counter
		}
	}
	require.Failf(t, "missing counter", "cpu %d has no %q", cpu, name)
	return nil
}

func TestPowerFrequency(t *testing.T) {
	m := importLines(t,
		" kworker/0:3-6880  [000]  2784.783015: power_frequency: type=2 state=1000000 cpu_id=0",
		" kworker/1:2-7269  [001]  2784.788993: power_frequency: type=2 state=800000 cpu_id=1",
		" kworker/1:2-7269  [001]  2784.993120: power_frequency: type=2 state=1300000 cpu_id=1",
	)
	assert.Empty(t, m.ImportErrors())
	assert.Empty(t, m.ImportWarnings())

	c0 := cpuCounter(t, m, 0, "Clock Frequency")
	assert.Empty(t, m.Kernel.Cpus[0].Slices)
	assert.Equal(t, 1, c0.NumSamples())
	assert.Equal(t, 1000000.0, c0.SampleValue(0, 0))
	c1 := cpuCounter(t, m, 1, "Clock Frequency")
	assert.Equal(t, 2, c1.NumSamples())
	assert.Equal(t, 1300000.0, c1.SampleValue(1, 0))
}

func TestCpuFrequency(t *testing.T) {
	m := importLines(t,
		"     kworker/1:0-9665  [001] 15051.007301: cpu_frequency: state=800000 cpu_id=1",
		"     kworker/1:0-9665  [001] 15051.010278: cpu_frequency: state=1300000 cpu_id=1",
		"     kworker/0:2-7972  [000] 15051.010278: cpu_frequency: state=1000000 cpu_id=0",
		"     kworker/0:2-7972  [000] 15051.020304: cpu_frequency: state=800000 cpu_id=0",
	)
	assert.Empty(t, m.ImportErrors())

	c0 := cpuCounter(t, m, 0, "Clock Frequency")
	assert.Equal(t, 2, c0.NumSamples())
	assert.Equal(t, "state", c0.Series[0].Name)
	assert.Equal(t, 800000.0, c0.SampleValue(1, 0))
	assert.Equal(t, 2, cpuCounter(t, m, 1, "Clock Frequency").NumSamples())
}

func TestCpuIdle(t *testing.T) {
	m := importLines(t,
		"          <idle>-0     [000] 15050.992883: cpu_idle: state=1 cpu_id=0",
		"          <idle>-0     [000] 15050.993027: cpu_idle: state=4294967295 cpu_id=0",
		"          <idle>-0     [001] 15050.993132: cpu_idle: state=1 cpu_id=1",
		"          <idle>-0     [001] 15050.993276: cpu_idle: state=4294967295 cpu_id=1",
		"          <idle>-0     [001] 15050.993279: cpu_idle: state=3 cpu_id=1",
		"          <idle>-0     [001] 15050.993457: cpu_idle: state=4294967295 cpu_id=1",
	)
	assert.Empty(t, m.ImportErrors())

	c0 := cpuCounter(t, m, 0, "C-State")
	assert.Equal(t, 2, c0.NumSamples())
	assert.Equal(t, 2.0, c0.SampleValue(0, 0))
	assert.Equal(t, 0.0, c0.SampleValue(1, 0))

	c1 := cpuCounter(t, m, 1, "C-State")
	assert.Equal(t, 4, c1.NumSamples())
	assert.Equal(t, 4.0, c1.SampleValue(2, 0))
}

func TestPowerStartType(t *testing.T) {
	m := importLines(t,
		" kworker/0:3-6880  [000]  2784.783015: power_start: type=1 state=2 cpu_id=0",
		" kworker/0:3-6880  [000]  2784.783016: power_start: type=2 state=2 cpu_id=0",
	)
	assert.Equal(t, []string{"Don't understand power_start events of type 2"}, warningMessages(m))
	assert.Equal(t, 1, cpuCounter(t, m, 0, "C-State").NumSamples())
}

func TestClockSetRate(t *testing.T) {
	states := []string{"500000000", "300000000", "400000000", "500000000", "800000000",
		"200000000", "300000000", "600000000", "200000000", "500000000"}
	var lines []string
	for i, state := range states {
		lines = append(lines, fmt.Sprintf("cfinteractive-23    [000] d..2  8113.2%d3768: clock_set_rate: fout_apll state=%s cpu_id=0", i, state))
	}

	m := importLines(t, lines...)
	assert.False(t, m.HasImportWarnings())

	counters := m.AllCounters()
	require.Len(t, counters, 1)
	assert.Equal(t, "fout_apll", counters[0].Name)
	assert.Len(t, m.Processes[0].Counters, 1)
	assert.Equal(t, 10, counters[0].NumSamples())
}

func TestClockEnable(t *testing.T) {
	m := importLines(t,
		"cfinteractive-23    [000] d..2  8113.233768: clock_enable: fout_apll state=1 cpu_id=0",
		"cfinteractive-23    [000] d..2  8113.243768: clock_disable: fout_apll state=0 cpu_id=0",
	)
	assert.False(t, m.HasImportWarnings())
	counter := findCounter(m, "fout_apll:enabled")
	require.NotNil(t, counter)
	assert.Equal(t, 2, counter.NumSamples())
}

func TestMemoryBusUsage(t *testing.T) {
	m := importLines(t,
		"s3c-fb-vsync-85    [001] d..2  8116.730115: memory_bus_usage: bus=RIGHT rw_bytes=0 r_bytes=0 w_bytes=0 cycles=2681746 ns=16760792",
		"s3c-fb-vsync-85    [001] d..2  8116.730118: memory_bus_usage: bus=CPU rw_bytes=2756608 r_bytes=2267328 w_bytes=491328 cycles=6705198 ns=16763375",
		"s3c-fb-vsync-85    [001] d..2  8116.746788: memory_bus_usage: bus=DDR_C rw_bytes=2736128 r_bytes=2260864 w_bytes=479248 cycles=6670677 ns=16676375",
		"s3c-fb-vsync-85    [001] d..2  8116.746790: memory_bus_usage: bus=DDR_R1 rw_bytes=31457280 r_bytes=31460912 w_bytes=0 cycles=6670521 ns=16676500",
		"s3c-fb-vsync-85    [001] d..2  8116.746792: memory_bus_usage: bus=DDR_L rw_bytes=16953344 r_bytes=16731088 w_bytes=223664 cycles=6669885 ns=16674833",
		"s3c-fb-vsync-85    [001] d..2  8116.746793: memory_bus_usage: bus=RIGHT rw_bytes=0 r_bytes=0 w_bytes=0 cycles=2667378 ns=16671250",
		"s3c-fb-vsync-85    [001] d..2  8116.746798: memory_bus_usage: bus=CPU rw_bytes=2797568 r_bytes=2309424 w_bytes=491968 cycles=6672156 ns=16680458",
		"s3c-fb-vsync-85    [001] d..2  8116.763521: memory_bus_usage: bus=DDR_C rw_bytes=2408448 r_bytes=1968448 w_bytes=441456 cycles=6689562 ns=16723458",
		"s3c-fb-vsync-85    [001] d..2  8116.763523: memory_bus_usage: bus=DDR_R1 rw_bytes=31490048 r_bytes=31493360 w_bytes=0 cycles=6690012 ns=16725083",
		"s3c-fb-vsync-85    [001] d..2  8116.763525: memory_bus_usage: bus=DDR_L rw_bytes=16941056 r_bytes=16719136 w_bytes=223472 cycles=6690156 ns=16725375",
	)
	assert.False(t, m.HasImportWarnings())

	counters := m.AllCounters()
	require.Len(t, counters, 10)
	for _, counter := range counters {
		assert.Equal(t, 2, counter.NumSamples(), counter.Name)
	}

	read := findCounter(m, "bus CPU read")
	require.NotNil(t, read)
	assert.InDelta(t, 2267328*1e9/16763375/(1024*1024), read.SampleValue(0, 0), 1e-9)
}
