package linuxperf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncEvents(t *testing.T) {
	m := importLines(t,
		"s3c-fb-92            (     0) [000] ...1  7206.550061: sync_timeline: name=s3c-fb value=7094",
		"TimedEventQueue-2700 (     0) [001] ...1  7206.569027: sync_wait: begin name=SurfaceView:6 state=1",
		"TimedEventQueue-2700 (     0) [001] ...1  7206.569038: sync_pt: name=malitl_124_0x40b6406c value=7289",
		"TimedEventQueue-2700 (     0) [001] ...1  7206.569056: sync_pt: name=exynos-gsc.0-src value=25",
		"TimedEventQueue-2700 (     0) [001] ...1  7206.569068: sync_wait: end name=SurfaceView:6 state=1",
		"irq/128-s5p-mfc-62   (     0) [000] d..3  7206.572402: sync_timeline: name=vb2 value=37",
		"irq/128-s5p-mfc-62   (     0) [000] d..3  7206.572475: sync_timeline: name=vb2 value=33",
		"SurfaceFlinger-225   (     0) [001] ...1  7206.584769: sync_timeline: name=malitl_124_0x40b6406c value=7290",
		"kworker/u:5-2269     (     0) [000] ...1  7206.586745: sync_wait: begin name=display state=1",
		"kworker/u:5-2269     (     0) [000] ...1  7206.586750: sync_pt: name=s3c-fb value=7093",
		"kworker/u:5-2269     (     0) [000] ...1  7206.586760: sync_wait: end name=display state=1",
		"s3c-fb-92            (     0) [000] ...1  7206.587193: sync_wait: begin name=vb2 state=0",
		"s3c-fb-92            (     0) [000] ...1  7206.587198: sync_pt: name=exynos-gsc.0-dst value=27",
		"<idle>-0             (     0) [000] d.h4  7206.591133: sync_timeline: name=exynos-gsc.0-src value=27",
		"<idle>-0             (     0) [000] d.h4  7206.591152: sync_timeline: name=exynos-gsc.0-dst value=27",
		"s3c-fb-92            (     0) [000] ...1  7206.591244: sync_wait: end name=vb2 state=1",
	)
	assert.Empty(t, m.ImportErrors())
	assert.Empty(t, m.ImportWarnings())
	assert.Len(t, m.AllThreads(), 4)

	s3c := m.FindAllThreadsNamed("s3c-fb")
	require.Len(t, s3c, 1)
	assert.Equal(t, 92, s3c[0].Tid)
	assert.Len(t, s3c[0].Slices(), 1)

	kworker := m.FindAllThreadsNamed("kworker/u:5")
	require.Len(t, kworker, 1)
	require.Len(t, kworker[0].Slices(), 1)
	assert.Equal(t, `fence_wait("display")`, kworker[0].Slices()[0].Title)
	assert.Equal(t, "1", kworker[0].Slices()[0].Args["Start state"])

	vb2 := m.FindAllThreadsNamed("vb2")
	require.Len(t, vb2, 1)
	require.Len(t, vb2[0].Slices(), 1)
	assert.Equal(t, "37", vb2[0].Slices()[0].Title)
}

func TestSyncWaitWithoutTgid(t *testing.T) {
	m := importLines(t,
		"kworker/u:5-2269     [000] ...1  7206.586745: sync_wait: begin name=display state=1",
	)
	assert.Equal(t, []string{
		"Malformed sync_wait event (kworker/u:5-2269     [000] ...1  7206.586745: sync_wait: begin name=display state=1)",
	}, warningMessages(m))
}
