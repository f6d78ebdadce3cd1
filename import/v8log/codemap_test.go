package v8log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMapDynamic(t *testing.T) {
	m := NewCodeMap()
	a := m.NewEntry(0x10, "a", 0)
	b := m.NewEntry(0x10, "b", 0)
	m.AddCode(0x100, a)
	m.AddCode(0x200, b)
	assert.NotEqual(t, a.ID, b.ID)

	assert.Same(t, a, m.FindEntry(0x100))
	assert.Same(t, a, m.FindEntry(0x10f))
	assert.Nil(t, m.FindEntry(0x110))
	assert.Nil(t, m.FindEntry(0xff))
	assert.Same(t, b, m.FindEntry(0x205))

	// moving over b replaces it
	require.True(t, m.MoveCode(0x100, 0x205))
	assert.Same(t, a, m.FindEntry(0x205))
	assert.Nil(t, m.FindEntry(0x200))
	assert.Nil(t, m.FindEntry(0x105))
	assert.False(t, m.MoveCode(0x100, 0x300))

	require.True(t, m.DeleteCode(0x205))
	assert.False(t, m.DeleteCode(0x205))
	assert.Nil(t, m.FindEntry(0x206))
	assert.Empty(t, m.DynamicEntries())
}

func TestCodeMapOverlappingCode(t *testing.T) {
	m := NewCodeMap()
	m.AddCode(0x100, m.NewEntry(0x100, "old", 0))
	m.AddCode(0x180, m.NewEntry(0x10, "new", 0))

	entries := m.DynamicEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Name)
	assert.Nil(t, m.FindEntry(0x100))
}

func TestCodeMapNames(t *testing.T) {
	m := NewCodeMap()
	m.AddCode(0x100, m.NewEntry(0x10, "x", 0))
	m.AddCode(0x200, m.NewEntry(0x10, "x", 0))
	m.AddCode(0x300, m.NewEntry(0x10, "x", 0))
	assert.Equal(t, "x", m.FindEntry(0x100).Name)
	assert.Equal(t, "x {1}", m.FindEntry(0x200).Name)
	assert.Equal(t, "x {2}", m.FindEntry(0x300).Name)
}

func TestCodeMapLibraries(t *testing.T) {
	m := NewCodeMap()
	lib := m.NewEntry(0x2000, "lib", kindExternal)
	m.AddLibrary(0x10000, lib)
	fn := m.NewEntry(0x10, "fn", 0)
	m.AddStaticCode(0x10100, fn)

	assert.Same(t, fn, m.FindEntry(0x10105))
	assert.Same(t, lib, m.FindEntry(0x10200))
	assert.Nil(t, m.FindEntry(0x20000))

	// library pages hide dynamic code
	m.AddCode(0x10300, m.NewEntry(0x10, "jit", 0))
	assert.Same(t, lib, m.FindEntry(0x10305))
}

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		line   string
		fields []string
	}{
		{`tick,0x10,100`, []string{"tick", "0x10", "100"}},
		{`code-creation,"a ""quoted"" name",1`, []string{"code-creation", `a "quoted" name`, "1"}},
		{`code-creation,"a, b",`, []string{"code-creation", "a, b", ""}},
	} {
		fields, err := parseLine(tc.line)
		require.NoError(t, err)
		assert.Equal(t, tc.fields, fields, tc.line)
	}
}

func TestParseInt(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out int64
		ok  bool
	}{
		{"123", 123, true},
		{"0x1f", 31, true},
		{"-5", -5, true},
		{"12abc", 12, true},
		{"", 0, false},
		{"abc", 0, false},
	} {
		n, ok := parseInt(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.out, n, tc.in)
	}
}

func TestProcessStack(t *testing.T) {
	assert.Equal(t, []int64{0x200, 0x110, 0x108},
		processStack(0x100, []string{"0x200", "+10", "overflow", "-8", "", "0x999"}))
	assert.Empty(t, processStack(0x100, nil))
}
