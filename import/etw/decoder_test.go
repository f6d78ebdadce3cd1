package etw

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIntegers(t *testing.T) {
	d := NewDecoder()

	require.NoError(t, d.Reset("AQI="))
	assert.Equal(t, int16(0x0201), d.DecodeInt16())

	require.NoError(t, d.Reset("AQIDBA=="))
	assert.Equal(t, uint32(0x04030201), d.DecodeUInt32())

	require.NoError(t, d.Reset("AQIDBAUGBwg="))
	assert.Equal(t, "0807060504030201", d.DecodeUInt64ToString())

	require.NoError(t, d.Reset("AQIDBAUGBwg="))
	assert.Equal(t, "0807060504030201", d.DecodeInt64ToString())

	for _, tc := range []struct {
		payload string
		want    int64
		decode  func() int64
	}{
		{"fw==", 127, func() int64 { return int64(d.DecodeInt8()) }},
		{"1g==", -42, func() int64 { return int64(d.DecodeInt8()) }},
		{"gA==", -128, func() int64 { return int64(d.DecodeInt8()) }},
		{"hYI=", -32123, func() int64 { return int64(d.DecodeInt16()) }},
		{"hYL//w==", -32123, func() int64 { return int64(d.DecodeInt32()) }},
		{"Lv1ptv////8=", -1234567890, func() int64 { return int64(d.DecodeInt32()) }},
		{"YQBiYw==", 0x63620061, func() int64 { return int64(d.DecodeInt32()) }},
	} {
		require.NoError(t, d.Reset(tc.payload))
		assert.Equal(t, tc.want, tc.decode(), tc.payload)
	}
}

func TestDecodeUInteger(t *testing.T) {
	d := NewDecoder()

	require.NoError(t, d.Reset("AQIDBAUGBwg="))
	assert.Equal(t, uint64(0x04030201), d.DecodeUInteger(false))
	assert.Equal(t, 4, d.Position())

	require.NoError(t, d.Reset("AQIDBAUGBwg="))
	assert.Equal(t, uint64(0x0807060504030201), d.DecodeUInteger(true))
}

func TestDecodeStrings(t *testing.T) {
	d := NewDecoder()

	require.NoError(t, d.Reset("dGVzdAA="))
	assert.Equal(t, "test", d.DecodeString())

	require.NoError(t, d.Reset("VGhpcyBpcyBhIHRlc3Qu"))
	assert.Equal(t, "This is a test.", d.DecodeString())

	require.NoError(t, d.Reset("dABlAHMAdAAAAA=="))
	assert.Equal(t, "test", d.DecodeW16String())
	assert.Equal(t, 10, d.Position())

	require.NoError(t, d.Reset("dABlAHMAdAAAAA=="))
	assert.Equal(t, "t", d.DecodeFixedW16String(1))
	assert.Equal(t, 2, d.Position())

	require.NoError(t, d.Reset("dABlAHMAdAAAAA=="))
	assert.Equal(t, "test", d.DecodeFixedW16String(5))
	assert.Equal(t, 10, d.Position())
}

func TestDecodeBytes(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.Reset("AAECAwQFBgc="))
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, d.DecodeBytes(8))
}

func TestDecodeSID(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.Reset("AQIDBAECAwQFBAMCAAAAAAEFAAAAAAAFFQAAAAECAwQFBgcICQoLDA0DAAA="))

	sid := d.DecodeSID(true)
	require.NoError(t, d.Err())
	assert.Equal(t, uint64(0x0403020104030201), sid.PSid)
	assert.Equal(t, uint32(0x02030405), sid.Attributes)
	assert.Equal(t, uint8(5), sid.SubAuthorityCount)
	assert.Len(t, sid.Sid, 20)
	assert.Equal(t, d.Len(), d.Position())
}

func TestDecodeSIDRevision(t *testing.T) {
	d := NewDecoder()
	// revision 2
	require.NoError(t, d.Reset("AAAAAAAAAAACBQAAAAAABRUAAAA="))
	d.DecodeSID(false)
	assert.Error(t, d.Err())
}

func TestDecodeSystemTime(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.Reset("3gcDAAAACQABAAIAAwAEAA=="))
	assert.Equal(t, SystemTime{
		Year: 2014, Month: 3, DayOfWeek: 0, Day: 9,
		Hour: 1, Minute: 2, Second: 3, Milliseconds: 4,
	}, d.DecodeSystemTime())
}

func TestDecoderGrows(t *testing.T) {
	d := NewDecoder()
	payload := strings.Repeat("AAAA", 200)
	require.NoError(t, d.Reset(payload))
	assert.Equal(t, 600, d.Len())
	d.Skip(600)
	assert.NoError(t, d.Err())
}

func TestDecoderStickyError(t *testing.T) {
	d := NewDecoder()
	require.NoError(t, d.Reset("AQI="))

	assert.Equal(t, uint32(0), d.DecodeUInt32())
	require.Error(t, d.Err())
	// the failed read does not consume the remaining bytes
	assert.Equal(t, uint8(0), d.DecodeUInt8())
	assert.Equal(t, 0, d.Position())

	require.NoError(t, d.Reset("AQI="))
	assert.NoError(t, d.Err())
	assert.Equal(t, uint8(1), d.DecodeUInt8())
}
