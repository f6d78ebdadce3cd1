package etw

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

const initialBufferSize = 256

// Decoder reads the little endian fields of an event payload. The first
// read past the end of the payload sets a sticky error, subsequent reads
// return zero values.
type Decoder struct {
	storage []byte
	buf     []byte
	pos     int
	err     error
}

func NewDecoder() *Decoder {
	return &Decoder{storage: make([]byte, initialBufferSize)}
}

// Reset decodes the base64 payload and rewinds the decoder. The buffer
// grows when the payload does not fit.
func (d *Decoder) Reset(payload string) error {
	payload = strings.TrimRight(payload, "=")
	size := base64.RawStdEncoding.DecodedLen(len(payload))
	if size > len(d.storage) {
		d.storage = make([]byte, size)
	}
	n, err := base64.RawStdEncoding.Decode(d.storage, []byte(payload))
	d.buf = d.storage[:n]
	d.pos = 0
	d.err = nil
	if err != nil {
		d.err = Error.Errorf("invalid payload: %w", err)
	}
	return d.err
}

// Err returns the first error encountered since the last Reset.
func (d *Decoder) Err() error { return d.err }

// Position returns the offset of the next read.
func (d *Decoder) Position() int { return d.pos }

// Len returns the size of the payload.
func (d *Decoder) Len() int { return len(d.buf) }

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = Error.Errorf("read of %d bytes at offset %d exceeds payload of %d bytes", n, d.pos, len(d.buf))
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) Skip(n int) { d.next(n) }

func (d *Decoder) DecodeUInt8() uint8 {
	if b := d.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) DecodeUInt16() uint16 {
	if b := d.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *Decoder) DecodeUInt32() uint32 {
	if b := d.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *Decoder) DecodeUInt64() uint64 {
	if b := d.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *Decoder) DecodeInt8() int8   { return int8(d.DecodeUInt8()) }
func (d *Decoder) DecodeInt16() int16 { return int16(d.DecodeUInt16()) }
func (d *Decoder) DecodeInt32() int32 { return int32(d.DecodeUInt32()) }

// DecodeUInt64ToString reads a 64 bit value and formats it as 16 hex
// digits, high word first.
func (d *Decoder) DecodeUInt64ToString() string {
	low := d.DecodeUInt32()
	high := d.DecodeUInt32()
	return fmt.Sprintf("%08x%08x", high, low)
}

// DecodeInt64ToString formats like DecodeUInt64ToString, the sign is not
// interpreted.
func (d *Decoder) DecodeInt64ToString() string { return d.DecodeUInt64ToString() }

// DecodeUInteger reads a pointer sized value.
func (d *Decoder) DecodeUInteger(is64 bool) uint64 {
	if is64 {
		return d.DecodeUInt64()
	}
	return uint64(d.DecodeUInt32())
}

// DecodeString reads a NUL terminated 8 bit string. A missing terminator
// ends the string at the end of the payload.
func (d *Decoder) DecodeString() string {
	if d.err != nil {
		return ""
	}
	var s strings.Builder
	for d.pos < len(d.buf) {
		c := d.buf[d.pos]
		d.pos++
		if c == 0 {
			break
		}
		s.WriteByte(c)
	}
	return s.String()
}

// DecodeW16String reads a NUL terminated UTF-16 string.
func (d *Decoder) DecodeW16String() string {
	if d.err != nil {
		return ""
	}
	var units []uint16
	for d.pos+2 <= len(d.buf) {
		c := binary.LittleEndian.Uint16(d.buf[d.pos:])
		d.pos += 2
		if c == 0 {
			break
		}
		units = append(units, c)
	}
	return string(utf16.Decode(units))
}

// DecodeFixedW16String reads a UTF-16 string stored in a field of length
// characters. The decoder always advances past the whole field.
func (d *Decoder) DecodeFixedW16String(length int) string {
	b := d.next(2 * length)
	if b == nil {
		return ""
	}
	var units []uint16
	for i := 0; i+2 <= len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		units = append(units, c)
	}
	return string(utf16.Decode(units))
}

// DecodeBytes returns a copy of the next n bytes.
func (d *Decoder) DecodeBytes(n int) []byte {
	b := d.next(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// SID is a Windows security identifier with its TOKEN_USER header.
type SID struct {
	PSid              uint64
	Attributes        uint32
	Revision          uint8
	SubAuthorityCount uint8
	Sid               []byte
}

// DecodeSID reads a TOKEN_USER structure followed by the SID it points to.
func (d *Decoder) DecodeSID(is64 bool) SID {
	var sid SID
	sid.PSid = d.DecodeUInteger(is64)
	sid.Attributes = d.DecodeUInt32()
	if is64 {
		d.Skip(4)
	}

	sid.Revision = d.DecodeUInt8()
	sid.SubAuthorityCount = d.DecodeUInt8()
	d.DecodeUInt16()
	d.DecodeUInt32()
	if d.err != nil {
		return sid
	}
	if sid.Revision != 1 {
		d.err = Error.Errorf("invalid SID revision %d", sid.Revision)
		return sid
	}
	sid.Sid = d.DecodeBytes(4 * int(sid.SubAuthorityCount))
	return sid
}

// SystemTime mirrors the Windows SYSTEMTIME structure.
type SystemTime struct {
	Year, Month, DayOfWeek, Day        int16
	Hour, Minute, Second, Milliseconds int16
}

func (d *Decoder) DecodeSystemTime() SystemTime {
	return SystemTime{
		Year:         d.DecodeInt16(),
		Month:        d.DecodeInt16(),
		DayOfWeek:    d.DecodeInt16(),
		Day:          d.DecodeInt16(),
		Hour:         d.DecodeInt16(),
		Minute:       d.DecodeInt16(),
		Second:       d.DecodeInt16(),
		Milliseconds: d.DecodeInt16(),
	}
}

// TimeZoneInformation mirrors the Windows TIME_ZONE_INFORMATION structure.
type TimeZoneInformation struct {
	Bias         uint32
	StandardName string
	StandardDate SystemTime
	StandardBias uint32
	DaylightName string
	DaylightDate SystemTime
	DaylightBias uint32
}

func (d *Decoder) DecodeTimeZoneInformation() TimeZoneInformation {
	return TimeZoneInformation{
		Bias:         d.DecodeUInt32(),
		StandardName: d.DecodeFixedW16String(32),
		StandardDate: d.DecodeSystemTime(),
		StandardBias: d.DecodeUInt32(),
		DaylightName: d.DecodeFixedW16String(32),
		DaylightDate: d.DecodeSystemTime(),
		DaylightBias: d.DecodeUInt32(),
	}
}
