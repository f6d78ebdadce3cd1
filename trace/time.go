package trace

import (
	"math"
	"strconv"
	"time"
)

// Time in nanoseconds
type Time int64

// MaxTime marks an open-ended timestamp, e.g. an object that was never deleted.
const MaxTime = Time(math.MaxInt64)

func NewTime(t time.Duration) Time { return Time(t.Nanoseconds()) }

// FromMilliseconds converts fractional milliseconds, rounding to the nearest nanosecond.
func FromMilliseconds(ms float64) Time { return Time(math.Round(ms * 1e6)) }

// FromMicroseconds converts fractional microseconds, rounding to the nearest nanosecond.
func FromMicroseconds(us float64) Time { return Time(math.Round(us * 1e3)) }

func (t Time) Std() time.Duration {
	return time.Duration(int64(t) * int64(time.Nanosecond))
}

// Milliseconds returns t as fractional milliseconds.
func (t Time) Milliseconds() float64 { return float64(t) / 1e6 }

// RoundMicros rounds t to whole microseconds, half away from negative infinity.
func (t Time) RoundMicros() int64 {
	q, r := int64(t)/1000, int64(t)%1000
	if r < 0 {
		q, r = q-1, r+1000
	}
	if r >= 500 {
		q++
	}
	return q
}

func (t Time) String() string {
	return strconv.FormatFloat(t.Milliseconds(), 'f', -1, 64) + "ms"
}

func (t Time) Min(b Time) Time {
	if t < b {
		return t
	}
	return b
}

func (t Time) Max(b Time) Time {
	if t > b {
		return t
	}
	return b
}
