// Package clock owns the session's logical clock.
//
// The driver is the only writer: Tick before every outgoing request and
// Observe for every clock value a reply carries. Readers (metrics, the admin
// status route) may call Value concurrently.
package clock

import (
	"math"
	"sync/atomic"
)

// Tracker is a monotonically non-decreasing logical clock.
type Tracker struct {
	value atomic.Int64
}

// New returns a tracker starting at start (negative values start at 0).
func New(start int64) *Tracker {
	t := &Tracker{}
	if start > 0 {
		t.value.Store(start)
	}
	return t
}

// Tick increments the clock and returns the new value.
func (t *Tracker) Tick() int64 {
	return t.value.Add(1)
}

// Observe merges a remote clock value: local = max(local, remote).
func (t *Tracker) Observe(remote int64) {
	if remote < 0 {
		return
	}
	for {
		cur := t.value.Load()
		if remote <= cur {
			return
		}
		if t.value.CompareAndSwap(cur, remote) {
			return
		}
	}
}

// ObserveValue merges a decoded wire value when it is a number. Strings,
// nil, NaN, infinities and out-of-range values are ignored.
func (t *Tracker) ObserveValue(v any) {
	if n, ok := AsInt(v); ok {
		t.Observe(n)
	}
}

// Value returns the current clock.
func (t *Tracker) Value() int64 {
	return t.value.Load()
}

// AsInt converts a decoded msgpack/JSON number into an int64. Fractional
// floats are truncated.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
