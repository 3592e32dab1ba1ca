// Package timex converts between wall-clock time and the integer units used
// in payloads.
package timex

import (
	"math"
	"time"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Seconds truncates d to whole seconds, saturating at the uint32 range.
func Seconds(d time.Duration) uint32 {
	s := d / time.Second
	switch {
	case s <= 0:
		return 0
	case s > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(s)
}
