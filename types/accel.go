package types

import "math"

// Vector is one 3-axis acceleration sample in units of g.
type Vector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Magnitude returns the Euclidean norm of v.
func (v Vector) Magnitude() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Alarm arms per-axis threshold triggers on the accelerometer.
// A set *Low flag fires when |axis| drops below Threshold; a set *High flag
// fires when |axis| rises above it.
type Alarm struct {
	XLow  bool `json:"x_low"`
	XHigh bool `json:"x_high"`
	YLow  bool `json:"y_low"`
	YHigh bool `json:"y_high"`
	ZLow  bool `json:"z_low"`
	ZHigh bool `json:"z_high"`

	Threshold float32 `json:"threshold"` // g
	Duration  uint8   `json:"duration"`  // samples the condition must hold
}

// Armed reports whether any axis trigger is set.
func (a Alarm) Armed() bool {
	return a.XLow || a.XHigh || a.YLow || a.YHigh || a.ZLow || a.ZHigh
}

// LowAxes returns the number of low-threshold flags set.
func (a Alarm) LowAxes() int {
	n := 0
	for _, f := range []bool{a.XLow, a.YLow, a.ZLow} {
		if f {
			n++
		}
	}
	return n
}
