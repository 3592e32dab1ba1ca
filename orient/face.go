// Package orient classifies the node's resting orientation from
// accelerometer samples and maps it to accelerometer alarms and display
// rotations.
//
// Faces are numbered like a die: opposite faces sum to seven. Face1 and Face6
// lie along the z axis (flat), Face2/Face5 along x and Face3/Face4 along y.
package orient

import (
	"strconv"

	"mailbox-monitor/errcode"
	"mailbox-monitor/types"
)

// Face is the side of the enclosure currently facing down.
type Face uint8

const (
	Unknown Face = iota
	Face1
	Face2
	Face3
	Face4
	Face5
	Face6
)

func (f Face) String() string {
	if f == Unknown || f > Face6 {
		return "unknown"
	}
	return "face" + strconv.Itoa(int(f))
}

// Known reports whether f is one of Face1..Face6.
func (f Face) Known() bool { return f >= Face1 && f <= Face6 }

// Upright reports whether f is one of the faces that set a display
// rotation (Face2..Face5). Flat faces keep the current rotation.
func (f Face) Upright() bool { return f > Face1 && f < Face6 }

// AlarmFromFace returns the alarm that fires when the node leaves face f:
// the low threshold of the axis f rests on is armed, the others are cleared.
// Unknown (or any out-of-range value) yields errcode.InvalidParams and a zero
// alarm that must not be applied.
func AlarmFromFace(f Face, threshold float32) (types.Alarm, error) {
	a := types.Alarm{Threshold: threshold}
	switch f {
	case Face2, Face5:
		a.XLow = true
	case Face3, Face4:
		a.YLow = true
	case Face1, Face6:
		a.ZLow = true
	default:
		return types.Alarm{}, &errcode.E{C: errcode.InvalidParams, Op: "orient.AlarmFromFace", Msg: f.String()}
	}
	return a, nil
}
