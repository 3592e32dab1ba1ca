package orient

import "mailbox-monitor/types"

// Classifier defaults.
const (
	DefaultMinRatio = 0.8
	DefaultMinG     = 0.5
	DefaultMaxG     = 1.5
)

// Dice tracks the resting face across samples.
//
// A sample decides a face only when its magnitude lies in [MinG, MaxG] (the
// node is not being moved) and one axis carries at least MinRatio of it.
// Anything else leaves the previous face in place, so once a face is known
// the classifier never returns to Unknown.
type Dice struct {
	MinRatio float32
	MinG     float32
	MaxG     float32

	face Face
}

// NewDice returns a classifier starting at initial with default thresholds.
func NewDice(initial Face) *Dice {
	return &Dice{
		MinRatio: DefaultMinRatio,
		MinG:     DefaultMinG,
		MaxG:     DefaultMaxG,
		face:     initial,
	}
}

// Face returns the current face.
func (d *Dice) Face() Face { return d.face }

// Feed classifies v and updates the current face.
func (d *Dice) Feed(v types.Vector) Face {
	d.face = d.classify(v, d.face)
	return d.face
}

// Classify is Feed without state: it returns the face for v given the
// previous face prev, using default thresholds.
func Classify(v types.Vector, prev Face) Face {
	return NewDice(prev).classify(v, prev)
}

func (d *Dice) classify(v types.Vector, prev Face) Face {
	m := v.Magnitude()
	if m < d.MinG || m > d.MaxG {
		return prev
	}
	ax, ay, az := abs32(v.X), abs32(v.Y), abs32(v.Z)
	limit := d.MinRatio * m

	switch {
	case az >= ax && az >= ay:
		if az < limit {
			return prev
		}
		if v.Z > 0 {
			return Face1
		}
		return Face6
	case ax >= ay:
		if ax < limit {
			return prev
		}
		if v.X > 0 {
			return Face2
		}
		return Face5
	default:
		if ay < limit {
			return prev
		}
		if v.Y > 0 {
			return Face3
		}
		return Face4
	}
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
