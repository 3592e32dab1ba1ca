package orient

import (
	"strings"

	"mailbox-monitor/errcode"
)

// Rotation of the display image.
type Rotation uint8

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the clockwise rotation in degrees.
func (r Rotation) Degrees() int { return int(r%4) * 90 }

// Revision selects the core board revision, which decides how the
// accelerometer is mounted relative to the display.
type Revision uint8

const (
	// RevisionA is the r2 core module.
	RevisionA Revision = iota
	// RevisionB covers the other core revisions.
	RevisionB
)

func (r Revision) String() string {
	if r == RevisionA {
		return "a"
	}
	return "b"
}

// ParseRevision accepts "a"/"b" (case-insensitive) and the core names "r2"/"r1".
func ParseRevision(s string) (Revision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "r2":
		return RevisionA, nil
	case "b", "r1":
		return RevisionB, nil
	}
	return RevisionA, &errcode.E{C: errcode.InvalidParams, Op: "orient.ParseRevision", Msg: s}
}

// Table maps upright faces to rotations; entries for other faces are unused.
type Table [Face6 + 1]Rotation

var (
	tableA = Table{
		Face2: Rotation270,
		Face3: Rotation180,
		Face4: Rotation0,
		Face5: Rotation90,
	}
	tableB = Table{
		Face2: Rotation90,
		Face3: Rotation0,
		Face4: Rotation180,
		Face5: Rotation270,
	}
)

// RotationTable returns the face→rotation table for rev.
func RotationTable(rev Revision) Table {
	if rev == RevisionA {
		return tableA
	}
	return tableB
}

// Rotation returns the rotation for f, or false when f is not upright.
func (t Table) Rotation(f Face) (Rotation, bool) {
	if !f.Upright() {
		return Rotation0, false
	}
	return t[f], true
}

// RotationFor is shorthand for RotationTable(rev).Rotation(f).
func RotationFor(rev Revision, f Face) (Rotation, bool) {
	return RotationTable(rev).Rotation(f)
}
