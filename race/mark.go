package race

import (
	"fmt"

	"github.com/a-bouts/regatta-server/latlon"
)

// MarkKind tags the variant of a CompoundMark.
type MarkKind uint8

const (
	Point MarkKind = iota + 1
	Gate
	StartLine
	FinishLine
)

func (k MarkKind) String() string {
	switch k {
	case Point:
		return "point"
	case Gate:
		return "gate"
	case StartLine:
		return "start"
	case FinishLine:
		return "finish"
	}
	return fmt.Sprintf("MarkKind(%d)", k)
}

// Marks returns how many marks a compound mark of this kind carries.
func (k MarkKind) Marks() int {
	switch k {
	case Point:
		return 1
	case Gate, StartLine, FinishLine:
		return 2
	}
	return 0
}

func (k MarkKind) IsLine() bool {
	return k == StartLine || k == FinishLine
}

type Mark struct {
	ID       int           `json:"id" msgpack:"id"`
	Name     string        `json:"name" msgpack:"name"`
	Position latlon.LatLon `json:"position" msgpack:"position"`
}

// CompoundMark is a course waypoint made of one mark (Point) or two
// (Gate, StartLine, FinishLine).
type CompoundMark struct {
	ID    int      `json:"id" msgpack:"id"`
	Name  string   `json:"name" msgpack:"name"`
	Kind  MarkKind `json:"kind" msgpack:"kind"`
	Marks []Mark   `json:"marks" msgpack:"marks"`
}

func NewPoint(id int, name string, m Mark) *CompoundMark {
	return &CompoundMark{ID: id, Name: name, Kind: Point, Marks: []Mark{m}}
}

func NewPair(id int, name string, kind MarkKind, m1, m2 Mark) *CompoundMark {
	return &CompoundMark{ID: id, Name: name, Kind: kind, Marks: []Mark{m1, m2}}
}

func (cm *CompoundMark) Validate() error {
	want := cm.Kind.Marks()
	if want == 0 {
		return fmt.Errorf("%w: mark %q has unknown kind %d", ErrInvalidCourse, cm.Name, cm.Kind)
	}
	if len(cm.Marks) != want {
		return fmt.Errorf("%w: %s %q has %d marks, want %d", ErrInvalidCourse, cm.Kind, cm.Name, len(cm.Marks), want)
	}
	return nil
}

// Position is the single mark, or the midpoint of a pair.
func (cm *CompoundMark) Position() latlon.LatLon {
	if len(cm.Marks) == 1 {
		return cm.Marks[0].Position
	}
	return latlon.Midpoint(cm.Marks[0].Position, cm.Marks[1].Position)
}
