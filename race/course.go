package race

import (
	"errors"
	"fmt"
	"math"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/a-bouts/regatta-server/latlon"
)

var ErrInvalidCourse = errors.New("invalid course")

type Course struct {
	Name      string
	marks     *orderedmap.OrderedMap[string, *CompoundMark]
	Order     []*CompoundMark
	Boundary  []latlon.LatLon
	WindSpeed float64

	windDirection float64
	start         *CompoundMark
	finish        *CompoundMark
}

func NewCourse(name string) *Course {
	return &Course{
		Name:  name,
		marks: orderedmap.NewOrderedMap[string, *CompoundMark](),
	}
}

// AddMark registers a compound mark. Names are unique and a course has at
// most one start line and one finish line.
func (c *Course) AddMark(cm *CompoundMark) error {
	if err := cm.Validate(); err != nil {
		return err
	}
	if _, ok := c.marks.Get(cm.Name); ok {
		return fmt.Errorf("%w: duplicate mark %q", ErrInvalidCourse, cm.Name)
	}
	switch cm.Kind {
	case StartLine:
		if c.start != nil {
			return fmt.Errorf("%w: second start line %q", ErrInvalidCourse, cm.Name)
		}
		c.start = cm
	case FinishLine:
		if c.finish != nil {
			return fmt.Errorf("%w: second finish line %q", ErrInvalidCourse, cm.Name)
		}
		c.finish = cm
	}
	c.marks.Set(cm.Name, cm)
	return nil
}

// AddToOrder appends a registered mark to the course order.
func (c *Course) AddToOrder(name string) error {
	cm, ok := c.marks.Get(name)
	if !ok {
		return fmt.Errorf("%w: unknown mark %q in course order", ErrInvalidCourse, name)
	}
	c.Order = append(c.Order, cm)
	return nil
}

func (c *Course) Mark(name string) (*CompoundMark, bool) {
	return c.marks.Get(name)
}

// Marks lists the compound marks in definition order.
func (c *Course) Marks() []*CompoundMark {
	marks := make([]*CompoundMark, 0, c.marks.Len())
	for el := c.marks.Front(); el != nil; el = el.Next() {
		marks = append(marks, el.Value)
	}
	return marks
}

func (c *Course) StartLine() *CompoundMark {
	return c.start
}

func (c *Course) FinishLine() *CompoundMark {
	return c.finish
}

func (c *Course) Validate() error {
	if len(c.Order) < 2 {
		return fmt.Errorf("%w: course order needs at least 2 marks", ErrInvalidCourse)
	}
	if len(c.Boundary) > 0 && len(c.Boundary) < 3 {
		return fmt.Errorf("%w: boundary needs at least 3 points", ErrInvalidCourse)
	}
	if c.start != nil && c.Order[0] != c.start {
		return fmt.Errorf("%w: start line %q is not first in course order", ErrInvalidCourse, c.start.Name)
	}
	if c.finish != nil && c.Order[len(c.Order)-1] != c.finish {
		return fmt.Errorf("%w: finish line %q is not last in course order", ErrInvalidCourse, c.finish.Name)
	}
	return nil
}

func (c *Course) WindDirection() float64 {
	return c.windDirection
}

// SetWindDirection stores the direction the wind blows from, in [0,360).
func (c *Course) SetWindDirection(d float64) {
	c.windDirection = latlon.Wrap360(d)
}

// WindDirectionFromCourse assumes a windward first leg: the wind blows from
// the first mark towards the start.
func (c *Course) WindDirectionFromCourse() float64 {
	if len(c.Order) < 2 {
		return 0
	}
	return c.HeadingBetweenMarks(0, 1)
}

func (c *Course) DistanceBetweenMarks(i, j int) float64 {
	if i < 0 || j < 0 || i >= len(c.Order) || j >= len(c.Order) {
		return 0
	}
	return latlon.Distance(c.Order[i].Position(), c.Order[j].Position())
}

func (c *Course) HeadingBetweenMarks(i, j int) float64 {
	if i < 0 || j < 0 || i >= len(c.Order) || j >= len(c.Order) {
		return 0
	}
	return latlon.Bearing(c.Order[i].Position(), c.Order[j].Position())
}

// RemainingDistance is the sailing distance from a position to the finish
// through every mark after the rounding index.
func (c *Course) RemainingDistance(from latlon.LatLon, roundedIndex int) float64 {
	if roundedIndex+1 >= len(c.Order) {
		return 0
	}
	d := latlon.Distance(from, c.Order[roundedIndex+1].Position())
	for i := roundedIndex + 1; i < len(c.Order)-1; i++ {
		d += c.DistanceBetweenMarks(i, i+1)
	}
	return d
}

// ViewState is the display area of a course. Renderers receive it instead
// of sharing global bounds.
type ViewState struct {
	MinLat float64 `json:"minLat" msgpack:"minLat"`
	MinLon float64 `json:"minLon" msgpack:"minLon"`
	MaxLat float64 `json:"maxLat" msgpack:"maxLat"`
	MaxLon float64 `json:"maxLon" msgpack:"maxLon"`
}

const viewPadding = 0.004

func (c *Course) View() ViewState {
	v := ViewState{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	add := func(p latlon.LatLon) {
		v.MinLat = math.Min(v.MinLat, p.Lat)
		v.MinLon = math.Min(v.MinLon, p.Lon)
		v.MaxLat = math.Max(v.MaxLat, p.Lat)
		v.MaxLon = math.Max(v.MaxLon, p.Lon)
	}
	for _, cm := range c.Marks() {
		for _, m := range cm.Marks {
			add(m.Position)
		}
	}
	for _, p := range c.Boundary {
		add(p)
	}
	if math.IsInf(v.MinLat, 1) {
		return ViewState{}
	}
	v.MinLat -= viewPadding
	v.MinLon -= viewPadding
	v.MaxLat += viewPadding
	v.MaxLon += viewPadding
	return v
}
