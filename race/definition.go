package race

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/a-bouts/regatta-server/latlon"
)

//go:embed default.yaml
var defaultDefinition []byte

type Definition struct {
	Name string `yaml:"name"`
	Wind struct {
		Speed     float64  `yaml:"speed"`
		Direction *float64 `yaml:"direction"`
	} `yaml:"wind"`
	Boundary []latlon.LatLon  `yaml:"boundary"`
	Marks    []MarkDefinition `yaml:"marks"`
	Order    []string         `yaml:"order"`
	Boats    []BoatDefinition `yaml:"boats"`
}

type MarkDefinition struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Marks []struct {
		ID   int     `yaml:"id"`
		Name string  `yaml:"name"`
		Lat  float64 `yaml:"lat"`
		Lon  float64 `yaml:"lon"`
	} `yaml:"marks"`
}

type BoatDefinition struct {
	ID       uint32  `yaml:"id"`
	Name     string  `yaml:"name"`
	Nickname string  `yaml:"nickname"`
	Speed    float64 `yaml:"speed"`
}

var kinds = map[string]MarkKind{
	"point":  Point,
	"gate":   Gate,
	"start":  StartLine,
	"finish": FinishLine,
}

// LoadDefinition decodes a YAML race definition.
func LoadDefinition(r io.Reader) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	return &def, nil
}

// DefaultDefinition is the AC35 Great Sound course with six boats.
func DefaultDefinition() *Definition {
	def, err := LoadDefinition(bytes.NewReader(defaultDefinition))
	if err != nil {
		panic(err)
	}
	return def
}

// Course builds and validates the course. A zero wind speed is left for
// the caller to pick; a missing direction is derived from the first leg.
func (def *Definition) Course() (*Course, error) {
	c := NewCourse(def.Name)
	for _, md := range def.Marks {
		kind, ok := kinds[md.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: mark %q has unknown kind %q", ErrInvalidCourse, md.Name, md.Kind)
		}
		cm := &CompoundMark{ID: md.ID, Name: md.Name, Kind: kind}
		for _, m := range md.Marks {
			cm.Marks = append(cm.Marks, Mark{ID: m.ID, Name: m.Name, Position: latlon.New(m.Lat, m.Lon)})
		}
		if err := c.AddMark(cm); err != nil {
			return nil, err
		}
	}
	for _, name := range def.Order {
		if err := c.AddToOrder(name); err != nil {
			return nil, err
		}
	}
	c.Boundary = def.Boundary
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.WindSpeed = def.Wind.Speed
	if def.Wind.Direction != nil {
		c.SetWindDirection(*def.Wind.Direction)
	} else {
		c.SetWindDirection(c.WindDirectionFromCourse())
	}
	return c, nil
}

// Starters lists the boats available to join, in definition order.
func (def *Definition) Starters() ([]*Boat, error) {
	seen := map[uint32]bool{}
	boats := make([]*Boat, 0, len(def.Boats))
	for _, bd := range def.Boats {
		if bd.ID == 0 || seen[bd.ID] {
			return nil, fmt.Errorf("%w: boat %q has a missing or duplicate id %d", ErrInvalidCourse, bd.Name, bd.ID)
		}
		seen[bd.ID] = true
		boats = append(boats, NewBoat(bd.ID, bd.Name, bd.Nickname, bd.Speed))
	}
	if len(boats) == 0 {
		return nil, fmt.Errorf("%w: no boats", ErrInvalidCourse)
	}
	return boats, nil
}
