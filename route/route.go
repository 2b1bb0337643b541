package route

import (
	"fmt"
	"math"

	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/polar"
	"github.com/a-bouts/regatta-server/wind"
)

type Mode uint8

const (
	Direct Mode = iota
	Tack
	Gybe
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Tack:
		return "tack"
	case Gybe:
		return "gybe"
	}
	return fmt.Sprintf("Mode(%d)", m)
}

const minLegLength = 1e-6

// Leg is how to sail from one mark to the next. Tack and Gybe legs go
// through a single synthetic Waypoint before heading for the mark.
type Leg struct {
	Mode     Mode
	Waypoint latlon.LatLon
	Heading  float64
	Alpha    float64
	Length   float64
}

func toRadians(a float64) float64 {
	return a * math.Pi / 180
}

// Plan decides whether the leg from -> to can be sailed directly. When the
// bearing is inside the no-go zone (upwind) or the dead zone (downwind) it
// splits the leg in two at the optimum angles, the first leg length given
// by the sine rule.
func Plan(from, to latlon.LatLon, windDirection float64, table polar.Table) Leg {
	d, θ := latlon.Distance(from, to), latlon.Bearing(from, to)
	direct := Leg{Mode: Direct, Heading: θ, Length: d}
	if d < minLegLength {
		return direct
	}

	mode := Tack
	axis := windDirection
	angle := table.OptimumTWA(true)

	δ := wind.Twa(windDirection, θ)
	if math.Abs(δ) >= angle {
		mode = Gybe
		axis = windDirection + 180
		angle = 180 - table.OptimumTWA(false)
		δ = wind.Twa(axis, θ)
		if math.Abs(δ) >= angle {
			return direct
		}
	}

	s := math.Sin(toRadians(180 - 2*angle))
	if math.Abs(s) < 1e-9 {
		return direct
	}

	α := math.Abs(δ)
	length := d * math.Sin(toRadians(angle+α)) / s
	if length <= 0 || math.IsNaN(length) {
		return direct
	}

	side := 1.0
	if δ < 0 {
		side = -1
	}
	heading := latlon.Wrap360(axis + side*angle)

	return Leg{
		Mode:     mode,
		Waypoint: latlon.Destination(from, length, heading),
		Heading:  heading,
		Alpha:    α,
		Length:   length,
	}
}

// OptimumHeading keeps the boat on its side of the wind and snaps it to the
// best upwind or downwind angle, whichever regime it is sailing in.
func OptimumHeading(heading, windDirection float64, table polar.Table) float64 {
	twa := wind.Twa(heading, windDirection)
	side := 1.0
	if twa < 0 {
		side = -1
	}
	optimum := table.OptimumTWA(true)
	if math.Abs(twa) > 90 {
		optimum = table.OptimumTWA(false)
	}
	return wind.Heading(side*optimum, windDirection)
}
