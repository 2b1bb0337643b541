package collision

import (
	"math"

	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/wind"
)

const ambiguous = 1e-6

func onStarboard(b race.Boat, windDirection float64) bool {
	return wind.Twa(b.Heading, windDirection) >= 0
}

// RightOfWay puts the port tack boat at fault when tacks differ and the
// windward boat when they are on the same tack. Boats level with each
// other are both at fault.
func RightOfWay(a, b race.Boat, windDirection float64) (bool, bool) {
	sa, sb := onStarboard(a, windDirection), onStarboard(b, windDirection)
	if sa != sb {
		return !sa, !sb
	}

	plane := latlon.NewPlane(a.Position)
	upwind := latlon.HeadingVector(windDirection)
	d := plane.Project(b.Position).Dot(upwind)
	if math.Abs(d) < ambiguous {
		return true, true
	}
	// b is further upwind when d > 0
	return d < 0, d > 0
}

// BothAtFault is a fault rule that never picks a side.
func BothAtFault(a, b race.Boat, windDirection float64) (bool, bool) {
	return true, true
}
