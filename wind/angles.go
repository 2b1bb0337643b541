package wind

import (
	"math"

	"github.com/a-bouts/regatta-server/latlon"
)

// Twa is the signed true wind angle in (-180,180] of a boat on heading.
// Positive values are on starboard tack.
func Twa(heading, windDirection float64) float64 {
	twa := math.Mod(windDirection-heading, 360)
	switch {
	case twa <= -180:
		return twa + 360
	case twa > 180:
		return twa - 360
	}
	return twa
}

// Heading is the course sailed at twa, in [0,360).
func Heading(twa, windDirection float64) float64 {
	return latlon.Wrap360(windDirection - twa)
}
