package wind

import "math/rand"

const (
	MinSpeed  = 6.0
	MaxSpeed  = 24.0
	WalkRange = 0.05
)

// RandomSpeed draws an initial true wind speed in knots.
func RandomSpeed(rnd *rand.Rand) float64 {
	return MinSpeed + rnd.Float64()*(MaxSpeed-MinSpeed)
}

// Perturb moves the wind speed by at most WalkRange, staying within
// [MinSpeed, MaxSpeed].
func Perturb(speed float64, rnd *rand.Rand) float64 {
	s := speed - WalkRange + rnd.Float64()*2*WalkRange
	if s < MinSpeed {
		s = MinSpeed
	}
	if s > MaxSpeed {
		s = MaxSpeed
	}
	return s
}
