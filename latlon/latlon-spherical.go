package latlon

import "math"

// LatLonSpherical uses the spherical law of cosines.
type LatLonSpherical struct{}

func (LatLonSpherical) DistanceTo(from, to LatLon) float64 {
	if from == to {
		return 0
	}
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)
	Δλ := toRadians(to.Lon - from.Lon)

	c := math.Sin(φ1)*math.Sin(φ2) + math.Cos(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	δ := math.Acos(c)

	return δ * R
}

func (LatLonSpherical) BearingTo(from, to LatLon) float64 {
	if from == to {
		return 0
	}
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)
	Δλ := toRadians(to.Lon - from.Lon)

	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	θ := math.Atan2(y, x)

	return wrap360(toDegrees(θ))
}

func (s LatLonSpherical) DistanceAndBearingTo(from, to LatLon) (float64, float64) {
	return s.DistanceTo(from, to), s.BearingTo(from, to)
}

func (LatLonSpherical) Destination(from LatLon, bearing float64, distance float64) LatLon {
	if distance == 0 {
		return from
	}
	φ1 := toRadians(from.Lat)
	λ1 := toRadians(from.Lon)
	θ := toRadians(bearing)

	δ := distance / R

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))

	return New(toDegrees(φ2), toDegrees(λ2))
}
