package latlon

import "math"

// LatLonHaversine is well conditioned for very short distances.
type LatLonHaversine struct{}

func (LatLonHaversine) DistanceTo(from, to LatLon) float64 {
	φ1 := toRadians(from.Lat)
	φ2 := toRadians(to.Lat)
	Δφ := φ2 - φ1

	Δλ := toRadians(to.Lon - from.Lon)

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	δ := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * δ
}

func (LatLonHaversine) BearingTo(from, to LatLon) float64 {
	return LatLonSpherical{}.BearingTo(from, to)
}

func (hav LatLonHaversine) DistanceAndBearingTo(from, to LatLon) (float64, float64) {
	return hav.DistanceTo(from, to), hav.BearingTo(from, to)
}

func (LatLonHaversine) Destination(from LatLon, bearing float64, distance float64) LatLon {
	return LatLonSpherical{}.Destination(from, bearing, distance)
}
