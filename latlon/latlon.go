package latlon

import "math"

// R is the mean Earth radius in nautical miles.
const R = 3437.74677

type LatLonInterface interface {
	DistanceTo(from, to LatLon) float64
	BearingTo(from, to LatLon) float64
	DistanceAndBearingTo(from, to LatLon) (float64, float64)
	Destination(from LatLon, bearing float64, distance float64) LatLon
}

type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" yaml:"lon" msgpack:"lon"`
}

func New(lat, lon float64) LatLon {
	return LatLon{Lat: lat, Lon: wrap180(lon)}
}

func (ll *LatLon) Update(lat, lon float64) {
	ll.Lat = lat
	ll.Lon = wrap180(lon)
}

var spherical = LatLonSpherical{}

// Distance in nautical miles along the great circle.
func Distance(from, to LatLon) float64 {
	return spherical.DistanceTo(from, to)
}

// Bearing is the initial bearing in [0,360).
func Bearing(from, to LatLon) float64 {
	return spherical.BearingTo(from, to)
}

func Destination(from LatLon, distance float64, bearing float64) LatLon {
	return spherical.Destination(from, bearing, distance)
}

// Midpoint of two close points, averaged in degrees.
func Midpoint(a, b LatLon) LatLon {
	Δλ := wrap180(b.Lon - a.Lon)
	return New((a.Lat+b.Lat)/2, a.Lon+Δλ/2)
}

func toRadians(a float64) float64 {
	return a * math.Pi / 180.0
}

func toDegrees(a float64) float64 {
	return a * 180.0 / math.Pi
}

func Wrap360(d float64) float64 {
	return wrap360(d)
}

func wrap360(d float64) float64 {
	if 0.0 <= d && d < 360.0 {
		return d
	}
	d = math.Mod(d, 360.0)
	if d < 0 {
		d += 360.0
	}
	if d >= 360.0 {
		d = 0
	}
	return d
}

func wrap180(d float64) float64 {
	if -180.0 <= d && d < 180.0 {
		return d
	}
	return wrap360(d+180.0) - 180.0
}
