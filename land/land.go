package land

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/a-bouts/regatta-server/latlon"
)

var ErrBoundary = errors.New("boundary needs at least 3 points")

// Land is everything outside the course boundary.
type Land struct {
	boundary []latlon.LatLon
	plane    latlon.Plane
	polygon  []mgl64.Vec2
}

// InitLand builds the land mask from a closed boundary polygon. An empty
// boundary means open water everywhere.
func InitLand(boundary []latlon.LatLon) (*Land, error) {
	if len(boundary) == 0 {
		return &Land{}, nil
	}
	if len(boundary) < 3 {
		return nil, ErrBoundary
	}

	l := &Land{
		boundary: boundary,
		plane:    latlon.NewPlane(boundary[0]),
		polygon:  make([]mgl64.Vec2, len(boundary)),
	}
	for i, p := range boundary {
		l.polygon[i] = l.plane.Project(p)
	}
	return l, nil
}

func (l *Land) Boundary() []latlon.LatLon {
	return l.boundary
}

// IsLand check if location is outside the boundary
func (l *Land) IsLand(lat float64, lon float64) bool {
	if len(l.polygon) == 0 {
		return false
	}
	return !l.contains(l.plane.Project(latlon.LatLon{Lat: lat, Lon: lon}))
}

func (l *Land) contains(p mgl64.Vec2) bool {
	inside := false
	n := len(l.polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := l.polygon[i], l.polygon[j]
		if (a.Y() > p.Y()) != (b.Y() > p.Y()) {
			x := (b.X()-a.X())*(p.Y()-a.Y())/(b.Y()-a.Y()) + a.X()
			if p.X() < x {
				inside = !inside
			}
		}
	}
	return inside
}
