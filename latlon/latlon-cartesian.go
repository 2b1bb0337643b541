package latlon

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Plane is a local equirectangular projection around an origin, in
// nautical miles (x east, y north). Only valid over a race course.
type Plane struct {
	Origin LatLon
	cosφ   float64
}

func NewPlane(origin LatLon) Plane {
	return Plane{Origin: origin, cosφ: math.Cos(toRadians(origin.Lat))}
}

func (p Plane) Project(ll LatLon) mgl64.Vec2 {
	x := wrap180(ll.Lon - p.Origin.Lon)
	y := ll.Lat - p.Origin.Lat
	return mgl64.Vec2{x * 60 * p.cosφ, y * 60}
}

// HeadingVector is the unit vector of a compass heading in the plane.
func HeadingVector(heading float64) mgl64.Vec2 {
	θ := toRadians(heading)
	return mgl64.Vec2{math.Sin(θ), math.Cos(θ)}
}

func cross(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// SegmentsCross reports whether segment p1p2 intersects segment q1q2.
func SegmentsCross(p1, p2, q1, q2 mgl64.Vec2) bool {
	r := p2.Sub(p1)
	s := q2.Sub(q1)
	denom := cross(r, s)
	if math.Abs(denom) < 1e-12 {
		return false
	}
	qp := q1.Sub(p1)
	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	return t >= 0 && t <= 1 && u >= 0 && u <= 1
}

// DistanceToSegment is the planar distance from p to segment ab.
func DistanceToSegment(p, a, b mgl64.Vec2) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := p.Sub(a).Dot(ab) / l2
	t = mgl64.Clamp(t, 0, 1)
	return p.Sub(a.Add(ab.Mul(t))).Len()
}
