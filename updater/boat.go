package updater

import (
	"fmt"
	"math"

	"github.com/getsentry/sentry-go"
	"github.com/go-gl/mathgl/mgl64"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/route"
	"github.com/a-bouts/regatta-server/wind"
)

const (
	acceleration   = 0.1
	collisionBrake = 0.8
	sailsInBrake   = 0.2
	turnStep       = 3.0

	minVMG = 1e-6
)

// safeStep updates one boat. A panic leaves the boat as it was before the
// tick and the race goes on.
func (u *Updater) safeStep(r *race.Race, b *race.Boat, dt float64) {
	saved := *b
	defer func() {
		if err := recover(); err != nil {
			*b = saved
			u.log.WithFields(log.Fields{"boat": b.ID, "panic": err}).Error("Boat update failed")
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("race", fmt.Sprint(r.ID))
				scope.SetTag("boat", fmt.Sprint(b.ID))
			})
			hub.Recover(err)
		}
	}()
	u.step(r, b, dt)
}

func (u *Updater) updateBoat(r *race.Race, b *race.Boat, dt float64) {
	course := r.Course
	windDirection := course.WindDirection()

	if u.collisions.BoatIsInCollision(b.ID) {
		b.Speed = math.Max(b.Speed-collisionBrake, 0)
		u.updateVMG(r, b)
		return
	}

	if b.Autopilot {
		u.steer(r, b)
	}

	b.TargetSpeed = u.targetSpeed(b, wind.Twa(b.Heading, windDirection), course.WindSpeed)
	u.ease(b)

	distance := b.Speed * dt / 3600
	if b.Autopilot {
		u.sail(r, b, distance)
	} else {
		from := b.Position
		b.Position = latlon.Destination(from, distance, b.Heading)
		if u.rounded(course, b.LastRoundedMarkIndex+1, from, b.Position) {
			u.round(r, b, b.LastRoundedMarkIndex+1)
		}
	}

	u.updateVMG(r, b)
}

func (u *Updater) targetSpeed(b *race.Boat, twa, tws float64) float64 {
	speed := u.polars.BoatSpeed(twa, tws) * u.options.SpeedScale * b.SpeedFactor
	if b.BaseSpeed > 0 && speed > b.BaseSpeed {
		speed = b.BaseSpeed
	}
	speed -= b.DamageSpeed
	return math.Max(speed, 0)
}

func (u *Updater) ease(b *race.Boat) {
	switch {
	case b.SailsIn:
		b.Speed -= sailsInBrake
	case b.Speed < b.TargetSpeed:
		b.Speed = math.Min(b.Speed+acceleration, b.TargetSpeed)
	case b.Speed > b.TargetSpeed:
		b.Speed = math.Max(b.Speed-acceleration, b.TargetSpeed)
	}
	if b.Speed < 0 {
		b.Speed = 0
	}
}

// rounded reports whether moving from -> to rounds the mark at index i: the
// move passes within the rounding radius of the mark, or crosses the line of
// a gate.
func (u *Updater) rounded(c *race.Course, i int, from, to latlon.LatLon) bool {
	if i <= 0 || i >= len(c.Order) {
		return false
	}
	cm := c.Order[i]
	plane := latlon.NewPlane(cm.Position())
	a, b := plane.Project(from), plane.Project(to)
	if latlon.DistanceToSegment(mgl64.Vec2{}, a, b) <= u.options.RoundingRadius {
		return true
	}
	if len(cm.Marks) < 2 {
		return false
	}
	return latlon.SegmentsCross(a, b, plane.Project(cm.Marks[0].Position), plane.Project(cm.Marks[1].Position))
}

func (u *Updater) round(r *race.Race, b *race.Boat, i int) {
	b.LastRoundedMarkIndex = i
	b.LastTackMarkPassed = 0
	b.LastGybeMarkPassed = 0
	u.emit(Event{Kind: BoatRoundedMark, BoatID: b.ID, MarkIndex: i})

	if i < len(r.Course.Order)-1 {
		return
	}
	b.Status = race.BoatFinished
	b.Speed = 0
	b.TargetSpeed = 0
	b.FinishTime = r.CurrentTime
	b.TimeAtFinish = r.CurrentTime
	b.TimeAtNextMark = r.CurrentTime
	u.emit(Event{Kind: BoatFinished, BoatID: b.ID})
	u.log.WithFields(log.Fields{"boat": b.ID, "time": b.FinishTime - r.StartTime}).Info("Boat finished")
}

// target is where an autopilot boat is heading on its current leg: the
// synthetic tack or gybe waypoint until its apex is passed, then the mark.
// A counter is 1 once the apex of its leg is passed and 0 whenever the boat
// is not sailing in that mode.
func (u *Updater) target(r *race.Race, b *race.Boat) (to latlon.LatLon, mode route.Mode, apex bool) {
	c := r.Course
	next := b.LastRoundedMarkIndex + 1
	mark := c.Order[next].Position()
	leg := route.Plan(c.Order[b.LastRoundedMarkIndex].Position(), mark, c.WindDirection(), u.table)

	if leg.Mode != route.Tack {
		b.LastTackMarkPassed = 0
	}
	if leg.Mode != route.Gybe {
		b.LastGybeMarkPassed = 0
	}
	switch {
	case leg.Mode == route.Tack && b.LastTackMarkPassed == 0:
		return leg.Waypoint, leg.Mode, true
	case leg.Mode == route.Gybe && b.LastGybeMarkPassed == 0:
		return leg.Waypoint, leg.Mode, true
	}
	return mark, leg.Mode, false
}

func (u *Updater) steer(r *race.Race, b *race.Boat) {
	if b.LastRoundedMarkIndex+1 >= len(r.Course.Order) {
		return
	}
	to, _, _ := u.target(r, b)
	if latlon.Distance(b.Position, to) > 0 {
		b.SetHeading(latlon.Bearing(b.Position, to))
	}
}

// sail consumes the distance covered in this tick along the route, passing
// apexes and rounding marks until it runs out.
func (u *Updater) sail(r *race.Race, b *race.Boat, distance float64) {
	for b.Status == race.BoatRacing && b.LastRoundedMarkIndex+1 < len(r.Course.Order) {
		to, mode, apex := u.target(r, b)
		d := latlon.Distance(b.Position, to)
		if distance < d {
			b.Position = latlon.Destination(b.Position, distance, latlon.Bearing(b.Position, to))
			return
		}
		b.Position = to
		distance -= d
		switch {
		case apex && mode == route.Tack:
			b.LastTackMarkPassed = 1
		case apex && mode == route.Gybe:
			b.LastGybeMarkPassed = 1
		default:
			u.round(r, b, b.LastRoundedMarkIndex+1)
		}
		u.steer(r, b)
	}
}

func (u *Updater) updateVMG(r *race.Race, b *race.Boat) {
	c := r.Course
	next := b.LastRoundedMarkIndex + 1
	if next >= len(c.Order) || b.Status != race.BoatRacing {
		b.VMG = 0
		return
	}
	mark := c.Order[next].Position()
	course := latlon.HeadingVector(latlon.Bearing(b.Position, mark))
	b.VMG = b.Speed * latlon.HeadingVector(b.Heading).Dot(course)
	if b.VMG < minVMG {
		return
	}
	hours := func(nm float64) int64 {
		return int64(nm / b.VMG * 3600 * 1000)
	}
	b.TimeAtNextMark = r.CurrentTime + hours(latlon.Distance(b.Position, mark))
	b.TimeAtFinish = r.CurrentTime + hours(c.RemainingDistance(b.Position, b.LastRoundedMarkIndex))
}

func (u *Updater) act(r *race.Race, b *race.Boat, a BoatAction) {
	windDirection := r.Course.WindDirection()
	twa := wind.Twa(b.Heading, windDirection)
	side := 1.0
	if twa < 0 {
		side = -1
	}

	switch a {
	case SailsIn:
		b.SailsIn = true
	case SailsOut:
		b.SailsIn = false
	case VMG:
		b.SetHeading(route.OptimumHeading(b.Heading, windDirection, u.table))
	case TackGybe:
		b.SetHeading(wind.Heading(-twa, windDirection))
	case Upwind:
		b.SetHeading(wind.Heading(side*mgl64.Clamp(math.Abs(twa)-turnStep, 0, 180), windDirection))
	case Downwind:
		b.SetHeading(wind.Heading(side*mgl64.Clamp(math.Abs(twa)+turnStep, 0, 180), windDirection))
	default:
		u.log.WithField("boat", b.ID).Warnf("Unknown action %d", a)
	}
}
