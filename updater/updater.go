package updater

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/collision"
	"github.com/a-bouts/regatta-server/polar"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/wind"
)

const (
	warningSignal     = 3 * time.Minute
	preparatorySignal = time.Minute

	tableRebuild = 0.5
)

// Updater runs the simulation. It is the only writer of its race: other
// goroutines submit commands, which are applied at the start of the next
// tick in the order they were submitted.
type Updater struct {
	race       *race.Race
	polars     *polar.Polars
	collisions *collision.Manager
	options    Options

	table    polar.Table
	tableTws float64
	starters []*race.Boat
	rnd      *rand.Rand
	clock    func() time.Time
	step     func(r *race.Race, b *race.Boat, dt float64)

	inbox    chan any
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	live     atomic.Bool
	ended    atomic.Bool
	dropped  int

	log *log.Entry
}

func New(r *race.Race, starters []*race.Boat, polars *polar.Polars, options Options) *Updater {
	options = options.withDefaults()

	seed := options.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	u := &Updater{
		race:       r,
		polars:     polars,
		collisions: collision.NewManager(options.Collision),
		options:    options,
		starters:   append([]*race.Boat(nil), starters...),
		rnd:        rand.New(rand.NewSource(seed)),
		clock:      time.Now,
		inbox:      make(chan any, options.InboxSize),
		events:     make(chan Event, options.EventsSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log.WithFields(log.Fields{"race": r.ID}),
	}
	u.step = u.updateBoat

	r.Update(func(r *race.Race) {
		if r.Course.WindSpeed <= 0 {
			r.Course.WindSpeed = wind.RandomSpeed(u.rnd)
		}
		u.rebuildTable(r.Course.WindSpeed)

		if options.AI != NoAI && len(u.starters) > 0 {
			b := u.starters[0]
			u.starters = u.starters[1:]
			b.Autopilot = true
			b.SpeedFactor = options.AI.Factor()
			u.prepare(r, b)
			r.AddCompetitor(b)
		}
	})

	return u
}

func (u *Updater) Race() *race.Race {
	return u.race
}

func (u *Updater) Collisions() *collision.Manager {
	return u.collisions
}

// Events delivers discrete race events. It is closed when Run returns.
func (u *Updater) Events() <-chan Event {
	return u.events
}

// Live reports whether enough competitors joined for the clock to run.
func (u *Updater) Live() bool {
	return u.live.Load()
}

func (u *Updater) Done() <-chan struct{} {
	return u.done
}

func (u *Updater) Options() Options {
	return u.options
}

// Submit queues a command without blocking.
func (u *Updater) Submit(cmd any) error {
	if u.ended.Load() {
		return ErrStopped
	}
	select {
	case u.inbox <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

// Register submits a registration and waits for its result.
func (u *Updater) Register(ctx context.Context, role Role) (uint32, error) {
	reply := make(chan RegisterResult, 1)
	if err := u.Submit(Register{Role: role, Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case res := <-reply:
		return res.BoatID, res.Err
	case <-u.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop terminates the race at the next tick.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() {
		close(u.stop)
	})
}

// Run ticks until the race is terminated by Stop or ctx.
func (u *Updater) Run(ctx context.Context) error {
	defer close(u.done)
	defer close(u.events)

	ticker := time.NewTicker(u.options.Step)
	defer ticker.Stop()

	u.log.WithFields(log.Fields{
		"step":      u.options.Step,
		"timeScale": u.options.TimeScale,
		"wind":      u.race.Course.WindSpeed,
	}).Info("Race updater started")

	for {
		select {
		case <-ctx.Done():
			u.Stop()
			u.Tick()
			return ctx.Err()
		case <-ticker.C:
			if u.Tick() {
				return nil
			}
		}
	}
}

// Tick applies queued commands then advances the simulation by one step.
// It returns true once the race is terminated.
func (u *Updater) Tick() bool {
	u.race.Update(func(r *race.Race) {
		if r.Status.Ended() {
			return
		}
		u.drain(r)

		select {
		case <-u.stop:
			u.terminate(r)
			return
		default:
		}

		if !u.live.Load() {
			return
		}

		dt := u.options.Step.Seconds() * u.options.TimeScale
		r.CurrentTime += int64(dt * 1000)
		u.generateWind(r.Course)

		if !r.HasStarted() {
			u.updateStatus(r)
			return
		}

		for _, c := range u.collisions.CheckForCollisions(r) {
			u.collided(r, c)
		}

		for _, b := range r.Competitors {
			if b.Status != race.BoatRacing {
				if b.Status == race.BoatDNF {
					b.Speed = 0
				}
				continue
			}
			u.safeStep(r, b, dt)
		}
		r.Rank()
	})

	var ended bool
	u.race.View(func(r *race.Race) {
		ended = r.Status.Ended()
	})
	if ended {
		u.ended.Store(true)
	}
	return ended
}

func (u *Updater) drain(r *race.Race) {
	for {
		select {
		case cmd := <-u.inbox:
			u.apply(r, cmd)
		default:
			return
		}
	}
}

func (u *Updater) apply(r *race.Race, cmd any) {
	switch c := cmd.(type) {
	case Register:
		res := u.register(r, c.Role)
		if c.Reply != nil {
			select {
			case c.Reply <- res:
			default:
			}
		}
	case Action:
		b := r.Boat(c.BoatID)
		if b == nil || b.Status.Done() || b.Autopilot {
			return
		}
		u.act(r, b, c.Action)
	case Disconnect:
		b := r.Boat(c.BoatID)
		if b == nil || b.Status.Done() {
			return
		}
		b.Status = race.BoatDNF
		b.SailsIn = true
		b.Speed = 0
		u.emit(Event{Kind: BoatRetired, BoatID: b.ID})
		u.log.WithField("boat", b.ID).Info("Boat did not finish")
	default:
		u.log.Warnf("Unknown command %T", cmd)
	}
}

func (u *Updater) register(r *race.Race, role Role) RegisterResult {
	if r.Status.Ended() {
		return RegisterResult{Err: ErrUnavailable}
	}
	if role == Tutorial && !u.options.Tutorial {
		return RegisterResult{Err: ErrUnavailable}
	}
	if len(u.starters) == 0 || len(r.Competitors) >= u.options.MaxCompetitors {
		return RegisterResult{Err: ErrOutOfSlots}
	}

	b := u.starters[0]
	u.starters = u.starters[1:]
	if role == Ghost {
		b.Ghost = true
		b.Autopilot = true
	}
	u.prepare(r, b)
	if r.HasStarted() {
		b.Status = race.BoatRacing
	}
	r.AddCompetitor(b)

	u.emit(Event{Kind: BoatRegistered, BoatID: b.ID})
	u.log.WithFields(log.Fields{"boat": b.ID, "role": role, "competitors": len(r.Competitors)}).Info("Boat registered")

	u.checkLive(r)

	return RegisterResult{BoatID: b.ID}
}

// prepare spreads boats along the start line, pointing at the first mark.
func (u *Updater) prepare(r *race.Race, b *race.Boat) {
	course := r.Course
	n := float64(len(r.Competitors) + 1)
	if start := course.StartLine(); start != nil {
		s1, s2 := start.Marks[0].Position, start.Marks[1].Position
		slots := float64(u.options.MaxCompetitors + 1)
		b.Position.Update(
			s1.Lat+(s2.Lat-s1.Lat)/slots*n,
			s1.Lon+(s2.Lon-s1.Lon)/slots*n)
	} else {
		b.Position = course.Order[0].Position()
	}
	b.SetHeading(course.HeadingBetweenMarks(0, 1))
	b.LastRoundedMarkIndex = 0
	b.LastTackMarkPassed = 0
	b.LastGybeMarkPassed = 0
	b.Speed = 0
	b.Status = race.BoatPreRace
}

func (u *Updater) participants(r *race.Race) int {
	n := 0
	for _, b := range r.Competitors {
		if b.Autopilot && !b.Ghost {
			continue
		}
		n++
	}
	return n
}

func (u *Updater) checkLive(r *race.Race) {
	if u.live.Load() || u.participants(r) < u.options.MinParticipants {
		return
	}
	now := u.clock().UnixMilli()
	r.CurrentTime = now
	if u.options.Tutorial {
		r.StartTime = now
	} else {
		r.StartTime = now + u.options.Prestart.Milliseconds()
	}
	u.live.Store(true)
	u.emit(Event{Kind: RaceLive})
	u.log.WithField("start", time.UnixMilli(r.StartTime)).Info("Race is live")
}

func (u *Updater) updateStatus(r *race.Race) {
	status := r.Status
	before := r.StartTime - r.CurrentTime
	switch {
	case before <= 0:
		status = race.Started
	case before < preparatorySignal.Milliseconds():
		status = race.Preparatory
	case before < warningSignal.Milliseconds():
		status = race.Warning
	}
	if status == r.Status {
		return
	}
	r.Status = status
	if status == race.Started {
		for _, b := range r.Competitors {
			if b.Status == race.BoatPreRace {
				b.Status = race.BoatRacing
			}
		}
	}
	u.emit(Event{Kind: StatusChanged, Status: status})
	u.log.WithField("status", status).Info("Race status changed")
}

func (u *Updater) terminate(r *race.Race) {
	r.Status = race.Terminated
	u.emit(Event{Kind: StatusChanged, Status: race.Terminated})
	u.emit(Event{Kind: RaceTerminated, Status: race.Terminated})
	u.log.Info("Race terminated")
}

func (u *Updater) generateWind(c *race.Course) {
	c.WindSpeed = wind.Perturb(c.WindSpeed, u.rnd)
	if d := c.WindSpeed - u.tableTws; d > tableRebuild || d < -tableRebuild {
		u.rebuildTable(c.WindSpeed)
	}
}

func (u *Updater) rebuildTable(tws float64) {
	u.table = u.polars.Table(tws)
	u.tableTws = tws
}

func (u *Updater) collided(r *race.Race, c *collision.Collision) {
	for _, id := range c.Boats {
		b := r.Boat(id)
		if b == nil || !c.AtFault(id) {
			continue
		}
		b.Damage(u.options.CollisionDamage)
		if len(c.Boats) > 1 {
			b.PenaltiesAwarded++
		}
	}
	u.emit(Event{Kind: CollisionDetected, Collision: c})
	u.log.WithField("incident", c.IncidentID).Debug(c)
}

func (u *Updater) emit(e Event) {
	e.RaceID = u.race.ID
	e.Time = u.race.CurrentTime
	select {
	case u.events <- e:
	default:
		u.dropped++
		if u.dropped%100 == 1 {
			u.log.WithField("dropped", u.dropped).Warn("Event queue full")
		}
	}
}
