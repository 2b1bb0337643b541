package updater

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/polar"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/route"
)

var (
	t0   = time.Unix(1500000000, 0)
	open = latlon.LatLon{Lat: 32.300, Lon: -64.845}
)

func newUpdater(t *testing.T, options Options) *Updater {
	t.Helper()
	def := race.DefaultDefinition()
	c, err := def.Course()
	if err != nil {
		t.Fatal(err)
	}
	starters, err := def.Starters()
	if err != nil {
		t.Fatal(err)
	}
	if options.Seed == 0 {
		options.Seed = 1
	}
	u := New(race.New("test", c, t0), starters, polar.Default(), options)
	u.clock = func() time.Time { return t0 }
	return u
}

func register(t *testing.T, u *Updater, role Role) (uint32, error) {
	t.Helper()
	reply := make(chan RegisterResult, 1)
	if err := u.Submit(Register{Role: role, Reply: reply}); err != nil {
		t.Fatal(err)
	}
	u.Tick()
	res := <-reply
	return res.BoatID, res.Err
}

// started returns a running race with players already registered.
func started(t *testing.T, players int) *Updater {
	t.Helper()
	options := DefaultOptions()
	options.Step = time.Second
	options.Prestart = 0
	u := newUpdater(t, options)
	for i := 0; i < players; i++ {
		if _, err := register(t, u, Player); err != nil {
			t.Fatal(err)
		}
	}
	if u.race.Status != race.Started {
		u.Tick()
	}
	if u.race.Status != race.Started {
		t.Fatalf("Status = %v; want started", u.race.Status)
	}
	return u
}

func TestStatusTransitions(t *testing.T) {
	options := DefaultOptions()
	options.Step = time.Second
	options.Prestart = 3*time.Minute + time.Second
	u := newUpdater(t, options)

	id, err := register(t, u, Player)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Live() {
		t.Fatalf("Live() = false; want true")
	}

	want := map[int]race.RaceStatus{
		1:   race.Prestart,
		2:   race.Warning,
		121: race.Warning,
		122: race.Preparatory,
		180: race.Preparatory,
		181: race.Started,
	}
	for tick := 1; tick <= 181; tick++ {
		if tick > 1 {
			u.Tick()
		}
		if s, ok := want[tick]; ok && u.race.Status != s {
			t.Errorf("tick %d: Status = %v; want %v", tick, u.race.Status, s)
		}
	}

	if b := u.race.Boat(id); b.Status != race.BoatRacing {
		t.Errorf("boat Status = %v; want racing", b.Status)
	}

	var changes []race.RaceStatus
	for len(u.events) > 0 {
		e := <-u.events
		if e.Kind == StatusChanged {
			changes = append(changes, e.Status)
		}
	}
	if len(changes) != 3 || changes[2] != race.Started {
		t.Errorf("status changes = %v; want [warning preparatory started]", changes)
	}
}

func TestNotLiveWithoutParticipants(t *testing.T) {
	options := DefaultOptions()
	options.MinParticipants = 2
	u := newUpdater(t, options)

	if _, err := register(t, u, Player); err != nil {
		t.Fatal(err)
	}
	current := u.race.CurrentTime
	u.Tick()
	if u.Live() {
		t.Errorf("Live() = true; want false")
	}
	if u.race.CurrentTime != current {
		t.Errorf("CurrentTime = %d; want %d", u.race.CurrentTime, current)
	}
}

func TestOutOfSlots(t *testing.T) {
	options := DefaultOptions()
	options.MaxCompetitors = 2
	u := newUpdater(t, options)

	for i := 0; i < 2; i++ {
		if _, err := register(t, u, Player); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := register(t, u, Player); err != ErrOutOfSlots {
		t.Errorf("register() = %v; want %v", err, ErrOutOfSlots)
	}
	if len(u.race.Competitors) != 2 {
		t.Errorf("len(Competitors) = %d; want 2", len(u.race.Competitors))
	}
}

func TestTutorialUnavailable(t *testing.T) {
	u := newUpdater(t, DefaultOptions())
	if _, err := register(t, u, Tutorial); err != ErrUnavailable {
		t.Errorf("register(Tutorial) = %v; want %v", err, ErrUnavailable)
	}
}

func TestStartPositions(t *testing.T) {
	u := newUpdater(t, DefaultOptions())
	a, _ := register(t, u, Player)
	b, _ := register(t, u, Player)

	start := u.race.Course.StartLine()
	s1, s2 := start.Marks[0].Position, start.Marks[1].Position
	first := u.race.Boat(a).Position
	want := latlon.LatLon{Lat: s1.Lat + (s2.Lat-s1.Lat)/7, Lon: s1.Lon + (s2.Lon-s1.Lon)/7}
	if math.Abs(first.Lat-want.Lat) > 1e-9 || math.Abs(first.Lon-want.Lon) > 1e-9 {
		t.Errorf("first boat at %v; want %v", first, want)
	}
	if u.race.Boat(a).Position == u.race.Boat(b).Position {
		t.Errorf("boats share a start position")
	}
	if h, want := u.race.Boat(a).Heading, u.race.Course.HeadingBetweenMarks(0, 1); h != want {
		t.Errorf("Heading = %f; want %f", h, want)
	}
}

func TestLateJoinerIsRacing(t *testing.T) {
	u := started(t, 1)
	id, err := register(t, u, Player)
	if err != nil {
		t.Fatal(err)
	}
	if s := u.race.Boat(id).Status; s != race.BoatRacing {
		t.Errorf("Status = %v; want racing", s)
	}
}

func TestFinishAtFinalMark(t *testing.T) {
	for _, autopilot := range []bool{false, true} {
		u := started(t, 1)
		b := u.race.Competitors[0]
		last := len(u.race.Course.Order) - 1
		b.Autopilot = autopilot
		b.Ghost = autopilot
		b.LastRoundedMarkIndex = last - 1
		b.LastTackMarkPassed = 1
		b.LastGybeMarkPassed = 1
		b.Position = u.race.Course.Order[last].Position()

		u.Tick()

		if b.Status != race.BoatFinished {
			t.Errorf("autopilot %t: Status = %v; want finished", autopilot, b.Status)
		}
		if b.Speed != 0 {
			t.Errorf("autopilot %t: Speed = %f; want 0", autopilot, b.Speed)
		}
		if b.FinishTime != u.race.CurrentTime {
			t.Errorf("autopilot %t: FinishTime = %d; want %d", autopilot, b.FinishTime, u.race.CurrentTime)
		}
		if b.Placing != 1 {
			t.Errorf("autopilot %t: Placing = %d; want 1", autopilot, b.Placing)
		}
	}
}

func TestZeroSpeedDoesNotMove(t *testing.T) {
	u := started(t, 1)
	b := u.race.Competitors[0]
	b.SailsIn = true
	b.Speed = 0
	pos := b.Position

	u.Tick()

	if b.Position != pos {
		t.Errorf("Position = %v; want %v", b.Position, pos)
	}
	if b.Speed != 0 {
		t.Errorf("Speed = %f; want 0", b.Speed)
	}
}

func TestRoundingAlongThePath(t *testing.T) {
	tests := []struct {
		abeam float64
		want  int
	}{
		{0, 1},
		{0.03, 0},
	}
	for _, tt := range tests {
		u := started(t, 1)
		b := u.race.Competitors[0]
		mark := u.race.Course.Order[1].Position()
		b.SetHeading(90)
		b.Position = latlon.Destination(latlon.Destination(mark, tt.abeam, 0), 0.05, 270)
		b.Speed = 360

		u.Tick()

		if latlon.Distance(b.Position, mark) <= u.options.RoundingRadius {
			t.Fatalf("abeam %v: boat stopped within the rounding radius", tt.abeam)
		}
		if b.LastRoundedMarkIndex != tt.want {
			t.Errorf("abeam %v: LastRoundedMarkIndex = %d; want %d", tt.abeam, b.LastRoundedMarkIndex, tt.want)
		}
	}
}

func TestBoatAccelerates(t *testing.T) {
	u := started(t, 1)
	b := u.race.Competitors[0]
	b.SetHeading(u.race.Course.WindDirection() + 90)
	pos := b.Position

	u.Tick()

	if b.Speed != acceleration {
		t.Errorf("Speed = %f; want %f", b.Speed, acceleration)
	}
	if b.Position == pos {
		t.Errorf("boat did not move")
	}
}

func TestActionsKeepHeadingInRange(t *testing.T) {
	u := started(t, 1)
	b := u.race.Competitors[0]
	actions := []BoatAction{VMG, TackGybe, Upwind, Downwind}
	for h := 0.0; h < 360; h += 7.5 {
		for _, a := range actions {
			b.SetHeading(h)
			u.act(u.race, b, a)
			if b.Heading < 0 || b.Heading >= 360 {
				t.Errorf("act(%v) from %f: Heading = %f", a, h, b.Heading)
			}
		}
	}
}

func TestActions(t *testing.T) {
	u := started(t, 1)
	b := u.race.Competitors[0]
	u.race.Course.SetWindDirection(220)

	tests := []struct {
		heading float64
		action  BoatAction
		want    float64
	}{
		{260, TackGybe, 180},
		{180, TackGybe, 260},
		{260, Upwind, 257},
		{260, Downwind, 263},
		{180, Upwind, 183},
		{220, Upwind, 220},
		{40, Downwind, 40},
	}
	for _, tt := range tests {
		b.SetHeading(tt.heading)
		u.act(u.race, b, tt.action)
		if math.Abs(b.Heading-tt.want) > 1e-9 {
			t.Errorf("act(%v) from %f = %f; want %f", tt.action, tt.heading, b.Heading, tt.want)
		}
	}

	u.act(u.race, b, SailsIn)
	if !b.SailsIn {
		t.Errorf("SailsIn = false after sails in")
	}
	u.act(u.race, b, SailsOut)
	if b.SailsIn {
		t.Errorf("SailsIn = true after sails out")
	}
}

func TestCollisionHoldsPosition(t *testing.T) {
	u := started(t, 2)
	a, b := u.race.Competitors[0], u.race.Competitors[1]
	a.Position, b.Position = open, open
	a.Speed, b.Speed = 5, 5

	u.Tick()

	for _, boat := range []*race.Boat{a, b} {
		if boat.Position != open {
			t.Errorf("boat %d moved to %v", boat.ID, boat.Position)
		}
		if math.Abs(boat.Speed-4.2) > 1e-9 {
			t.Errorf("boat %d Speed = %f; want 4.2", boat.ID, boat.Speed)
		}
	}
	if n := len(u.collisions.Collisions()); n != 1 {
		t.Errorf("len(Collisions()) = %d; want 1", n)
	}
}

func TestPanicRecovery(t *testing.T) {
	u := started(t, 2)
	a, b := u.race.Competitors[0], u.race.Competitors[1]
	b.SetHeading(u.race.Course.WindDirection() + 90)
	saved := *a
	u.step = func(r *race.Race, boat *race.Boat, dt float64) {
		if boat == a {
			boat.Speed = 99
			boat.Position.Lat += 1
			panic("boom")
		}
		u.updateBoat(r, boat, dt)
	}

	u.Tick()

	if *a != saved {
		t.Errorf("boat = %+v; want %+v", *a, saved)
	}
	if b.Speed == 0 {
		t.Errorf("other boat was not updated")
	}
	if u.race.Status != race.Started {
		t.Errorf("Status = %v; want started", u.race.Status)
	}
}

func TestDisconnect(t *testing.T) {
	u := started(t, 1)
	b := u.race.Competitors[0]
	b.Speed = 10

	if err := u.Submit(Disconnect{BoatID: b.ID}); err != nil {
		t.Fatal(err)
	}
	u.Tick()
	if b.Status != race.BoatDNF || !b.SailsIn || b.Speed != 0 {
		t.Errorf("boat = %v sails in %t speed %f; want dnf, sails in, 0", b.Status, b.SailsIn, b.Speed)
	}

	if err := u.Submit(Action{BoatID: b.ID, Action: SailsOut}); err != nil {
		t.Fatal(err)
	}
	u.Tick()
	if !b.SailsIn {
		t.Errorf("action applied to a retired boat")
	}
}

func TestSubmitBusy(t *testing.T) {
	options := DefaultOptions()
	options.InboxSize = 1
	u := newUpdater(t, options)

	if err := u.Submit(Action{BoatID: 1, Action: VMG}); err != nil {
		t.Errorf("Submit() = %v; want nil", err)
	}
	if err := u.Submit(Action{BoatID: 1, Action: VMG}); err != ErrBusy {
		t.Errorf("Submit() = %v; want %v", err, ErrBusy)
	}
}

func TestStop(t *testing.T) {
	u := started(t, 1)
	u.Stop()
	u.Stop()

	if !u.Tick() {
		t.Errorf("Tick() = false; want true")
	}
	if u.race.Status != race.Terminated {
		t.Errorf("Status = %v; want terminated", u.race.Status)
	}
	if err := u.Submit(Action{BoatID: 1, Action: VMG}); err != ErrStopped {
		t.Errorf("Submit() = %v; want %v", err, ErrStopped)
	}
}

func TestRunClosesEvents(t *testing.T) {
	options := DefaultOptions()
	options.Step = time.Millisecond
	u := newUpdater(t, options)
	u.Stop()

	if err := u.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	terminated := false
	for e := range u.Events() {
		if e.Kind == RaceTerminated {
			terminated = true
		}
	}
	if !terminated {
		t.Errorf("no race terminated event")
	}
	if _, err := u.Register(context.Background(), Player); err != ErrStopped {
		t.Errorf("Register() = %v; want %v", err, ErrStopped)
	}
}

func TestAIBoat(t *testing.T) {
	options := DefaultOptions()
	options.AI = Medium
	u := newUpdater(t, options)

	if len(u.race.Competitors) != 1 {
		t.Fatalf("len(Competitors) = %d; want 1", len(u.race.Competitors))
	}
	ai := u.race.Competitors[0]
	if !ai.Autopilot || ai.SpeedFactor != 0.9 {
		t.Errorf("AI boat autopilot %t factor %f; want true 0.9", ai.Autopilot, ai.SpeedFactor)
	}
	u.Tick()
	if u.Live() {
		t.Errorf("Live() = true with only an AI boat")
	}
}

func TestAutopilotSailsTheCourse(t *testing.T) {
	options := DefaultOptions()
	options.Step = time.Second
	options.TimeScale = 10
	options.Prestart = 0
	u := newUpdater(t, options)

	id, err := register(t, u, Ghost)
	if err != nil {
		t.Fatal(err)
	}
	b := u.race.Boat(id)

	rounded, apexes := 0, 0
	for i := 0; i < 20000 && b.Status != race.BoatFinished; i++ {
		u.Tick()
		if b.Status == race.BoatRacing {
			next := b.LastRoundedMarkIndex + 1
			c := u.race.Course
			leg := route.Plan(c.Order[next-1].Position(), c.Order[next].Position(), c.WindDirection(), u.table)
			if leg.Mode != route.Tack && b.LastTackMarkPassed != 0 {
				t.Fatalf("tick %d leg %d %v: LastTackMarkPassed = %d; want 0", i, next, leg.Mode, b.LastTackMarkPassed)
			}
			if leg.Mode != route.Gybe && b.LastGybeMarkPassed != 0 {
				t.Fatalf("tick %d leg %d %v: LastGybeMarkPassed = %d; want 0", i, next, leg.Mode, b.LastGybeMarkPassed)
			}
			if b.LastTackMarkPassed > 1 || b.LastGybeMarkPassed > 1 {
				t.Fatalf("tick %d: counters = %d, %d; want 0 or 1", i, b.LastTackMarkPassed, b.LastGybeMarkPassed)
			}
			apexes += b.LastTackMarkPassed + b.LastGybeMarkPassed
		}
		for len(u.events) > 0 {
			if e := <-u.events; e.Kind == BoatRoundedMark {
				rounded++
			}
		}
	}

	if b.Status != race.BoatFinished {
		t.Fatalf("Status = %v at leg %d; want finished", b.Status, b.Leg())
	}
	if want := len(u.race.Course.Order) - 1; rounded != want {
		t.Errorf("rounded %d marks; want %d", rounded, want)
	}
	if b.LastRoundedMarkIndex != len(u.race.Course.Order)-1 {
		t.Errorf("LastRoundedMarkIndex = %d", b.LastRoundedMarkIndex)
	}
	if apexes == 0 {
		t.Errorf("never passed a tack or gybe apex")
	}
	if b.LastTackMarkPassed != 0 || b.LastGybeMarkPassed != 0 {
		t.Errorf("finished with counters %d, %d; want 0", b.LastTackMarkPassed, b.LastGybeMarkPassed)
	}
}
