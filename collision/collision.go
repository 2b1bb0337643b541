package collision

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/a-bouts/regatta-server/land"
	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/race"
)

// FaultRule decides which of two colliding boats is at fault.
type FaultRule func(a, b race.Boat, windDirection float64) (aAtFault, bAtFault bool)

type Config struct {
	// BoatDistance and MarkDistance are contact distances in nautical miles.
	BoatDistance float64
	MarkDistance float64
	// Cooldown is simulated time a boat stays in collision after an
	// incident. Contact held longer than that does not raise a new one.
	Cooldown time.Duration
	Fault    FaultRule
}

func DefaultConfig() Config {
	return Config{
		BoatDistance: 0.003,
		MarkDistance: 0.0015,
		Cooldown:     500 * time.Millisecond,
		Fault:        RightOfWay,
	}
}

type Collision struct {
	IncidentID  uint32
	Boats       []uint32
	Fault       map[uint32]bool
	OutOfBounds bool
	WithMark    bool
	Time        int64
}

func (c *Collision) AtFault(id uint32) bool {
	return c.Fault[id]
}

func (c *Collision) String() string {
	return fmt.Sprintf("incident %d boats %v fault %v bounds %t mark %t", c.IncidentID, c.Boats, c.Fault, c.OutOfBounds, c.WithMark)
}

type Manager struct {
	mu     sync.Mutex
	config Config
	haver  latlon.LatLonHaversine

	nextID      uint32
	now         int64
	contacts    *orderedmap.OrderedMap[string, int64]
	inCollision map[uint32]int64
	pending     []*Collision
	reported    []*Collision

	land    *land.Land
	landFor *race.Course
}

func NewManager(config Config) *Manager {
	if config.Fault == nil {
		config.Fault = RightOfWay
	}
	return &Manager{
		config:      config,
		nextID:      1,
		contacts:    orderedmap.NewOrderedMap[string, int64](),
		inCollision: map[uint32]int64{},
	}
}

func (m *Manager) cooldown() int64 {
	return m.config.Cooldown.Milliseconds()
}

// CheckForCollisions looks for boat to boat, boat to mark and boat to
// boundary contacts and returns the new incidents. It must run with the
// race locked by its writer.
func (m *Manager) CheckForCollisions(r *race.Race) []*Collision {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = r.CurrentTime
	first := len(m.pending)

	boats := make([]*race.Boat, 0, len(r.Competitors))
	for _, b := range r.Competitors {
		if b.Status == race.BoatRacing && !b.Ghost {
			boats = append(boats, b)
		}
	}

	windDirection := 0.0
	if r.Course != nil {
		windDirection = r.Course.WindDirection()
	}

	for i := 0; i < len(boats); i++ {
		for j := i + 1; j < len(boats); j++ {
			a, b := boats[i], boats[j]
			if m.haver.DistanceTo(a.Position, b.Position) >= m.config.BoatDistance {
				continue
			}
			lo, hi := a.ID, b.ID
			if lo > hi {
				lo, hi = hi, lo
			}
			if !m.contact(fmt.Sprintf("boats:%d:%d", lo, hi)) {
				continue
			}
			aFault, bFault := m.config.Fault(*a, *b, windDirection)
			m.raise(&Collision{
				Boats: []uint32{a.ID, b.ID},
				Fault: map[uint32]bool{a.ID: aFault, b.ID: bFault},
			})
		}
	}

	if r.Course == nil {
		m.prune()
		return m.since(first)
	}

	marks := r.Course.Marks()
	l := m.landOf(r.Course)
	for _, b := range boats {
		if b.Autopilot {
			// autopilot boats sail through the mark positions
			continue
		}
		for _, cm := range marks {
			for _, mk := range cm.Marks {
				if m.haver.DistanceTo(b.Position, mk.Position) >= m.config.MarkDistance {
					continue
				}
				if !m.contact(fmt.Sprintf("mark:%d:%d:%d", b.ID, cm.ID, mk.ID)) {
					continue
				}
				m.raise(&Collision{
					Boats:    []uint32{b.ID},
					Fault:    map[uint32]bool{b.ID: true},
					WithMark: true,
				})
			}
		}
		if l != nil && l.IsLand(b.Position.Lat, b.Position.Lon) {
			if m.contact(fmt.Sprintf("bounds:%d", b.ID)) {
				m.raise(&Collision{
					Boats:       []uint32{b.ID},
					Fault:       map[uint32]bool{b.ID: true},
					OutOfBounds: true,
				})
			}
		}
	}

	m.prune()
	return m.since(first)
}

func (m *Manager) since(first int) []*Collision {
	out := make([]*Collision, len(m.pending)-first)
	copy(out, m.pending[first:])
	return out
}

func (m *Manager) landOf(c *race.Course) *land.Land {
	if m.landFor == c {
		return m.land
	}
	m.landFor = c
	m.land = nil
	if l, err := land.InitLand(c.Boundary); err == nil {
		m.land = l
	}
	return m.land
}

// contact records a contact and reports whether it is a new incident.
func (m *Manager) contact(key string) bool {
	last, ok := m.contacts.Get(key)
	m.contacts.Set(key, m.now)
	return !ok || m.now-last > m.cooldown()
}

func (m *Manager) prune() {
	var stale []string
	for el := m.contacts.Front(); el != nil; el = el.Next() {
		if m.now-el.Value > m.cooldown() {
			stale = append(stale, el.Key)
		}
	}
	for _, key := range stale {
		m.contacts.Delete(key)
	}
	for id, until := range m.inCollision {
		if m.now >= until {
			delete(m.inCollision, id)
		}
	}
}

func (m *Manager) raise(c *Collision) {
	c.IncidentID = m.nextID
	m.nextID++
	c.Time = m.now
	until := m.now + m.cooldown()
	if until == m.now {
		until++
	}
	for _, id := range c.Boats {
		m.inCollision[id] = until
	}
	m.pending = append(m.pending, c)
}

// BoatIsInCollision is true during the cooldown following an incident
// involving the boat.
func (m *Manager) BoatIsInCollision(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.inCollision[id]
	return ok && m.now < until
}

// Collisions hands out incidents not reported yet, oldest first. They stay
// held until RemoveCollision acknowledges them.
func (m *Manager) Collisions() []*Collision {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.pending
	m.pending = nil
	m.reported = append(m.reported, out...)
	return out
}

func (m *Manager) RemoveCollision(c *Collision) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.reported {
		if r == c {
			m.reported = append(m.reported[:i], m.reported[i+1:]...)
			return
		}
	}
}

// Unacknowledged lists incidents handed out but not removed yet.
func (m *Manager) Unacknowledged() []*Collision {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Collision, len(m.reported))
	copy(out, m.reported)
	sort.Slice(out, func(i, j int) bool { return out[i].IncidentID < out[j].IncidentID })
	return out
}
