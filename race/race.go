package race

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/a-bouts/regatta-server/latlon"
)

// RaceStatus values are the AC35 wire values.
type RaceStatus uint8

const (
	NotActive RaceStatus = iota
	Warning
	Preparatory
	Started
	Finished
	Retired
	Abandoned
	Postponed
	Terminated
	StartTimeNotSet
	Prestart
)

func (s RaceStatus) String() string {
	switch s {
	case NotActive:
		return "not active"
	case Warning:
		return "warning"
	case Preparatory:
		return "preparatory"
	case Started:
		return "started"
	case Finished:
		return "finished"
	case Retired:
		return "retired"
	case Abandoned:
		return "abandoned"
	case Postponed:
		return "postponed"
	case Terminated:
		return "terminated"
	case StartTimeNotSet:
		return "start time not set"
	case Prestart:
		return "prestart"
	}
	return fmt.Sprintf("RaceStatus(%d)", s)
}

// Ended reports a status that ends the simulation.
func (s RaceStatus) Ended() bool {
	return s == Terminated || s == Abandoned || s == Retired
}

const FleetRace = 2

// Race is the shared race aggregate. The simulation mutates it inside
// Update; every other goroutine reads through Snapshot.
type Race struct {
	mu sync.RWMutex

	ID          uint32
	Name        string
	Type        uint8
	Course      *Course
	Competitors []*Boat
	Status      RaceStatus
	StartTime   int64
	CurrentTime int64
}

func New(name string, course *Course, now time.Time) *Race {
	return &Race{
		ID:          NewID(now),
		Name:        name,
		Type:        FleetRace,
		Course:      course,
		Status:      Prestart,
		CurrentTime: now.UnixMilli(),
	}
}

// NewID derives a race id from the date, as yyMMddHH.
func NewID(t time.Time) uint32 {
	id, _ := strconv.ParseUint(t.Format("06010215"), 10, 32)
	return uint32(id)
}

func (r *Race) Update(fn func(r *Race)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *Race) View(fn func(r *Race)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r)
}

func (r *Race) HasStarted() bool {
	return r.Status == Started || r.Status == Finished || r.Status == Terminated
}

// Boat finds a competitor by source id.
func (r *Race) Boat(id uint32) *Boat {
	for _, b := range r.Competitors {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (r *Race) AddCompetitor(b *Boat) {
	r.Competitors = append(r.Competitors, b)
}

// Placings orders boats: finished by finish time, then racing boats by
// progress, then retired boats.
func (r *Race) Placings() []uint32 {
	type progress struct {
		id        uint32
		rank      int
		finish    int64
		leg       int
		remaining float64
	}
	ps := make([]progress, 0, len(r.Competitors))
	for _, b := range r.Competitors {
		p := progress{id: b.ID, leg: b.LastRoundedMarkIndex}
		switch b.Status {
		case BoatFinished:
			p.rank = 0
			p.finish = b.FinishTime
		case BoatDNF, BoatDNS:
			p.rank = 2
		default:
			p.rank = 1
			if r.Course != nil {
				p.remaining = r.Course.RemainingDistance(b.Position, b.LastRoundedMarkIndex)
			}
		}
		ps = append(ps, p)
	}
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		switch a.rank {
		case 0:
			return a.finish < b.finish
		case 1:
			if a.leg != b.leg {
				return a.leg > b.leg
			}
			return a.remaining < b.remaining
		}
		return false
	})
	ids := make([]uint32, len(ps))
	for i, p := range ps {
		ids[i] = p.id
	}
	return ids
}

// Rank stores in each boat its 1-based position in Placings.
func (r *Race) Rank() {
	for i, id := range r.Placings() {
		r.Boat(id).Placing = i + 1
	}
}

// Snapshot is a point in time copy of the race, safe to share.
type Snapshot struct {
	ID            uint32          `json:"id" msgpack:"id"`
	Name          string          `json:"name" msgpack:"name"`
	Type          uint8           `json:"type" msgpack:"type"`
	Status        RaceStatus      `json:"status" msgpack:"status"`
	StartTime     int64           `json:"startTime" msgpack:"startTime"`
	CurrentTime   int64           `json:"currentTime" msgpack:"currentTime"`
	WindSpeed     float64         `json:"windSpeed" msgpack:"windSpeed"`
	WindDirection float64         `json:"windDirection" msgpack:"windDirection"`
	Boats         []Boat          `json:"boats" msgpack:"boats"`
	Placings      []uint32        `json:"placings" msgpack:"placings"`
	View          ViewState       `json:"view" msgpack:"view"`
	Boundary      []latlon.LatLon `json:"boundary,omitempty" msgpack:"boundary,omitempty"`
}

func (r *Race) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.Type,
		Status:      r.Status,
		StartTime:   r.StartTime,
		CurrentTime: r.CurrentTime,
		Boats:       make([]Boat, len(r.Competitors)),
		Placings:    r.Placings(),
	}
	for i, b := range r.Competitors {
		s.Boats[i] = *b
	}
	if r.Course != nil {
		s.WindSpeed = r.Course.WindSpeed
		s.WindDirection = r.Course.WindDirection()
		s.View = r.Course.View()
		s.Boundary = r.Course.Boundary
	}
	return s
}

// Boat finds a boat of the snapshot by source id.
func (s Snapshot) Boat(id uint32) (Boat, bool) {
	for _, b := range s.Boats {
		if b.ID == id {
			return b, true
		}
	}
	return Boat{}, false
}
