package race

import (
	"fmt"

	"github.com/a-bouts/regatta-server/latlon"
)

// BoatStatus values are the AC35 wire values.
type BoatStatus uint8

const (
	BoatUndefined BoatStatus = iota
	BoatPreRace
	BoatRacing
	BoatFinished
	BoatDNS
	BoatDNF
)

func (s BoatStatus) String() string {
	switch s {
	case BoatUndefined:
		return "undefined"
	case BoatPreRace:
		return "prerace"
	case BoatRacing:
		return "racing"
	case BoatFinished:
		return "finished"
	case BoatDNS:
		return "dns"
	case BoatDNF:
		return "dnf"
	}
	return fmt.Sprintf("BoatStatus(%d)", s)
}

// Done reports a terminal status.
func (s BoatStatus) Done() bool {
	return s == BoatFinished || s == BoatDNF || s == BoatDNS
}

const MaxHealth = 100

type Boat struct {
	ID        uint32  `json:"id" msgpack:"id"`
	Name      string  `json:"name" msgpack:"name"`
	Nickname  string  `json:"nickname" msgpack:"nickname"`
	BaseSpeed float64 `json:"baseSpeed" msgpack:"baseSpeed"`

	Position    latlon.LatLon `json:"position" msgpack:"position"`
	Heading     float64       `json:"heading" msgpack:"heading"`
	Speed       float64       `json:"speed" msgpack:"speed"`
	VMG         float64       `json:"vmg" msgpack:"vmg"`
	TargetSpeed float64       `json:"targetSpeed" msgpack:"targetSpeed"`

	LastRoundedMarkIndex int `json:"lastRoundedMarkIndex" msgpack:"lastRoundedMarkIndex"`
	LastTackMarkPassed   int `json:"lastTackMarkPassed" msgpack:"lastTackMarkPassed"`
	LastGybeMarkPassed   int `json:"lastGybeMarkPassed" msgpack:"lastGybeMarkPassed"`

	Status    BoatStatus `json:"status" msgpack:"status"`
	SailsIn   bool       `json:"sailsIn" msgpack:"sailsIn"`
	Autopilot bool       `json:"autopilot" msgpack:"autopilot"`
	Ghost     bool       `json:"ghost" msgpack:"ghost"`

	// SpeedFactor scales polar speeds, below 1 for easier AI opponents.
	SpeedFactor float64 `json:"speedFactor" msgpack:"speedFactor"`
	Health      int     `json:"health" msgpack:"health"`
	DamageSpeed float64 `json:"damageSpeed" msgpack:"damageSpeed"`

	PenaltiesAwarded int `json:"penaltiesAwarded" msgpack:"penaltiesAwarded"`
	PenaltiesServed  int `json:"penaltiesServed" msgpack:"penaltiesServed"`

	TimeAtNextMark int64 `json:"timeAtNextMark" msgpack:"timeAtNextMark"`
	TimeAtFinish   int64 `json:"timeAtFinish" msgpack:"timeAtFinish"`
	FinishTime     int64 `json:"finishTime" msgpack:"finishTime"`
	Placing        int   `json:"placing" msgpack:"placing"`
}

// NewBoat returns a boat ready to be prepared for a race.
func NewBoat(id uint32, name, nickname string, baseSpeed float64) *Boat {
	return &Boat{
		ID:          id,
		Name:        name,
		Nickname:    nickname,
		BaseSpeed:   baseSpeed,
		SpeedFactor: 1,
		Health:      MaxHealth,
	}
}

// SetHeading stores the heading normalized to [0,360).
func (b *Boat) SetHeading(h float64) {
	b.Heading = latlon.Wrap360(h)
}

// Leg is the course leg the boat is sailing, 1 for the first leg.
func (b *Boat) Leg() int {
	return b.LastRoundedMarkIndex + 1
}

// Damage takes health off the boat and slows it down accordingly.
func (b *Boat) Damage(amount int) {
	b.Health -= amount
	if b.Health < 0 {
		b.Health = 0
	}
	b.DamageSpeed = float64(MaxHealth-b.Health) / 10
}
