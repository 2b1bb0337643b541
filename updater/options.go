package updater

import (
	"fmt"
	"strings"
	"time"

	"github.com/a-bouts/regatta-server/collision"
)

type Difficulty uint8

const (
	NoAI Difficulty = iota
	Easy
	Medium
	Hard
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(s) {
	case "", "none", "off":
		return NoAI, nil
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	}
	return NoAI, fmt.Errorf("unknown ai difficulty %q", s)
}

func (d Difficulty) String() string {
	switch d {
	case NoAI:
		return "none"
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	}
	return fmt.Sprintf("Difficulty(%d)", d)
}

// Factor scales the AI boat polar speed.
func (d Difficulty) Factor() float64 {
	switch d {
	case Easy:
		return 0.8
	case Medium:
		return 0.9
	}
	return 1
}

type Options struct {
	// Step is the real time between two ticks.
	Step time.Duration
	// TimeScale is how many simulated seconds pass per real second.
	TimeScale float64
	// SpeedScale multiplies every polar boat speed.
	SpeedScale      float64
	MinParticipants int
	MaxCompetitors  int
	Prestart        time.Duration
	Tutorial        bool
	AI              Difficulty
	// RoundingRadius in nautical miles around a single mark.
	RoundingRadius float64
	// CollisionDamage is the health lost by a boat at fault.
	CollisionDamage int
	Collision       collision.Config
	InboxSize       int
	EventsSize      int
	Seed            int64
}

func DefaultOptions() Options {
	return Options{
		Step:            20 * time.Millisecond,
		TimeScale:       1,
		SpeedScale:      1,
		MinParticipants: 1,
		MaxCompetitors:  6,
		Prestart:        3 * time.Minute,
		RoundingRadius:  0.02,
		CollisionDamage: 5,
		Collision:       collision.DefaultConfig(),
		InboxSize:       256,
		EventsSize:      256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Step <= 0 {
		o.Step = d.Step
	}
	if o.TimeScale <= 0 {
		o.TimeScale = d.TimeScale
	}
	if o.SpeedScale <= 0 {
		o.SpeedScale = d.SpeedScale
	}
	if o.MinParticipants <= 0 {
		o.MinParticipants = d.MinParticipants
	}
	if o.MaxCompetitors <= 0 {
		o.MaxCompetitors = d.MaxCompetitors
	}
	if o.Prestart < 0 {
		o.Prestart = d.Prestart
	}
	if o.RoundingRadius <= 0 {
		o.RoundingRadius = d.RoundingRadius
	}
	if o.InboxSize <= 0 {
		o.InboxSize = d.InboxSize
	}
	if o.EventsSize <= 0 {
		o.EventsSize = d.EventsSize
	}
	if o.Collision.BoatDistance <= 0 {
		o.Collision = d.Collision
	}
	return o
}
