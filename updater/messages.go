package updater

import (
	"errors"
	"fmt"

	"github.com/a-bouts/regatta-server/collision"
	"github.com/a-bouts/regatta-server/race"
)

var (
	ErrOutOfSlots  = errors.New("out of slots")
	ErrUnavailable = errors.New("race unavailable")
	ErrBusy        = errors.New("command queue full")
	ErrStopped     = errors.New("race stopped")
)

type Role uint8

const (
	Player Role = iota
	Tutorial
	Ghost
)

// BoatAction values are the AC35 wire values.
type BoatAction uint8

const (
	VMG BoatAction = iota + 1
	SailsIn
	SailsOut
	TackGybe
	Upwind
	Downwind
)

func (a BoatAction) String() string {
	switch a {
	case VMG:
		return "vmg"
	case SailsIn:
		return "sails in"
	case SailsOut:
		return "sails out"
	case TackGybe:
		return "tack/gybe"
	case Upwind:
		return "upwind"
	case Downwind:
		return "downwind"
	}
	return fmt.Sprintf("BoatAction(%d)", a)
}

// Register asks for a boat. Reply must be buffered.
type Register struct {
	Role  Role
	Reply chan<- RegisterResult
}

type RegisterResult struct {
	BoatID uint32
	Err    error
}

type Action struct {
	BoatID uint32
	Action BoatAction
}

// Disconnect retires the boat of a client that went away.
type Disconnect struct {
	BoatID uint32
}

type EventKind uint8

const (
	StatusChanged EventKind = iota + 1
	RaceLive
	BoatRegistered
	BoatRoundedMark
	BoatFinished
	BoatRetired
	CollisionDetected
	RaceTerminated
)

func (k EventKind) String() string {
	switch k {
	case StatusChanged:
		return "status changed"
	case RaceLive:
		return "race live"
	case BoatRegistered:
		return "boat registered"
	case BoatRoundedMark:
		return "boat rounded mark"
	case BoatFinished:
		return "boat finished"
	case BoatRetired:
		return "boat retired"
	case CollisionDetected:
		return "collision detected"
	case RaceTerminated:
		return "race terminated"
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

type Event struct {
	Kind      EventKind
	RaceID    uint32
	Time      int64
	Status    race.RaceStatus
	BoatID    uint32
	MarkIndex int
	Collision *collision.Collision
}
