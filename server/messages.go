package server

import (
	"github.com/a-bouts/regatta-server/collision"
	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/wind"
)

func raceStatus(s race.Snapshot) *packet.RaceStatus {
	m := &packet.RaceStatus{
		CurrentTime:   s.CurrentTime,
		RaceID:        s.ID,
		Status:        uint8(s.Status),
		StartTime:     s.StartTime,
		WindDirection: s.WindDirection,
		WindSpeed:     s.WindSpeed,
		RaceType:      s.Type,
		Boats:         make([]packet.BoatStatus, 0, len(s.Boats)),
	}
	for _, b := range s.Boats {
		m.Boats = append(m.Boats, packet.BoatStatus{
			Source:           b.ID,
			Status:           uint8(b.Status),
			Leg:              uint8(b.Leg()),
			PenaltiesAwarded: uint8(b.PenaltiesAwarded),
			PenaltiesServed:  uint8(b.PenaltiesServed),
			TimeAtNextMark:   b.TimeAtNextMark,
			TimeAtFinish:     b.TimeAtFinish,
		})
	}
	return m
}

func boatLocation(s race.Snapshot, b race.Boat, seq uint32) *packet.BoatLocation {
	return &packet.BoatLocation{
		Time:       s.CurrentTime,
		Source:     b.ID,
		Seq:        seq,
		DeviceType: packet.DeviceYacht,
		Lat:        b.Position.Lat,
		Lon:        b.Position.Lon,
		Heading:    b.Heading,
		Speed:      b.Speed,
		COG:        b.Heading,
		SOG:        b.Speed,
		TWS:        s.WindSpeed,
		TWD:        s.WindDirection,
		TWA:        wind.Twa(b.Heading, s.WindDirection),
	}
}

func markRounding(s race.Snapshot, c *race.Course, b race.Boat) *packet.MarkRounding {
	m := &packet.MarkRounding{
		Time:       s.CurrentTime,
		RaceID:     s.ID,
		Source:     b.ID,
		BoatStatus: uint8(b.Status),
		Side:       packet.RoundingUnknown,
		MarkType:   packet.MarkTypeUnknown,
	}
	if i := b.LastRoundedMarkIndex; i >= 0 && i < len(c.Order) {
		cm := c.Order[i]
		m.MarkID = uint8(cm.ID)
		m.MarkType = packet.MarkTypeRoundingMark
		if len(cm.Marks) > 1 {
			m.MarkType = packet.MarkTypeGate
		} else {
			m.Side = packet.RoundingPort
		}
	}
	return m
}

// yachtEvents lists the messages reporting an incident, boat by boat: the
// collision, then out of bounds or the penalty and mark contact, then the
// boat state.
func yachtEvents(s race.Snapshot, c *collision.Collision) []packet.Message {
	var out []packet.Message
	event := func(boat uint32, code packet.EventCode) {
		out = append(out, &packet.YachtEvent{
			Time:       s.CurrentTime,
			RaceID:     s.ID,
			BoatID:     boat,
			IncidentID: c.IncidentID,
			Event:      code,
		})
	}
	for _, id := range c.Boats {
		event(id, packet.EventCollision)
		if c.OutOfBounds {
			event(id, packet.EventOutOfBounds)
		} else {
			if c.AtFault(id) {
				event(id, packet.EventPenalty)
			}
			if len(c.Boats) == 1 {
				event(id, packet.EventCollisionMark)
			}
		}
		if b, ok := s.Boat(id); ok {
			out = append(out, boatState(b))
		}
	}
	return out
}

func boatState(b race.Boat) *packet.BoatState {
	health := b.Health
	if health < 0 {
		health = 0
	}
	return &packet.BoatState{Source: b.ID, Health: uint8(health)}
}
