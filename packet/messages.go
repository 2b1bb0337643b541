package packet

import "math"

const (
	version = 2

	knotsToMms = 514.444
	latLonUnit = 180 / float64(1<<31)
	angleUnit  = 360 / float64(1<<16)
)

func encodeAngle(deg float64) uint16 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	v := math.Round(deg / angleUnit)
	if v > math.MaxUint16 {
		v = 0
	}
	return uint16(v)
}

func encodeSignedAngle(deg float64) int16 {
	return int16(math.Round(deg / angleUnit))
}

func encodeSpeed(knots float64) uint16 {
	mms := math.Round(knots * knotsToMms)
	if mms > math.MaxUint16 {
		return math.MaxUint16
	}
	if mms < 0 {
		return 0
	}
	return uint16(mms)
}

func encodeLatLon(deg float64) int32 {
	return int32(math.Round(deg / latLonUnit))
}

type Heartbeat struct {
	Seq uint32
}

func (*Heartbeat) Type() Type         { return TypeHeartbeat }
func (*Heartbeat) size() int          { return 4 }
func (m *Heartbeat) encode(w *writer) { w.u32(m.Seq) }
func (m *Heartbeat) decode(r *reader) { m.Seq = r.u32() }

// BoatStatus is one boat entry of a RaceStatus message.
type BoatStatus struct {
	Source           uint32
	Status           uint8
	Leg              uint8
	PenaltiesAwarded uint8
	PenaltiesServed  uint8
	TimeAtNextMark   int64
	TimeAtFinish     int64
}

type RaceStatus struct {
	CurrentTime   int64
	RaceID        uint32
	Status        uint8
	StartTime     int64
	WindDirection float64
	WindSpeed     float64
	RaceType      uint8
	Boats         []BoatStatus
}

func (*RaceStatus) Type() Type { return TypeRaceStatus }

func (m *RaceStatus) encode(w *writer) {
	w.u8(version)
	w.u48(m.CurrentTime)
	w.u32(m.RaceID)
	w.u8(m.Status)
	w.u48(m.StartTime)
	w.u16(encodeAngle(m.WindDirection))
	w.u16(encodeSpeed(m.WindSpeed))
	w.u8(uint8(len(m.Boats)))
	w.u8(m.RaceType)
	for _, b := range m.Boats {
		w.u32(b.Source)
		w.u8(b.Status)
		w.u8(b.Leg)
		w.u8(b.PenaltiesAwarded)
		w.u8(b.PenaltiesServed)
		w.u48(b.TimeAtNextMark)
		w.u48(b.TimeAtFinish)
	}
}

func (m *RaceStatus) decode(r *reader) {
	r.skip(1)
	m.CurrentTime = r.u48()
	m.RaceID = r.u32()
	m.Status = r.u8()
	m.StartTime = r.u48()
	m.WindDirection = float64(r.u16()) * angleUnit
	m.WindSpeed = float64(r.u16()) / knotsToMms
	n := int(r.u8())
	m.RaceType = r.u8()
	m.Boats = make([]BoatStatus, 0, n)
	for i := 0; i < n && !r.short; i++ {
		m.Boats = append(m.Boats, BoatStatus{
			Source:           r.u32(),
			Status:           r.u8(),
			Leg:              r.u8(),
			PenaltiesAwarded: r.u8(),
			PenaltiesServed:  r.u8(),
			TimeAtNextMark:   r.u48(),
			TimeAtFinish:     r.u48(),
		})
	}
}

type XMLSubtype uint8

const (
	XMLRegatta XMLSubtype = 5
	XMLRace    XMLSubtype = 6
	XMLBoats   XMLSubtype = 7
)

type XML struct {
	Ack     uint16
	Time    int64
	Subtype XMLSubtype
	Seq     uint16
	Text    []byte
}

func (*XML) Type() Type { return TypeXML }

func (m *XML) encode(w *writer) {
	w.u8(version)
	w.u16(m.Ack)
	w.u48(m.Time)
	w.u8(uint8(m.Subtype))
	w.u16(m.Seq)
	w.u16(uint16(len(m.Text)))
	w.bytes(m.Text)
}

func (m *XML) decode(r *reader) {
	r.skip(1)
	m.Ack = r.u16()
	m.Time = r.u48()
	m.Subtype = XMLSubtype(r.u8())
	m.Seq = r.u16()
	m.Text = r.bytes(int(r.u16()))
}

type EventCode uint8

const (
	EventCollision     EventCode = 33
	EventPenalty       EventCode = 34
	EventOutOfBounds   EventCode = 35
	EventCollisionMark EventCode = 36
)

type YachtEvent struct {
	Time       int64
	Ack        uint16
	RaceID     uint32
	BoatID     uint32
	IncidentID uint32
	Event      EventCode
}

func (*YachtEvent) Type() Type { return TypeYachtEvent }
func (*YachtEvent) size() int  { return 22 }

func (m *YachtEvent) encode(w *writer) {
	w.u8(version)
	w.u48(m.Time)
	w.u16(m.Ack)
	w.u32(m.RaceID)
	w.u32(m.BoatID)
	w.u32(m.IncidentID)
	w.u8(uint8(m.Event))
}

func (m *YachtEvent) decode(r *reader) {
	r.skip(1)
	m.Time = r.u48()
	m.Ack = r.u16()
	m.RaceID = r.u32()
	m.BoatID = r.u32()
	m.IncidentID = r.u32()
	m.Event = EventCode(r.u8())
}

const (
	DeviceYacht uint8 = 1
	DeviceMark  uint8 = 3
)

// BoatLocation angles are in degrees and speeds in knots. Fields the
// simulation has no value for are sent as zero.
type BoatLocation struct {
	Time       int64
	Source     uint32
	Seq        uint32
	DeviceType uint8
	Lat        float64
	Lon        float64
	Heading    float64
	Speed      float64
	COG        float64
	SOG        float64
	TWS        float64
	TWD        float64
	TWA        float64
}

func (*BoatLocation) Type() Type { return TypeBoatLocation }
func (*BoatLocation) size() int  { return 56 }

func (m *BoatLocation) encode(w *writer) {
	w.u8(version)
	w.u48(m.Time)
	w.u32(m.Source)
	w.u32(m.Seq)
	w.u8(m.DeviceType)
	w.i32(encodeLatLon(m.Lat))
	w.i32(encodeLatLon(m.Lon))
	w.i32(0) // altitude
	w.u16(encodeAngle(m.Heading))
	w.i16(0) // pitch
	w.i16(0) // roll
	w.u16(encodeSpeed(m.Speed))
	w.u16(encodeAngle(m.COG))
	w.u16(encodeSpeed(m.SOG))
	w.u16(0) // apparent wind speed
	w.i16(0) // apparent wind angle
	w.u16(encodeSpeed(m.TWS))
	w.u16(encodeAngle(m.TWD))
	w.i16(encodeSignedAngle(m.TWA))
	w.u16(0) // current drift
	w.u16(0) // current set
	w.i16(0) // rudder
}

func (m *BoatLocation) decode(r *reader) {
	r.skip(1)
	m.Time = r.u48()
	m.Source = r.u32()
	m.Seq = r.u32()
	m.DeviceType = r.u8()
	m.Lat = float64(r.i32()) * latLonUnit
	m.Lon = float64(r.i32()) * latLonUnit
	r.skip(4)
	m.Heading = float64(r.u16()) * angleUnit
	r.skip(4)
	m.Speed = float64(r.u16()) / knotsToMms
	m.COG = float64(r.u16()) * angleUnit
	m.SOG = float64(r.u16()) / knotsToMms
	r.skip(4)
	m.TWS = float64(r.u16()) / knotsToMms
	m.TWD = float64(r.u16()) * angleUnit
	m.TWA = float64(r.i16()) * angleUnit
	r.skip(6)
}

const (
	RoundingUnknown uint8 = iota
	RoundingPort
	RoundingStarboard
)

const (
	MarkTypeUnknown uint8 = iota
	MarkTypeRoundingMark
	MarkTypeGate
)

type MarkRounding struct {
	Time       int64
	Ack        uint16
	RaceID     uint32
	Source     uint32
	BoatStatus uint8
	Side       uint8
	MarkType   uint8
	MarkID     uint8
}

func (*MarkRounding) Type() Type { return TypeMarkRounding }
func (*MarkRounding) size() int  { return 21 }

func (m *MarkRounding) encode(w *writer) {
	w.u8(version)
	w.u48(m.Time)
	w.u16(m.Ack)
	w.u32(m.RaceID)
	w.u32(m.Source)
	w.u8(m.BoatStatus)
	w.u8(m.Side)
	w.u8(m.MarkType)
	w.u8(m.MarkID)
}

func (m *MarkRounding) decode(r *reader) {
	r.skip(1)
	m.Time = r.u48()
	m.Ack = r.u16()
	m.RaceID = r.u32()
	m.Source = r.u32()
	m.BoatStatus = r.u8()
	m.Side = r.u8()
	m.MarkType = r.u8()
	m.MarkID = r.u8()
}

type BoatAction struct {
	Source uint32
	Action uint8
}

func (*BoatAction) Type() Type { return TypeBoatAction }
func (*BoatAction) size() int  { return 5 }

func (m *BoatAction) encode(w *writer) {
	w.u32(m.Source)
	w.u8(m.Action)
}

func (m *BoatAction) decode(r *reader) {
	m.Source = r.u32()
	m.Action = r.u8()
}

type RegistrationType uint8

const (
	RegisterSpectator RegistrationType = iota
	RegisterPlayer
	RegisterTutorial
	RegisterGhost
)

type RegistrationRequest struct {
	Kind RegistrationType
}

func (*RegistrationRequest) Type() Type         { return TypeRegistrationRequest }
func (*RegistrationRequest) size() int          { return 1 }
func (m *RegistrationRequest) encode(w *writer) { w.u8(uint8(m.Kind)) }
func (m *RegistrationRequest) decode(r *reader) { m.Kind = RegistrationType(r.u8()) }

type ResponseStatus uint8

const (
	SpectatorSuccess ResponseStatus = 0x00
	PlayerSuccess    ResponseStatus = 0x01
	TutorialSuccess  ResponseStatus = 0x02
	GhostSuccess     ResponseStatus = 0x03
	Failure          ResponseStatus = 0x10
	OutOfSlots       ResponseStatus = 0x11
	RaceUnavailable  ResponseStatus = 0x12
)

// Success reports whether the client was registered.
func (s ResponseStatus) Success() bool {
	return s < Failure
}

type RegistrationResponse struct {
	Source uint32
	Status ResponseStatus
}

func (*RegistrationResponse) Type() Type { return TypeRegistrationResponse }
func (*RegistrationResponse) size() int  { return 5 }

func (m *RegistrationResponse) encode(w *writer) {
	w.u32(m.Source)
	w.u8(uint8(m.Status))
}

func (m *RegistrationResponse) decode(r *reader) {
	m.Source = r.u32()
	m.Status = ResponseStatus(r.u8())
}

type BoatState struct {
	Source uint32
	Health uint8
}

func (*BoatState) Type() Type { return TypeBoatState }
func (*BoatState) size() int  { return 5 }

func (m *BoatState) encode(w *writer) {
	w.u32(m.Source)
	w.u8(m.Health)
}

func (m *BoatState) decode(r *reader) {
	m.Source = r.u32()
	m.Health = r.u8()
}
