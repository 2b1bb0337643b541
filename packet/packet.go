package packet

import (
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	Sync1 = 0x47
	Sync2 = 0x83

	HeaderSize = 15
	CRCSize    = 4
	MaxBody    = 1<<16 - 1
)

type Type uint8

const (
	TypeHeartbeat            Type = 1
	TypeRaceStatus           Type = 12
	TypeXML                  Type = 26
	TypeYachtEvent           Type = 29
	TypeBoatLocation         Type = 37
	TypeMarkRounding         Type = 38
	TypeBoatAction           Type = 100
	TypeRegistrationRequest  Type = 101
	TypeRegistrationResponse Type = 102
	TypeBoatState            Type = 103
)

func (t Type) String() string {
	switch t {
	case TypeHeartbeat:
		return "heartbeat"
	case TypeRaceStatus:
		return "race status"
	case TypeXML:
		return "xml"
	case TypeYachtEvent:
		return "yacht event"
	case TypeBoatLocation:
		return "boat location"
	case TypeMarkRounding:
		return "mark rounding"
	case TypeBoatAction:
		return "boat action"
	case TypeRegistrationRequest:
		return "registration request"
	case TypeRegistrationResponse:
		return "registration response"
	case TypeBoatState:
		return "boat state"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

var (
	ErrBadCRC      = errors.New("packet: bad crc")
	ErrBadLength   = errors.New("packet: bad body length")
	ErrTooLarge    = errors.New("packet: body too large")
	ErrUnknownType = errors.New("packet: unknown message type")
)

type Header struct {
	Type   Type
	Time   int64
	Source uint32
	Length uint16
}

// Message is the body of a packet.
type Message interface {
	Type() Type
	encode(w *writer)
	decode(r *reader)
}

// sized messages have a fixed body length.
type sized interface {
	size() int
}

// Encode frames a message with its header and CRC.
func Encode(m Message, source uint32, time int64) ([]byte, error) {
	body := &writer{}
	m.encode(body)
	if len(body.b) > MaxBody {
		return nil, ErrTooLarge
	}

	w := &writer{b: make([]byte, 0, HeaderSize+len(body.b)+CRCSize)}
	w.u8(Sync1)
	w.u8(Sync2)
	w.u8(uint8(m.Type()))
	w.u48(time)
	w.u32(source)
	w.u16(uint16(len(body.b)))
	w.b = append(w.b, body.b...)
	w.u32(crc32.ChecksumIEEE(w.b))

	return w.b, nil
}

// MustEncode is Encode for messages known to fit in a packet.
func MustEncode(m Message, source uint32, time int64) []byte {
	b, err := Encode(m, source, time)
	if err != nil {
		panic(err)
	}
	return b
}

func parseHeader(b []byte) Header {
	r := &reader{b: b[2:]}
	return Header{
		Type:   Type(r.u8()),
		Time:   r.u48(),
		Source: r.u32(),
		Length: r.u16(),
	}
}

func newMessage(t Type) Message {
	switch t {
	case TypeHeartbeat:
		return &Heartbeat{}
	case TypeRaceStatus:
		return &RaceStatus{}
	case TypeXML:
		return &XML{}
	case TypeYachtEvent:
		return &YachtEvent{}
	case TypeBoatLocation:
		return &BoatLocation{}
	case TypeMarkRounding:
		return &MarkRounding{}
	case TypeBoatAction:
		return &BoatAction{}
	case TypeRegistrationRequest:
		return &RegistrationRequest{}
	case TypeRegistrationResponse:
		return &RegistrationResponse{}
	case TypeBoatState:
		return &BoatState{}
	}
	return nil
}

// Decode parses the body of a packet of the given type.
func Decode(t Type, body []byte) (Message, error) {
	m := newMessage(t)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if s, ok := m.(sized); ok && s.size() != len(body) {
		return nil, fmt.Errorf("%w: %v is %d bytes, got %d", ErrBadLength, t, s.size(), len(body))
	}
	r := &reader{b: body}
	m.decode(r)
	if r.short {
		return nil, fmt.Errorf("%w: %v truncated", ErrBadLength, t)
	}
	return m, nil
}
