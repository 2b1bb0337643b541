package server

import (
	"encoding/xml"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zeebo/xxh3"

	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/race"
)

const xmlTimeFormat = "2006-01-02T15:04:05-0700"

type regattaXML struct {
	XMLName          xml.Name `xml:"RegattaConfig"`
	RegattaID        uint32   `xml:"RegattaID"`
	RegattaName      string   `xml:"RegattaName"`
	CourseName       string   `xml:"CourseName"`
	CentralLatitude  float64  `xml:"CentralLatitude"`
	CentralLongitude float64  `xml:"CentralLongitude"`
	CentralAltitude  float64  `xml:"CentralAltitude"`
	UtcOffset        int      `xml:"UtcOffset"`
}

type raceXML struct {
	XMLName              xml.Name          `xml:"Race"`
	RaceID               uint32            `xml:"RaceID"`
	RaceType             string            `xml:"RaceType"`
	CreationTimeDate     string            `xml:"CreationTimeDate"`
	RaceStartTime        raceStartTimeXML  `xml:"RaceStartTime"`
	Participants         []yachtXML        `xml:"Participants>Yacht"`
	CompoundMarkSequence []cornerXML       `xml:"CompoundMarkSequence>Corner"`
	Course               []compoundMarkXML `xml:"Course>CompoundMark"`
	CourseLimit          []limitXML        `xml:"CourseLimit>Limit"`
}

type raceStartTimeXML struct {
	Time     string `xml:"Time,attr"`
	Postpone bool   `xml:"Postpone,attr"`
}

type yachtXML struct {
	SourceID uint32 `xml:"SourceID,attr"`
}

type cornerXML struct {
	SeqID          int    `xml:"SeqID,attr"`
	CompoundMarkID int    `xml:"CompoundMarkID,attr"`
	Rounding       string `xml:"Rounding,attr"`
	ZoneSize       int    `xml:"ZoneSize,attr"`
}

type compoundMarkXML struct {
	CompoundMarkID int       `xml:"CompoundMarkID,attr"`
	Name           string    `xml:"Name,attr"`
	Marks          []markXML `xml:"Mark"`
}

type markXML struct {
	SeqID     int     `xml:"SeqID,attr"`
	Name      string  `xml:"Name,attr"`
	TargetLat float64 `xml:"TargetLat,attr"`
	TargetLng float64 `xml:"TargetLng,attr"`
	SourceID  int     `xml:"SourceID,attr"`
}

type limitXML struct {
	SeqID int     `xml:"SeqID,attr"`
	Lat   float64 `xml:"Lat,attr"`
	Lon   float64 `xml:"Lon,attr"`
}

type boatsXML struct {
	XMLName xml.Name  `xml:"BoatConfig"`
	Boats   []boatXML `xml:"Boats>Boat"`
}

type boatXML struct {
	Type      string `xml:"Type,attr"`
	SourceID  uint32 `xml:"SourceID,attr"`
	BoatName  string `xml:"BoatName,attr"`
	ShortName string `xml:"ShortName,attr,omitempty"`
}

func rounding(cm *race.CompoundMark) string {
	if cm.Kind == race.Point {
		return "Port"
	}
	return "SP"
}

// documents renders the regatta, race and boats XML of a race.
func documents(r *race.Race, created time.Time) (map[packet.XMLSubtype][]byte, error) {
	var (
		regatta regattaXML
		rx      raceXML
		boats   boatsXML
	)

	r.View(func(r *race.Race) {
		c := r.Course
		view := c.View()

		regatta = regattaXML{
			RegattaID:        r.ID,
			RegattaName:      r.Name,
			CourseName:       c.Name,
			CentralLatitude:  (view.MinLat + view.MaxLat) / 2,
			CentralLongitude: (view.MinLon + view.MaxLon) / 2,
		}

		rx = raceXML{
			RaceID:           r.ID,
			RaceType:         "Fleet",
			CreationTimeDate: created.UTC().Format(xmlTimeFormat),
			RaceStartTime:    raceStartTimeXML{Postpone: r.StartTime == 0},
		}
		if r.StartTime != 0 {
			rx.RaceStartTime.Time = time.UnixMilli(r.StartTime).UTC().Format(xmlTimeFormat)
		}
		for _, b := range r.Competitors {
			rx.Participants = append(rx.Participants, yachtXML{SourceID: b.ID})
			boats.Boats = append(boats.Boats, boatXML{Type: "Yacht", SourceID: b.ID, BoatName: b.Name, ShortName: b.Nickname})
		}
		for i, cm := range c.Order {
			rx.CompoundMarkSequence = append(rx.CompoundMarkSequence, cornerXML{
				SeqID:          i + 1,
				CompoundMarkID: cm.ID,
				Rounding:       rounding(cm),
				ZoneSize:       3,
			})
		}
		for _, cm := range c.Marks() {
			x := compoundMarkXML{CompoundMarkID: cm.ID, Name: cm.Name}
			for i, m := range cm.Marks {
				x.Marks = append(x.Marks, markXML{
					SeqID:     i + 1,
					Name:      m.Name,
					TargetLat: m.Position.Lat,
					TargetLng: m.Position.Lon,
					SourceID:  m.ID,
				})
				boats.Boats = append(boats.Boats, boatXML{Type: "Mark", SourceID: uint32(m.ID), BoatName: m.Name})
			}
			rx.Course = append(rx.Course, x)
		}
		for i, p := range c.Boundary {
			rx.CourseLimit = append(rx.CourseLimit, limitXML{SeqID: i + 1, Lat: p.Lat, Lon: p.Lon})
		}
	})

	docs := make(map[packet.XMLSubtype][]byte, 3)
	for subtype, v := range map[packet.XMLSubtype]any{
		packet.XMLRegatta: regatta,
		packet.XMLRace:    rx,
		packet.XMLBoats:   boats,
	} {
		b, err := xml.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		docs[subtype] = append([]byte(xml.Header), b...)
	}
	return docs, nil
}

var xmlOrder = []packet.XMLSubtype{packet.XMLRegatta, packet.XMLRace, packet.XMLBoats}

type xmlEntry struct {
	seq    uint16
	hash   uint64
	packet []byte
}

// xmlCache keeps the latest packet of each XML subtype. The sequence number
// of a subtype only moves when its content does.
type xmlCache struct {
	mu      deadlock.Mutex
	entries map[packet.XMLSubtype]*xmlEntry
}

func newXMLCache() *xmlCache {
	return &xmlCache{entries: make(map[packet.XMLSubtype]*xmlEntry)}
}

// update returns the packet for a document and whether it changed.
func (x *xmlCache) update(subtype packet.XMLSubtype, text []byte, now int64) ([]byte, bool, error) {
	h := xxh3.Hash(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	e, ok := x.entries[subtype]
	if ok && e.hash == h {
		return e.packet, false, nil
	}
	if !ok {
		e = &xmlEntry{}
	}
	seq := e.seq + 1
	b, err := packet.Encode(&packet.XML{Time: now, Subtype: subtype, Seq: seq, Text: text}, 0, now)
	if err != nil {
		return nil, false, err
	}
	e.seq, e.hash, e.packet = seq, h, b
	x.entries[subtype] = e
	return b, true, nil
}

func (x *xmlCache) seq(subtype packet.XMLSubtype) uint16 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[subtype]; ok {
		return e.seq
	}
	return 0
}

// packets lists the latest XML packets, regatta first.
func (x *xmlCache) packets() [][]byte {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([][]byte, 0, len(xmlOrder))
	for _, subtype := range xmlOrder {
		if e, ok := x.entries[subtype]; ok {
			out = append(out, e.packet)
		}
	}
	return out
}
