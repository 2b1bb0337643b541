package server

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/race"
)

func TestXMLCache(t *testing.T) {
	x := newXMLCache()

	if _, changed, _ := x.update(packet.XMLRace, []byte("<Race/>"), 1); !changed {
		t.Errorf("first update unchanged")
	}
	if _, changed, _ := x.update(packet.XMLRace, []byte("<Race/>"), 2); changed {
		t.Errorf("same document changed")
	}
	if got := x.seq(packet.XMLRace); got != 1 {
		t.Errorf("seq = %d; want 1", got)
	}
	if _, changed, _ := x.update(packet.XMLRace, []byte("<Race></Race>"), 3); !changed {
		t.Errorf("new document unchanged")
	}
	if got := x.seq(packet.XMLRace); got != 2 {
		t.Errorf("seq = %d; want 2", got)
	}
	if got := x.seq(packet.XMLBoats); got != 0 {
		t.Errorf("seq of a missing subtype = %d; want 0", got)
	}

	x.update(packet.XMLBoats, []byte("<BoatConfig/>"), 4)
	x.update(packet.XMLRegatta, []byte("<RegattaConfig/>"), 5)
	var subtypes []packet.XMLSubtype
	for _, b := range x.packets() {
		_, m, err := packet.NewReader(bytes.NewReader(b)).Read()
		if err != nil {
			t.Fatal(err)
		}
		subtypes = append(subtypes, m.(*packet.XML).Subtype)
	}
	want := []packet.XMLSubtype{packet.XMLRegatta, packet.XMLRace, packet.XMLBoats}
	if len(subtypes) != len(want) {
		t.Fatalf("packets() subtypes = %v; want %v", subtypes, want)
	}
	for i := range want {
		if subtypes[i] != want[i] {
			t.Errorf("packets()[%d] subtype = %d; want %d", i, subtypes[i], want[i])
		}
	}
}

func testRace(t *testing.T) *race.Race {
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
	r := race.New("test", c, time.Unix(1500000000, 0))
	r.AddCompetitor(starters[0])
	r.AddCompetitor(starters[1])
	return r
}

func TestDocuments(t *testing.T) {
	r := testRace(t)
	docs, err := documents(r, time.Unix(1500000000, 0))
	if err != nil {
		t.Fatal(err)
	}

	var rx raceXML
	if err := xml.Unmarshal(docs[packet.XMLRace], &rx); err != nil {
		t.Fatal(err)
	}
	if len(rx.Participants) != 2 {
		t.Errorf("participants = %d; want 2", len(rx.Participants))
	}
	if len(rx.CompoundMarkSequence) != 6 {
		t.Errorf("compound mark sequence = %d; want 6", len(rx.CompoundMarkSequence))
	}
	if len(rx.Course) != 5 {
		t.Errorf("compound marks = %d; want 5", len(rx.Course))
	}
	if len(rx.CourseLimit) != 6 {
		t.Errorf("course limits = %d; want 6", len(rx.CourseLimit))
	}
	if !rx.RaceStartTime.Postpone {
		t.Errorf("start time not postponed before the race is live")
	}
	if got := rx.CompoundMarkSequence[1].Rounding; got != "Port" {
		t.Errorf("mark 1 rounding = %q; want Port", got)
	}

	var boats boatsXML
	if err := xml.Unmarshal(docs[packet.XMLBoats], &boats); err != nil {
		t.Fatal(err)
	}
	yachts, marks := 0, 0
	for _, b := range boats.Boats {
		switch b.Type {
		case "Yacht":
			yachts++
		case "Mark":
			marks++
		}
	}
	if yachts != 2 || marks != 9 {
		t.Errorf("boats xml has %d yachts and %d marks; want 2 and 9", yachts, marks)
	}

	again, _ := documents(r, time.Unix(1500000000, 0))
	for subtype, doc := range docs {
		if !bytes.Equal(doc, again[subtype]) {
			t.Errorf("document %d is not stable", subtype)
		}
	}
}
