package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"

	"github.com/a-bouts/regatta-server/latlon"
	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/polar"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/updater"
)

func newUpdater(t *testing.T, options updater.Options) *updater.Updater {
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
	options.Seed = 1
	return updater.New(race.New("test", c, time.Now()), starters, polar.Default(), options)
}

// running returns a server with a race in progress.
func running(t *testing.T, options updater.Options) (*Server, *session) {
	t.Helper()
	options.Step = time.Millisecond
	u := newUpdater(t, options)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go u.Run(ctx)

	s := New(DefaultOptions(), nil, nil)
	sess := newSession(u)
	if _, err := s.refreshXML(sess); err != nil {
		t.Fatal(err)
	}
	s.setSession(sess)
	return s, sess
}

type raw struct {
	conn net.Conn
	r    *packet.Reader
}

func dial(t *testing.T, s *Server, kind packet.RegistrationType) *raw {
	t.Helper()
	server, conn := net.Pipe()
	go s.handle(newTCPTransport(server, nil))
	t.Cleanup(func() { conn.Close() })

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(packet.MustEncode(&packet.RegistrationRequest{Kind: kind}, 0, 0)); err != nil {
		t.Fatal(err)
	}
	return &raw{conn: conn, r: packet.NewReader(conn)}
}

func (c *raw) next(t *testing.T) packet.Message {
	t.Helper()
	_, m, err := c.r.Read()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func (c *raw) response(t *testing.T) *packet.RegistrationResponse {
	t.Helper()
	m := c.next(t)
	res, ok := m.(*packet.RegistrationResponse)
	if !ok {
		t.Fatalf("first packet = %s; want a registration response", spew.Sdump(m))
	}
	return res
}

func TestPlayerRegistration(t *testing.T) {
	s, sess := running(t, updater.DefaultOptions())

	c := dial(t, s, packet.RegisterPlayer)
	res := c.response(t)
	if res.Status != packet.PlayerSuccess || res.Source != 101 {
		t.Fatalf("response = %+v; want player success for 101", res)
	}

	for _, want := range xmlOrder {
		x, ok := c.next(t).(*packet.XML)
		if !ok || x.Subtype != want {
			t.Fatalf("packet = %s; want xml %d", spew.Sdump(x), want)
		}
		if want == packet.XMLBoats {
			if x.Seq != 2 {
				t.Errorf("boats xml seq = %d; want 2", x.Seq)
			}
			if !bytes.Contains(x.Text, []byte(`SourceID="101"`)) {
				t.Errorf("boats xml has no boat 101:\n%s", x.Text)
			}
		}
	}
	if st, ok := c.next(t).(*packet.BoatState); !ok || st.Source != 101 || st.Health != 100 {
		t.Errorf("packet = %s; want boat state of 101", spew.Sdump(st))
	}
	if n := len(sess.race.Snapshot().Boats); n != 1 {
		t.Errorf("competitors = %d; want 1", n)
	}
}

func TestOutOfSlots(t *testing.T) {
	options := updater.DefaultOptions()
	options.MaxCompetitors = 1
	s, sess := running(t, options)

	if res := dial(t, s, packet.RegisterPlayer).response(t); res.Status != packet.PlayerSuccess {
		t.Fatalf("first player = %+v", res)
	}
	c := dial(t, s, packet.RegisterPlayer)
	if res := c.response(t); res.Status != packet.OutOfSlots {
		t.Errorf("second player = %+v; want out of slots", res)
	}
	if _, _, err := c.r.Read(); err != io.EOF {
		t.Errorf("Read() = %v; want EOF", err)
	}
	if n := len(sess.race.Snapshot().Boats); n != 1 {
		t.Errorf("competitors = %d; want 1", n)
	}
}

func TestSpectators(t *testing.T) {
	options := updater.DefaultOptions()
	options.MinParticipants = 1
	s, _ := running(t, options)
	s.options.MaxSpectators = 1

	c := dial(t, s, packet.RegisterSpectator)
	if res := c.response(t); res.Status != packet.RaceUnavailable {
		t.Errorf("spectator before live = %+v; want race unavailable", res)
	}

	dial(t, s, packet.RegisterPlayer).response(t)

	if res := dial(t, s, packet.RegisterSpectator).response(t); res.Status != packet.SpectatorSuccess {
		t.Errorf("spectator = %+v; want success", res)
	}
	if res := dial(t, s, packet.RegisterSpectator).response(t); res.Status != packet.OutOfSlots {
		t.Errorf("second spectator = %+v; want out of slots", res)
	}
}

func TestTutorialRefused(t *testing.T) {
	s, _ := running(t, updater.DefaultOptions())
	if res := dial(t, s, packet.RegisterTutorial).response(t); res.Status != packet.RaceUnavailable {
		t.Errorf("tutorial = %+v; want race unavailable", res)
	}
}

func TestNoRace(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	if res := dial(t, s, packet.RegisterPlayer).response(t); res.Status != packet.RaceUnavailable {
		t.Errorf("response = %+v; want race unavailable", res)
	}
}

func retired(t *testing.T, sess *session, id uint32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := sess.race.Snapshot().Boat(id); ok && b.Status == race.BoatDNF {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("boat %d was not retired", id)
}

func TestDisconnectRetiresBoat(t *testing.T) {
	s, sess := running(t, updater.DefaultOptions())

	c := dial(t, s, packet.RegisterPlayer)
	id := c.response(t).Source
	c.conn.Close()

	retired(t, sess, id)
}

func TestMalformedPacketDropsPlayer(t *testing.T) {
	s, sess := running(t, updater.DefaultOptions())

	c := dial(t, s, packet.RegisterPlayer)
	id := c.response(t).Source

	b := packet.MustEncode(&packet.BoatAction{Source: id, Action: uint8(updater.SailsIn)}, id, 0)
	b[len(b)-1] ^= 0xff
	if _, err := c.conn.Write(b); err != nil {
		t.Fatal(err)
	}

	var err error
	for err == nil {
		_, _, err = c.r.Read()
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Read() = %v; want the connection closed", err)
	}
	retired(t, sess, id)
	if n := s.clients.len(); n != 0 {
		t.Errorf("registered clients = %d; want 0", n)
	}
}

type fakeTransport struct {
	writes chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writes: make(chan []byte, 1024), closed: make(chan struct{})}
}

func (f *fakeTransport) Read() (packet.Header, packet.Message, error) {
	<-f.closed
	return packet.Header{}, nil, io.EOF
}

func (f *fakeTransport) Write(b []byte, _ time.Time) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.writes <- b
	return nil
}

func (f *fakeTransport) SetReadDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) String() string { return "fake" }

func (f *fakeTransport) messages(t *testing.T) []packet.Message {
	t.Helper()
	var out []packet.Message
	for {
		select {
		case b := <-f.writes:
			_, m, err := packet.NewReader(bytes.NewReader(b)).Read()
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, m)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestBroadcast(t *testing.T) {
	options := updater.DefaultOptions()
	options.Prestart = 0
	u := newUpdater(t, options)
	for i := 0; i < 2; i++ {
		if err := u.Submit(updater.Register{Role: updater.Player, Reply: make(chan updater.RegisterResult, 1)}); err != nil {
			t.Fatal(err)
		}
	}
	u.Tick()
	u.Tick()

	s := New(DefaultOptions(), nil, nil)
	sess := newSession(u)
	ft := newFakeTransport()
	c := newClient(ft, 256, time.Second)
	s.clients.add(c)
	go c.writeLoop()
	defer c.close("test")

	s.broadcast(sess)
	s.broadcast(sess)
	got := ft.messages(t)
	if len(got) != 6 {
		t.Fatalf("got %d packets; want 6: %s", len(got), spew.Sdump(got))
	}
	if _, ok := got[0].(*packet.RaceStatus); !ok {
		t.Errorf("first packet = %T; want race status", got[0])
	}
	seqs := map[uint32][]uint32{}
	for _, m := range got {
		if l, ok := m.(*packet.BoatLocation); ok {
			seqs[l.Source] = append(seqs[l.Source], l.Seq)
		}
	}
	for id, s := range seqs {
		if len(s) != 2 || s[0] != id || s[1] != id+1 {
			t.Errorf("boat %d sequence = %v; want [%d %d]", id, s, id, id+1)
		}
	}

	u.Race().Update(func(r *race.Race) {
		r.Competitors[0].LastRoundedMarkIndex = 1
	})
	s.broadcast(sess)
	var rounding *packet.MarkRounding
	for _, m := range ft.messages(t) {
		if mr, ok := m.(*packet.MarkRounding); ok {
			rounding = mr
		}
	}
	if rounding == nil || rounding.Source != 101 || rounding.MarkID != 2 {
		t.Errorf("mark rounding = %s; want boat 101 rounding mark 2", spew.Sdump(rounding))
	}

	spot := latlon.LatLon{Lat: 32.300, Lon: -64.845}
	u.Race().Update(func(r *race.Race) {
		for _, b := range r.Competitors {
			b.Position = spot
		}
	})
	u.Tick()
	s.broadcast(sess)
	var events []packet.EventCode
	states := 0
	for _, m := range ft.messages(t) {
		switch m := m.(type) {
		case *packet.YachtEvent:
			events = append(events, m.Event)
		case *packet.BoatState:
			states++
		}
	}
	if len(events) == 0 || events[0] != packet.EventCollision {
		t.Errorf("yacht events = %v; want a collision first", events)
	}
	if states != 2 {
		t.Errorf("boat states = %d; want 2", states)
	}
	if n := len(u.Collisions().Unacknowledged()); n != 0 {
		t.Errorf("unacknowledged incidents = %d; want 0", n)
	}
}

func TestSlowClientDropped(t *testing.T) {
	ft := newFakeTransport()
	c := newClient(ft, 1, time.Second)
	if !c.enqueue([]byte{1}) {
		t.Fatalf("enqueue() = false on an empty queue")
	}
	if c.enqueue([]byte{2}) {
		t.Errorf("enqueue() = true on a full queue")
	}
	select {
	case <-c.done:
	default:
		t.Errorf("slow client was not closed")
	}
}

func TestFinishFlushes(t *testing.T) {
	ft := newFakeTransport()
	c := newClient(ft, 8, time.Second)
	c.enqueue([]byte{1})
	c.enqueue([]byte{2})
	c.finish()
	c.writeLoop()

	if len(ft.writes) != 2 {
		t.Errorf("written %d packets; want 2", len(ft.writes))
	}
	select {
	case <-ft.closed:
	default:
		t.Errorf("transport not closed")
	}
}

type notes chan string

func (n notes) Send(message string) error {
	n <- message
	return nil
}

func TestRunStopsRace(t *testing.T) {
	options := DefaultOptions()
	n := make(notes, 8)
	o := updater.DefaultOptions()
	o.Step = time.Millisecond
	u := newUpdater(t, o)
	s := New(options, func() (*updater.Updater, error) { return u, nil }, n)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for !s.StopRace() {
		if time.Now().After(deadline) {
			t.Fatal("no race was set up")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
	if _, ok := s.Snapshot(); ok {
		t.Errorf("Snapshot() ok after the last race")
	}

	select {
	case m := <-n:
		if !strings.Contains(m, "is over") {
			t.Errorf("notification = %q", m)
		}
	case <-time.After(5 * time.Second):
		t.Errorf("no notification")
	}
}

func TestServe(t *testing.T) {
	s, _ := running(t, updater.DefaultOptions())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "api "+r.URL.Path)
	})
	go s.Serve(ctx, ln, api)
	addr := ln.Addr().String()

	resp, err := http.Get("http://" + addr + "/race/-/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "api /race/-/healthz" {
		t.Errorf("GET healthz = %q", body)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	conn.Write(packet.MustEncode(&packet.RegistrationRequest{Kind: packet.RegisterPlayer}, 0, 0))
	c := &raw{conn: conn, r: packet.NewReader(conn)}
	if res := c.response(t); res.Status != packet.PlayerSuccess {
		t.Errorf("raw response = %+v; want player success", res)
	}

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	ws.WriteMessage(websocket.BinaryMessage, packet.MustEncode(&packet.RegistrationRequest{Kind: packet.RegisterPlayer}, 0, 0))
	_, b, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	_, m, err := packet.NewReader(bytes.NewReader(b)).Read()
	if err != nil {
		t.Fatal(err)
	}
	if res, ok := m.(*packet.RegistrationResponse); !ok || res.Status != packet.PlayerSuccess || res.Source != 102 {
		t.Errorf("websocket response = %s; want player success for 102", spew.Sdump(m))
	}
}

func TestIsRaw(t *testing.T) {
	tests := []struct {
		head []byte
		want bool
	}{
		{[]byte{0x47, 0x83}, true},
		{[]byte("GE"), false},
		{[]byte{0x47}, false},
	}
	for _, tt := range tests {
		if got := isRaw(tt.head); got != tt.want {
			t.Errorf("isRaw(% x) = %t; want %t", tt.head, got, tt.want)
		}
	}
}

func TestHeartbeat(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	ft := newFakeTransport()
	c := newClient(ft, 8, time.Second)
	s.clients.add(c)
	go c.writeLoop()
	defer c.close("test")

	s.heartbeat()
	s.heartbeat()
	got := ft.messages(t)
	if len(got) != 2 {
		t.Fatalf("got %d packets; want 2", len(got))
	}
	for i, m := range got {
		if hb, ok := m.(*packet.Heartbeat); !ok || hb.Seq != uint32(i+1) {
			t.Errorf("packet %d = %s; want heartbeat %d", i, spew.Sdump(m), i+1)
		}
	}
}
