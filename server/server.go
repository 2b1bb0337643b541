package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jasonlvhit/gocron"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/updater"
)

// RaceFactory prepares the next race to run.
type RaceFactory func() (*updater.Updater, error)

// Notifier sends a short text message to the race officers.
type Notifier interface {
	Send(message string) error
}

// session is the server side state of one race.
type session struct {
	updater *updater.Updater
	race    *race.Race
	xml     *xmlCache
	created time.Time
	render  sync.Mutex

	seq          map[uint32]uint32
	lastRounding map[uint32]int
}

func newSession(u *updater.Updater) *session {
	return &session{
		updater:      u,
		race:         u.Race(),
		xml:          newXMLCache(),
		created:      time.Now(),
		seq:          make(map[uint32]uint32),
		lastRounding: make(map[uint32]int),
	}
}

type Server struct {
	options  Options
	newRace  RaceFactory
	notifier Notifier
	clients  *registry
	upgrader websocket.Upgrader
	beats    atomic.Uint32

	mu      sync.RWMutex
	current *session
}

func New(options Options, newRace RaceFactory, notifier Notifier) *Server {
	return &Server{
		options:  options.withDefaults(),
		newRace:  newRace,
		notifier: notifier,
		clients:  newRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) session() *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Server) setSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

// Snapshot reads the race in progress.
func (s *Server) Snapshot() (race.Snapshot, bool) {
	sess := s.session()
	if sess == nil {
		return race.Snapshot{}, false
	}
	return sess.race.Snapshot(), true
}

// StopRace terminates the race in progress.
func (s *Server) StopRace() bool {
	sess := s.session()
	if sess == nil {
		return false
	}
	sess.updater.Stop()
	return true
}

// Run runs the configured number of races, one after the other.
func (s *Server) Run(ctx context.Context) error {
	sched := gocron.NewScheduler()
	sched.Every(s.options.Heartbeat).Seconds().Do(s.heartbeat)
	stopped := sched.Start()
	defer close(stopped)

	for n := 0; s.options.AlwaysRerun || n < s.options.NumRaces; n++ {
		if err := s.runRace(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	log.Info("No more races to run")
	return nil
}

func (s *Server) runRace(ctx context.Context) error {
	u, err := s.newRace()
	if err != nil {
		return fmt.Errorf("new race: %w", err)
	}
	sess := newSession(u)
	if _, err := s.refreshXML(sess); err != nil {
		return err
	}
	s.setSession(sess)
	defer s.setSession(nil)

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go u.Run(raceCtx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watch(sess)
	}()

	log.WithFields(log.Fields{"race": sess.race.ID, "name": sess.race.Name}).Info("Ready to run new race")

	ticker := time.NewTicker(s.options.broadcastPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-u.Done():
			s.broadcast(sess)
			for _, c := range s.clients.list() {
				c.finish()
			}
			wg.Wait()
			return nil
		case <-ticker.C:
			s.broadcast(sess)
		}
	}
}

// watch follows the race events until the race is over.
func (s *Server) watch(sess *session) {
	for e := range sess.updater.Events() {
		entry := log.WithFields(log.Fields{"race": e.RaceID, "event": e.Kind.String()})
		switch e.Kind {
		case updater.RaceLive:
			entry.Info("Race is live")
			if changed, err := s.refreshXML(sess); err == nil {
				s.clients.broadcast(changed...)
			}
			s.notify(fmt.Sprintf("Race %d (%s) is live", e.RaceID, sess.race.Name))
		case updater.BoatFinished, updater.BoatRetired, updater.BoatRegistered:
			entry.WithField("boat", e.BoatID).Info("Boat update")
		case updater.RaceTerminated:
			entry.Info("Race terminated")
			s.notify(summary(sess.race.Snapshot()))
		case updater.CollisionDetected:
			entry.Debug(e.Collision)
		default:
			entry.Debug("Race event")
		}
	}
}

func summary(snap race.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Race %d (%s) is over", snap.ID, snap.Name)
	for i, id := range snap.Placings {
		boat, _ := snap.Boat(id)
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, boat.Nickname, boat.Status)
	}
	return b.String()
}

func (s *Server) notify(message string) {
	if s.notifier == nil {
		return
	}
	go func() {
		if err := s.notifier.Send(message); err != nil {
			log.WithError(err).Warn("Notification failed")
		}
	}()
}

func (s *Server) heartbeat() {
	seq := s.beats.Add(1)
	s.clients.broadcast(packet.MustEncode(&packet.Heartbeat{Seq: seq}, 0, time.Now().UnixMilli()))
}

// refreshXML renders the race documents and returns the packets that
// changed since the last call.
func (s *Server) refreshXML(sess *session) ([][]byte, error) {
	sess.render.Lock()
	defer sess.render.Unlock()

	docs, err := documents(sess.race, sess.created)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	var changed [][]byte
	for _, subtype := range xmlOrder {
		b, ok, err := sess.xml.update(subtype, docs[subtype], now)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, b)
		}
	}
	return changed, nil
}

func encode(m packet.Message, source uint32, at int64) []byte {
	b, err := packet.Encode(m, source, at)
	if err != nil {
		log.WithError(err).WithField("type", m.Type()).Error("Encode failed")
		return nil
	}
	return b
}

// broadcast sends the race status, boat locations, mark roundings and
// pending incidents to every client.
func (s *Server) broadcast(sess *session) {
	collisions := sess.updater.Collisions()
	incidents := collisions.Collisions()
	snap := sess.race.Snapshot()
	if len(snap.Boats) == 0 {
		return
	}

	out := [][]byte{encode(raceStatus(snap), 0, snap.CurrentTime)}
	for _, b := range snap.Boats {
		if b.Status != race.BoatFinished {
			seq, ok := sess.seq[b.ID]
			if !ok {
				seq = b.ID
			}
			sess.seq[b.ID] = seq + 1
			out = append(out, encode(boatLocation(snap, b, seq), b.ID, snap.CurrentTime))
		}
		if last, ok := sess.lastRounding[b.ID]; !ok || last != b.LastRoundedMarkIndex {
			sess.lastRounding[b.ID] = b.LastRoundedMarkIndex
			if ok {
				out = append(out, encode(markRounding(snap, sess.race.Course, b), b.ID, snap.CurrentTime))
			}
		}
	}
	for _, c := range incidents {
		for _, m := range yachtEvents(snap, c) {
			out = append(out, encode(m, 0, snap.CurrentTime))
		}
		collisions.RemoveCollision(c)
	}

	s.clients.broadcast(out...)
}

func (s *Server) boatStates(sess *session) [][]byte {
	snap := sess.race.Snapshot()
	out := make([][]byte, 0, len(snap.Boats))
	for _, b := range snap.Boats {
		out = append(out, encode(boatState(b), b.ID, snap.CurrentTime))
	}
	return out
}

// Serve accepts raw AC35 clients and HTTP on the same listener. The first
// two bytes tell them apart. HTTP requests go to api unless they ask for a
// WebSocket on / or /ws.
func (s *Server) Serve(ctx context.Context, ln net.Listener, api http.Handler) error {
	httpLn := newChanListener(ln.Addr())
	srv := &http.Server{
		Handler:           s.router(api),
		ReadHeaderTimeout: s.options.RegistrationTimeout,
	}
	go srv.Serve(httpLn)

	go func() {
		<-ctx.Done()
		ln.Close()
		httpLn.Close()
		srv.Close()
	}()

	log.WithField("addr", ln.Addr().String()).Info("Listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.sniff(conn, httpLn)
	}
}

func (s *Server) router(api http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.websocket)
	router.HandleFunc("/ws", s.websocket)
	if api != nil {
		router.PathPrefix("/").Handler(api)
	}
	return router
}

func (s *Server) sniff(conn net.Conn, httpLn *chanListener) {
	br := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(s.options.RegistrationTimeout))
	head, err := br.Peek(2)
	if err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	if isRaw(head) {
		s.handle(newTCPTransport(conn, br))
		return
	}
	if !httpLn.push(&peekedConn{Conn: conn, r: br}) {
		conn.Close()
	}
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	s.handle(newWSTransport(conn))
}
