package server

import (
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/packet"
)

type client struct {
	id      ksuid.KSUID
	t       transport
	kind    packet.RegistrationType
	boatID  uint32
	timeout time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	flush     chan struct{}
	flushOnce sync.Once

	log *log.Entry
}

func newClient(t transport, queue int, timeout time.Duration) *client {
	id := ksuid.New()
	return &client{
		id:      id,
		t:       t,
		timeout: timeout,
		send:    make(chan []byte, queue),
		done:    make(chan struct{}),
		flush:   make(chan struct{}),
		log:     log.WithFields(log.Fields{"session": id.String(), "remote": t.String()}),
	}
}

func (c *client) isPlayer() bool {
	return c.boatID != 0
}

// enqueue never blocks: a client that cannot keep up is dropped.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		c.close("send queue full")
		return false
	}
}

func (c *client) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.t.Close()
		c.log.WithField("reason", reason).Info("Client closed")
	})
}

// finish writes what is queued then closes the client.
func (c *client) finish() {
	c.flushOnce.Do(func() {
		close(c.flush)
	})
}

func (c *client) write(b []byte) bool {
	if err := c.t.Write(b, time.Now().Add(c.timeout)); err != nil {
		c.close("write failed: " + err.Error())
		return false
	}
	return true
}

func (c *client) writeLoop() {
	for {
		select {
		case b := <-c.send:
			if !c.write(b) {
				return
			}
		case <-c.flush:
			for {
				select {
				case b := <-c.send:
					if !c.write(b) {
						return
					}
				default:
					c.close("finished")
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

type registry struct {
	mu         deadlock.RWMutex
	clients    map[ksuid.KSUID]*client
	spectators int
}

func newRegistry() *registry {
	return &registry{clients: make(map[ksuid.KSUID]*client)}
}

func (r *registry) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
}

func (r *registry) remove(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.id]; !ok {
		return false
	}
	delete(r.clients, c.id)
	return true
}

// reserveSpectator takes a spectator slot if one is left.
func (r *registry) reserveSpectator(max int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spectators >= max {
		return false
	}
	r.spectators++
	return true
}

func (r *registry) releaseSpectator() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spectators > 0 {
		r.spectators--
	}
}

func (r *registry) list() []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *registry) broadcast(packets ...[]byte) {
	for _, c := range r.list() {
		for _, b := range packets {
			if b == nil {
				continue
			}
			if !c.enqueue(b) {
				break
			}
		}
	}
}
