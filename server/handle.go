package server

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/packet"
	"github.com/a-bouts/regatta-server/updater"
)

var roles = map[packet.RegistrationType]updater.Role{
	packet.RegisterPlayer:   updater.Player,
	packet.RegisterTutorial: updater.Tutorial,
	packet.RegisterGhost:    updater.Ghost,
}

var successes = map[packet.RegistrationType]packet.ResponseStatus{
	packet.RegisterSpectator: packet.SpectatorSuccess,
	packet.RegisterPlayer:    packet.PlayerSuccess,
	packet.RegisterTutorial:  packet.TutorialSuccess,
	packet.RegisterGhost:     packet.GhostSuccess,
}

// handle serves one client from registration to disconnection.
func (s *Server) handle(t transport) {
	c := newClient(t, s.options.SendQueue, s.options.WriteTimeout)
	defer c.close("disconnected")

	t.SetReadDeadline(time.Now().Add(s.options.RegistrationTimeout))
	_, m, err := t.Read()
	if err != nil {
		c.log.WithError(err).Debug("No registration")
		return
	}
	req, ok := m.(*packet.RegistrationRequest)
	if !ok {
		c.log.WithField("type", m.Type()).Warn("Expected a registration request")
		return
	}
	t.SetReadDeadline(time.Time{})

	sess := s.session()
	c.kind = req.Kind
	status := s.register(sess, c)
	c.log = c.log.WithFields(log.Fields{"kind": req.Kind, "boat": c.boatID, "status": status})

	go c.writeLoop()
	c.enqueue(encode(&packet.RegistrationResponse{Source: c.boatID, Status: status}, 0, time.Now().UnixMilli()))
	if !status.Success() {
		c.log.Info("Registration refused")
		c.finish()
		<-c.done
		return
	}
	c.log.Info("Client registered")
	defer s.drop(sess, c)

	if c.isPlayer() {
		changed, err := s.refreshXML(sess)
		if err != nil {
			c.log.WithError(err).Error("XML refresh failed")
		}
		s.clients.broadcast(changed...)
		s.clients.add(c)
		for _, b := range sess.xml.packets() {
			c.enqueue(b)
		}
		s.clients.broadcast(s.boatStates(sess)...)
	} else {
		s.clients.add(c)
		for _, b := range sess.xml.packets() {
			c.enqueue(b)
		}
		for _, b := range s.boatStates(sess) {
			c.enqueue(b)
		}
	}

	s.read(sess, c)
}

func (s *Server) register(sess *session, c *client) packet.ResponseStatus {
	if sess == nil {
		return packet.RaceUnavailable
	}

	if c.kind == packet.RegisterSpectator {
		if !sess.updater.Live() {
			return packet.RaceUnavailable
		}
		if !s.clients.reserveSpectator(s.options.MaxSpectators) {
			return packet.OutOfSlots
		}
		return packet.SpectatorSuccess
	}

	role, ok := roles[c.kind]
	if !ok {
		return packet.Failure
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.options.RegistrationTimeout)
	defer cancel()
	id, err := sess.updater.Register(ctx, role)
	switch {
	case err == nil:
		c.boatID = id
		return successes[c.kind]
	case errors.Is(err, updater.ErrOutOfSlots):
		return packet.OutOfSlots
	case errors.Is(err, updater.ErrUnavailable), errors.Is(err, updater.ErrStopped):
		return packet.RaceUnavailable
	}
	c.log.WithError(err).Warn("Registration failed")
	return packet.Failure
}

func (s *Server) read(sess *session, c *client) {
	for {
		_, m, err := c.t.Read()
		if err != nil {
			if packet.Recoverable(err) {
				c.log.WithError(err).Warn("Malformed packet")
			}
			return
		}
		switch m := m.(type) {
		case *packet.BoatAction:
			if !c.isPlayer() {
				continue
			}
			err := sess.updater.Submit(updater.Action{BoatID: c.boatID, Action: updater.BoatAction(m.Action)})
			if err != nil {
				c.log.WithError(err).Warn("Action dropped")
			}
		default:
			c.log.WithField("type", m.Type()).Debug("Ignored packet")
		}
	}
}

// drop forgets a client. A player leaving retires its boat.
func (s *Server) drop(sess *session, c *client) {
	c.close("disconnected")
	if !s.clients.remove(c) {
		return
	}
	if c.kind == packet.RegisterSpectator {
		s.clients.releaseSpectator()
	}
	if c.isPlayer() {
		if err := sess.updater.Submit(updater.Disconnect{BoatID: c.boatID}); err != nil && !errors.Is(err, updater.ErrStopped) {
			c.log.WithError(err).Warn("Could not retire boat")
		}
	}
}
