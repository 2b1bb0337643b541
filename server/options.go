package server

import "time"

type Options struct {
	MaxSpectators int
	// Broadcast is the real time between two race updates at time scale 1.
	Broadcast           time.Duration
	TimeScale           float64
	RegistrationTimeout time.Duration
	WriteTimeout        time.Duration
	SendQueue           int
	// Heartbeat in seconds.
	Heartbeat   uint64
	NumRaces    int
	AlwaysRerun bool
}

func DefaultOptions() Options {
	return Options{
		MaxSpectators:       100,
		Broadcast:           200 * time.Millisecond,
		TimeScale:           1,
		RegistrationTimeout: 10 * time.Second,
		WriteTimeout:        5 * time.Second,
		SendQueue:           256,
		Heartbeat:           1,
		NumRaces:            1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSpectators <= 0 {
		o.MaxSpectators = d.MaxSpectators
	}
	if o.Broadcast <= 0 {
		o.Broadcast = d.Broadcast
	}
	if o.TimeScale <= 0 {
		o.TimeScale = d.TimeScale
	}
	if o.RegistrationTimeout <= 0 {
		o.RegistrationTimeout = d.RegistrationTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.SendQueue <= 0 {
		o.SendQueue = d.SendQueue
	}
	if o.Heartbeat == 0 {
		o.Heartbeat = d.Heartbeat
	}
	if o.NumRaces <= 0 {
		o.NumRaces = d.NumRaces
	}
	return o
}

func (o Options) broadcastPeriod() time.Duration {
	p := time.Duration(float64(o.Broadcast) / o.TimeScale)
	if p < time.Millisecond {
		p = time.Millisecond
	}
	return p
}
