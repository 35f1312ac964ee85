/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package election decides, per participant, whether it drives the shared
// character or watches it.
//
// There is no consensus. Each participant holds its own Role; a driver hands
// the role on by addressing one peer when its routine finishes, and observers
// promote themselves when no driver has announced itself for a whole liveness
// window. Two drivers may briefly coexist after independent failovers; the
// overlap fades at the next handoff.
package election

import (
	"math/rand/v2"
	"time"

	"github.com/Seednode/petshow/protocol"
)

const (
	DefaultHeartbeat = 3 * time.Second
	DefaultWindow    = 10 * time.Second
)

type Role int

const (
	Observer Role = iota
	Driver
)

func (r Role) String() string {
	if r == Driver {
		return "driver"
	}
	return "observer"
}

// Reason records why a participant became driver.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonFailover
	ReasonHandoff
)

func (r Reason) String() string {
	switch r {
	case ReasonFailover:
		return "failover"
	case ReasonHandoff:
		return "handoff"
	default:
		return "none"
	}
}

type Config struct {
	Self   string
	Window time.Duration
	Rand   *rand.Rand
}

// Election is the per-participant role state machine. It is not safe for
// concurrent use; the orchestrator owns it from a single goroutine.
type Election struct {
	self           string
	window         time.Duration
	role           Role
	lastDriverSeen time.Time
	peers          *Peers
}

// New starts an observer. start seeds the last driver sighting, so with no
// driver around the first failover happens one window after start.
func New(cfg Config, start time.Time) *Election {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	return &Election{
		self:           cfg.Self,
		window:         cfg.Window,
		role:           Observer,
		lastDriverSeen: start,
		peers:          NewPeers(cfg.Self, cfg.Rand),
	}
}

func (e *Election) Self() string {
	return e.self
}

func (e *Election) Role() Role {
	return e.role
}

func (e *Election) LastDriverSeen() time.Time {
	return e.lastDriverSeen
}

func (e *Election) Peers() *Peers {
	return e.peers
}

func (e *Election) Window() time.Duration {
	return e.window
}

// Heartbeat runs the periodic check. It returns the presence announcement to
// broadcast, reflecting the role held before this beat, and reports whether
// the liveness window expired and this participant took over as driver.
func (e *Election) Heartbeat(now time.Time) (protocol.Message, Reason) {
	announce := protocol.Notify(e.self, e.role == Driver)

	if e.role == Driver {
		e.sawDriver(now)
		return announce, ReasonNone
	}

	if now.Sub(e.lastDriverSeen) > e.window && e.promote() {
		return announce, ReasonFailover
	}

	return announce, ReasonNone
}

// Receive applies an inbound relay message and reports whether it promoted
// this participant.
func (e *Election) Receive(m protocol.Message, now time.Time) Reason {
	switch m.Kind {
	case protocol.KindNotify:
		e.peers.Observe(m.ID, now)
		if m.Master {
			e.sawDriver(now)
		}
	case protocol.KindSwitch:
		if m.ID == e.self && e.promote() {
			return ReasonHandoff
		}
	}

	return ReasonNone
}

// Relinquish is called by the driver when its routine finishes. With a live
// peer available it returns the handoff addressed to that peer and becomes an
// observer; otherwise it stays driver and ok is false.
func (e *Election) Relinquish(now time.Time) (handoff protocol.Message, ok bool) {
	if e.role != Driver {
		return protocol.Message{}, false
	}

	target, found := e.peers.PickHandoffTarget(now, e.window)
	if !found {
		return protocol.Message{}, false
	}

	e.role = Observer

	return protocol.Switch(target), true
}

// promote is the single observer-to-driver transition. It is a no-op for a
// participant that already drives.
func (e *Election) promote() bool {
	if e.role == Driver {
		return false
	}

	e.role = Driver

	return true
}

func (e *Election) sawDriver(now time.Time) {
	if now.After(e.lastDriverSeen) {
		e.lastDriverSeen = now
	}
}
