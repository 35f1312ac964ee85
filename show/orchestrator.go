/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package show runs one participant: it ties the driver election to the
// choreography so that whoever drives performs the routine, then hands the
// character to another participant.
package show

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/Seednode/petshow/choreo"
	"github.com/Seednode/petshow/election"
	"github.com/Seednode/petshow/protocol"
	"github.com/Seednode/petshow/relay"
)

const (
	DefaultFrameRate = 60
	defaultInboxSize = 256
)

type Options struct {
	Self      string
	Heartbeat time.Duration
	Window    time.Duration
	FrameRate int
	InboxSize int
	Routine   Routine
	Rand      *rand.Rand
	Now       func() time.Time
	Logf      func(format string, args ...any)
}

// Visibility is implemented by characters that can be shown and hidden.
type Visibility interface {
	SetVisible(bool)
}

type completion struct {
	seq *choreo.Sequence
	err error
}

// Orchestrator owns every piece of mutable participant state. All of it is
// touched only from the goroutine running Run, or from the caller driving
// Tick, Heartbeat and Drain by hand; relay handlers merely queue frames.
type Orchestrator struct {
	opts      Options
	channel   relay.Channel
	character choreo.Character
	newMixer  func() choreo.Mixer

	election *election.Election
	rng      *rand.Rand

	seq       *choreo.Sequence
	pending   *completion
	performed int

	inbox chan []byte
}

// New wires an orchestrator to its relay channel. The character is assumed
// loaded; the participant starts out observing.
func New(channel relay.Channel, character choreo.Character, newMixer func() choreo.Mixer, opts Options) *Orchestrator {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = election.DefaultHeartbeat
	}
	if opts.Window <= 0 {
		opts.Window = election.DefaultWindow
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}
	if opts.Routine == nil {
		opts.Routine = DefaultRoutine
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	o := &Orchestrator{
		opts:      opts,
		channel:   channel,
		character: character,
		newMixer:  newMixer,
		rng:       opts.Rand,
		inbox:     make(chan []byte, opts.InboxSize),
		election: election.New(election.Config{
			Self:   opts.Self,
			Window: opts.Window,
			Rand:   opts.Rand,
		}, opts.Now()),
	}

	channel.OnMessage(o.enqueue)

	return o
}

// enqueue runs on the relay's goroutine. A full inbox drops the frame.
func (o *Orchestrator) enqueue(data []byte) {
	select {
	case o.inbox <- data:
	default:
		o.opts.Logf("SHOW: Inbox full, dropped %d byte frame", len(data))
	}
}

// Run drives the participant until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	frames := time.NewTicker(time.Second / time.Duration(o.opts.FrameRate))
	defer frames.Stop()

	beats := time.NewTicker(o.opts.Heartbeat)
	defer beats.Stop()

	o.opts.Logf("SHOW: Joined as %s (%s)", o.opts.Self, o.election.Role())

	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			o.opts.Logf("SHOW: Leaving as %s", o.election.Role())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case data := <-o.inbox:
			o.Deliver(ctx, data)

		case t := <-frames.C:
			o.Tick(ctx, t.Sub(last).Seconds())
			last = t

		case <-beats.C:
			o.Heartbeat(ctx)
		}
	}
}

// Drain handles every frame already queued and returns how many there were.
func (o *Orchestrator) Drain(ctx context.Context) int {
	n := 0

	for {
		select {
		case data := <-o.inbox:
			o.Deliver(ctx, data)
			n++
		default:
			return n
		}
	}
}

// Deliver applies one inbound frame. Frames that fail to decode are dropped.
func (o *Orchestrator) Deliver(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		o.opts.Logf("SHOW: Dropped frame: %v", err)
		return
	}

	if reason := o.election.Receive(msg, o.opts.Now()); reason != election.ReasonNone {
		o.opts.Logf("SHOW: Took over as driver (%s)", reason)
		o.startSequence(ctx)
	}
}

// Heartbeat announces this participant and, for observers, checks whether the
// driver has gone quiet for longer than the liveness window.
func (o *Orchestrator) Heartbeat(ctx context.Context) {
	now := o.opts.Now()

	if gone := o.election.Peers().Prune(now, o.opts.Window); len(gone) > 0 {
		o.opts.Logf("SHOW: Peers left: %v", gone)
	}

	announce, reason := o.election.Heartbeat(now)
	o.send(ctx, announce)

	if reason != election.ReasonNone {
		o.opts.Logf("SHOW: No driver seen since %s, taking over (%s)",
			o.election.LastDriverSeen().Format(time.RFC3339), reason)
		o.startSequence(ctx)
	}
}

// Tick advances the running sequence by dt seconds.
func (o *Orchestrator) Tick(ctx context.Context, dt float64) {
	if o.seq != nil {
		o.seq.Update(dt)
	}

	o.settle(ctx)
}

func (o *Orchestrator) startSequence(ctx context.Context) {
	seq := choreo.NewSequence(o.character, o.newMixer(), o.opts.Routine(o.rng)...)

	o.seq = seq
	o.performed++

	o.send(ctx, protocol.Notify(o.opts.Self, o.election.Role() == election.Driver))
	o.setVisible(true)

	o.opts.Logf("SHOW: Starting performance %d with %d steps", o.performed, seq.Len())

	seq.Play(func(err error) {
		o.pending = &completion{seq: seq, err: err}
	})
}

// settle acts on a finished sequence outside of the sequence's own update.
// At most one completion is handled per call, so an empty routine restarts at
// the next tick rather than spinning.
func (o *Orchestrator) settle(ctx context.Context) {
	p := o.pending
	if p == nil {
		return
	}
	o.pending = nil

	if p.seq != o.seq {
		return
	}

	o.seq = nil
	o.setVisible(false)

	if p.err != nil {
		o.opts.Logf("SHOW: Performance %d aborted: %v", o.performed, p.err)
	} else {
		o.opts.Logf("SHOW: Performance %d finished", o.performed)
	}

	if o.election.Role() != election.Driver {
		return
	}

	handoff, ok := o.election.Relinquish(o.opts.Now())
	if !ok {
		o.opts.Logf("SHOW: No peers to hand off to, performing again")
		o.startSequence(ctx)
		return
	}

	o.send(ctx, handoff)
	o.opts.Logf("SHOW: Handed off to %s", handoff.ID)
}

func (o *Orchestrator) send(ctx context.Context, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		o.opts.Logf("SHOW: Encode %s: %v", msg.Kind, err)
		return
	}

	if err := o.channel.Send(ctx, data); err != nil {
		o.opts.Logf("SHOW: Send %s: %v", msg.Kind, err)
	}
}

func (o *Orchestrator) setVisible(v bool) {
	if vis, ok := o.character.(Visibility); ok {
		vis.SetVisible(v)
	}
}

func (o *Orchestrator) Role() election.Role {
	return o.election.Role()
}

func (o *Orchestrator) Election() *election.Election {
	return o.election
}

// Sequence returns the running sequence, or nil while observing.
func (o *Orchestrator) Sequence() *choreo.Sequence {
	return o.seq
}

// Performed counts the sequences started so far.
func (o *Orchestrator) Performed() int {
	return o.performed
}
