/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package choreo sequences motion primitives on a shared character.
//
// A Sequence plays its steps strictly one after another. Each step is bound to
// the character and mixer just before it plays, and is updated once per frame
// until it reports Finished.
package choreo

import "fmt"

// Sequence is not safe for concurrent use.
type Sequence struct {
	character Character
	mixer     Mixer
	steps     []Step
	cursor    int

	started bool
	done    bool
	err     error
	onDone  func(error)
}

func NewSequence(c Character, m Mixer, steps ...Step) *Sequence {
	return &Sequence{
		character: c,
		mixer:     m,
		steps:     steps,
	}
}

// Play starts the first step. onDone is called exactly once: with nil after
// the last step finishes, or with the error that aborted the sequence. An
// empty sequence completes before Play returns.
func (s *Sequence) Play(onDone func(error)) {
	if s.started {
		return
	}

	s.started = true
	s.onDone = onDone

	if len(s.steps) == 0 {
		s.finish(nil)
		return
	}

	s.start()
}

// Update advances the mixer and the current step by dt seconds.
func (s *Sequence) Update(dt float64) {
	if !s.started || s.done || s.cursor >= len(s.steps) {
		return
	}

	s.mixer.Update(dt)

	if s.steps[s.cursor].Update(dt) == Running {
		return
	}

	s.cursor++
	if s.cursor >= len(s.steps) {
		s.finish(nil)
		return
	}

	s.start()
}

func (s *Sequence) start() {
	step := s.steps[s.cursor]

	if err := step.Bind(s.character, s.mixer); err != nil {
		s.finish(fmt.Errorf("step %d (%s): %w", s.cursor, step, err))
		return
	}

	step.Play()
}

func (s *Sequence) finish(err error) {
	if s.done {
		return
	}

	s.done = true
	s.err = err

	if s.onDone != nil {
		s.onDone(err)
	}
}

// Done reports whether the sequence has completed or aborted.
func (s *Sequence) Done() bool {
	return s.done
}

func (s *Sequence) Err() error {
	return s.err
}

// Current returns the index of the step being played.
func (s *Sequence) Current() int {
	return s.cursor
}

func (s *Sequence) Len() int {
	return len(s.steps)
}
