/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rig

import (
	"fmt"
	"math"
	"slices"

	"github.com/Seednode/petshow/choreo"
)

// Mixer plays clips from a Library. Each clip has a single Action that is
// reused every time the clip is requested.
type Mixer struct {
	library *Library
	actions map[string]*Action
}

func NewMixer(library *Library) *Mixer {
	return &Mixer{
		library: library,
		actions: make(map[string]*Action),
	}
}

func (m *Mixer) Action(name string) (choreo.Action, error) {
	if a, ok := m.actions[name]; ok {
		return a, nil
	}

	clip, ok := m.library.Clip(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", choreo.ErrUnknownClip, name)
	}

	a := &Action{clip: clip}
	m.actions[name] = a

	return a, nil
}

func (m *Mixer) Update(dt float64) {
	if dt <= 0 {
		return
	}

	for _, a := range m.actions {
		a.advance(dt)
	}
}

// Playing returns the names of running clips in sorted order.
func (m *Mixer) Playing() []string {
	var names []string
	for name, a := range m.actions {
		if a.running {
			names = append(names, name)
		}
	}

	slices.Sort(names)

	return names
}

// Action tracks playback of one clip.
type Action struct {
	clip    Clip
	loop    choreo.Loop
	time    float64
	running bool
}

func (a *Action) Play(loop choreo.Loop) {
	a.loop = loop
	a.time = 0
	a.running = true
}

func (a *Action) Stop() {
	a.running = false
	a.time = 0
}

func (a *Action) Running() bool {
	return a.running
}

// Time is the playhead position within the clip, in seconds.
func (a *Action) Time() float64 {
	return a.time
}

func (a *Action) advance(dt float64) {
	if !a.running {
		return
	}

	a.time += dt

	if a.time < a.clip.Duration {
		return
	}

	if a.loop == choreo.LoopRepeat {
		a.time = math.Mod(a.time, a.clip.Duration)
		return
	}

	a.time = a.clip.Duration
	a.running = false
}
