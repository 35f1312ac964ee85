package choreo

import "fmt"

type fakeCharacter struct {
	position Vec3
	facing   Vec3
	up       Vec3
}

func newFakeCharacter() *fakeCharacter {
	return &fakeCharacter{facing: V(0, 0, 1), up: V(0, 1, 0)}
}

func (c *fakeCharacter) Position() Vec3     { return c.position }
func (c *fakeCharacter) SetPosition(p Vec3) { c.position = p }
func (c *fakeCharacter) Facing() Vec3       { return c.facing }
func (c *fakeCharacter) Face(dir Vec3)      { c.facing = dir.Normalize() }
func (c *fakeCharacter) Up() Vec3           { return c.up }

type fakeAction struct {
	duration float64
	loop     Loop
	time     float64
	running  bool
	plays    int
}

func (a *fakeAction) Play(loop Loop) {
	a.loop = loop
	a.time = 0
	a.running = true
	a.plays++
}

func (a *fakeAction) Stop()         { a.running = false }
func (a *fakeAction) Running() bool { return a.running }

type fakeMixer struct {
	clips   map[string]float64
	actions map[string]*fakeAction
}

func newFakeMixer(clips map[string]float64) *fakeMixer {
	return &fakeMixer{clips: clips, actions: make(map[string]*fakeAction)}
}

func (m *fakeMixer) Action(name string) (Action, error) {
	if a, ok := m.actions[name]; ok {
		return a, nil
	}

	d, ok := m.clips[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClip, name)
	}

	a := &fakeAction{duration: d}
	m.actions[name] = a

	return a, nil
}

func (m *fakeMixer) Update(dt float64) {
	for _, a := range m.actions {
		if !a.running {
			continue
		}
		a.time += dt
		if a.loop == LoopOnce && a.time >= a.duration {
			a.running = false
		}
	}
}

func locomotionMixer() *fakeMixer {
	return newFakeMixer(map[string]float64{
		WalkClip: 1,
		RunClip:  0.8,
		"wave":   0.5,
	})
}
