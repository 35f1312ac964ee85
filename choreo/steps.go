/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package choreo

import "fmt"

const (
	WalkSpeed = 23.0
	RunSpeed  = 60.0

	TurnDuration = 0.3

	// overshootThreshold is how far the unit heading may drift between the
	// start and the end of one update before the target counts as passed.
	overshootThreshold = 0.1

	// arrivalTolerance absorbs rounding when the distance is an exact
	// multiple of the per-tick step.
	arrivalTolerance = 1e-9
)

const (
	WalkClip = "BuddyDroid_01_rig.ao|BuddyDroid_NAV_SlowWalk"
	RunClip  = "BuddyDroid_01_rig.ao|BuddyDroid_NAV_Walk"
)

type Status int

const (
	Running Status = iota
	Finished
)

func (s Status) String() string {
	if s == Finished {
		return "finished"
	}
	return "running"
}

// Step is one motion primitive. Bind attaches it to the character and mixer,
// Play starts it, and Update advances it by dt seconds.
type Step interface {
	Bind(c Character, m Mixer) error
	Play()
	Update(dt float64) Status
	fmt.Stringer
}

// Teleport places the character at Target.
type Teleport struct {
	Target Vec3

	character Character
}

func (s *Teleport) Bind(c Character, _ Mixer) error {
	s.character = c
	return nil
}

func (s *Teleport) Play() {
	s.character.SetPosition(s.Target)
}

func (s *Teleport) Update(float64) Status {
	return Finished
}

func (s *Teleport) String() string {
	return fmt.Sprintf("teleport%v", s.Target)
}

// Turn rotates the character in place, about its up axis, until it faces
// Toward. It always takes the shorter way round.
type Turn struct {
	Toward Vec3
	// Clip is shuffled once while turning; empty for a silent turn.
	Clip string

	character Character
	action    Action
	begin     Vec3
	angle     float64
	elapsed   float64
}

func (s *Turn) Bind(c Character, m Mixer) error {
	s.character = c

	if s.Clip == "" {
		return nil
	}

	action, err := m.Action(s.Clip)
	if err != nil {
		return err
	}
	s.action = action

	return nil
}

func (s *Turn) Play() {
	up := s.character.Up()
	position := s.character.Position().Flatten(up)
	target := s.Toward.Sub(position).Flatten(up).Normalize()

	s.begin = s.character.Facing()
	s.angle = signedAngle(s.begin, target, up)
	s.elapsed = 0

	if s.action != nil {
		s.action.Play(LoopOnce)
	}
}

func (s *Turn) Update(dt float64) Status {
	s.elapsed += dt

	status := Running
	if s.elapsed >= TurnDuration {
		s.elapsed = TurnDuration
		status = Finished
		if s.action != nil {
			s.action.Stop()
		}
	}

	up := s.character.Up()
	s.character.Face(s.begin.Rotate(up, s.angle*s.elapsed/TurnDuration))

	return status
}

func (s *Turn) String() string {
	return fmt.Sprintf("turn%v", s.Toward)
}

// Angle is the signed rotation chosen at Play, in radians.
func (s *Turn) Angle() float64 {
	return s.angle
}

// signedAngle returns the rotation about up that carries from onto to. When
// the two are exactly opposed the cross product vanishes and the turn goes
// counter-clockwise by pi.
func signedAngle(from, to, up Vec3) float64 {
	if to == (Vec3{}) || from == (Vec3{}) {
		return 0
	}

	angle := to.AngleTo(from)
	if to.Cross(from).Dot(up) > 0 {
		angle = -angle
	}

	return angle
}

// Move walks or runs the character in a straight line to Target while a
// looping locomotion clip plays.
type Move struct {
	Target Vec3
	Speed  float64
	Clip   string

	character Character
	action    Action
}

func Walk(target Vec3) *Move {
	return &Move{Target: target, Speed: WalkSpeed, Clip: WalkClip}
}

func Run(target Vec3) *Move {
	return &Move{Target: target, Speed: RunSpeed, Clip: RunClip}
}

func (s *Move) Bind(c Character, m Mixer) error {
	s.character = c

	action, err := m.Action(s.Clip)
	if err != nil {
		return err
	}
	s.action = action

	return nil
}

func (s *Move) Play() {
	s.action.Play(LoopRepeat)
}

// Update advances along the heading and finishes once the heading toward the
// target flips, which catches overshoot however large dt is, or once the
// step lands on the target.
func (s *Move) Update(dt float64) Status {
	if dt <= 0 {
		return Running
	}

	position := s.character.Position()
	heading := s.Target.Sub(position).Normalize()
	if heading == (Vec3{}) {
		return s.arrive()
	}

	next := position.Add(heading.Scale(s.Speed * dt))
	check := s.Target.Sub(next).Normalize()

	if check.Dist(heading) > overshootThreshold || s.Target.Dist(next) <= arrivalTolerance {
		return s.arrive()
	}

	s.character.SetPosition(next)

	return Running
}

func (s *Move) arrive() Status {
	s.character.SetPosition(s.Target)
	s.action.Stop()

	return Finished
}

func (s *Move) String() string {
	if s.Speed >= RunSpeed {
		return fmt.Sprintf("run%v", s.Target)
	}
	return fmt.Sprintf("walk%v", s.Target)
}

// Clip plays a named one-shot clip in place and finishes when it stops.
type Clip struct {
	Name string

	action Action
}

func (s *Clip) Bind(_ Character, m Mixer) error {
	action, err := m.Action(s.Name)
	if err != nil {
		return err
	}
	s.action = action

	return nil
}

func (s *Clip) Play() {
	s.action.Play(LoopOnce)
}

func (s *Clip) Update(float64) Status {
	if s.action.Running() {
		return Running
	}
	return Finished
}

func (s *Clip) String() string {
	return fmt.Sprintf("clip(%s)", s.Name)
}
