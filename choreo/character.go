/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package choreo

import "errors"

var ErrUnknownClip = errors.New("unknown animation clip")

// Character is the shared figure a sequence moves around.
type Character interface {
	Position() Vec3
	SetPosition(Vec3)
	// Facing is the unit direction the character looks along.
	Facing() Vec3
	// Face turns the character to look along dir.
	Face(dir Vec3)
	Up() Vec3
}

// Loop selects whether a clip repeats or plays through once.
type Loop int

const (
	LoopOnce Loop = iota
	LoopRepeat
)

// Action is one clip's playback on a Mixer.
type Action interface {
	// Play rewinds the clip and starts it.
	Play(Loop)
	Stop()
	Running() bool
}

// Mixer resolves clips by exact name and advances all of their actions.
// Action returns an error wrapping ErrUnknownClip when name is not present.
type Mixer interface {
	Action(name string) (Action, error)
	Update(dt float64)
}
