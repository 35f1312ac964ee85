/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rig

import "github.com/Seednode/petshow/choreo"

// Model is the character's transform and visibility.
type Model struct {
	position choreo.Vec3
	facing   choreo.Vec3
	up       choreo.Vec3
	visible  bool
}

// NewModel returns a hidden character at the origin, upright and looking
// down +Z.
func NewModel() *Model {
	return &Model{
		facing: choreo.V(0, 0, 1),
		up:     choreo.V(0, 1, 0),
	}
}

func (m *Model) Position() choreo.Vec3 {
	return m.position
}

func (m *Model) SetPosition(p choreo.Vec3) {
	m.position = p
}

func (m *Model) Facing() choreo.Vec3 {
	return m.facing
}

// Face keeps the current facing when dir is the zero vector.
func (m *Model) Face(dir choreo.Vec3) {
	if n := dir.Normalize(); n != (choreo.Vec3{}) {
		m.facing = n
	}
}

func (m *Model) Up() choreo.Vec3 {
	return m.up
}

func (m *Model) Visible() bool {
	return m.visible
}

func (m *Model) SetVisible(v bool) {
	m.visible = v
}
