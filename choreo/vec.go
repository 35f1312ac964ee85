/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package choreo

import "math"

// Vec3 is a point or direction in the character's world space. +Y is up.
type Vec3 struct {
	X, Y, Z float64
}

func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) Dist(o Vec3) float64 {
	return v.Sub(o).Len()
}

// Normalize returns the unit vector along v, or the zero vector for zero input.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// AngleTo returns the unsigned angle between v and o in radians.
func (v Vec3) AngleTo(o Vec3) float64 {
	denom := v.Len() * o.Len()
	if denom == 0 {
		return 0
	}
	return math.Acos(clamp(v.Dot(o)/denom, -1, 1))
}

// Rotate turns v about the unit axis by angle radians, counter-clockwise when
// looking down the axis.
func (v Vec3) Rotate(axis Vec3, angle float64) Vec3 {
	sin, cos := math.Sincos(angle)

	return v.Scale(cos).
		Add(axis.Cross(v).Scale(sin)).
		Add(axis.Scale(axis.Dot(v) * (1 - cos)))
}

// Flatten removes the component of v along the unit axis.
func (v Vec3) Flatten(axis Vec3) Vec3 {
	return v.Sub(axis.Scale(v.Dot(axis)))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
