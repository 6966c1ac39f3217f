// Package nav implements the flow-field pathfinding core: a shared cost
// field (Grid), per-destination integration and direction fields
// (FlowField), and the incremental cost maintenance protocol that keeps the
// cost field in sync with blocking obstacles.
//
// All cell storage is a flat row-major slice addressed by index (no
// pointers between cells), so a FlowField can own a plain value copy of the
// Grid's cells without aliasing it.
package nav

import "math"

// Vec3 is a world-space position. The ground plane is X/Z; Y is carried
// through but ignored by every grid mapping.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Mul returns the component-wise product.
func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

// Abs returns the component-wise absolute value.
func (v Vec3) Abs() Vec3 { return Vec3{math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)} }

// Transform places an object in the world. Scale multiplies the object's
// half extent; a zero Scale component is treated as 1.
type Transform struct {
	Translation Vec3 `json:"translation"`
	Scale       Vec3 `json:"scale"`
}

// NewTransform returns an unscaled transform at pos.
func NewTransform(pos Vec3) Transform {
	return Transform{Translation: pos, Scale: Vec3{1, 1, 1}}
}

func (t Transform) scale() Vec3 {
	s := t.Scale
	if s.X == 0 {
		s.X = 1
	}
	if s.Y == 0 {
		s.Y = 1
	}
	if s.Z == 0 {
		s.Z = 1
	}
	return s.Abs()
}

// AABB is an axis-aligned world-space box.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoundsOf returns the world box of an object with the given transform and
// local half extent.
func BoundsOf(t Transform, halfExtent Vec3) AABB {
	h := halfExtent.Abs().Mul(t.scale())
	return AABB{Min: t.Translation.Sub(h), Max: t.Translation.Add(h)}
}

// ContainsXZ reports whether p lies inside the box on the ground plane.
// Edges are inclusive.
func (b AABB) ContainsXZ(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// OverlapsXZ reports whether two boxes overlap on the ground plane.
func (b AABB) OverlapsXZ(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X && b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}
