package sim

import (
	"math"

	"battle-nav/internal/nav"
)

// UnitStatus is the movement state of a unit.
type UnitStatus string

const (
	UnitIdle    UnitStatus = "idle"
	UnitMoving  UnitStatus = "moving"
	UnitArrived UnitStatus = "arrived"
	UnitBlocked UnitStatus = "blocked" // standing on a cell with no way out
)

// Unit is an agent that samples a flow field every tick.
type Unit struct {
	ID       string        `json:"id"`
	Position nav.Vec3      `json:"position"`
	FieldID  string        `json:"fieldId,omitempty"`
	Status   UnitStatus    `json:"status"`
	Heading  nav.Direction `json:"heading"`
}

// NewUnit creates an idle unit at pos.
func NewUnit(id string, pos nav.Vec3) *Unit {
	return &Unit{ID: id, Position: pos, Status: UnitIdle}
}

// advance moves the unit one step along the field's direction at its
// current cell. The position stays inside bounds.
func (u *Unit) advance(f *nav.FlowField, bounds nav.AABB, speed, dt float64) {
	cell := f.Locate(u.Position)
	if cell.Index == f.DestinationCell.Index {
		u.Status = UnitArrived
		u.Heading = nav.DirNone
		return
	}
	if cell.Direction == nav.DirNone {
		u.Status = UnitBlocked
		u.Heading = nav.DirNone
		return
	}

	step := cell.Direction.Unit().Scale(speed * dt)
	u.Position = u.Position.Add(step)
	u.Position.X = clamp(u.Position.X, bounds.Min.X, bounds.Max.X)
	u.Position.Z = clamp(u.Position.Z, bounds.Min.Z, bounds.Max.Z)
	u.Heading = cell.Direction
	u.Status = UnitMoving
}

// release detaches the unit from its field.
func (u *Unit) release() {
	u.FieldID = ""
	u.Status = UnitIdle
	u.Heading = nav.DirNone
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
