package nav

import (
	"fmt"
	"math"
)

// Direction is the best-neighbour direction stored per cell.
// North is -Z (decreasing row), East is +X (increasing column).
type Direction uint8

const (
	DirNone Direction = iota
	DirNorth
	DirSouth
	DirEast
	DirWest
	DirNorthEast
	DirNorthWest
	DirSouthEast
	DirSouthWest
)

// Grid offsets (dx = column delta, dy = row delta) indexed by Direction.
var dirOffsets = [...][2]int{
	DirNone:      {0, 0},
	DirNorth:     {0, -1},
	DirSouth:     {0, 1},
	DirEast:      {1, 0},
	DirWest:      {-1, 0},
	DirNorthEast: {1, -1},
	DirNorthWest: {-1, -1},
	DirSouthEast: {1, 1},
	DirSouthWest: {-1, 1},
}

// Enumeration order is part of the contract: the first direction in this
// order wins a tie in the direction pass.
var (
	cardinalDirections = [4]Direction{DirNorth, DirSouth, DirEast, DirWest}
	allDirections      = [8]Direction{
		DirNorth, DirSouth, DirEast, DirWest,
		DirNorthEast, DirNorthWest, DirSouthEast, DirSouthWest,
	}
)

// CardinalDirections returns N, S, E, W in relaxation order.
func CardinalDirections() [4]Direction { return cardinalDirections }

// AllDirections returns the 8 compass directions in tie-break order.
func AllDirections() [8]Direction { return allDirections }

// Offset returns the (column, row) delta of d. DirNone is (0, 0).
func (d Direction) Offset() (dx, dy int) {
	if int(d) >= len(dirOffsets) {
		return 0, 0
	}
	o := dirOffsets[d]
	return o[0], o[1]
}

// Unit returns the normalized ground-plane vector of d, zero for DirNone.
func (d Direction) Unit() Vec3 {
	dx, dy := d.Offset()
	if dx == 0 && dy == 0 {
		return Vec3{}
	}
	l := math.Hypot(float64(dx), float64(dy))
	return Vec3{X: float64(dx) / l, Z: float64(dy) / l}
}

// Angle returns the heading of d in radians on the ground plane, measured
// from +X toward +Z. DirNone returns 0.
func (d Direction) Angle() float64 {
	dx, dy := d.Offset()
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(float64(dy), float64(dx))
}

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirNorth:
		return "north"
	case DirSouth:
		return "south"
	case DirEast:
		return "east"
	case DirWest:
		return "west"
	case DirNorthEast:
		return "north_east"
	case DirNorthWest:
		return "north_west"
	case DirSouthEast:
		return "south_east"
	case DirSouthWest:
		return "south_west"
	default:
		return "unknown"
	}
}

// MarshalText encodes d by name.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText decodes a name written by MarshalText.
func (d *Direction) UnmarshalText(text []byte) error {
	for c := DirNone; c <= DirSouthWest; c++ {
		if c.String() == string(text) {
			*d = c
			return nil
		}
	}
	return fmt.Errorf("nav: unknown direction %q", text)
}
