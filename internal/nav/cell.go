package nav

import "math"

const (
	// CostBaseline is the cost of plain passable ground.
	CostBaseline uint8 = 1
	// CostImpassable marks a wall. Relaxation never propagates out of or
	// into such a cell.
	CostImpassable uint8 = math.MaxUint8
	// DistanceUnreached is the integration distance of a cell the wavefront
	// never reached.
	DistanceUnreached uint16 = math.MaxUint16
)

// Cell is the value stored for every grid square. It is copied by value
// into each FlowField.
type Cell struct {
	WorldPosition Vec3
	Index         GridIndex
	Cost          uint8
	// BaseCost is the terrain cost the cell returns to on ResetCost.
	BaseCost  uint8
	BestCost  uint16 // integration distance
	Direction Direction
}

// NewCell returns a baseline-cost, unreached cell.
func NewCell(pos Vec3, idx GridIndex) Cell {
	return Cell{
		WorldPosition: pos,
		Index:         idx,
		Cost:          CostBaseline,
		BaseCost:      CostBaseline,
		BestCost:      DistanceUnreached,
		Direction:     DirNone,
	}
}

// RaiseCost adds amount to the cost, clamping at CostImpassable.
func (c *Cell) RaiseCost(amount uint8) {
	if c.Cost == CostImpassable {
		return
	}
	sum := uint16(c.Cost) + uint16(amount)
	if sum >= uint16(CostImpassable) {
		c.Cost = CostImpassable
		return
	}
	c.Cost = uint8(sum)
}

// Impassable reports whether the cell blocks propagation.
func (c Cell) Impassable() bool { return c.Cost == CostImpassable }

// Reached reports whether the wavefront assigned a finite distance.
func (c Cell) Reached() bool { return c.BestCost != DistanceUnreached }
