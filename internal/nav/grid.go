package nav

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDegenerateGrid is returned when either grid dimension is < 1.
	ErrDegenerateGrid = errors.New("nav: grid dimensions must be at least 1x1")
	// ErrInvalidCellDiameter is returned for a non-positive or non-finite
	// cell diameter.
	ErrInvalidCellDiameter = errors.New("nav: cell diameter must be positive")
	// ErrOutsideGrid is returned by index-addressed edits that miss the grid.
	ErrOutsideGrid = errors.New("nav: index outside grid")
)

// Size is a grid dimension in cells. X is columns, Y is rows.
type Size struct {
	X int `json:"columns"`
	Y int `json:"rows"`
}

// GridIndex addresses a cell: X is the column, Y is the row. Both are
// 0-based with (0,0) in the top-left (most negative X/Z) corner.
type GridIndex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BlockedFunc classifies a world position as blocked. It is called once
// per cell while the grid is built.
type BlockedFunc func(worldPos Vec3) bool

// Grid owns the cost field shared by every FlowField. It is centered at
// the world origin.
//
// Grid does no locking: the owner serializes mutation and snapshotting
// (one writer per tick).
type Grid struct {
	size         Size
	cellDiameter float64
	cellRadius   float64
	offsetX      float64 // world X of the grid's left edge
	offsetZ      float64 // world Z of the grid's top edge
	cells        []Cell  // cells[row*cols+col]
	revision     uint64
}

// NewGrid builds a size.X by size.Y grid and its cost field. Every cell
// classified as blocked gets CostImpassable via the saturating raise, and
// that cost becomes the cell's terrain baseline. A nil isBlocked leaves all
// cells at CostBaseline.
func NewGrid(size Size, cellDiameter float64, isBlocked BlockedFunc) (*Grid, error) {
	if size.X < 1 || size.Y < 1 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrDegenerateGrid, size.X, size.Y)
	}
	if !(cellDiameter > 0) || math.IsInf(cellDiameter, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCellDiameter, cellDiameter)
	}

	g := &Grid{
		size:         size,
		cellDiameter: cellDiameter,
		cellRadius:   cellDiameter / 2,
		offsetX:      -(float64(size.X) * cellDiameter) / 2,
		offsetZ:      -(float64(size.Y) * cellDiameter) / 2,
		cells:        make([]Cell, size.X*size.Y),
	}

	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			idx := GridIndex{X: x, Y: y}
			g.cells[y*size.X+x] = NewCell(g.CellWorldPosition(idx), idx)
		}
	}

	if isBlocked != nil {
		for i := range g.cells {
			c := &g.cells[i]
			if isBlocked(c.WorldPosition) {
				c.RaiseCost(CostImpassable)
				c.BaseCost = c.Cost
			}
		}
	}

	return g, nil
}

// Size returns the grid dimensions.
func (g *Grid) Size() Size { return g.size }

// CellDiameter returns the edge length of a cell.
func (g *Grid) CellDiameter() float64 { return g.cellDiameter }

// CellRadius returns half the cell diameter.
func (g *Grid) CellRadius() float64 { return g.cellRadius }

// Revision increments on every cost mutation. A FlowField built at an
// older revision may be stale.
func (g *Grid) Revision() uint64 { return g.revision }

// Extent returns the world-space box covered by the grid (Y is zero).
func (g *Grid) Extent() AABB {
	return AABB{
		Min: Vec3{X: g.offsetX, Z: g.offsetZ},
		Max: Vec3{X: -g.offsetX, Z: -g.offsetZ},
	}
}

// InBounds reports whether idx addresses a cell of this grid.
func (g *Grid) InBounds(idx GridIndex) bool {
	return idx.X >= 0 && idx.Y >= 0 && idx.X < g.size.X && idx.Y < g.size.Y
}

// CellWorldPosition returns the world-space center of idx. idx does not
// need to be in bounds.
func (g *Grid) CellWorldPosition(idx GridIndex) Vec3 {
	return Vec3{
		X: g.cellDiameter*float64(idx.X) + g.cellRadius + g.offsetX,
		Z: g.cellDiameter*float64(idx.Y) + g.cellRadius + g.offsetZ,
	}
}

// LocateIndex maps a world position to the index of the cell containing
// it. Positions outside the grid clamp to the nearest edge cell; the result
// is always in bounds.
func (g *Grid) LocateIndex(worldPos Vec3) GridIndex {
	return locateIndex(worldPos, g.size, g.cellDiameter)
}

// Locate returns a copy of the cell containing worldPos (clamped).
func (g *Grid) Locate(worldPos Vec3) Cell {
	return g.cells[g.flat(g.LocateIndex(worldPos))]
}

// Cell returns a copy of the cell at idx.
func (g *Grid) Cell(idx GridIndex) (Cell, bool) {
	if !g.InBounds(idx) {
		return Cell{}, false
	}
	return g.cells[g.flat(idx)], true
}

// Cells returns a row-major value copy of every cell.
func (g *Grid) Cells() []Cell {
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}

// RaiseCost saturating-adds amount to the cost at idx and returns the
// updated cell.
func (g *Grid) RaiseCost(idx GridIndex, amount uint8) (Cell, bool) {
	if !g.InBounds(idx) {
		return Cell{}, false
	}
	c := &g.cells[g.flat(idx)]
	c.RaiseCost(amount)
	g.revision++
	return *c, true
}

// ResetCost restores the cell's terrain cost. For a cell whose terrain was
// never edited that is CostBaseline.
func (g *Grid) ResetCost(idx GridIndex) (Cell, bool) {
	if !g.InBounds(idx) {
		return Cell{}, false
	}
	c := &g.cells[g.flat(idx)]
	c.Cost = c.BaseCost
	g.revision++
	return *c, true
}

// SetTerrainCost replaces both the terrain baseline and the current cost
// of idx. A cost of 0 is stored as CostBaseline.
func (g *Grid) SetTerrainCost(idx GridIndex, cost uint8) (Cell, bool) {
	if !g.InBounds(idx) {
		return Cell{}, false
	}
	if cost == 0 {
		cost = CostBaseline
	}
	c := &g.cells[g.flat(idx)]
	c.BaseCost = cost
	c.Cost = cost
	g.revision++
	return *c, true
}

// Footprint resolves the cells covered by an object's world box. The box
// corners go through LocateIndex, so the result is never empty and never
// out of bounds. Indices are returned row-major.
func (g *Grid) Footprint(t Transform, halfExtent Vec3) []GridIndex {
	box := BoundsOf(t, halfExtent)
	lo := g.LocateIndex(box.Min)
	hi := g.LocateIndex(box.Max)

	out := make([]GridIndex, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1))
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			out = append(out, GridIndex{X: x, Y: y})
		}
	}
	return out
}

func (g *Grid) flat(idx GridIndex) int { return idx.Y*g.size.X + idx.X }

// locateIndex is shared by Grid and FlowField, which carry the same
// geometry.
func locateIndex(worldPos Vec3, size Size, cellDiameter float64) GridIndex {
	width := float64(size.X) * cellDiameter
	depth := float64(size.Y) * cellDiameter

	percentX := clamp01((worldPos.X + width/2) / width)
	percentZ := clamp01((worldPos.Z + depth/2) / depth)

	x := int(math.Floor(float64(size.X) * percentX))
	y := int(math.Floor(float64(size.Y) * percentZ))

	return GridIndex{X: min(x, size.X-1), Y: min(y, size.Y-1)}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
