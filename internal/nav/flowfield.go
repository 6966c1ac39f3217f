package nav

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrationNotBuilt is returned when the direction pass is requested
	// before the integration field exists.
	ErrIntegrationNotBuilt = errors.New("nav: integration field not built")
	// ErrDestinationOutOfBounds is returned for a destination index outside
	// the grid.
	ErrDestinationOutOfBounds = errors.New("nav: destination outside grid")
)

// UnitID identifies an agent steered by a FlowField.
type UnitID string

// FlowField is a destination-scoped snapshot of the cost field plus the
// integration and direction fields derived from it.
//
// A FlowField owns its cells outright. It never sees later Grid mutations:
// once the Grid changes the field is stale and it is up to the caller to
// discard or rebuild it (see IsStale).
type FlowField struct {
	CellRadius      float64
	CellDiameter    float64
	Size            Size
	DestinationCell Cell
	Cells           []Cell // row-major snapshot, Cells[row*Size.X+col]
	Units           []UnitID

	// Revision of the Grid the snapshot was taken from.
	GridRevision uint64

	integrated bool
	directed   bool
	stats      BuildStats
	queue      []int // FIFO buffer, released once integration ends

	// onRelax, when set, sees every distance write during relaxation.
	onRelax func(flat int, from, to uint16)
}

// BuildStats reports the work done by the last build.
type BuildStats struct {
	Dequeued    int // queue pops during relaxation
	Relaxations int // successful distance decreases
	Reached     int // cells with a finite distance
}

// NewFlowField creates an empty field with the grid's geometry. Nothing is
// computed until CreateIntegrationField.
func NewFlowField(cellRadius float64, size Size, units []UnitID) *FlowField {
	u := make([]UnitID, len(units))
	copy(u, units)
	return &FlowField{
		CellRadius:   cellRadius,
		CellDiameter: cellRadius * 2,
		Size:         size,
		Units:        u,
	}
}

// BuildFlowField snapshots grid, relaxes the integration field from dest
// and derives directions. This is the usual entry point.
func BuildFlowField(grid *Grid, dest GridIndex, units []UnitID) (*FlowField, error) {
	f := NewFlowField(grid.CellRadius(), grid.Size(), units)
	if err := f.CreateIntegrationField(grid, dest); err != nil {
		return nil, err
	}
	if err := f.CreateDirectionField(); err != nil {
		return nil, err
	}
	return f, nil
}

// CreateIntegrationField copies the grid's cells and runs a FIFO
// label-correcting relaxation from dest over the 4 cardinal neighbours.
//
// A cell may be enqueued more than once when a cheaper path reaches it
// later. Distances only ever decrease and costs are positive, so the loop
// terminates. Impassable neighbours are skipped; unreachable cells keep
// DistanceUnreached.
func (f *FlowField) CreateIntegrationField(grid *Grid, dest GridIndex) error {
	if !grid.InBounds(dest) {
		return fmt.Errorf("%w: (%d,%d)", ErrDestinationOutOfBounds, dest.X, dest.Y)
	}

	f.Size = grid.Size()
	f.CellRadius = grid.CellRadius()
	f.CellDiameter = grid.CellDiameter()
	f.GridRevision = grid.Revision()
	f.Cells = grid.Cells()
	for i := range f.Cells {
		f.Cells[i].BestCost = DistanceUnreached
		f.Cells[i].Direction = DirNone
	}
	f.directed = false
	f.stats = BuildStats{}

	w, h := f.Size.X, f.Size.Y
	destFlat := dest.Y*w + dest.X
	d := &f.Cells[destFlat]
	d.Cost = 0
	d.BestCost = 0
	f.DestinationCell = *d

	f.queue = make([]int, 0, len(f.Cells))
	f.queue = append(f.queue, destFlat)

	for head := 0; head < len(f.queue); head++ {
		cur := f.queue[head]
		f.stats.Dequeued++
		cx, cy := cur%w, cur/w
		curDist := uint32(f.Cells[cur].BestCost)

		for _, dir := range cardinalDirections {
			dx, dy := dir.Offset()
			nx, ny := cx+dx, cy+dy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}

			n := &f.Cells[ny*w+nx]
			if n.Cost == CostImpassable {
				continue
			}

			candidate := uint32(n.Cost) + curDist
			if candidate >= uint32(DistanceUnreached) {
				continue
			}
			if candidate < uint32(n.BestCost) {
				if f.onRelax != nil {
					f.onRelax(ny*w+nx, n.BestCost, uint16(candidate))
				}
				n.BestCost = uint16(candidate)
				f.queue = append(f.queue, ny*w+nx)
				f.stats.Relaxations++
			}
		}

		// Compact once the consumed prefix dominates, keeping memory bounded
		// on large grids with many re-visits.
		if head > 4096 && head*2 > len(f.queue) {
			n := copy(f.queue, f.queue[head+1:])
			f.queue = f.queue[:n]
			head = -1
		}
	}

	f.queue = nil

	for i := range f.Cells {
		if f.Cells[i].Reached() {
			f.stats.Reached++
		}
	}
	f.integrated = true
	return nil
}

// CreateDirectionField points every cell at its 8-neighbour with the
// strictly smallest distance below its own. Ties go to the first direction
// in AllDirections order. Cells with no improving neighbour (destination,
// unreached cells, local minima) get DirNone.
func (f *FlowField) CreateDirectionField() error {
	if !f.integrated {
		return ErrIntegrationNotBuilt
	}

	w, h := f.Size.X, f.Size.Y
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := f.Cells[y*w+x].BestCost
			bestDir := DirNone

			for _, dir := range allDirections {
				dx, dy := dir.Offset()
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if nd := f.Cells[ny*w+nx].BestCost; nd < best {
					best = nd
					bestDir = dir
				}
			}

			f.Cells[y*w+x].Direction = bestDir
		}
	}

	idx := f.DestinationCell.Index
	f.DestinationCell = f.Cells[idx.Y*w+idx.X]
	f.directed = true
	return nil
}

// Ready reports whether both passes have run.
func (f *FlowField) Ready() bool { return f.integrated && f.directed }

// Stats returns the work counters of the last integration pass.
func (f *FlowField) Stats() BuildStats { return f.stats }

// IsStale reports whether grid has been mutated since this field's
// snapshot. Nothing in this package calls it; stale detection is the
// caller's job.
func (f *FlowField) IsStale(grid *Grid) bool {
	return grid.Revision() != f.GridRevision
}

// LocateIndex maps a world position to a cell index using the field's
// copied geometry. Out-of-range positions clamp.
func (f *FlowField) LocateIndex(worldPos Vec3) GridIndex {
	return locateIndex(worldPos, f.Size, f.CellDiameter)
}

// Locate returns the snapshot cell containing worldPos (clamped).
func (f *FlowField) Locate(worldPos Vec3) Cell {
	idx := f.LocateIndex(worldPos)
	return f.Cells[idx.Y*f.Size.X+idx.X]
}

// Cell returns the snapshot cell at idx.
func (f *FlowField) Cell(idx GridIndex) (Cell, bool) {
	if idx.X < 0 || idx.Y < 0 || idx.X >= f.Size.X || idx.Y >= f.Size.Y || len(f.Cells) == 0 {
		return Cell{}, false
	}
	return f.Cells[idx.Y*f.Size.X+idx.X], true
}

// DirectionAt is the per-agent steering read: the best direction of the
// cell under worldPos.
//
// Time complexity: O(1)
func (f *FlowField) DirectionAt(worldPos Vec3) Direction {
	if len(f.Cells) == 0 {
		return DirNone
	}
	return f.Locate(worldPos).Direction
}
