package nav

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingExtent marks an obstacle without a size component. Such an
	// obstacle is skipped; the rest of a batch still applies.
	ErrMissingExtent = errors.New("nav: obstacle has no half extent")
	// ErrUnknownObstacle is returned when removing or moving an obstacle the
	// tracker never saw.
	ErrUnknownObstacle = errors.New("nav: unknown obstacle")
	// ErrDuplicateObstacle is returned when adding an ID that is already
	// tracked.
	ErrDuplicateObstacle = errors.New("nav: obstacle already tracked")
)

// ObstacleID identifies a blocking object.
type ObstacleID string

// Obstacle is a blocking object whose footprint raises grid cost.
type Obstacle struct {
	ID        ObstacleID
	Transform Transform
	// HalfExtent is the axis-aligned half size in world units. Nil means
	// the collaborator supplied no size.
	HalfExtent *Vec3
	// Cost is the raise applied to every covered cell. 0 means
	// CostImpassable.
	Cost uint8
}

func (o Obstacle) raise() uint8 {
	if o.Cost == 0 {
		return CostImpassable
	}
	return o.Cost
}

// ChangeKind says what triggered a cost change.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota + 1
	ChangeRemoved
	ChangeMoved
	ChangeTerrain
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeMoved:
		return "moved"
	case ChangeTerrain:
		return "terrain"
	default:
		return "unknown"
	}
}

// CostChange is emitted after every mutation of the cost field. Cells holds
// the fresh state of every affected cell.
type CostChange struct {
	Kind     ChangeKind
	Obstacle ObstacleID // empty for terrain edits
	Revision uint64     // grid revision after the mutation
	Cells    []Cell
}

// Indices returns the grid indices of the affected cells.
func (c CostChange) Indices() []GridIndex {
	out := make([]GridIndex, len(c.Cells))
	for i, cell := range c.Cells {
		out[i] = cell.Index
	}
	return out
}

// ChangeSink receives cost change notifications. Implementations must not
// call back into the Tracker.
type ChangeSink interface {
	Publish(CostChange)
}

// SinkFunc adapts a function to ChangeSink.
type SinkFunc func(CostChange)

// Publish calls f(c).
func (f SinkFunc) Publish(c CostChange) { f(c) }

// MultiSink fans a change out to several sinks in order.
type MultiSink []ChangeSink

// Publish forwards c to every non-nil sink.
func (m MultiSink) Publish(c CostChange) {
	for _, s := range m {
		if s != nil {
			s.Publish(c)
		}
	}
}

type trackedObstacle struct {
	Obstacle
	footprint []GridIndex
}

// Tracker is the incremental cost maintenance protocol. It remembers each
// obstacle's last footprint so removal and movement can undo exactly what
// was applied.
//
// Cells covered by several obstacles keep the raises of the ones still
// present when one of them leaves.
type Tracker struct {
	grid      *Grid
	sink      ChangeSink
	obstacles map[ObstacleID]*trackedObstacle
	occupants map[GridIndex][]ObstacleID
}

// NewTracker wires a tracker to grid. sink may be nil.
func NewTracker(grid *Grid, sink ChangeSink) *Tracker {
	return &Tracker{
		grid:      grid,
		sink:      sink,
		obstacles: make(map[ObstacleID]*trackedObstacle),
		occupants: make(map[GridIndex][]ObstacleID),
	}
}

// Grid returns the tracked grid.
func (t *Tracker) Grid() *Grid { return t.grid }

// Obstacle returns the tracked obstacle with id.
func (t *Tracker) Obstacle(id ObstacleID) (Obstacle, bool) {
	o, ok := t.obstacles[id]
	if !ok {
		return Obstacle{}, false
	}
	return o.Obstacle, true
}

// Obstacles returns every tracked obstacle (unordered).
func (t *Tracker) Obstacles() []Obstacle {
	out := make([]Obstacle, 0, len(t.obstacles))
	for _, o := range t.obstacles {
		out = append(out, o.Obstacle)
	}
	return out
}

// Footprint returns the cells the obstacle currently covers.
func (t *Tracker) Footprint(id ObstacleID) []GridIndex {
	o, ok := t.obstacles[id]
	if !ok {
		return nil
	}
	out := make([]GridIndex, len(o.footprint))
	copy(out, o.footprint)
	return out
}

// Add raises cost under the obstacle's footprint.
func (t *Tracker) Add(o Obstacle) error {
	if o.HalfExtent == nil {
		return fmt.Errorf("%w: %q", ErrMissingExtent, o.ID)
	}
	if _, exists := t.obstacles[o.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateObstacle, o.ID)
	}

	tracked := t.place(o)
	t.publish(ChangeAdded, o.ID, tracked.footprint)
	return nil
}

// Remove resets cost under the obstacle's last footprint.
func (t *Tracker) Remove(id ObstacleID) error {
	o, ok := t.obstacles[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownObstacle, id)
	}

	t.unplace(o)
	t.publish(ChangeRemoved, id, o.footprint)
	return nil
}

// Move relocates an obstacle: remove at the old transform, add at the new
// one. A single ChangeMoved event carries both footprints.
func (t *Tracker) Move(id ObstacleID, to Transform) error {
	o, ok := t.obstacles[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownObstacle, id)
	}

	t.unplace(o)
	moved := o.Obstacle
	moved.Transform = to
	placed := t.place(moved)

	t.publish(ChangeMoved, id, union(o.footprint, placed.footprint))
	return nil
}

// SetTerrainCost changes the terrain baseline of idx. Obstacles covering
// the cell are re-applied on top.
func (t *Tracker) SetTerrainCost(idx GridIndex, cost uint8) error {
	if _, ok := t.grid.SetTerrainCost(idx, cost); !ok {
		return fmt.Errorf("%w: terrain (%d,%d)", ErrOutsideGrid, idx.X, idx.Y)
	}
	for _, id := range t.occupants[idx] {
		t.grid.RaiseCost(idx, t.obstacles[id].raise())
	}
	t.publish(ChangeTerrain, "", []GridIndex{idx})
	return nil
}

// UpdateOp selects what a batch entry does.
type UpdateOp uint8

const (
	OpAdd UpdateOp = iota + 1
	OpRemove
	OpMove
)

// ObstacleUpdate is one entry of a maintenance batch. Remove only needs
// Obstacle.ID; Move uses Obstacle.Transform as the destination.
type ObstacleUpdate struct {
	Op       UpdateOp
	Obstacle Obstacle
}

// Apply runs a batch of updates in order. Failing entries (missing extent,
// unknown IDs) are skipped and reported together; the others still apply.
func (t *Tracker) Apply(updates []ObstacleUpdate) error {
	var errs []error
	for _, u := range updates {
		var err error
		switch u.Op {
		case OpAdd:
			err = t.Add(u.Obstacle)
		case OpRemove:
			err = t.Remove(u.Obstacle.ID)
		case OpMove:
			err = t.Move(u.Obstacle.ID, u.Obstacle.Transform)
		default:
			err = fmt.Errorf("nav: unknown update op %d for %q", u.Op, u.Obstacle.ID)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) place(o Obstacle) *trackedObstacle {
	tracked := &trackedObstacle{
		Obstacle:  o,
		footprint: t.grid.Footprint(o.Transform, *o.HalfExtent),
	}
	amount := o.raise()
	for _, idx := range tracked.footprint {
		t.grid.RaiseCost(idx, amount)
		t.occupants[idx] = append(t.occupants[idx], o.ID)
	}
	t.obstacles[o.ID] = tracked
	return tracked
}

func (t *Tracker) unplace(o *trackedObstacle) {
	delete(t.obstacles, o.ID)
	for _, idx := range o.footprint {
		remaining := removeID(t.occupants[idx], o.ID)
		if len(remaining) == 0 {
			delete(t.occupants, idx)
		} else {
			t.occupants[idx] = remaining
		}

		t.grid.ResetCost(idx)
		for _, other := range remaining {
			t.grid.RaiseCost(idx, t.obstacles[other].raise())
		}
	}
}

func (t *Tracker) publish(kind ChangeKind, id ObstacleID, indices []GridIndex) {
	if t.sink == nil {
		return
	}
	cells := make([]Cell, 0, len(indices))
	for _, idx := range indices {
		if c, ok := t.grid.Cell(idx); ok {
			cells = append(cells, c)
		}
	}
	t.sink.Publish(CostChange{
		Kind:     kind,
		Obstacle: id,
		Revision: t.grid.Revision(),
		Cells:    cells,
	})
}

func removeID(ids []ObstacleID, id ObstacleID) []ObstacleID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func union(a, b []GridIndex) []GridIndex {
	seen := make(map[GridIndex]struct{}, len(a)+len(b))
	out := make([]GridIndex, 0, len(a)+len(b))
	for _, s := range [][]GridIndex{a, b} {
		for _, idx := range s {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}
	return out
}
