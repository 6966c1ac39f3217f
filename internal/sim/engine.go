// Package sim runs the navigation tick loop: it owns the shared cost grid,
// applies obstacle and terrain changes, keeps flow fields in step with the
// grid and moves units along them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"battle-nav/internal/config"
	"battle-nav/internal/nav"
)

const tracerName = "battle-nav/sim"

var (
	ErrNoUnits       = errors.New("sim: order has no units")
	ErrUnknownUnit   = errors.New("sim: unknown unit")
	ErrDuplicateUnit = errors.New("sim: unit already exists")
	ErrUnitLimit     = errors.New("sim: unit limit reached")
	ErrFieldLimit    = errors.New("sim: field limit reached")
	ErrOrderTooLarge = errors.New("sim: too many units in order")
)

// TerrainFunc returns the terrain cost at a world position, 0 for plain
// ground.
type TerrainFunc func(pos nav.Vec3) uint8

// Options configures a new Engine.
type Options struct {
	Navigation config.NavigationConfig
	Sim        config.SimConfig
	Limits     config.ResourceLimits

	Blocked nav.BlockedFunc // static walls, nil for an open grid
	Terrain TerrainFunc     // optional terrain costs
	Sink    nav.ChangeSink  // extra change sink, e.g. a NATS publisher
}

// FieldEvent describes a completed field build.
type FieldEvent struct {
	ID          string         `json:"id"`
	Destination nav.GridIndex  `json:"destination"`
	Units       []nav.UnitID   `json:"units"`
	Revision    uint64         `json:"revision"`
	Rebuild     bool           `json:"rebuild"`
	Stats       nav.BuildStats `json:"stats"`
	Duration    time.Duration  `json:"duration"`
}

// TickStats summarizes one tick.
type TickStats struct {
	Tick      uint64
	Changes   int
	Overflow  bool
	Rebuilt   int
	Discarded int
	Units     int
	Fields    int
	Duration  time.Duration
}

// Engine is the single writer of the cost grid. Every mutation takes the
// write lock; flow fields handed out are immutable snapshots.
type Engine struct {
	mu      sync.RWMutex
	grid    *nav.Grid
	tracker *nav.Tracker
	fields  *nav.FieldManager
	changes *nav.ChangeQueue
	units   map[string]*Unit

	nav    config.NavigationConfig
	sim    config.SimConfig
	limits config.ResourceLimits

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	tickCount uint64
	journal   *Journal

	// Event callbacks, invoked outside the lock
	onCostChange func(nav.CostChange)
	onFieldBuilt func(FieldEvent)
	onTick       func(TickStats)
}

// NewEngine builds the grid from opts and wires the maintenance tracker to
// the engine's change queue.
func NewEngine(opts Options) (*Engine, error) {
	size := nav.Size{X: opts.Navigation.Columns, Y: opts.Navigation.Rows}
	grid, err := nav.NewGrid(size, opts.Navigation.CellDiameter, opts.Blocked)
	if err != nil {
		return nil, fmt.Errorf("create grid: %w", err)
	}

	if opts.Terrain != nil {
		for _, c := range grid.Cells() {
			if c.Impassable() {
				continue
			}
			if cost := opts.Terrain(c.WorldPosition); cost > 0 {
				grid.SetTerrainCost(c.Index, cost)
			}
		}
	}

	limits := opts.Limits
	if limits == (config.ResourceLimits{}) {
		limits = config.DefaultLimits()
	}
	simCfg := opts.Sim
	if simCfg.TickRate <= 0 {
		simCfg.TickRate = config.DefaultSim().TickRate
	}

	queue := nav.NewChangeQueue(limits.ChangeQueueCapacity)
	var sink nav.ChangeSink = queue
	if opts.Sink != nil {
		sink = nav.MultiSink{queue, opts.Sink}
	}

	return &Engine{
		grid:     grid,
		tracker:  nav.NewTracker(grid, sink),
		fields:   nav.NewFieldManager(),
		changes:  queue,
		units:    make(map[string]*Unit),
		nav:      opts.Navigation,
		sim:      simCfg,
		limits:   limits,
		stopChan: make(chan struct{}),
		journal:  NewJournal(),
	}, nil
}

// Start begins the tick loop and the journal writer.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	if err := e.journal.Start(e.sim.JournalPath); err != nil {
		log.Printf("⚠️ Journal disabled: %v", err)
	}

	e.ticker = time.NewTicker(e.sim.TickInterval())

	go func() {
		for {
			select {
			case <-e.ticker.C:
				e.Step(1.0 / float64(e.sim.TickRate))
			case <-e.stopChan:
				return
			}
		}
	}()

	log.Printf("🧭 Navigation engine started at %d TPS (%dx%d grid)", e.sim.TickRate, e.nav.Columns, e.nav.Rows)
}

// Stop stops the tick loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	e.journal.Stop()
	log.Println("🛑 Navigation engine stopped")
}

// SetCallbacks registers event handlers. Any of them may be nil.
func (e *Engine) SetCallbacks(onCostChange func(nav.CostChange), onFieldBuilt func(FieldEvent), onTick func(TickStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCostChange = onCostChange
	e.onFieldBuilt = onFieldBuilt
	e.onTick = onTick
}

// Step runs one tick: drain cost changes, flag stale fields, rebuild or
// discard them, then advance units by dt seconds.
func (e *Engine) Step(dt float64) TickStats {
	start := time.Now()

	e.mu.Lock()
	e.tickCount++
	stats := TickStats{Tick: e.tickCount}

	changes := e.changes.Drain(e.limits.MaxChangesPerTick)
	stats.Changes = len(changes)
	stats.Overflow = e.changes.TakeOverflow()

	if stats.Overflow {
		log.Printf("⚠️ Change queue overflowed (%d dropped), treating every field as stale", e.changes.Dropped())
		e.fields.MarkAllStale()
	} else {
		e.fields.MarkStale(e.grid.Revision())
	}

	var built []FieldEvent
	if stale := e.fields.Stale(); len(stale) > 0 {
		if e.sim.RebuildStale {
			for _, id := range stale {
				ev, err := e.buildLocked(context.Background(), id, nav.GridIndex{}, nil, true)
				if err != nil {
					log.Printf("❌ Rebuild of field %s failed: %v", id, err)
					continue
				}
				built = append(built, ev)
			}
			stats.Rebuilt = len(built)
		} else {
			discarded := e.fields.DiscardStale()
			e.releaseUnitsLocked(discarded)
			for _, id := range discarded {
				e.journal.EmitSimple(EventTypeFieldDiscarded, e.tickCount, id, FieldPayload{FieldID: id})
			}
			stats.Discarded = len(discarded)
		}
	}

	bounds := e.grid.Extent()
	for _, u := range e.units {
		if u.FieldID == "" {
			continue
		}
		f, ok := e.fields.Get(u.FieldID)
		if !ok {
			u.release()
			continue
		}
		u.advance(f, bounds, e.sim.UnitSpeed, dt)
	}
	stats.Units = len(e.units)
	stats.Fields = e.fields.Len()
	stats.Duration = time.Since(start)

	e.journal.EmitSimple(EventTypeTick, e.tickCount, "", TickPayload{
		Changes:     stats.Changes,
		Rebuilt:     stats.Rebuilt,
		Discarded:   stats.Discarded,
		Units:       stats.Units,
		DeltaTimeNs: int64(dt * 1e9),
	})

	onCost, onBuilt, onTick := e.onCostChange, e.onFieldBuilt, e.onTick
	e.mu.Unlock()

	if onCost != nil {
		for _, c := range changes {
			onCost(c)
		}
	}
	if onBuilt != nil {
		for _, ev := range built {
			onBuilt(ev)
		}
	}
	if onTick != nil {
		onTick(stats)
	}
	return stats
}

// buildLocked builds (or rebuilds) a field inside a trace span. Caller
// holds the write lock.
func (e *Engine) buildLocked(ctx context.Context, id string, dest nav.GridIndex, units []nav.UnitID, rebuild bool) (FieldEvent, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "flowfield.build", trace.WithAttributes(
		attribute.String("field.id", id),
		attribute.Bool("field.rebuild", rebuild),
		attribute.Int("grid.columns", e.grid.Size().X),
		attribute.Int("grid.rows", e.grid.Size().Y),
	))
	defer span.End()

	start := time.Now()
	var (
		f   *nav.FlowField
		err error
	)
	if rebuild {
		f, err = e.fields.Rebuild(id, e.grid)
	} else {
		f, err = e.fields.Build(id, e.grid, dest, units)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FieldEvent{}, err
	}

	ev := FieldEvent{
		ID:          id,
		Destination: f.DestinationCell.Index,
		Units:       f.Units,
		Revision:    f.GridRevision,
		Rebuild:     rebuild,
		Stats:       f.Stats(),
		Duration:    time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("flowfield.relaxations", ev.Stats.Relaxations),
		attribute.Int("flowfield.reached", ev.Stats.Reached),
	)

	e.journal.EmitSimple(EventTypeFieldBuilt, e.tickCount, id, FieldPayload{
		FieldID:     id,
		Rebuild:     rebuild,
		Relaxations: ev.Stats.Relaxations,
		Reached:     ev.Stats.Reached,
		DurationNs:  int64(ev.Duration),
	})
	return ev, nil
}

// =============================================================================
// ORDERS & UNITS
// =============================================================================

// IssueMoveOrder builds one flow field toward destination and assigns it
// to every listed unit. Repeated IDs count once. Fields no unit follows
// any more are dropped. A rejected order leaves every unit on its
// previous field.
func (e *Engine) IssueMoveOrder(ctx context.Context, unitIDs []string, destination nav.Vec3) (FieldEvent, error) {
	if len(unitIDs) == 0 {
		return FieldEvent{}, ErrNoUnits
	}

	e.mu.Lock()
	unitIDs = dedupe(unitIDs)
	if len(unitIDs) > e.limits.MaxOrderUnits {
		e.mu.Unlock()
		return FieldEvent{}, fmt.Errorf("%w: %d > %d", ErrOrderTooLarge, len(unitIDs), e.limits.MaxOrderUnits)
	}
	units := make([]nav.UnitID, 0, len(unitIDs))
	ordered := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		if _, ok := e.units[id]; !ok {
			e.mu.Unlock()
			return FieldEvent{}, fmt.Errorf("%w: %q", ErrUnknownUnit, id)
		}
		units = append(units, nav.UnitID(id))
		ordered[id] = true
	}

	if e.survivingFieldsLocked(ordered) >= e.limits.MaxFields {
		e.mu.Unlock()
		return FieldEvent{}, ErrFieldLimit
	}

	fieldID := uuid.NewString()
	dest := e.grid.LocateIndex(destination)
	ev, err := e.buildLocked(ctx, fieldID, dest, units, false)
	if err != nil {
		e.mu.Unlock()
		return FieldEvent{}, err
	}
	for _, id := range unitIDs {
		u := e.units[id]
		u.release()
		u.FieldID = fieldID
		u.Status = UnitMoving
	}
	e.pruneFieldsLocked()

	e.journal.EmitSimple(EventTypeOrder, e.tickCount, fieldID, OrderPayload{
		FieldID: fieldID,
		Units:   unitIDs,
		DestX:   dest.X,
		DestY:   dest.Y,
	})
	onBuilt := e.onFieldBuilt
	e.mu.Unlock()

	log.Printf("🎯 Order %s: %d units -> cell (%d,%d), %d relaxations in %v",
		fieldID[:8], len(unitIDs), dest.X, dest.Y, ev.Stats.Relaxations, ev.Duration)

	if onBuilt != nil {
		onBuilt(ev)
	}
	return ev, nil
}

// survivingFieldsLocked counts stored fields still followed by a unit
// outside reassigned.
func (e *Engine) survivingFieldsLocked(reassigned map[string]bool) int {
	used := make(map[string]bool, e.fields.Len())
	for id, u := range e.units {
		if u.FieldID != "" && !reassigned[id] {
			used[u.FieldID] = true
		}
	}
	n := 0
	for _, id := range e.fields.Keys() {
		if used[id] {
			n++
		}
	}
	return n
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// pruneFieldsLocked removes fields no unit follows.
func (e *Engine) pruneFieldsLocked() {
	used := make(map[string]bool, len(e.units))
	for _, u := range e.units {
		if u.FieldID != "" {
			used[u.FieldID] = true
		}
	}
	for _, id := range e.fields.Keys() {
		if !used[id] {
			e.fields.Remove(id)
		}
	}
}

func (e *Engine) releaseUnitsLocked(fieldIDs []string) {
	if len(fieldIDs) == 0 {
		return
	}
	gone := make(map[string]bool, len(fieldIDs))
	for _, id := range fieldIDs {
		gone[id] = true
	}
	for _, u := range e.units {
		if gone[u.FieldID] {
			u.release()
		}
	}
}

// AddUnit registers a unit at pos. An empty id gets a generated one.
func (e *Engine) AddUnit(id string, pos nav.Vec3) (Unit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.units) >= e.limits.MaxUnits {
		log.Printf("⚠️ Unit limit reached (%d), rejecting: %s", e.limits.MaxUnits, id)
		return Unit{}, ErrUnitLimit
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := e.units[id]; ok {
		return Unit{}, fmt.Errorf("%w: %q", ErrDuplicateUnit, id)
	}

	u := NewUnit(id, pos)
	e.units[id] = u
	return *u, nil
}

// RemoveUnit deletes a unit.
func (e *Engine) RemoveUnit(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.units[id]; !ok {
		return false
	}
	delete(e.units, id)
	return true
}

// Unit returns a copy of the unit with id.
func (e *Engine) Unit(id string) (Unit, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.units[id]
	if !ok {
		return Unit{}, false
	}
	return *u, true
}

// Units returns copies of every unit sorted by ID.
func (e *Engine) Units() []Unit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unitsLocked()
}

func (e *Engine) unitsLocked() []Unit {
	out := make([]Unit, 0, len(e.units))
	for _, u := range e.units {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// COST MAINTENANCE
// =============================================================================

// AddObstacle raises cost under o. A zero Cost uses the configured
// obstacle cost.
func (e *Engine) AddObstacle(o nav.Obstacle) error {
	if o.Cost == 0 {
		o.Cost = e.nav.ObstacleCost
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.Add(o); err != nil {
		return err
	}
	e.journal.EmitSimple(EventTypeObstacleAdded, e.tickCount, string(o.ID), CostPayload{Revision: e.grid.Revision()})
	return nil
}

// RemoveObstacle restores cost under the obstacle's last footprint.
func (e *Engine) RemoveObstacle(id nav.ObstacleID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.Remove(id); err != nil {
		return err
	}
	e.journal.EmitSimple(EventTypeObstacleRemoved, e.tickCount, string(id), CostPayload{Revision: e.grid.Revision()})
	return nil
}

// MoveObstacle relocates an obstacle.
func (e *Engine) MoveObstacle(id nav.ObstacleID, to nav.Transform) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.Move(id, to); err != nil {
		return err
	}
	e.journal.EmitSimple(EventTypeObstacleMoved, e.tickCount, string(id), CostPayload{Revision: e.grid.Revision()})
	return nil
}

// SyncObstacles makes the tracked set equal to obstacles: unknown IDs are
// added, missing ones removed, moved ones relocated and resized ones
// replaced. Bad entries are skipped and reported together.
func (e *Engine) SyncObstacles(obstacles []nav.Obstacle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	want := make(map[nav.ObstacleID]nav.Obstacle, len(obstacles))
	for _, o := range obstacles {
		if o.Cost == 0 {
			o.Cost = e.nav.ObstacleCost
		}
		want[o.ID] = o
	}

	var (
		updates []nav.ObstacleUpdate
		skipped []error
	)
	current := e.tracker.Obstacles()
	sort.Slice(current, func(i, j int) bool { return current[i].ID < current[j].ID })
	for _, have := range current {
		next, keep := want[have.ID]
		switch {
		case !keep:
			updates = append(updates, nav.ObstacleUpdate{Op: nav.OpRemove, Obstacle: have})
		case next.HalfExtent == nil:
			// No size data: the tracked obstacle stays as it is
			skipped = append(skipped, fmt.Errorf("%w: %q", nav.ErrMissingExtent, next.ID))
		case *next.HalfExtent != *have.HalfExtent || next.Cost != have.Cost:
			updates = append(updates,
				nav.ObstacleUpdate{Op: nav.OpRemove, Obstacle: have},
				nav.ObstacleUpdate{Op: nav.OpAdd, Obstacle: next})
		case next.Transform != have.Transform:
			updates = append(updates, nav.ObstacleUpdate{Op: nav.OpMove, Obstacle: next})
		}
		delete(want, have.ID)
	}

	added := make([]nav.Obstacle, 0, len(want))
	for _, o := range want {
		added = append(added, o)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	for _, o := range added {
		updates = append(updates, nav.ObstacleUpdate{Op: nav.OpAdd, Obstacle: o})
	}

	if len(updates) > 0 {
		log.Printf("🔄 Syncing obstacles: %d updates", len(updates))
	}
	return errors.Join(append(skipped, e.tracker.Apply(updates))...)
}

// Obstacles returns the tracked obstacles sorted by ID.
func (e *Engine) Obstacles() []nav.Obstacle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.tracker.Obstacles()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ObstacleFootprint returns the cells an obstacle covers.
func (e *Engine) ObstacleFootprint(id nav.ObstacleID) []nav.GridIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Footprint(id)
}

// SetTerrainCost changes the terrain cost of one cell.
func (e *Engine) SetTerrainCost(idx nav.GridIndex, cost uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.SetTerrainCost(idx, cost); err != nil {
		return err
	}
	e.journal.EmitSimple(EventTypeTerrain, e.tickCount, "", CostPayload{Revision: e.grid.Revision(), Cells: 1})
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GridView is a consistent copy of the cost grid.
type GridView struct {
	Size         nav.Size   `json:"size"`
	CellDiameter float64    `json:"cellDiameter"`
	Revision     uint64     `json:"revision"`
	Extent       nav.AABB   `json:"extent"`
	Cells        []nav.Cell `json:"-"`
}

// Cost returns the cost at idx in the view.
func (v GridView) Cost(idx nav.GridIndex) uint8 {
	return v.Cells[idx.Y*v.Size.X+idx.X].Cost
}

// GridSnapshot copies the grid under the read lock.
func (e *Engine) GridSnapshot() GridView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return GridView{
		Size:         e.grid.Size(),
		CellDiameter: e.grid.CellDiameter(),
		Revision:     e.grid.Revision(),
		Extent:       e.grid.Extent(),
		Cells:        e.grid.Cells(),
	}
}

// Revision returns the grid's mutation counter.
func (e *Engine) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid.Revision()
}

// Locate returns the grid cell at a world position (clamped).
func (e *Engine) Locate(pos nav.Vec3) nav.Cell {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grid.Locate(pos)
}

// Field returns the current field with id. The field is never mutated
// after it is returned; a rebuild replaces it.
func (e *Engine) Field(id string) (*nav.FlowField, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fields.Get(id)
}

// ActiveField returns the most recently ordered field.
func (e *Engine) ActiveField() (string, *nav.FlowField, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fields.Active()
}

// SteeringAt returns the direction a unit at pos should take on field id.
func (e *Engine) SteeringAt(id string, pos nav.Vec3) (nav.Direction, error) {
	f, ok := e.Field(id)
	if !ok {
		return nav.DirNone, fmt.Errorf("%w: %q", nav.ErrFieldNotFound, id)
	}
	return f.DirectionAt(pos), nil
}

// FieldSummary describes a stored field without its cells.
type FieldSummary struct {
	ID           string        `json:"id"`
	Destination  nav.GridIndex `json:"destination"`
	Units        []nav.UnitID  `json:"units"`
	GridRevision uint64        `json:"gridRevision"`
	Stale        bool          `json:"stale"`
	Reached      int           `json:"reached"`
}

// State is a point-in-time view for the API.
type State struct {
	Tick           uint64                 `json:"tick"`
	Revision       uint64                 `json:"revision"`
	ActiveField    string                 `json:"activeField,omitempty"`
	Units          []Unit                 `json:"units"`
	Fields         []FieldSummary         `json:"fields"`
	ObstacleCount  int                    `json:"obstacleCount"`
	DroppedChanges uint64                 `json:"droppedChanges"`
	Journal        map[string]interface{} `json:"journal"`
}

// GetState returns the current state.
func (e *Engine) GetState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fields := make([]FieldSummary, 0, e.fields.Len())
	for _, id := range e.fields.Keys() {
		f, _ := e.fields.Get(id)
		fields = append(fields, FieldSummary{
			ID:           id,
			Destination:  f.DestinationCell.Index,
			Units:        f.Units,
			GridRevision: f.GridRevision,
			Stale:        e.fields.IsStale(id),
			Reached:      f.Stats().Reached,
		})
	}
	active, _, _ := e.fields.Active()

	return State{
		Tick:           e.tickCount,
		Revision:       e.grid.Revision(),
		ActiveField:    active,
		Units:          e.unitsLocked(),
		Fields:         fields,
		ObstacleCount:  len(e.tracker.Obstacles()),
		DroppedChanges: e.changes.Dropped(),
		Journal:        e.journal.GetStats(),
	}
}

// GetLimits returns the resource limits in effect.
func (e *Engine) GetLimits() config.ResourceLimits {
	return e.limits
}
