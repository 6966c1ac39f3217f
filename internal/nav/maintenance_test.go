package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	changes []CostChange
}

func (r *recordingSink) Publish(c CostChange) { r.changes = append(r.changes, c) }

func extent(x, y, z float64) *Vec3 { return &Vec3{X: x, Y: y, Z: z} }

func costAt(t *testing.T, g *Grid, x, y int) uint8 {
	t.Helper()
	c, ok := g.Cell(GridIndex{x, y})
	require.True(t, ok)
	return c.Cost
}

// TestDynamicObstacleLifecycle covers add, rebuild, remove and rebuild on the
// 5x5 grid with a vertical two-cell wall
func TestDynamicObstacleLifecycle(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)
	sink := &recordingSink{}
	tr := NewTracker(g, sink)
	dest := GridIndex{4, 4}

	baseline, err := BuildFlowField(g, dest, nil)
	require.NoError(t, err)

	wall := Obstacle{
		ID:         "wall",
		Transform:  NewTransform(Vec3{X: 0, Y: 0, Z: 1}),
		HalfExtent: extent(0.5, 0, 1.5),
	}
	require.NoError(t, tr.Add(wall))
	assert.Equal(t, CostImpassable, costAt(t, g, 2, 2))
	assert.Equal(t, CostImpassable, costAt(t, g, 2, 3))
	assert.Equal(t, []GridIndex{{2, 2}, {2, 3}}, tr.Footprint("wall"))

	require.Len(t, sink.changes, 1)
	added := sink.changes[0]
	assert.Equal(t, ChangeAdded, added.Kind)
	assert.Equal(t, ObstacleID("wall"), added.Obstacle)
	assert.Equal(t, g.Revision(), added.Revision)
	assert.Equal(t, []GridIndex{{2, 2}, {2, 3}}, added.Indices())
	for _, c := range added.Cells {
		assert.Equal(t, CostImpassable, c.Cost, "event carries fresh cell state")
	}

	blocked, err := BuildFlowField(g, dest, nil)
	require.NoError(t, err)
	for _, idx := range []GridIndex{{2, 2}, {2, 3}} {
		c, _ := blocked.Cell(idx)
		assert.False(t, c.Reached(), "wall cell %v", idx)
	}
	detour, _ := blocked.Cell(GridIndex{1, 3})
	assert.Equal(t, uint16(4), detour.BestCost, "(1,3) reaches via row 4")

	require.NoError(t, tr.Remove("wall"))
	assert.Equal(t, CostBaseline, costAt(t, g, 2, 2))
	assert.Equal(t, CostBaseline, costAt(t, g, 2, 3))
	require.Len(t, sink.changes, 2)
	assert.Equal(t, ChangeRemoved, sink.changes[1].Kind)

	restored, err := BuildFlowField(g, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, baseline.Cells, restored.Cells, "removal restores the original field")
}

func TestTrackerMove(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)
	sink := &recordingSink{}
	tr := NewTracker(g, sink)

	require.NoError(t, tr.Add(Obstacle{
		ID:         "crate",
		Transform:  NewTransform(Vec3{X: 0, Z: 1}),
		HalfExtent: extent(0.5, 0, 1.5),
	}))
	require.NoError(t, tr.Move("crate", NewTransform(Vec3{X: -4, Z: -4})))

	assert.Equal(t, CostBaseline, costAt(t, g, 2, 2))
	assert.Equal(t, CostBaseline, costAt(t, g, 2, 3))
	assert.Equal(t, CostImpassable, costAt(t, g, 0, 0))
	assert.Equal(t, CostImpassable, costAt(t, g, 0, 1))

	require.Len(t, sink.changes, 2)
	moved := sink.changes[1]
	assert.Equal(t, ChangeMoved, moved.Kind)
	assert.Equal(t, []GridIndex{{2, 2}, {2, 3}, {0, 0}, {0, 1}}, moved.Indices())

	o, ok := tr.Obstacle("crate")
	require.True(t, ok)
	assert.Equal(t, Vec3{X: -4, Z: -4}, o.Transform.Translation)
}

func TestTrackerOverlappingObstacles(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)
	tr := NewTracker(g, nil)

	require.NoError(t, tr.Add(Obstacle{ID: "a", Transform: NewTransform(Vec3{}), HalfExtent: extent(0.5, 0, 0.5), Cost: 10}))
	require.NoError(t, tr.Add(Obstacle{ID: "b", Transform: NewTransform(Vec3{}), HalfExtent: extent(2.5, 0, 0.5), Cost: 20}))
	assert.Equal(t, uint8(31), costAt(t, g, 2, 2))
	assert.Equal(t, uint8(21), costAt(t, g, 1, 2))

	require.NoError(t, tr.Remove("a"))
	assert.Equal(t, uint8(21), costAt(t, g, 2, 2), "remaining obstacle still raises the cell")

	require.NoError(t, tr.Remove("b"))
	assert.Equal(t, CostBaseline, costAt(t, g, 2, 2))
	assert.Equal(t, CostBaseline, costAt(t, g, 1, 2))
}

func TestTrackerTerrainUnderObstacle(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)
	sink := &recordingSink{}
	tr := NewTracker(g, sink)

	require.NoError(t, tr.Add(Obstacle{ID: "mud", Transform: NewTransform(Vec3{}), HalfExtent: extent(0.5, 0, 0.5), Cost: 10}))
	require.NoError(t, tr.SetTerrainCost(GridIndex{2, 2}, 5))
	assert.Equal(t, uint8(15), costAt(t, g, 2, 2))

	last := sink.changes[len(sink.changes)-1]
	assert.Equal(t, ChangeTerrain, last.Kind)
	assert.Empty(t, last.Obstacle)
	require.Len(t, last.Cells, 1)
	assert.Equal(t, uint8(5), last.Cells[0].BaseCost)

	require.NoError(t, tr.Remove("mud"))
	assert.Equal(t, uint8(5), costAt(t, g, 2, 2), "reset returns to terrain, not to 1")

	assert.Error(t, tr.SetTerrainCost(GridIndex{9, 9}, 5))
}

func TestTrackerErrors(t *testing.T) {
	g := mustGrid(t, 3, 3, 1, nil)
	tr := NewTracker(g, nil)

	assert.ErrorIs(t, tr.Add(Obstacle{ID: "ghost", Transform: NewTransform(Vec3{})}), ErrMissingExtent)
	assert.ErrorIs(t, tr.Remove("ghost"), ErrUnknownObstacle)
	assert.ErrorIs(t, tr.Move("ghost", NewTransform(Vec3{})), ErrUnknownObstacle)

	require.NoError(t, tr.Add(Obstacle{ID: "a", Transform: NewTransform(Vec3{}), HalfExtent: extent(0.1, 0, 0.1)}))
	assert.ErrorIs(t, tr.Add(Obstacle{ID: "a", Transform: NewTransform(Vec3{}), HalfExtent: extent(0.1, 0, 0.1)}), ErrDuplicateObstacle)
	assert.Len(t, tr.Obstacles(), 1)
	assert.Nil(t, tr.Footprint("ghost"))
}

// TestTrackerBatchSkipsBadEntries verifies a missing extent does not abort
// the rest of the batch
func TestTrackerBatchSkipsBadEntries(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)
	sink := &recordingSink{}
	tr := NewTracker(g, sink)

	err := tr.Apply([]ObstacleUpdate{
		{Op: OpAdd, Obstacle: Obstacle{ID: "a", Transform: NewTransform(Vec3{X: -4, Z: -4}), HalfExtent: extent(0.5, 0, 0.5)}},
		{Op: OpAdd, Obstacle: Obstacle{ID: "sizeless", Transform: NewTransform(Vec3{})}},
		{Op: OpRemove, Obstacle: Obstacle{ID: "never-added"}},
		{Op: OpAdd, Obstacle: Obstacle{ID: "b", Transform: NewTransform(Vec3{X: 4, Z: 4}), HalfExtent: extent(0.5, 0, 0.5)}},
		{Op: OpMove, Obstacle: Obstacle{ID: "b", Transform: NewTransform(Vec3{X: 4, Z: -4})}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExtent)
	assert.ErrorIs(t, err, ErrUnknownObstacle)

	assert.Equal(t, CostImpassable, costAt(t, g, 0, 0))
	assert.Equal(t, CostBaseline, costAt(t, g, 4, 4))
	assert.Equal(t, CostImpassable, costAt(t, g, 4, 0))
	assert.Len(t, sink.changes, 3)
}

func TestMultiSink(t *testing.T) {
	var a, b int
	sink := MultiSink{
		SinkFunc(func(CostChange) { a++ }),
		nil,
		SinkFunc(func(CostChange) { b++ }),
	}
	sink.Publish(CostChange{Kind: ChangeAdded})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, "added", ChangeAdded.String())
	assert.Equal(t, "unknown", ChangeKind(0).String())
}
