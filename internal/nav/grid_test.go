package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGrid(t *testing.T, cols, rows int, d float64, blocked BlockedFunc) *Grid {
	t.Helper()
	g, err := NewGrid(Size{X: cols, Y: rows}, d, blocked)
	require.NoError(t, err)
	return g
}

// TestNewGridRejectsDegenerateInput verifies construction errors
func TestNewGridRejectsDegenerateInput(t *testing.T) {
	tests := []struct {
		name     string
		size     Size
		diameter float64
		want     error
	}{
		{"zero columns", Size{0, 5}, 1, ErrDegenerateGrid},
		{"zero rows", Size{5, 0}, 1, ErrDegenerateGrid},
		{"negative", Size{-1, 3}, 1, ErrDegenerateGrid},
		{"zero diameter", Size{3, 3}, 0, ErrInvalidCellDiameter},
		{"negative diameter", Size{3, 3}, -2, ErrInvalidCellDiameter},
		{"nan diameter", Size{3, 3}, math.NaN(), ErrInvalidCellDiameter},
		{"inf diameter", Size{3, 3}, math.Inf(1), ErrInvalidCellDiameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrid(tt.size, tt.diameter, nil)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewGridLayout(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)

	assert.Equal(t, Size{5, 5}, g.Size())
	assert.Equal(t, 1.0, g.CellRadius())
	assert.Len(t, g.Cells(), 25)

	first, ok := g.Cell(GridIndex{0, 0})
	require.True(t, ok)
	assert.Equal(t, Vec3{X: -4, Z: -4}, first.WorldPosition)
	assert.Equal(t, CostBaseline, first.Cost)
	assert.Equal(t, DistanceUnreached, first.BestCost)
	assert.Equal(t, DirNone, first.Direction)

	last, ok := g.Cell(GridIndex{4, 4})
	require.True(t, ok)
	assert.Equal(t, Vec3{X: 4, Z: 4}, last.WorldPosition)

	// Row-major: second element is column 1, row 0
	assert.Equal(t, GridIndex{1, 0}, g.Cells()[1].Index)

	_, ok = g.Cell(GridIndex{5, 0})
	assert.False(t, ok)

	ext := g.Extent()
	assert.Equal(t, -5.0, ext.Min.X)
	assert.Equal(t, 5.0, ext.Max.Z)
}

func TestNewGridClassifiesBlockedCells(t *testing.T) {
	calls := 0
	g := mustGrid(t, 5, 5, 2.0, func(p Vec3) bool {
		calls++
		return p.X < 0
	})

	assert.Equal(t, 25, calls, "classifier runs once per cell")
	for _, c := range g.Cells() {
		if c.Index.X < 2 {
			assert.Equal(t, CostImpassable, c.Cost, "cell %v", c.Index)
			assert.Equal(t, CostImpassable, c.BaseCost, "cell %v", c.Index)
		} else {
			assert.Equal(t, CostBaseline, c.Cost, "cell %v", c.Index)
		}
	}
}

// TestLocateAlwaysInBounds checks the clamping law for arbitrary inputs
func TestLocateAlwaysInBounds(t *testing.T) {
	sizes := []Size{{1, 1}, {5, 5}, {7, 3}, {2, 9}}
	positions := []Vec3{
		{},
		{X: 1e12, Z: -1e12},
		{X: -1e12, Z: 1e12},
		{X: math.Inf(1), Z: math.Inf(-1)},
		{X: math.NaN(), Z: math.NaN()},
		{X: 4.999, Z: -4.999},
		{X: 5, Z: 5},
		{X: -5, Z: -5},
		{X: 0.3, Y: 1000, Z: -2.7},
	}

	for _, size := range sizes {
		g := mustGrid(t, size.X, size.Y, 2.0, nil)
		for _, p := range positions {
			idx := g.LocateIndex(p)
			assert.True(t, g.InBounds(idx), "size %v pos %v -> %v", size, p, idx)
			assert.Equal(t, idx, g.Locate(p).Index)
		}
	}
}

func TestLocateClampsToNearestEdge(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)

	assert.Equal(t, GridIndex{0, 0}, g.LocateIndex(Vec3{X: -100, Z: -100}))
	assert.Equal(t, GridIndex{4, 4}, g.LocateIndex(Vec3{X: 100, Z: 100}))
	assert.Equal(t, GridIndex{4, 0}, g.LocateIndex(Vec3{X: 100, Z: -100}))
	assert.Equal(t, GridIndex{2, 4}, g.LocateIndex(Vec3{X: 0.5, Z: 100}))
}

// TestLocateRoundTrip verifies locate(cell_world_position(i)) == i
func TestLocateRoundTrip(t *testing.T) {
	tests := []struct {
		size     Size
		diameter float64
	}{
		{Size{1, 1}, 1},
		{Size{5, 5}, 2},
		{Size{7, 3}, 0.5},
		{Size{16, 9}, 10},
		{Size{33, 17}, 0.1},
	}

	for _, tt := range tests {
		g := mustGrid(t, tt.size.X, tt.size.Y, tt.diameter, nil)
		for y := 0; y < tt.size.Y; y++ {
			for x := 0; x < tt.size.X; x++ {
				idx := GridIndex{x, y}
				assert.Equal(t, idx, g.LocateIndex(g.CellWorldPosition(idx)))
			}
		}
	}
}

func TestRaiseCostSaturates(t *testing.T) {
	g := mustGrid(t, 3, 3, 1, nil)
	idx := GridIndex{1, 1}

	c, ok := g.RaiseCost(idx, 200)
	require.True(t, ok)
	assert.Equal(t, uint8(201), c.Cost)

	c, _ = g.RaiseCost(idx, 200)
	assert.Equal(t, CostImpassable, c.Cost, "must clamp, not wrap")

	c, _ = g.RaiseCost(idx, 1)
	assert.Equal(t, CostImpassable, c.Cost)

	_, ok = g.RaiseCost(GridIndex{3, 0}, 1)
	assert.False(t, ok)
}

func TestCellRaiseCost(t *testing.T) {
	c := NewCell(Vec3{}, GridIndex{})
	c.RaiseCost(3)
	assert.Equal(t, uint8(4), c.Cost)
	c.RaiseCost(250)
	assert.Equal(t, uint8(254), c.Cost, "sum below 255 is kept")
	assert.False(t, c.Impassable())
	c.RaiseCost(250)
	assert.Equal(t, CostImpassable, c.Cost)
	assert.True(t, c.Impassable())
}

func TestResetCost(t *testing.T) {
	g := mustGrid(t, 3, 3, 1, nil)

	// Never raised: reset is a no-op
	c, ok := g.ResetCost(GridIndex{0, 0})
	require.True(t, ok)
	assert.Equal(t, CostBaseline, c.Cost)

	g.RaiseCost(GridIndex{1, 1}, 100)
	c, _ = g.ResetCost(GridIndex{1, 1})
	assert.Equal(t, CostBaseline, c.Cost)

	// Terrain is restored rather than the hardcoded baseline
	g.SetTerrainCost(GridIndex{2, 2}, 5)
	g.RaiseCost(GridIndex{2, 2}, 10)
	c, _ = g.Cell(GridIndex{2, 2})
	assert.Equal(t, uint8(15), c.Cost)
	c, _ = g.ResetCost(GridIndex{2, 2})
	assert.Equal(t, uint8(5), c.Cost)
}

func TestRevisionTracksMutations(t *testing.T) {
	g := mustGrid(t, 3, 3, 1, nil)
	assert.Equal(t, uint64(0), g.Revision())

	g.RaiseCost(GridIndex{0, 0}, 1)
	g.ResetCost(GridIndex{0, 0})
	g.SetTerrainCost(GridIndex{1, 0}, 3)
	assert.Equal(t, uint64(3), g.Revision())

	// Out-of-bounds mutations change nothing
	g.RaiseCost(GridIndex{-1, 0}, 1)
	assert.Equal(t, uint64(3), g.Revision())
}

func TestFootprint(t *testing.T) {
	g := mustGrid(t, 5, 5, 2.0, nil)

	tests := []struct {
		name string
		tr   Transform
		half Vec3
		want []GridIndex
	}{
		{
			name: "vertical pair",
			tr:   NewTransform(Vec3{X: 0, Z: 1}),
			half: Vec3{X: 0.5, Z: 1.5},
			want: []GridIndex{{2, 2}, {2, 3}},
		},
		{
			name: "single cell",
			tr:   NewTransform(Vec3{X: -4, Z: -4}),
			half: Vec3{X: 0.5, Z: 0.5},
			want: []GridIndex{{0, 0}},
		},
		{
			name: "scaled square",
			tr:   Transform{Translation: Vec3{}, Scale: Vec3{X: 2, Y: 1, Z: 2}},
			half: Vec3{X: 1, Z: 1},
			want: []GridIndex{{1, 1}, {2, 1}, {3, 1}, {1, 2}, {2, 2}, {3, 2}, {1, 3}, {2, 3}, {3, 3}},
		},
		{
			name: "outside clamps to edge",
			tr:   NewTransform(Vec3{X: 100, Z: 100}),
			half: Vec3{X: 1, Z: 1},
			want: []GridIndex{{4, 4}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Footprint(tt.tr, tt.half))
		})
	}
}
