package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-nav/internal/config"
	"battle-nav/internal/nav"
)

const arena = `
name: arena
grid:
  columns: 10
  rows: 6
  cell_diameter: 1
walls:
  - {min_x: -1, min_z: -3, max_x: 0, max_z: 1}
terrain:
  - {min_x: -5, min_z: -3, max_x: -3, max_z: 3, cost: 4}
  - {min_x: -5, min_z: 2, max_x: -3, max_z: 3, cost: 9}
obstacles:
  - id: crate
    position: {x: 3, y: 0, z: 0}
    half_extent: {x: 0.5, y: 0.5, z: 0.5}
    cost: 20
  - id: banner
    position: {x: 2, y: 0, z: 2}
    scale: {x: 2, y: 1, z: 1}
    half_extent: {x: 0.5, y: 0.5, z: 0.5}
  - id: ghost
    position: {x: 0, y: 0, z: 0}
units:
  - id: alpha
    position: {x: -4, y: 0, z: -2}
`

func TestParseArena(t *testing.T) {
	sc, err := Parse([]byte(arena))
	require.NoError(t, err)

	assert.Equal(t, "arena", sc.Name)
	nc := sc.Navigation(config.DefaultNavigation())
	assert.Equal(t, 10, nc.Columns)
	assert.Equal(t, 6, nc.Rows)
	assert.Equal(t, 1.0, nc.CellDiameter)
	assert.Equal(t, uint8(255), nc.ObstacleCost, "untouched fields keep the base value")

	obs := sc.DynamicObstacles()
	require.Len(t, obs, 3)
	assert.Equal(t, nav.ObstacleID("crate"), obs[0].ID)
	assert.Equal(t, uint8(20), obs[0].Cost)
	assert.Equal(t, nav.Vec3{X: 1, Y: 1, Z: 1}, obs[0].Transform.Scale)
	assert.Equal(t, nav.Vec3{X: 2, Y: 1, Z: 1}, obs[1].Transform.Scale)
	assert.Nil(t, obs[2].HalfExtent, "missing size is kept missing")

	require.Len(t, sc.Units, 1)
	assert.Equal(t, nav.Vec3{X: -4, Z: -2}, sc.Units[0].Position)
}

func TestClassifierAndTerrain(t *testing.T) {
	sc, err := Parse([]byte(arena))
	require.NoError(t, err)
	nc := sc.Navigation(config.DefaultNavigation())

	blocked := sc.Classifier(nc)
	require.NotNil(t, blocked)
	assert.True(t, blocked(nav.Vec3{X: -0.5, Z: 0.5}))
	assert.False(t, blocked(nav.Vec3{X: 0.5, Z: 0.5}))
	assert.False(t, blocked(nav.Vec3{X: -0.5, Z: 2.5}))

	terrain := sc.TerrainFunc()
	require.NotNil(t, terrain)
	assert.Equal(t, uint8(4), terrain(nav.Vec3{X: -4.5, Z: 0}))
	assert.Equal(t, uint8(9), terrain(nav.Vec3{X: -4.5, Z: 2.5}), "later region wins")
	assert.Zero(t, terrain(nav.Vec3{X: 4, Z: 0}))

	g, err := nav.NewGrid(nav.Size{X: nc.Columns, Y: nc.Rows}, nc.CellDiameter, blocked)
	require.NoError(t, err)
	wallCell := g.Locate(nav.Vec3{X: -0.5, Z: -2.5})
	assert.True(t, wallCell.Impassable())
}

func TestEmptyScenario(t *testing.T) {
	sc, err := Parse([]byte("name: empty\n"))
	require.NoError(t, err)
	assert.Nil(t, sc.Classifier(config.DefaultNavigation()))
	assert.Nil(t, sc.TerrainFunc())
	assert.Empty(t, sc.DynamicObstacles())
	assert.Equal(t, config.DefaultNavigation(), sc.Navigation(config.DefaultNavigation()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative grid", "grid: {columns: -1}"},
		{"negative diameter", "grid: {cell_diameter: -2}"},
		{"obstacle without id", "obstacles: [{position: {x: 1}}]"},
		{"duplicate obstacle", "obstacles: [{id: a}, {id: a}]"},
		{"duplicate unit", "units: [{id: u}, {id: u}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidScenario)
		})
	}

	_, err := Parse([]byte("grid: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(arena), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sc.Walls, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(arena), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	// Unrelated files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	// A burst of writes collapses into one event
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(arena), 0o644))
	}

	select {
	case got := <-w.Events:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, abs, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}

	select {
	case extra := <-w.Events:
		t.Fatalf("unexpected second event %q", extra)
	case <-time.After(3 * debounce):
	}
}
