// Package scenario loads battlefield layouts from YAML: grid shape, static
// walls, terrain regions, dynamic obstacles and starting units.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"battle-nav/internal/config"
	"battle-nav/internal/nav"
)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("scenario: invalid")

// Scenario is the decoded YAML document.
type Scenario struct {
	Name      string         `yaml:"name"`
	Grid      GridSpec       `yaml:"grid"`
	Walls     []RectSpec     `yaml:"walls"`
	Terrain   []TerrainSpec  `yaml:"terrain"`
	Obstacles []ObstacleSpec `yaml:"obstacles"`
	Units     []UnitSpec     `yaml:"units"`
}

// GridSpec overrides the configured grid shape. Zero fields keep the
// configured value.
type GridSpec struct {
	Columns      int     `yaml:"columns"`
	Rows         int     `yaml:"rows"`
	CellDiameter float64 `yaml:"cell_diameter"`
}

// RectSpec is a world-space rectangle on the ground plane.
type RectSpec struct {
	MinX float64 `yaml:"min_x"`
	MinZ float64 `yaml:"min_z"`
	MaxX float64 `yaml:"max_x"`
	MaxZ float64 `yaml:"max_z"`
}

// TerrainSpec assigns a terrain cost to a rectangle.
type TerrainSpec struct {
	RectSpec `yaml:",inline"`
	Cost     uint8 `yaml:"cost"`
}

// ObstacleSpec is a dynamic obstacle. A missing half_extent is kept as nil
// so the maintenance layer can skip it.
type ObstacleSpec struct {
	ID         string    `yaml:"id"`
	Position   nav.Vec3  `yaml:"position"`
	Scale      *nav.Vec3 `yaml:"scale"`
	HalfExtent *nav.Vec3 `yaml:"half_extent"`
	Cost       uint8     `yaml:"cost"`
}

// UnitSpec places a unit at start.
type UnitSpec struct {
	ID       string   `yaml:"id"`
	Position nav.Vec3 `yaml:"position"`
}

func (r RectSpec) box() nav.AABB {
	return nav.AABB{
		Min: nav.Vec3{X: min(r.MinX, r.MaxX), Z: min(r.MinZ, r.MaxZ)},
		Max: nav.Vec3{X: max(r.MinX, r.MaxX), Z: max(r.MinZ, r.MaxZ)},
	}
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: load %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates YAML.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks grid shape and ID uniqueness. Obstacles without a half
// extent are allowed here and skipped later.
func (s *Scenario) Validate() error {
	var errs []error
	if s.Grid.Columns < 0 || s.Grid.Rows < 0 {
		errs = append(errs, fmt.Errorf("%w: negative grid size %dx%d", ErrInvalidScenario, s.Grid.Columns, s.Grid.Rows))
	}
	if s.Grid.CellDiameter < 0 {
		errs = append(errs, fmt.Errorf("%w: negative cell_diameter %v", ErrInvalidScenario, s.Grid.CellDiameter))
	}

	seen := make(map[string]bool, len(s.Obstacles))
	for i, o := range s.Obstacles {
		switch {
		case o.ID == "":
			errs = append(errs, fmt.Errorf("%w: obstacle %d has no id", ErrInvalidScenario, i))
		case seen[o.ID]:
			errs = append(errs, fmt.Errorf("%w: duplicate obstacle id %q", ErrInvalidScenario, o.ID))
		}
		seen[o.ID] = true
	}

	units := make(map[string]bool, len(s.Units))
	for _, u := range s.Units {
		if u.ID != "" && units[u.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate unit id %q", ErrInvalidScenario, u.ID))
		}
		units[u.ID] = true
	}
	return errors.Join(errs...)
}

// Navigation applies the scenario's grid overrides to base.
func (s *Scenario) Navigation(base config.NavigationConfig) config.NavigationConfig {
	if s.Grid.Columns > 0 {
		base.Columns = s.Grid.Columns
	}
	if s.Grid.Rows > 0 {
		base.Rows = s.Grid.Rows
	}
	if s.Grid.CellDiameter > 0 {
		base.CellDiameter = s.Grid.CellDiameter
	}
	return base
}

// Classifier returns the is-blocked test for the static walls, backed by a
// bucketed index sized to the grid. Nil when there are no walls.
func (s *Scenario) Classifier(cfg config.NavigationConfig) nav.BlockedFunc {
	if len(s.Walls) == 0 {
		return nil
	}
	halfW := float64(cfg.Columns) * cfg.CellDiameter / 2
	halfD := float64(cfg.Rows) * cfg.CellDiameter / 2
	bounds := nav.AABB{Min: nav.Vec3{X: -halfW, Z: -halfD}, Max: nav.Vec3{X: halfW, Z: halfD}}

	ix := nav.NewObstacleIndex(bounds, cfg.CellDiameter*4)
	for _, w := range s.Walls {
		ix.Insert(w.box())
	}
	return ix.BlockedFunc()
}

// TerrainFunc returns the terrain cost lookup. Later regions override
// earlier ones. Nil when there is no terrain.
func (s *Scenario) TerrainFunc() func(nav.Vec3) uint8 {
	if len(s.Terrain) == 0 {
		return nil
	}
	regions := make([]TerrainSpec, len(s.Terrain))
	copy(regions, s.Terrain)
	return func(p nav.Vec3) uint8 {
		for i := len(regions) - 1; i >= 0; i-- {
			if regions[i].box().ContainsXZ(p) {
				return regions[i].Cost
			}
		}
		return 0
	}
}

// DynamicObstacles converts the obstacle specs for the maintenance tracker.
func (s *Scenario) DynamicObstacles() []nav.Obstacle {
	out := make([]nav.Obstacle, 0, len(s.Obstacles))
	for _, o := range s.Obstacles {
		t := nav.NewTransform(o.Position)
		if o.Scale != nil {
			t.Scale = *o.Scale
		}
		var half *nav.Vec3
		if o.HalfExtent != nil {
			h := *o.HalfExtent
			half = &h
		}
		out = append(out, nav.Obstacle{
			ID:         nav.ObstacleID(o.ID),
			Transform:  t,
			HalfExtent: half,
			Cost:       o.Cost,
		})
	}
	return out
}
