package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 64, cfg.Navigation.Columns)
	assert.Equal(t, 2.0, cfg.Navigation.CellDiameter)
	assert.Equal(t, uint8(255), cfg.Navigation.ObstacleCost)
	assert.True(t, cfg.Sim.RebuildStale)
	assert.Equal(t, "nav.cost.changed", cfg.Notify.Subject)
	assert.Empty(t, cfg.Scenario.Path)
	assert.False(t, cfg.Server.TracingEnabled)
	assert.Equal(t, "battle-nav", cfg.Server.ServiceName)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRID_COLUMNS", "10")
	t.Setenv("GRID_ROWS", "12")
	t.Setenv("CELL_DIAMETER", "0.5")
	t.Setenv("OBSTACLE_COST", "40")
	t.Setenv("TICK_RATE", "50")
	t.Setenv("REBUILD_STALE", "false")
	t.Setenv("PORT", "8080")
	t.Setenv("SCENARIO_PATH", "maps/arena.yaml")
	t.Setenv("SCENARIO_WATCH", "true")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("NATS_SUBJECT", "arena.cost")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SERVICE_NAME", "arena-nav")

	cfg := Load()

	assert.Equal(t, NavigationConfig{Columns: 10, Rows: 12, CellDiameter: 0.5, ObstacleCost: 40}, cfg.Navigation)
	assert.Equal(t, 50, cfg.Sim.TickRate)
	assert.Equal(t, 20*time.Millisecond, cfg.Sim.TickInterval())
	assert.False(t, cfg.Sim.RebuildStale)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.TracingEnabled)
	assert.Equal(t, "arena-nav", cfg.Server.ServiceName)
	assert.Equal(t, ScenarioConfig{Path: "maps/arena.yaml", Watch: true}, cfg.Scenario)
	assert.Equal(t, NotifyConfig{NATSURL: "nats://localhost:4222", Subject: "arena.cost"}, cfg.Notify)
}

func TestInvalidEnvFallsBack(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"not a number", "GRID_COLUMNS", "wide"},
		{"negative", "GRID_COLUMNS", "-3"},
		{"cost overflow", "OBSTACLE_COST", "300"},
		{"zero diameter", "CELL_DIAMETER", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			assert.Equal(t, DefaultNavigation(), NavigationFromEnv())
		})
	}
}
