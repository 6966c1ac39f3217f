// Package config provides centralized configuration management.
// Every tunable of the navigation server lives here; other packages take
// these structs and never read the environment themselves.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// NAVIGATION GRID CONFIGURATION
// =============================================================================

// NavigationConfig holds the shape of the shared cost grid.
type NavigationConfig struct {
	Columns      int     // Grid width in cells
	Rows         int     // Grid depth in cells
	CellDiameter float64 // World units per cell side
	ObstacleCost uint8   // Raise applied by obstacles without an explicit cost (255 = wall)
}

// DefaultNavigation returns the default grid configuration.
func DefaultNavigation() NavigationConfig {
	return NavigationConfig{
		Columns:      64,
		Rows:         64,
		CellDiameter: 2.0,
		ObstacleCost: 255,
	}
}

// NavigationFromEnv returns grid configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func NavigationFromEnv() NavigationConfig {
	cfg := DefaultNavigation()

	if c := getEnvInt("GRID_COLUMNS", 0); c > 0 {
		cfg.Columns = c
	}
	if r := getEnvInt("GRID_ROWS", 0); r > 0 {
		cfg.Rows = r
	}
	if d := getEnvFloat("CELL_DIAMETER", 0); d > 0 {
		cfg.CellDiameter = d
	}
	if c := getEnvInt("OBSTACLE_COST", 0); c > 0 && c <= 255 {
		cfg.ObstacleCost = uint8(c)
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig controls the tick loop that applies cost changes and moves units.
type SimConfig struct {
	TickRate     int     // Ticks per second
	UnitSpeed    float64 // World units per second along the flow field
	RebuildStale bool    // Rebuild stale fields each tick (false = discard them)
	JournalPath  string  // NDJSON event journal, empty = count only
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:     20,
		UnitSpeed:    4.0,
		RebuildStale: true,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if s := getEnvFloat("UNIT_SPEED", -1); s >= 0 {
		cfg.UnitSpeed = s
	}
	if os.Getenv("REBUILD_STALE") == "false" {
		cfg.RebuildStale = false
	}
	cfg.JournalPath = os.Getenv("SIM_JOURNAL")

	return cfg
}

// TickInterval converts TickRate into a ticker period.
func (c SimConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / time.Duration(DefaultSim().TickRate)
	}
	return time.Second / time.Duration(c.TickRate)
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and per-tick work bounds.
type ResourceLimits struct {
	MaxUnits            int // Hard cap on registered units
	MaxFields           int // Hard cap on stored flow fields
	MaxOrderUnits       int // Units accepted in one move order
	ChangeQueueCapacity int // Cost change ring size (rounded to a power of 2)
	MaxChangesPerTick   int // Changes drained per tick
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxUnits:            10_000,
		MaxFields:           64,
		MaxOrderUnits:       1_000,
		ChangeQueueCapacity: 4096,
		MaxChangesPerTick:   1024,
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int
	DebugPort int // localhost-only pprof/metrics listener

	// OTLP tracing of field builds, off by default
	TracingEnabled bool
	ServiceName    string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		DebugPort:   6060,
		ServiceName: "battle-nav",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if p := getEnvInt("DEBUG_PORT", 0); p > 0 {
		cfg.DebugPort = p
	}
	cfg.TracingEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}

	return cfg
}

// =============================================================================
// SCENARIO CONFIGURATION
// =============================================================================

// ScenarioConfig points at the optional YAML scenario file.
type ScenarioConfig struct {
	Path  string // Empty = open grid from NavigationConfig
	Watch bool   // Reload obstacles when the file changes
}

// ScenarioFromEnv returns scenario configuration from the environment.
func ScenarioFromEnv() ScenarioConfig {
	return ScenarioConfig{
		Path:  os.Getenv("SCENARIO_PATH"),
		Watch: os.Getenv("SCENARIO_WATCH") == "true",
	}
}

// =============================================================================
// NOTIFICATION CONFIGURATION
// =============================================================================

// NotifyConfig holds the NATS connection used to broadcast cost changes.
type NotifyConfig struct {
	NATSURL string // Empty disables publishing
	Subject string
}

// DefaultNotify returns the default notification configuration.
func DefaultNotify() NotifyConfig {
	return NotifyConfig{
		Subject: "nav.cost.changed",
	}
}

// NotifyFromEnv returns notification configuration with environment variable overrides.
func NotifyFromEnv() NotifyConfig {
	cfg := DefaultNotify()

	cfg.NATSURL = os.Getenv("NATS_URL")
	if s := os.Getenv("NATS_SUBJECT"); s != "" {
		cfg.Subject = s
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Navigation NavigationConfig
	Sim        SimConfig
	Server     ServerConfig
	Limits     ResourceLimits
	Scenario   ScenarioConfig
	Notify     NotifyConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Navigation: NavigationFromEnv(),
		Sim:        SimFromEnv(),
		Server:     ServerFromEnv(),
		Limits:     DefaultLimits(),
		Scenario:   ScenarioFromEnv(),
		Notify:     NotifyFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
