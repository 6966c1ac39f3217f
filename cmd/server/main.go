package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"battle-nav/internal/api"
	"battle-nav/internal/config"
	"battle-nav/internal/notify"
	"battle-nav/internal/scenario"
	"battle-nav/internal/sim"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🧭 ================================")
	log.Println("🧭  BATTLE-NAV FLOW FIELD SERVER")
	log.Println("🧭 ================================")

	appConfig := config.Load()

	// Optional scenario: grid overrides, walls, terrain, obstacles, units
	var sc *scenario.Scenario
	if appConfig.Scenario.Path != "" {
		var err error
		sc, err = scenario.Load(appConfig.Scenario.Path)
		if err != nil {
			log.Fatalf("❌ Failed to load scenario: %v", err)
		}
		appConfig.Navigation = sc.Navigation(appConfig.Navigation)
		log.Printf("🗺️  Scenario %q: %d walls, %d terrain regions, %d obstacles, %d units",
			sc.Name, len(sc.Walls), len(sc.Terrain), len(sc.Obstacles), len(sc.Units))
	}

	navCfg := appConfig.Navigation
	log.Printf("🧭 Grid: %dx%d cells of %.2f, obstacle cost %d",
		navCfg.Columns, navCfg.Rows, navCfg.CellDiameter, navCfg.ObstacleCost)

	var shutdownTracing func(context.Context) error
	if appConfig.Server.TracingEnabled {
		var err error
		shutdownTracing, err = api.InitTelemetry(context.Background(), appConfig.Server.ServiceName)
		if err != nil {
			log.Printf("⚠️ Tracing disabled: %v", err)
		}
	}

	// Cost change fan-out to other nodes
	var publisher *notify.Publisher
	if appConfig.Notify.NATSURL != "" {
		var err error
		publisher, err = notify.Connect(appConfig.Notify, uuid.NewString())
		if err != nil {
			log.Printf("⚠️ NATS publishing disabled: %v", err)
		}
	}

	opts := sim.Options{
		Navigation: navCfg,
		Sim:        appConfig.Sim,
		Limits:     appConfig.Limits,
	}
	if sc != nil {
		opts.Blocked = sc.Classifier(navCfg)
		opts.Terrain = sc.TerrainFunc()
	}
	if publisher != nil {
		opts.Sink = publisher
	}

	engine, err := sim.NewEngine(opts)
	if err != nil {
		log.Fatalf("❌ Failed to create engine: %v", err)
	}
	limits := engine.GetLimits()
	log.Printf("🛡️ Resource limits: %d units, %d fields, %d units per order",
		limits.MaxUnits, limits.MaxFields, limits.MaxOrderUnits)

	if sc != nil {
		if err := seedScenario(engine, sc); err != nil {
			log.Printf("⚠️ Scenario applied with errors: %v", err)
		}
	}

	// Debug server (pprof + metrics)
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(api.DebugServerForPort(appConfig.Server.DebugPort)); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(engine)

	engine.Start()
	log.Println("✅ Navigation engine started")

	go func() {
		addr := fmt.Sprintf(":%d", appConfig.Server.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Scenario hot reload only re-syncs obstacles; grid shape and walls
	// need a restart.
	var watcher *scenario.Watcher
	if sc != nil && appConfig.Scenario.Watch {
		watcher, err = scenario.NewWatcher(appConfig.Scenario.Path)
		if err != nil {
			log.Printf("⚠️ Scenario watch disabled: %v", err)
		} else {
			log.Printf("👀 Watching %s for obstacle changes", appConfig.Scenario.Path)
			go watchScenario(engine, watcher)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if watcher != nil {
		watcher.Close()
	}
	if err := server.Stop(ctx); err != nil {
		log.Printf("⚠️ API server shutdown: %v", err)
	}
	engine.Stop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("⚠️ NATS drain: %v", err)
		}
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("⚠️ Tracing shutdown: %v", err)
		}
	}
	log.Println("👋 Goodbye!")
}

// seedScenario adds the scenario's units and dynamic obstacles.
func seedScenario(engine *sim.Engine, sc *scenario.Scenario) error {
	for _, u := range sc.Units {
		if _, err := engine.AddUnit(u.ID, u.Position); err != nil {
			return fmt.Errorf("unit %q: %w", u.ID, err)
		}
	}
	return engine.SyncObstacles(sc.DynamicObstacles())
}

func watchScenario(engine *sim.Engine, w *scenario.Watcher) {
	for {
		select {
		case path, ok := <-w.Events:
			if !ok {
				return
			}
			sc, err := scenario.Load(path)
			if err != nil {
				log.Printf("⚠️ Scenario reload rejected: %v", err)
				continue
			}
			if err := engine.SyncObstacles(sc.DynamicObstacles()); err != nil {
				log.Printf("⚠️ Scenario reload applied with errors: %v", err)
			}
			log.Printf("🔄 Scenario reloaded: %d obstacles", len(engine.Obstacles()))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Scenario watch error: %v", err)
		}
	}
}
