package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"battle-nav/internal/nav"
	"battle-nav/internal/sim"
)

// EngineInterface is the part of *sim.Engine the API calls. Tests can
// swap in a fake without running the tick loop.
type EngineInterface interface {
	GetState() sim.State
	GridSnapshot() sim.GridView
	Revision() uint64
	Locate(pos nav.Vec3) nav.Cell
	SetTerrainCost(idx nav.GridIndex, cost uint8) error

	AddObstacle(o nav.Obstacle) error
	MoveObstacle(id nav.ObstacleID, to nav.Transform) error
	RemoveObstacle(id nav.ObstacleID) error
	Obstacles() []nav.Obstacle
	ObstacleFootprint(id nav.ObstacleID) []nav.GridIndex

	IssueMoveOrder(ctx context.Context, unitIDs []string, destination nav.Vec3) (sim.FieldEvent, error)
	Field(id string) (*nav.FlowField, bool)
	SteeringAt(id string, pos nav.Vec3) (nav.Direction, error)

	AddUnit(id string, pos nav.Vec3) (sim.Unit, error)
	RemoveUnit(id string) bool
	Unit(id string) (sim.Unit, bool)
	Units() []sim.Unit
}

var _ EngineInterface = (*sim.Engine)(nil)

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine:          engine,
//	    RateLimitConfig: &api.RateLimitConfig{ReadsPerSecond: 1000, ReadBurst: 1000, WritesPerSecond: 1000, WriteBurst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the navigation engine (required)
	Engine EngineInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is used only when RateLimiter is nil. If both are
	// nil, DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the default local origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine EngineInterface
}

// NewRouter constructs the HTTP router with all middleware and routes.
// It starts no goroutines apart from the rate limiter cleanup and opens no
// listeners, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting before CORS rejects early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = append([]string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}, ExtraOriginsFromEnv()...)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{engine: cfg.Engine}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleGetState)

		// Cost grid
		r.Route("/grid", func(r chi.Router) {
			r.Get("/", h.handleGetGrid)
			r.Get("/locate", h.handleLocate)
			r.Put("/terrain", h.handleSetTerrain)
			r.Get("/overlay.png", h.handleGridOverlay)
		})

		// Dynamic obstacles
		r.Route("/obstacles", func(r chi.Router) {
			r.Get("/", h.handleListObstacles)
			r.Post("/", h.handleAddObstacle)
			r.Put("/{id}", h.handleMoveObstacle)
			r.Delete("/{id}", h.handleRemoveObstacle)
		})

		// Move orders and their flow fields
		r.Post("/orders", h.handleIssueOrder)
		r.Route("/fields/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetField)
			r.Get("/steer", h.handleSteer)
			r.Get("/overlay.png", h.handleFieldOverlay)
		})

		// Units
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.handleListUnits)
			r.Post("/", h.handleAddUnit)
			r.Get("/{id}", h.handleGetUnit)
			r.Delete("/{id}", h.handleRemoveUnit)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// metricsMiddleware records latency per route pattern. Unmatched paths
// share one label value.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
