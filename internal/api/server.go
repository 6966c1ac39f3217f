package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"battle-nav/internal/nav"
	"battle-nav/internal/sim"
)

// stateInterval is how often connected clients get a sim:state push
const stateInterval = 250 * time.Millisecond

// Server is the HTTP API server with WebSocket push of engine events.
type Server struct {
	engine      *sim.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates the API server and registers the engine callbacks
// that feed metrics and WebSocket clients. Background workers do not start
// until Start.
func NewServer(engine *sim.Engine) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		RateLimiter: s.rateLimiter,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	engine.SetCallbacks(s.onCostChange, s.onFieldBuilt, s.onTick)
	return s
}

// costChangeMessage is the WebSocket payload for a cost change.
type costChangeMessage struct {
	Kind     string          `json:"kind"`
	Obstacle nav.ObstacleID  `json:"obstacleId,omitempty"`
	Revision uint64          `json:"revision"`
	Cells    []costCellEntry `json:"cells"`
}

type costCellEntry struct {
	X    int   `json:"x"`
	Y    int   `json:"y"`
	Cost uint8 `json:"cost"`
}

func (s *Server) onCostChange(c nav.CostChange) {
	RecordCostChange(c)
	if s.wsHub.ClientCount() == 0 {
		return
	}
	msg := costChangeMessage{
		Kind:     c.Kind.String(),
		Obstacle: c.Obstacle,
		Revision: c.Revision,
		Cells:    make([]costCellEntry, len(c.Cells)),
	}
	for i, cell := range c.Cells {
		msg.Cells[i] = costCellEntry{X: cell.Index.X, Y: cell.Index.Y, Cost: cell.Cost}
	}
	s.wsHub.Broadcast(EventCostChanged, msg)
}

func (s *Server) onFieldBuilt(ev sim.FieldEvent) {
	RecordFieldBuilt(ev)
	s.wsHub.Broadcast(EventFieldBuilt, ev)
}

func (s *Server) onTick(stats sim.TickStats) {
	RecordTick(stats)
}

// Start launches the hub and serves HTTP on addr. It blocks until the
// server stops; a Shutdown is not reported as an error.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartStateLoop(s.engine, stateInterval)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🗺️  Grid overlay: http://localhost%s/api/grid/overlay.png", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop shuts the HTTP server down and disconnects WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	s.engine.SetCallbacks(nil, nil, nil)
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
