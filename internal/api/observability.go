package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"battle-nav/internal/nav"
	"battle-nav/internal/sim"
)

// Metrics with bounded cardinality (no per-field or per-unit labels)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent in a navigation tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	unitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_unit_count",
		Help: "Current number of units",
	})

	// Flow field metrics
	fieldBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowfield_build_duration_seconds",
		Help:    "Time spent building a flow field",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"kind"}) // Bounded: "order", "rebuild"

	fieldRelaxations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowfield_relaxations_total",
		Help: "Distance decreases performed by integration passes",
	})

	fieldsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowfield_active",
		Help: "Flow fields currently stored",
	})

	staleRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowfield_stale_rebuilds_total",
		Help: "Flow fields rebuilt after a cost change",
	})

	staleDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowfield_stale_discards_total",
		Help: "Flow fields dropped after a cost change",
	})

	// Cost field metrics
	costMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_cost_mutations_total",
		Help: "Cost change events applied to the grid",
	}, []string{"kind"}) // Bounded: ChangeKind strings

	costCellsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_cost_cells_changed_total",
		Help: "Cells touched by cost change events",
	})

	changeQueueOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_change_queue_overflows_total",
		Help: "Ticks that found the change queue overflowed",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// DebugServerConfig controls the side listener for pprof and /metrics.
type DebugServerConfig struct {
	Enabled bool
	Addr    string // loopback unless ALLOW_DEBUG_EXTERNAL=true
	User    string // basic auth, off when empty
	Pass    string
}

const defaultDebugAddr = "127.0.0.1:6060"

// DefaultDebugServerConfig listens on the loopback interface without auth.
func DefaultDebugServerConfig() DebugServerConfig {
	return DebugServerConfig{Enabled: true, Addr: defaultDebugAddr}
}

// DebugServerForPort binds the debug listener to port on loopback and
// reads DEBUG_USER / DEBUG_PASS.
func DebugServerForPort(port int) DebugServerConfig {
	cfg := DefaultDebugServerConfig()
	if port > 0 {
		cfg.Addr = fmt.Sprintf("127.0.0.1:%d", port)
	}
	cfg.User = os.Getenv("DEBUG_USER")
	cfg.Pass = os.Getenv("DEBUG_PASS")
	return cfg
}

// debugMux serves pprof, Prometheus metrics and a liveness probe.
func debugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	for name, h := range map[string]http.HandlerFunc{
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		mux.HandleFunc("/debug/pprof/"+name, h)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartDebugServer runs the debug listener in the background. A
// non-loopback address falls back to the default unless
// ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg DebugServerConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug listener off")
		return nil
	}
	if !isLoopback(cfg.Addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Printf("⚠️ Debug listener %s is not loopback, using %s", cfg.Addr, defaultDebugAddr)
		cfg.Addr = defaultDebugAddr
	}

	var handler http.Handler = debugMux()
	if cfg.User != "" {
		handler = requireBasicAuth(cfg.User, cfg.Pass, handler)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Debug listener on http://%s (pprof: /debug/pprof/, metrics: /metrics)", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Debug listener stopped: %v", err)
		}
	}()
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func requireBasicAuth(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="battle-nav debug"`)
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InitTelemetry installs an OTLP/HTTP tracer provider so field build spans
// are exported (default endpoint localhost:4318). The returned function
// flushes and shuts the provider down.
func InitTelemetry(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Printf("📡 OpenTelemetry tracing enabled (service=%s)", serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// RecordTick records tick timing and the outcome of stale handling.
func RecordTick(stats sim.TickStats) {
	tickDuration.Observe(stats.Duration.Seconds())
	unitCount.Set(float64(stats.Units))
	fieldsActive.Set(float64(stats.Fields))
	staleRebuilds.Add(float64(stats.Rebuilt))
	staleDiscards.Add(float64(stats.Discarded))
	if stats.Overflow {
		changeQueueOverflows.Inc()
	}
}

// RecordFieldBuilt records a completed field build.
func RecordFieldBuilt(ev sim.FieldEvent) {
	kind := "order"
	if ev.Rebuild {
		kind = "rebuild"
	}
	fieldBuildDuration.WithLabelValues(kind).Observe(ev.Duration.Seconds())
	fieldRelaxations.Add(float64(ev.Stats.Relaxations))
}

// RecordCostChange counts a cost mutation by kind.
func RecordCostChange(c nav.CostChange) {
	costMutations.WithLabelValues(c.Kind.String()).Inc()
	costCellsChanged.Add(float64(len(c.Cells)))
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
