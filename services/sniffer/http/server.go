package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/config"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/db"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/lastseen"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/observability"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/router"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// Snapshotter exposes the current window contents.
type Snapshotter interface {
	Snapshot() []telemetry.Value
}

// HealthReporter reports whether the persistent store is reachable.
type HealthReporter interface {
	Status() (bool, string)
}

// HistoryReader queries stored fixes.
type HistoryReader interface {
	FetchLocations(ctx context.Context, q db.LocationQuery) ([]db.Location, error)
	FetchNearby(ctx context.Context, q db.NearbyQuery) ([]db.NearbyLocation, error)
}

// LastSeenReader returns the latest cached fix of a device.
type LastSeenReader interface {
	Get(ctx context.Context, deviceID int) (lastseen.Entry, error)
}

// Deps are the read-only collaborators of the HTTP surface. Nil members
// disable the routes that need them.
type Deps struct {
	Window   Snapshotter
	Health   HealthReporter
	History  HistoryReader
	LastSeen LastSeenReader
	Routes   *router.Table
	Metrics  *observability.Metrics
}

// Server bundles router and dependencies for the HTTP surface.
type Server struct {
	cfg    config.Config
	deps   Deps
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{cfg: cfg, deps: deps, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.deps.Window != nil {
		s.engine.GET("/data.json", s.handleWindow)
	}
	if s.deps.Routes != nil {
		s.registerV1Routes()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	up, lastErr := s.deps.Health.Status()
	if !up {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"store":  "down",
			"error":  lastErr,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "up"})
}

// handleWindow serves the window oldest first. The snapshot is taken under
// the buffer lock and encoded after it is released.
func (s *Server) handleWindow(c *gin.Context) {
	records := s.deps.Window.Snapshot()
	body, err := json.Marshal(records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
