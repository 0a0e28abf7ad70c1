// Package api exposes the engine over HTTP: command execution, the
// experiment lifecycle, health, and the Prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newslens/newslens/pkg/config"
	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/orchestrator"
	"github.com/newslens/newslens/pkg/store"
)

// Server is the HTTP surface over the orchestrator.
type Server struct {
	cfg         *config.Config
	orch        *orchestrator.Orchestrator
	experiments *experiment.Router
	version     string

	db         *store.Client
	registry   *prometheus.Registry
	httpServer *http.Server
}

// NewServer creates the API server. Optional collaborators are attached
// through the setters before Start.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, experiments *experiment.Router, version string) *Server {
	return &Server{
		cfg:         cfg,
		orch:        orch,
		experiments: experiments,
		version:     version,
	}
}

// SetStore attaches the PostgreSQL store for experiment persistence and the
// health check.
func (s *Server) SetStore(db *store.Client) { s.db = db }

// SetMetricsRegistry attaches the Prometheus registry served at /metrics.
func (s *Server) SetMetricsRegistry(r *prometheus.Registry) { s.registry = r }

// Handler builds the routed gin engine. Exposed separately so tests can
// drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), correlationID(), requestLogger())

	r.GET("/healthz", s.health)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/execute", s.executeCommand)
	v1.POST("/experiments", s.createExperiment)
	v1.GET("/experiments/:id", s.getExperiment)
	v1.POST("/experiments/:id/activate", s.activateExperiment)
	v1.POST("/experiments/:id/deactivate", s.deactivateExperiment)
	v1.GET("/experiments/:id/summary", s.experimentSummary)
	v1.GET("/experiments/:id/arms/:arm/metrics", s.armMetrics)

	return r
}

// Start serves HTTP on addr and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// health reports liveness plus database health when a store is attached.
func (s *Server) health(c *gin.Context) {
	out := gin.H{"status": "ok", "version": s.version}
	if s.db == nil {
		c.JSON(http.StatusOK, out)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.db.Health(ctx)
	out["database"] = dbHealth
	if err != nil {
		out["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, out)
		return
	}
	c.JSON(http.StatusOK, out)
}
