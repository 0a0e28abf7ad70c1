package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/orchestrator"
	"github.com/newslens/newslens/pkg/schema"
)

// statusForCode maps the error taxonomy onto HTTP status codes.
func statusForCode(code schema.ErrorCode) int {
	switch code {
	case schema.ErrValidationFailed:
		return http.StatusUnprocessableEntity
	case schema.ErrNoData:
		return http.StatusNotFound
	case schema.ErrBudgetExceeded:
		return http.StatusTooManyRequests
	case schema.ErrModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// executeCommand handles POST /api/v1/execute.
func (s *Server) executeCommand(c *gin.Context) {
	var req orchestrator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = c.GetString(correlationKey)
	}

	resp, errResp := s.orch.Execute(c.Request.Context(), req)
	if errResp != nil {
		c.JSON(statusForCode(errResp.Code), errResp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// createExperiment handles POST /api/v1/experiments.
func (s *Server) createExperiment(c *gin.Context) {
	var exp experiment.Experiment
	if err := c.ShouldBindJSON(&exp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.experiments.Register(&exp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.persistExperiment(c, exp.ID)

	registered, _ := s.experiments.Get(exp.ID)
	c.JSON(http.StatusCreated, registered)
}

// getExperiment handles GET /api/v1/experiments/:id.
func (s *Server) getExperiment(c *gin.Context) {
	exp, ok := s.experiments.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
		return
	}
	c.JSON(http.StatusOK, exp)
}

// activateExperiment handles POST /api/v1/experiments/:id/activate.
func (s *Server) activateExperiment(c *gin.Context) {
	s.setExperimentStatus(c, s.experiments.Activate, experiment.StatusActive)
}

// deactivateExperiment handles POST /api/v1/experiments/:id/deactivate.
func (s *Server) deactivateExperiment(c *gin.Context) {
	s.setExperimentStatus(c, s.experiments.Deactivate, experiment.StatusPaused)
}

func (s *Server) setExperimentStatus(c *gin.Context, transition func(string) error, status experiment.Status) {
	id := c.Param("id")
	if err := transition(id); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, experiment.ErrNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	s.persistExperiment(c, id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// experimentSummary handles GET /api/v1/experiments/:id/summary.
func (s *Server) experimentSummary(c *gin.Context) {
	id := c.Param("id")
	summary, err := s.experiments.Summary(id)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, experiment.ErrNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	out := gin.H{"id": id, "arms": summary}
	// Advisory thresholds ride along for dashboards; nothing auto-completes
	// on them.
	if exp, ok := s.experiments.Get(id); ok {
		out["status"] = exp.Status
		if exp.MinSampleSize > 0 {
			out["min_sample_size"] = exp.MinSampleSize
		}
		if exp.MaxDurationDays > 0 {
			out["max_duration_days"] = exp.MaxDurationDays
		}
	}
	c.JSON(http.StatusOK, out)
}

// armMetrics handles GET /api/v1/experiments/:id/arms/:arm/metrics. It reads
// the durable metric history, so it needs a configured store.
func (s *Server) armMetrics(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metric persistence is not configured"})
		return
	}
	id := c.Param("id")
	if _, ok := s.experiments.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
		return
	}
	arm := c.Param("arm")
	records, err := s.db.MetricsForArm(c.Request.Context(), id, arm)
	if err != nil {
		slog.Warn("Failed to load arm metrics", "experiment", id, "arm", arm, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metric history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "arm": arm, "metrics": records})
}

// persistExperiment writes the current definition through to the store.
// Persistence is best effort; the in-memory router stays authoritative.
func (s *Server) persistExperiment(c *gin.Context, id string) {
	if s.db == nil {
		return
	}
	exp, ok := s.experiments.Get(id)
	if !ok {
		return
	}
	if err := s.db.SaveExperiment(c.Request.Context(), exp); err != nil {
		slog.Warn("Failed to persist experiment", "experiment", id, "error", err)
	}
}
