package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/logbook"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/event"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/simulation"
)

const commandTimeout = 5 * time.Second

// ===================== probes =====================

func (s *Server) handleHealthz(c *gin.Context) {
	if s.opts.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "running": s.core.Running()})
		return
	}
	c.JSON(http.StatusOK, s.opts.Health.Status())
}

func (s *Server) handleReadyz(c *gin.Context) {
	ready := s.opts.Health == nil || s.opts.Health.Ready()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready})
}

// ===================== reads =====================

// GET /api/v1/snapshot
func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.core.Snapshot()})
}

// GET /api/v1/sensors/current
func (s *Server) handleCurrent(c *gin.Context) {
	sample := s.core.CurrentSample()
	c.JSON(http.StatusOK, gin.H{
		"data": sample,
		"meta": gin.H{"moisture_status": sample.Status()},
	})
}

// GET /api/v1/history?n=20
func (s *Server) handleHistory(c *gin.Context) {
	n := logbook.HistoryCapacity
	if v := c.Query("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
			return
		}
		n = parsed
	}
	entries := s.core.Recent(n)
	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"meta": gin.H{"count": len(entries)},
	})
}

// GET /api/v1/alerts
func (s *Server) handleAlerts(c *gin.Context) {
	alerts := s.core.Alerts()
	c.JSON(http.StatusOK, gin.H{
		"data": alerts,
		"meta": gin.H{"count": len(alerts)},
	})
}

// GET /api/v1/prediction
func (s *Server) handlePrediction(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.core.Prediction()})
}

// GET /api/v1/irrigation
func (s *Server) handleIrrigation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": irrigationView(s.core)})
}

// GET /api/v1/telemetry/moisture?minutes=60&limit=100
func (s *Server) handleStoredMoisture(c *gin.Context) {
	if s.opts.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": event.ErrQueryUnavailable.Error()})
		return
	}
	p := event.ParseQueryParams(c.Query)
	points, err := s.opts.Store.RecentMoisture(c.Request.Context(), p)
	if err != nil {
		s.logger.Warn("telemetry query failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": points,
		"meta": gin.H{"count": len(points), "minutes": p.Minutes},
	})
}

type irrigationResponse struct {
	PumpOn     bool    `json:"pump_on"`
	AutoMode   bool    `json:"auto_mode"`
	Threshold  float64 `json:"threshold"`
	Running    bool    `json:"running"`
	IntervalMs int64   `json:"interval_ms"`
}

func irrigationView(core Core) irrigationResponse {
	st := core.State()
	return irrigationResponse{
		PumpOn:     st.PumpOn,
		AutoMode:   st.AutoMode,
		Threshold:  core.Threshold(),
		Running:    core.Running(),
		IntervalMs: core.Interval().Milliseconds(),
	}
}

// ===================== intents =====================

type intervalRequest struct {
	IntervalMs *int `json:"interval_ms" binding:"required"`
}

type autoRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type thresholdRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// POST /api/v1/simulation/start
func (s *Server) handleStart(c *gin.Context) {
	s.command(c, "start", func(ctx context.Context) error { return s.core.StartSimulation(ctx) })
}

// POST /api/v1/simulation/stop
func (s *Server) handleStop(c *gin.Context) {
	s.command(c, "stop", func(ctx context.Context) error { return s.core.StopSimulation(ctx) })
}

// PUT /api/v1/simulation/interval {"interval_ms": 5000}
func (s *Server) handleSetInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_ms is required"})
		return
	}
	d := time.Duration(*req.IntervalMs) * time.Millisecond
	s.command(c, "set_interval", func(ctx context.Context) error { return s.core.SetInterval(ctx, d) })
}

// PUT /api/v1/irrigation/auto {"enabled": false}
func (s *Server) handleSetAuto(c *gin.Context) {
	var req autoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	s.command(c, "set_auto", func(ctx context.Context) error { return s.core.SetAutoMode(ctx, *req.Enabled) })
}

// POST /api/v1/irrigation/pump/toggle
// In auto mode the toggle is ignored and reported with toggled=false.
func (s *Server) handleToggle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	toggled, err := s.core.ManualToggle(ctx)
	if err != nil {
		s.fail(c, "toggle_pump", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": irrigationView(s.core), "meta": gin.H{"toggled": toggled}})
}

// PUT /api/v1/irrigation/threshold {"value": 40}
func (s *Server) handleSetThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	applied, err := s.core.SetMoistureThreshold(ctx, *req.Value)
	if err != nil {
		s.fail(c, "set_threshold", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": irrigationView(s.core),
		"meta": gin.H{"requested": *req.Value, "applied": applied},
	})
}

func (s *Server) command(c *gin.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.fail(c, name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": irrigationView(s.core)})
}

func (s *Server) fail(c *gin.Context, name string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, simulation.ErrInvalidInterval):
		code = http.StatusBadRequest
	case errors.Is(err, simulation.ErrNotRunning):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	s.logger.Warn("command failed", zap.String("command", name), zap.Error(err))
	c.JSON(code, gin.H{"error": err.Error()})
}
