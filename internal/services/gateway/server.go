package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/smartcrop/internal/model/entities"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/event"
	"github.com/LeonardoBeccarini/smartcrop/internal/services/simulation"
)

// Core is what the HTTP API reads and drives.
type Core interface {
	event.Commander

	Snapshot() simulation.Snapshot
	CurrentSample() entities.SensorSample
	State() entities.IrrigationState
	Threshold() float64
	Recent(n int) []entities.HistoryEntry
	Alerts() []entities.Alert
	Prediction() entities.Prediction
	Running() bool
	Interval() time.Duration
}

// HealthReporter backs /healthz and /readyz.
type HealthReporter interface {
	Status() event.HealthStatus
	Ready() bool
}

// TelemetryStore reads back persisted telemetry; optional.
type TelemetryStore interface {
	RecentMoisture(ctx context.Context, p event.QueryParams) ([]event.MoisturePoint, error)
}

type Options struct {
	Addr       string
	RatePerSec float64
	Burst      int
	Health     HealthReporter
	Store      TelemetryStore
}

// Server bundles the router and its dependencies.
type Server struct {
	opts    Options
	core    Core
	engine  *gin.Engine
	limiter *clientLimiter
	logger  *zap.Logger
}

// New builds the router with middleware and routes.
func New(core Core, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware())

	s := &Server{
		opts:    opts,
		core:    core,
		engine:  engine,
		limiter: newClientLimiter(opts.RatePerSec, opts.Burst, time.Now),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
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
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/readyz", s.handleReadyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	v1.GET("/snapshot", s.handleSnapshot)
	v1.GET("/sensors/current", s.handleCurrent)
	v1.GET("/history", s.handleHistory)
	v1.GET("/alerts", s.handleAlerts)
	v1.GET("/prediction", s.handlePrediction)
	v1.GET("/irrigation", s.handleIrrigation)
	v1.GET("/telemetry/moisture", s.handleStoredMoisture)

	mut := v1.Group("", s.limiter.middleware())
	{
		mut.POST("/simulation/start", s.handleStart)
		mut.POST("/simulation/stop", s.handleStop)
		mut.PUT("/simulation/interval", s.handleSetInterval)
		mut.PUT("/irrigation/auto", s.handleSetAuto)
		mut.POST("/irrigation/pump/toggle", s.handleToggle)
		mut.PUT("/irrigation/threshold", s.handleSetThreshold)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}
