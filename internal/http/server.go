// Package http serves the agentkanban ingest API.
//
// Hooks post event envelopes to /events; the server stores them with a
// fresh ID and timestamp, updates session bookkeeping and re-publishes them
// on the broadcast sink when one is configured.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/logging"
	"github.com/fyrsmithlabs/agentkanban/internal/sanitize"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
	"github.com/fyrsmithlabs/agentkanban/internal/sink"
)

// Ingester stores an envelope and returns the stored event.
type Ingester interface {
	Ingest(ctx context.Context, env event.Envelope) (*event.Event, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	RateLimit float64 // requests per second, 0 disables
	Burst     int
}

// Deps are the server's collaborators. Publish and Registry are optional.
type Deps struct {
	Ingest   Ingester
	Features feature.Repository
	Sessions session.Repository
	Publish  sink.Sink
	Registry *prometheus.Registry
	Metrics  *HTTPMetrics
}

// Server provides the ingest endpoints.
type Server struct {
	echo     *echo.Echo
	deps     Deps
	logger   *zap.Logger
	config   *Config
	tracer   trace.Tracer
	counters *ingestCollectors
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Ingest == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if deps.Features == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("feature and session repositories are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 4000}
	}
	if deps.Registry == nil {
		deps.Registry = newRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewHTTPMetrics(logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		deps:     deps,
		logger:   logger,
		config:   cfg,
		tracer:   otel.Tracer(instrumentationName),
		counters: newIngestCollectors(deps.Registry),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(deps.Metrics.Middleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))

	var limiter *rate.Limiter
	if s.config.RateLimit > 0 {
		burst := s.config.Burst
		if burst <= 0 {
			burst = int(s.config.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(s.config.RateLimit), burst)
	}
	api := s.echo.Group("", rateLimit(limiter, s.counters.limited.Inc))
	api.POST("/events", s.handleEvent)
	api.POST("/sessions/start", s.handleSessionStart)
	api.POST("/sessions/end", s.handleSessionEnd)
	api.GET("/features", s.handleFeatures)
	api.GET("/api/v1/stats", s.handleStats)
}

// requestLogger tags the request context with its ID and logs completion.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		fields := append(logging.ContextFields(ctx),
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", responseStatus(c, err)),
			zap.Duration("duration", time.Since(start)),
		)
		s.logger.Debug("http request", fields...)
		return err
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleEvent(c echo.Context) error {
	var env event.Envelope
	if err := c.Bind(&env); err != nil {
		s.counters.rejected.WithLabelValues("malformed").Inc()
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	return s.ingest(c, env)
}

func (s *Server) handleSessionStart(c echo.Context) error {
	return s.handleSession(c, event.TypeSessionStart, "session_started")
}

func (s *Server) handleSessionEnd(c echo.Context) error {
	return s.handleSession(c, event.TypeSessionEnd, "session_ended")
}

func (s *Server) handleSession(c echo.Context, t event.Type, action string) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		s.counters.rejected.WithLabelValues("malformed").Inc()
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	return s.ingest(c, event.Envelope{
		EventType:   t,
		SourceAgent: req.SourceAgent,
		SessionID:   req.SessionID,
		ProjectDir:  req.ProjectDir,
		Payload:     map[string]any{"action": action},
	})
}

// ingest stores env and re-publishes it. Publish failures are logged; the
// event is already stored.
func (s *Server) ingest(c echo.Context, env event.Envelope) error {
	ctx := logging.WithSessionID(c.Request().Context(), env.SessionID)
	ctx = logging.WithProjectDir(ctx, env.ProjectDir)
	ctx = logging.WithFeatureID(ctx, env.FeatureID)
	ctx, span := s.tracer.Start(ctx, "http.ingest",
		trace.WithAttributes(attribute.String("event.type", string(env.EventType))))
	defer span.End()

	e, err := s.deps.Ingest.Ingest(ctx, env)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, event.ErrInvalidEvent) {
			s.counters.rejected.WithLabelValues("invalid").Inc()
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.counters.rejected.WithLabelValues("store").Inc()
		s.logger.Error("storing event failed", append(logging.ContextFields(ctx), zap.Error(err))...)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store event"})
	}
	s.counters.ingested.WithLabelValues(string(e.Type)).Inc()

	if s.deps.Publish != nil {
		if err := s.deps.Publish.Send(ctx, e.Envelope()); err != nil {
			s.counters.published.WithLabelValues("error").Inc()
			s.logger.Warn("re-publishing event failed",
				append(logging.ContextFields(ctx), zap.String("event.id", e.ID), zap.Error(err))...)
		} else {
			s.counters.published.WithLabelValues("ok").Inc()
		}
	}
	return c.JSON(http.StatusOK, IngestResponse{Status: "ok", ID: e.ID})
}

func (s *Server) handleFeatures(c echo.Context) error {
	projectDir, err := sanitize.ProjectDir(c.QueryParam("project_dir"))
	if errors.Is(err, sanitize.ErrEmptyPath) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "project_dir is required"})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	features, err := s.deps.Features.List(c.Request().Context(), projectDir)
	if err != nil {
		s.logger.Error("listing features failed", zap.String("project_dir", projectDir), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list features"})
	}
	if features == nil {
		features = []*feature.Feature{}
	}
	return c.JSON(http.StatusOK, FeaturesResponse{
		ProjectDir: projectDir,
		Features:   features,
		Stats:      feature.Summarize(features),
	})
}

// handleStats summarizes one project, or every project when project_dir is
// omitted.
func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()
	projectDir := c.QueryParam("project_dir")
	if projectDir != "" {
		var err error
		if projectDir, err = sanitize.ProjectDir(projectDir); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
	}
	stats, err := Stats(ctx, s.deps.Features, s.deps.Sessions, projectDir)
	if err != nil {
		s.logger.Error("computing stats failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to compute stats"})
	}
	return c.JSON(http.StatusOK, stats)
}

// Stats computes progress and the active session count.
func Stats(ctx context.Context, features feature.Repository, sessions session.Repository, projectDir string) (feature.Stats, error) {
	projects := []string{projectDir}
	if projectDir == "" {
		var err error
		if projects, err = features.Projects(ctx); err != nil {
			return feature.Stats{}, fmt.Errorf("listing projects: %w", err)
		}
	}

	var all []*feature.Feature
	for _, p := range projects {
		fs, err := features.List(ctx, p)
		if err != nil {
			return feature.Stats{}, fmt.Errorf("listing features for %s: %w", p, err)
		}
		all = append(all, fs...)
	}
	stats := feature.Summarize(all)

	active, err := sessions.CountActive(ctx)
	if err != nil {
		return feature.Stats{}, fmt.Errorf("counting sessions: %w", err)
	}
	stats.ActiveSessions = active
	return stats, nil
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
