package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/agentkanban/internal/http"

// HTTPMetrics records request metrics on the OTEL meter.
type HTTPMetrics struct {
	logger         *zap.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return NewHTTPMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

// NewHTTPMetricsWithMeter creates instruments on meter.
func NewHTTPMetricsWithMeter(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{logger: logger}

	var err error
	if m.requestsTotal, err = meter.Int64Counter("agentkanban.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}")); err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}
	if m.requestDur, err = meter.Float64Histogram("agentkanban.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5)); err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("agentkanban.http.active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// Middleware records each request. Routes are fixed, so c.Path() is a
// bounded label.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)

			route := c.Path()
			if route == "" {
				route = "/"
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", route),
				attribute.Int("status", responseStatus(c, err)),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// responseStatus resolves the status before echo's error handler has
// written it.
func responseStatus(c echo.Context, err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	if err != nil && !c.Response().Committed {
		return 500
	}
	return c.Response().Status
}

// ingestCollectors are the Prometheus counters served on /metrics.
type ingestCollectors struct {
	ingested  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	published *prometheus.CounterVec
	limited   prometheus.Counter
}

func newIngestCollectors(reg prometheus.Registerer) *ingestCollectors {
	f := promauto.With(reg)
	return &ingestCollectors{
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkanban_events_ingested_total",
			Help: "Events stored by the ingest server, by event type.",
		}, []string{"type"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkanban_events_rejected_total",
			Help: "Events refused by the ingest server, by reason.",
		}, []string{"reason"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentkanban_events_published_total",
			Help: "Re-publish attempts to the broadcast sink, by result.",
		}, []string{"result"}),
		limited: f.NewCounter(prometheus.CounterOpts{
			Name: "agentkanban_http_rate_limited_total",
			Help: "Requests refused by the rate limiter.",
		}),
	}
}

// newRegistry returns a registry with the Go and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
