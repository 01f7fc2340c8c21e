package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iliyamo/segregate/internal/response"
)

// Gate outcomes, used as the "outcome" label.
const (
	OutcomePreflight     = "preflight"
	OutcomePublic        = "public"
	OutcomeMissingToken  = "missing_token"
	OutcomeInvalidToken  = "invalid_token"
	OutcomeAdminRequired = "admin_required"
	OutcomeAllowed       = "allowed"
)

// Metrics holds the HTTP and gate collectors. A nil *Metrics records
// nothing, so tests can leave it out.
type Metrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	gate      *prometheus.CounterVec
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segregate",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "segregate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segregate",
			Name:      "gate_decisions_total",
			Help:      "Request gate decisions by outcome.",
		}, []string{"outcome"}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segregate",
			Name:      "notifications_published_total",
			Help:      "Notification events handed to the broker, by type and result.",
		}, []string{"type", "result"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segregate",
			Name:      "notifications_dropped_total",
			Help:      "Notification events dropped before a publish attempt, by type.",
		}, []string{"type"}),
	}
}

// Middleware records one observation per request. The route label is the
// registered pattern, not the raw path, to keep cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = response.Normalize(err).Status()
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) gateDecision(outcome string) {
	if m == nil {
		return
	}
	m.gate.WithLabelValues(outcome).Inc()
}

// Published counts a notification publish attempt.
func (m *Metrics) Published(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(eventType, result).Inc()
}

// Dropped counts a notification that never reached the broker.
func (m *Metrics) Dropped(eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(eventType).Inc()
}
