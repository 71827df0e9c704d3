package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes recorded in purchasebot_submissions_total.
const (
	OutcomeAccepted     = "accepted"
	OutcomeInvalid      = "invalid"
	OutcomeSaveFailed   = "save_failed"
	OutcomePostFailed   = "post_failed"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Metrics holds the Prometheus collectors of one server.
//
// Each server owns its registry so several servers (tests) never collide on
// registration.
//
//   - purchasebot_submissions_total{outcome}
//   - purchasebot_notifications_total{result}
//   - purchasebot_http_requests_total{method,endpoint,status}
//   - purchasebot_http_request_duration_seconds{method,endpoint}
type Metrics struct {
	Registry *prometheus.Registry

	Submissions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purchasebot_submissions_total",
			Help: "Slash-command submissions by outcome",
		}, []string{"outcome"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purchasebot_notifications_total",
			Help: "Channel notification posts by result",
		}, []string{"result"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "purchasebot_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "endpoint", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "purchasebot_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "endpoint"}),
	}
}

// Middleware records request count and latency. The route pattern is used
// as the endpoint label; unmatched paths collapse to "unmatched".
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			method := c.Request().Method
			m.Requests.WithLabelValues(method, endpoint, strconv.Itoa(c.Response().Status)).Inc()
			m.Duration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
