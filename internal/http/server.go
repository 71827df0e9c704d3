// Package http serves the purchase-request slash command over echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/purchasebot/internal/logging"
	"github.com/fyrsmithlabs/purchasebot/internal/purchase"
)

const instrumentationName = "github.com/fyrsmithlabs/purchasebot/internal/http"

// Notifier posts text to a channel and reports success.
type Notifier interface {
	Post(ctx context.Context, channel, text string) bool
}

// Directory looks up a user's display name.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, bool)
}

// RequestStore persists one live submission into its month bucket.
type RequestStore interface {
	Append(bucket string, rec purchase.Record) (int, error)
}

// Publisher announces accepted submissions.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// Deps are the collaborators of the submission endpoint.
type Deps struct {
	Notifier  Notifier
	Directory Directory
	Store     RequestStore

	// Optional.
	Publisher Publisher
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Channel receives the notification posts.
	Channel string

	// SigningSecret enables Slack request verification when set.
	SigningSecret string
}

// Server provides the slash-command endpoint, health and metrics.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	metrics *Metrics
	logger  *zap.Logger
	config  *Config
}

// NewServer creates a server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Notifier == nil || deps.Directory == nil || deps.Store == nil {
		return nil, errors.New("notifier, directory and store are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil || cfg.Channel == "" {
		return nil, errors.New("notification channel is required")
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		metrics: NewMetrics(),
		logger:  logger,
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.requestLogger())
	e.Use(s.metrics.Middleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/slack/commands", s.handleCommand)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request.id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: s.deps.Now().UTC().Format(time.RFC3339),
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Metrics returns the server collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
