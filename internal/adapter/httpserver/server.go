package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gadroo/poll-prediction/internal/adapter/metrics"
	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/gadroo/poll-prediction/internal/platform/config"
	"github.com/gadroo/poll-prediction/internal/view"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const reconnectBurst = 3

// subscriptionService is the followed live subscription.
type subscriptionService interface {
	Status() (live.Status, bool)
	Reconnect() bool
}

// Server exposes the local status surface of the watcher.
type Server struct {
	echo   *echo.Echo
	config *config.Config

	subscription subscriptionService
	view         view.View

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, subscription subscriptionService, v view.View, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		subscription: subscription,
		view:         v,
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting status server", "addr", s.config.StatusAddr)
	if err := s.echo.Start(s.config.StatusAddr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
