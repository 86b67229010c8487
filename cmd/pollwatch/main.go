package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gadroo/poll-prediction/internal/adapter/httpserver"
	"github.com/gadroo/poll-prediction/internal/adapter/metrics"
	"github.com/gadroo/poll-prediction/internal/adapter/pollapi"
	"github.com/gadroo/poll-prediction/internal/adapter/websocket"
	"github.com/gadroo/poll-prediction/internal/domain"
	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/gadroo/poll-prediction/internal/platform/config"
	"github.com/gadroo/poll-prediction/internal/platform/logging"
	"github.com/gadroo/poll-prediction/internal/platform/version"
	"github.com/gadroo/poll-prediction/internal/view"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupAPIClient(cfg *config.Config, m *metrics.APIMetrics) *pollapi.Client {
	client, err := pollapi.New(cfg.APIURL,
		pollapi.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}),
		pollapi.WithMetrics(m),
	)
	if err != nil {
		slog.Error("Failed to create poll API client", "error", err)
		os.Exit(1)
	}
	return client
}

// seedView builds the view for identifier from the REST API. A failed seed
// is logged and leaves the view empty.
func seedView(ctx context.Context, api *pollapi.Client, identifier string) view.View {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if identifier == domain.AllPolls {
		list := view.NewListView()
		polls, err := api.ListPolls(ctx)
		if err != nil {
			slog.Error("Failed to seed poll list", "error", err)
			return list
		}
		list.Seed(polls)
		slog.Info("Seeded poll list", "polls", len(polls))
		return list
	}

	detail := view.NewPollView(identifier)
	poll, err := api.GetPoll(ctx, identifier)
	if err != nil {
		slog.Error("Failed to seed poll", "poll_id", identifier, "error", err)
		return detail
	}
	comments, err := api.ListComments(ctx, identifier)
	if err != nil {
		slog.Warn("Failed to load comments", "poll_id", identifier, "error", err)
	} else {
		poll.Comments = comments
	}
	detail.Seed(*poll)
	slog.Info("Seeded poll", "poll_id", identifier, "options", len(poll.Options), "comments", len(poll.Comments))
	return detail
}

func messageHandler(v view.View, m *metrics.ViewMetrics) func(domain.Message) {
	return func(msg domain.Message) {
		applied := v.Apply(msg)
		m.Observe(msg, applied)
		if applied {
			slog.Info("View updated", "type", msg.Type(), "poll_id", msg.PollID())
		}
	}
}

func runGracefulShutdown(srv *httpserver.Server, follower *live.Follower) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		follower.Release()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "version", version.Version, "poll_id", cfg.PollID, "ws_url", cfg.WSURL)

	reg := metrics.NewRegistry()
	subscriptionMetrics := metrics.NewSubscriptionMetrics(reg)
	viewMetrics := metrics.NewViewMetrics(reg)
	apiMetrics := metrics.NewAPIMetrics(reg)

	api := setupAPIClient(cfg, apiMetrics)
	v := seedView(context.Background(), api, cfg.PollID)

	dialer := websocket.NewDialer(cfg.WSURL, websocket.WithHandshakeTimeout(cfg.HandshakeTimeout))
	follower := live.NewFollower(dialer,
		live.WithPolicy(cfg.Policy()),
		live.WithLogger(logging.Logger.With("component", "live")),
		live.WithObserver(subscriptionMetrics),
		live.WithMessageHandler(messageHandler(v, viewMetrics)),
	)
	follower.Follow(cfg.PollID)

	srv := httpserver.NewServer(cfg, follower, v, reg, []httpserver.HealthCheck{
		httpserver.ConnectedCheck(follower),
	})

	done := runGracefulShutdown(srv, follower)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		follower.Release()
		os.Exit(1)
	}

	<-done
}
