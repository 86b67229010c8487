package httpserver

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/gadroo/poll-prediction/internal/platform/config"
	"github.com/gadroo/poll-prediction/internal/view"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSubscription struct {
	mu         sync.Mutex
	status     live.Status
	followed   bool
	reconnects int
}

func followed(status live.Status) *fakeSubscription {
	return &fakeSubscription{status: status, followed: true}
}

func (f *fakeSubscription) Status() (live.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.followed
}

func (f *fakeSubscription) Reconnect() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.followed {
		return false
	}
	f.reconnects++
	f.status.State = live.StateIdle
	f.status.Connected = false
	f.status.Attempts = 0
	f.status.ReconnectPending = true
	return true
}

func (f *fakeSubscription) reconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnects
}

type serverOption func(*config.Config, *[]HealthCheck)

func withReconnectLimit(perSecond float64) serverOption {
	return func(cfg *config.Config, _ *[]HealthCheck) { cfg.ReconnectLimit = perSecond }
}

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, hc *[]HealthCheck) { *hc = checks }
}

func newTestServer(t *testing.T, sub subscriptionService, v view.View, opts ...serverOption) *Server {
	t.Helper()

	cfg := &config.Config{StatusAddr: "127.0.0.1:0", ReconnectLimit: 100}
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}
	if v == nil {
		v = view.NewListView()
	}
	return NewServer(cfg, sub, v, prometheus.NewRegistry(), checks)
}

func do(srv *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func openStatus(identifier string) live.Status {
	return live.Status{Identifier: identifier, State: live.StateOpen, Connected: true}
}

var _ http.Handler = (*Server)(nil)
