package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gadroo/poll-prediction/internal/live"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 2 * time.Second

type streamRequest struct {
	path   string
	origin string
	conn   *ws.Conn
}

// newStreamServer upgrades every request and hands the server side of the
// connection to the test.
func newStreamServer(t *testing.T) (baseURL string, accepted <-chan streamRequest) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan streamRequest, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		t.Cleanup(func() { conn.Close() })
		ready <- streamRequest{path: r.URL.Path, origin: r.Header.Get("Origin"), conn: conn}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), ready
}

func nextEvent(t *testing.T, tr live.Transport) live.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("no transport event")
		return nil
	}
}

func acceptStream(t *testing.T, accepted <-chan streamRequest) streamRequest {
	t.Helper()
	select {
	case req := <-accepted:
		return req
	case <-time.After(eventTimeout):
		t.Fatal("server did not accept a connection")
		return streamRequest{}
	}
}

func TestDial_OpensAndReceives(t *testing.T) {
	baseURL, accepted := newStreamServer(t)
	tr := NewDialer(baseURL).Dial(context.Background(), "all")
	t.Cleanup(func() { _ = tr.Close() })

	req := acceptStream(t, accepted)
	assert.Equal(t, "/ws/all", req.path)
	assert.True(t, strings.HasPrefix(req.origin, "http://127.0.0.1:"), "origin %q", req.origin)

	assert.IsType(t, live.Opened{}, nextEvent(t, tr))

	frame := `{"type":"poll_deleted","poll_id":"p1"}`
	require.NoError(t, req.conn.WriteMessage(ws.TextMessage, []byte(frame)))
	require.NoError(t, req.conn.WriteMessage(ws.BinaryMessage, []byte{0x01}))
	require.NoError(t, req.conn.WriteMessage(ws.TextMessage, []byte(`{"type":"pong"}`)))

	ev := nextEvent(t, tr)
	require.IsType(t, live.Received{}, ev)
	assert.Equal(t, frame, string(ev.(live.Received).Data))

	ev = nextEvent(t, tr)
	require.IsType(t, live.Received{}, ev, "binary frames are skipped")
	assert.Equal(t, `{"type":"pong"}`, string(ev.(live.Received).Data))
}

func TestDial_ServerCloseFrameKeepsCode(t *testing.T) {
	baseURL, accepted := newStreamServer(t)
	tr := NewDialer(baseURL).Dial(context.Background(), "p1")
	t.Cleanup(func() { _ = tr.Close() })

	req := acceptStream(t, accepted)
	require.IsType(t, live.Opened{}, nextEvent(t, tr))

	msg := ws.FormatCloseMessage(ws.CloseServiceRestart, "restarting")
	require.NoError(t, req.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second)))

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)
	closed := ev.(live.Closed)
	assert.Equal(t, ws.CloseServiceRestart, closed.Code)
	assert.Equal(t, "restarting", closed.Reason)
	assert.NoError(t, closed.Err)
}

func TestDial_DroppedSocketIsAbnormal(t *testing.T) {
	baseURL, accepted := newStreamServer(t)
	tr := NewDialer(baseURL).Dial(context.Background(), "p1")
	t.Cleanup(func() { _ = tr.Close() })

	req := acceptStream(t, accepted)
	require.IsType(t, live.Opened{}, nextEvent(t, tr))

	require.NoError(t, req.conn.NetConn().Close())

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)
	assert.Equal(t, live.CloseAbnormal, ev.(live.Closed).Code)
}

func TestDial_RefusedIsAbnormal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	tr := NewDialer(baseURL).Dial(context.Background(), "p1")
	t.Cleanup(func() { _ = tr.Close() })

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)
	closed := ev.(live.Closed)
	assert.Equal(t, live.CloseAbnormal, closed.Code)

	var handshakeErr *HandshakeError
	require.ErrorAs(t, closed.Err, &handshakeErr)
	assert.Zero(t, handshakeErr.StatusCode)
}

func TestDial_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	baseURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	tr := NewDialer(baseURL).Dial(context.Background(), "missing")
	t.Cleanup(func() { _ = tr.Close() })

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)

	var handshakeErr *HandshakeError
	require.ErrorAs(t, ev.(live.Closed).Err, &handshakeErr)
	assert.Equal(t, http.StatusNotFound, handshakeErr.StatusCode)
	assert.ErrorIs(t, handshakeErr, ws.ErrBadHandshake)
}

// newSilentServer accepts TCP connections and never answers the handshake.
func newSilentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { _ = conn.Close() })
		}
	}()
	return "ws://" + ln.Addr().String()
}

func TestDial_HandshakeTimeout(t *testing.T) {
	baseURL := newSilentServer(t)

	tr := NewDialer(baseURL, WithHandshakeTimeout(50*time.Millisecond)).Dial(context.Background(), "all")
	t.Cleanup(func() { _ = tr.Close() })

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)
	assert.Equal(t, live.CloseAbnormal, ev.(live.Closed).Code)

	var handshakeErr *HandshakeError
	assert.ErrorAs(t, ev.(live.Closed).Err, &handshakeErr)
}

func TestDial_ZeroHandshakeTimeoutWaits(t *testing.T) {
	baseURL := newSilentServer(t)
	d := NewDialer(baseURL, WithHandshakeTimeout(0))
	assert.Zero(t, d.dialer.HandshakeTimeout)

	tr := d.Dial(context.Background(), "all")

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event %T while the handshake hangs", ev)
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, tr.Close())
}

func TestNewDialer_DefaultHandshakeTimeout(t *testing.T) {
	assert.Equal(t, DefaultHandshakeTimeout, NewDialer("ws://localhost:8000").dialer.HandshakeTimeout)
}

func TestDial_InvalidBaseURL(t *testing.T) {
	tr := NewDialer("http://localhost:8000").Dial(context.Background(), "all")
	t.Cleanup(func() { _ = tr.Close() })

	ev := nextEvent(t, tr)
	require.IsType(t, live.Closed{}, ev)
	assert.Equal(t, live.CloseAbnormal, ev.(live.Closed).Code)
	assert.Error(t, ev.(live.Closed).Err)
}

func TestSend_WritesTextFrame(t *testing.T) {
	baseURL, accepted := newStreamServer(t)
	tr := NewDialer(baseURL).Dial(context.Background(), "all")
	t.Cleanup(func() { _ = tr.Close() })

	req := acceptStream(t, accepted)
	require.IsType(t, live.Opened{}, nextEvent(t, tr))

	require.NoError(t, tr.Send([]byte("ping")))

	_ = req.conn.SetReadDeadline(time.Now().Add(eventTimeout))
	messageType, data, err := req.conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, ws.TextMessage, messageType)
	assert.Equal(t, "ping", string(data))
}

func TestClose_SendsNormalClosureAndStopsEvents(t *testing.T) {
	baseURL, accepted := newStreamServer(t)
	tr := NewDialer(baseURL).Dial(context.Background(), "all")

	req := acceptStream(t, accepted)
	require.IsType(t, live.Opened{}, nextEvent(t, tr))

	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close(), "close is idempotent")
	assert.ErrorIs(t, tr.Send([]byte("ping")), ErrNotConnected)

	_ = req.conn.SetReadDeadline(time.Now().Add(eventTimeout))
	_, _, err := req.conn.ReadMessage()
	assert.True(t, ws.IsCloseError(err, ws.CloseNormalClosure), "got %v", err)

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event after close: %T", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_CancelsPendingHandshake(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	baseURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	tr := NewDialer(baseURL).Dial(context.Background(), "all")
	require.NoError(t, tr.Close())

	select {
	case ev := <-tr.Events():
		t.Fatalf("unexpected event after close: %T", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClosedFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantReason string
		wantErr    bool
	}{
		{"normal close", &ws.CloseError{Code: ws.CloseNormalClosure, Text: "bye"}, ws.CloseNormalClosure, "bye", false},
		{"going away", &ws.CloseError{Code: ws.CloseGoingAway}, ws.CloseGoingAway, "", false},
		{"no status", &ws.CloseError{Code: ws.CloseNoStatusReceived}, ws.CloseNoStatusReceived, "", false},
		{"eof", io.ErrUnexpectedEOF, live.CloseAbnormal, "", true},
		{"wrapped", errors.Join(errors.New("read"), io.EOF), live.CloseAbnormal, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := closedFromError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantErr, got.Err != nil)
		})
	}
}
