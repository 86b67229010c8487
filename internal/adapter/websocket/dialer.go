package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/gadroo/poll-prediction/internal/platform/version"
	"github.com/gorilla/websocket"
)

const (
	// DefaultHandshakeTimeout bounds the opening handshake so a hung dial
	// ends as an abnormal closure and enters backoff. Zero disables the bound
	// and a hung handshake stays Connecting.
	DefaultHandshakeTimeout = 10 * time.Second
	writeDeadline           = 5 * time.Second
)

// Dialer opens live streams below a ws:// or wss:// base URL.
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

type DialerOption func(*Dialer)

// WithHandshakeTimeout overrides DefaultHandshakeTimeout. Zero means no
// timeout.
func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) { dl.dialer.HandshakeTimeout = d }
}

func NewDialer(baseURL string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial returns a transport whose handshake runs in the background. An
// invalid URL or a failed handshake is reported as a Closed event.
func (d *Dialer) Dial(ctx context.Context, identifier string) live.Transport {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{
		events:     make(chan live.Event),
		done:       make(chan struct{}),
		cancelDial: cancel,
	}
	go c.run(ctx, d, identifier)
	return c
}

func (d *Dialer) connect(ctx context.Context, identifier string) (*websocket.Conn, error) {
	target, err := StreamURL(d.baseURL, identifier)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if origin := extractOrigin(target); origin != "" {
		header.Set("Origin", origin)
	}

	slog.DebugContext(ctx, "Dialing live stream", "url", target)
	ws, resp, err := d.dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{URL: target, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, &HandshakeError{URL: target, Err: err}
	}
	return ws, nil
}
