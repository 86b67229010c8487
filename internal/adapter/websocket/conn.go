package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gadroo/poll-prediction/internal/live"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send before the handshake completed or after
// the transport was closed.
var ErrNotConnected = errors.New("websocket not connected")

// HandshakeError is reported when the stream could not be opened.
// StatusCode is zero when no HTTP response was received.
type HandshakeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("handshake %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("handshake %s: %v", e.URL, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// conn is one connection attempt. The read pump owns the events channel;
// writes are serialized by writeMu.
type conn struct {
	events     chan live.Event
	done       chan struct{}
	stopOnce   sync.Once
	cancelDial context.CancelFunc

	mu sync.Mutex
	ws *websocket.Conn

	writeMu sync.Mutex
}

func (c *conn) Events() <-chan live.Event { return c.events }

func (c *conn) run(ctx context.Context, d *Dialer, identifier string) {
	defer c.cancelDial()

	ws, err := d.connect(ctx, identifier)
	if err != nil {
		c.emit(live.Closed{Code: live.CloseAbnormal, Err: err})
		return
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		_ = ws.Close()
		return
	default:
	}
	c.ws = ws
	c.mu.Unlock()

	if !c.emit(live.Opened{}) {
		return
	}
	c.readPump(ctx, ws)
}

func (c *conn) readPump(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			c.emit(closedFromError(err))
			return
		}
		if messageType != websocket.TextMessage {
			slog.DebugContext(ctx, "Ignoring non-text frame", "message_type", messageType)
			continue
		}
		if !c.emit(live.Received{Data: data}) {
			return
		}
	}
}

// emit reports false once the transport was closed.
func (c *conn) emit(ev live.Event) bool {
	if c.isClosed() {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || c.isClosed() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the socket. A pending
// handshake is cancelled.
func (c *conn) Close() error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		ws := c.ws
		c.mu.Unlock()
		c.cancelDial()

		if ws == nil {
			return
		}

		c.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = ws.WriteMessage(websocket.CloseMessage, closeMsg)
		c.writeMu.Unlock()

		if closeErr := ws.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = fmt.Errorf("close websocket: %w", closeErr)
		}
	})
	return err
}

func (c *conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// closedFromError maps a read error to the terminal event. A close frame
// keeps its code; anything else is an abnormal closure.
func closedFromError(err error) live.Closed {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return live.Closed{Code: closeErr.Code, Reason: closeErr.Text}
	}
	return live.Closed{Code: live.CloseAbnormal, Err: err}
}
