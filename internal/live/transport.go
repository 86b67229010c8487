package live

import (
	"context"

	"github.com/gorilla/websocket"
)

// CloseAbnormal is reported when a transport fails without a close frame:
// refused connections, DNS errors, dropped sockets.
const CloseAbnormal = websocket.CloseAbnormalClosure

// Dialer creates transports bound to a resource identifier.
type Dialer interface {
	// Dial returns immediately. The handshake runs in the background and its
	// outcome is reported on the transport's event channel.
	Dial(ctx context.Context, identifier string) Transport
}

// Transport is one connection attempt. Its event channel yields Opened, any
// number of Received, then exactly one Closed. A failed handshake yields
// only Closed.
type Transport interface {
	Events() <-chan Event
	// Send writes one text frame.
	Send(data []byte) error
	// Close requests a normal closure. No events are produced afterwards.
	Close() error
}

// Event is a transport notification: Opened, Received or Closed.
type Event interface{ isEvent() }

type baseEvent struct{}

func (baseEvent) isEvent() {}

type Opened struct {
	baseEvent
}

type Received struct {
	baseEvent
	Data []byte
}

// Closed is the terminal event. Err is set when the closure came from a
// transport error rather than a close frame.
type Closed struct {
	baseEvent
	Code   int
	Reason string
	Err    error
}
