package live

import (
	"time"

	"github.com/gorilla/websocket"
)

// Policy holds the reconnection and keepalive parameters.
type Policy struct {
	// BaseDelay is the delay before the first automatic reconnect. Each
	// further consecutive attempt doubles it, up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds consecutive automatic reconnects after abnormal
	// closures. The counter resets on every successful open.
	MaxAttempts int
	// Cooldown is how long after giving up the attempt counter is reset.
	Cooldown time.Duration
	// KeepaliveInterval is the period of the liveness probe while open.
	KeepaliveInterval time.Duration
	// RestartDelay is the fixed delay of a manual Reconnect.
	RestartDelay time.Duration
	Probe        string
}

var DefaultPolicy = Policy{
	BaseDelay:         2 * time.Second,
	MaxDelay:          15 * time.Second,
	MaxAttempts:       3,
	Cooldown:          30 * time.Second,
	KeepaliveInterval: 30 * time.Second,
	RestartDelay:      100 * time.Millisecond,
	Probe:             "ping",
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for range attempt {
		if d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// IsExpectedClosure reports whether a close code is a normal shutdown
// (1000) or going away (1001). Those never trigger a reconnect.
func IsExpectedClosure(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
}
