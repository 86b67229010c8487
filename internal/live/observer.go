package live

import (
	"time"

	"github.com/gadroo/poll-prediction/internal/domain"
)

// Observer is notified of subscription lifecycle events. Calls happen on the
// subscription's actor goroutine and must not block.
type Observer interface {
	StateChanged(identifier string, state State)
	ReconnectScheduled(identifier string, attempt int, delay time.Duration)
	GaveUp(identifier string)
	MessageReceived(identifier string, messageType domain.MessageType)
	FrameDropped(identifier string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, State)                    {}
func (nopObserver) ReconnectScheduled(string, int, time.Duration) {}
func (nopObserver) GaveUp(string)                                 {}
func (nopObserver) MessageReceived(string, domain.MessageType)    {}
func (nopObserver) FrameDropped(string)                           {}
