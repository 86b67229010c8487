package live

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gadroo/poll-prediction/internal/domain"
)

const eventTimeout = time.Second

type fakeTransport struct {
	identifier string
	events     chan Event

	mu     sync.Mutex
	sent   []string
	closes int
}

func newFakeTransport(identifier string) *fakeTransport {
	return &fakeTransport{identifier: identifier, events: make(chan Event)}
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 {
		return errors.New("transport closed")
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// emit hands ev to the subscription. The channel is unbuffered, so emit
// returns once the actor has taken the event.
func (f *fakeTransport) emit(t *testing.T, ev Event) {
	t.Helper()
	select {
	case f.events <- ev:
	case <-time.After(eventTimeout):
		t.Fatalf("event %T was not consumed", ev)
	}
}

// tryEmit reports whether anyone took ev within wait.
func (f *fakeTransport) tryEmit(ev Event, wait time.Duration) bool {
	select {
	case f.events <- ev:
		return true
	case <-time.After(wait):
		return false
	}
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeDialer struct {
	dialed chan *fakeTransport

	mu    sync.Mutex
	count int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, identifier string) Transport {
	ft := newFakeTransport(identifier)
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	d.dialed <- ft
	return ft
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case ft := <-d.dialed:
		return ft
	case <-time.After(eventTimeout):
		t.Fatal("expected a dial")
		return nil
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	states   []State
	attempts []int
	delays   []time.Duration
	gaveUp   int
	received []domain.MessageType
	dropped  int
}

func (o *recordingObserver) StateChanged(_ string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) ReconnectScheduled(_ string, attempt int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
	o.delays = append(o.delays, delay)
}

func (o *recordingObserver) GaveUp(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gaveUp++
}

func (o *recordingObserver) MessageReceived(_ string, messageType domain.MessageType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received = append(o.received, messageType)
}

func (o *recordingObserver) FrameDropped(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *recordingObserver) snapshotDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.delays...)
}

func (o *recordingObserver) snapshotStates() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

func (o *recordingObserver) gaveUpCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gaveUp
}

func (o *recordingObserver) droppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

type messageRecorder struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (r *messageRecorder) handle(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *messageRecorder) all() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages...)
}

func voteFrame(pollID string, count int) Received {
	return Received{Data: []byte(`{"type":"vote_update","poll_id":"` + pollID +
		`","options":[{"id":"a","text":"A","vote_count":` + strconv.Itoa(count) + `}]}`)}
}
