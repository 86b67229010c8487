package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gadroo/poll-prediction/internal/domain"
	"github.com/gadroo/poll-prediction/internal/platform/correlation"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Status is a point-in-time view of a Subscription.
type Status struct {
	Identifier       string
	State            State
	Connected        bool
	Attempts         int
	ReconnectPending bool
	Latest           domain.Message
}

type subscriptionCmd interface{ isSubscriptionCmd() }

type baseSubscriptionCmd struct{}

func (baseSubscriptionCmd) isSubscriptionCmd() {}

type openCmd struct {
	baseSubscriptionCmd
	ack chan struct{}
}

type reconnectCmd struct {
	baseSubscriptionCmd
	ack chan struct{}
}

type closeCmd struct {
	baseSubscriptionCmd
}

type statusCmd struct {
	baseSubscriptionCmd
	replyChannel chan Status
}

// Option configures a Subscription.
type Option func(*Subscription)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Subscription) { s.clock = clock }
}

func WithPolicy(p Policy) Option {
	return func(s *Subscription) { s.policy = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscription) { s.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(s *Subscription) { s.observer = o }
}

// WithMessageHandler registers fn to receive every parsed message, once, in
// receive order. fn runs on the actor goroutine and must not call back into
// the Subscription synchronously.
func WithMessageHandler(fn func(domain.Message)) Option {
	return func(s *Subscription) { s.onMessage = fn }
}

// WithStateHandler registers fn to receive state changes. Same rules as
// WithMessageHandler.
func WithStateHandler(fn func(State)) Option {
	return func(s *Subscription) { s.onState = fn }
}

// Subscription follows the live stream of one resource identifier.
type Subscription struct {
	id         uuid.UUID
	identifier string
	dialer     Dialer
	clock      clockwork.Clock
	policy     Policy
	logger     *slog.Logger
	observer   Observer
	onMessage  func(domain.Message)
	onState    func(State)

	cmdCh  chan subscriptionCmd
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	final  Status

	// Owned by the actor goroutine.
	state      State
	attempts   int
	transport  Transport
	events     <-chan Event
	attemptCtx context.Context
	keepalive  clockwork.Ticker
	retry      clockwork.Timer
	restart    clockwork.Timer
	cooldown   clockwork.Timer
	latest     domain.Message
}

// New creates an idle Subscription for identifier. Call Open to connect and
// Close to release it.
func New(identifier string, dialer Dialer, opts ...Option) *Subscription {
	s := &Subscription{
		id:         uuid.New(),
		identifier: identifier,
		dialer:     dialer,
		clock:      clockwork.NewRealClock(),
		policy:     DefaultPolicy,
		observer:   nopObserver{},
		cmdCh:      make(chan subscriptionCmd, 16),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("identifier", identifier, "subscription_id", s.id.String())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.attemptCtx = s.ctx

	go s.run()
	return s
}

// Identifier returns the resource identifier this Subscription follows.
func (s *Subscription) Identifier() string { return s.identifier }

// Open starts connecting. It is a no-op for an empty identifier, while a
// connect attempt or open transport exists, and after Close.
func (s *Subscription) Open() {
	ack := make(chan struct{})
	s.call(openCmd{ack: ack}, ack)
}

// Reconnect drops the current transport without triggering backoff, resets
// the attempt counter and opens a fresh transport after Policy.RestartDelay.
func (s *Subscription) Reconnect() {
	ack := make(chan struct{})
	s.call(reconnectCmd{ack: ack}, ack)
}

// Close detaches and closes the transport, cancels every timer and stops the
// Subscription. When Close returns, no further message or state change is
// delivered. Close is idempotent.
func (s *Subscription) Close() {
	s.send(closeCmd{})
	<-s.done
}

// Status returns the current state. After Close it returns the final state.
func (s *Subscription) Status() Status {
	reply := make(chan Status, 1)
	if !s.send(statusCmd{replyChannel: reply}) {
		return s.final
	}
	select {
	case st := <-reply:
		return st
	case <-s.done:
		return s.final
	}
}

func (s *Subscription) State() State { return s.Status().State }

func (s *Subscription) IsConnected() bool { return s.Status().Connected }

// LatestMessage returns the most recently delivered message, or nil.
func (s *Subscription) LatestMessage() domain.Message { return s.Status().Latest }

// send delivers cmd to the actor. It reports false once the actor has exited.
func (s *Subscription) send(cmd subscriptionCmd) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.cmdCh <- cmd:
		return true
	case <-s.done:
		return false
	}
}

// call sends cmd and waits until the actor has handled it or exited.
func (s *Subscription) call(cmd subscriptionCmd, ack <-chan struct{}) {
	if !s.send(cmd) {
		return
	}
	select {
	case <-ack:
	case <-s.done:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.cancel()

	for {
		select {
		case cmd := <-s.cmdCh:
			if stop := s.handleCommand(cmd); stop {
				return
			}
		case ev, ok := <-s.events:
			if !ok {
				ev = Closed{Code: CloseAbnormal, Err: fmt.Errorf("event channel closed")}
			}
			s.handleEvent(ev)
		case <-tickerChan(s.keepalive):
			s.sendProbe()
		case <-timerChan(s.retry):
			s.retry = nil
			s.connect()
		case <-timerChan(s.restart):
			s.restart = nil
			s.connect()
		case <-timerChan(s.cooldown):
			s.cooldown = nil
			s.attempts = 0
			s.logger.Info("Reconnect cooldown elapsed, attempts reset")
		}
	}
}

func (s *Subscription) handleCommand(cmd subscriptionCmd) bool {
	switch c := cmd.(type) {
	case openCmd:
		if s.state == StateIdle || s.state == StateClosed {
			s.connect()
		}
		close(c.ack)
	case reconnectCmd:
		s.teardown()
		s.attempts = 0
		stopTimer(&s.cooldown)
		if s.identifier != "" {
			s.restart = s.clock.NewTimer(s.policy.RestartDelay)
			s.logger.Info("Manual reconnect requested", "delay", s.policy.RestartDelay)
		}
		close(c.ack)
	case closeCmd:
		s.teardown()
		stopTimer(&s.cooldown)
		s.final = s.status()
		s.logger.Debug("Subscription closed")
		return true
	case statusCmd:
		c.replyChannel <- s.status()
	default:
		s.logger.Warn("Subscription received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
	return false
}

func (s *Subscription) handleEvent(ev Event) {
	switch e := ev.(type) {
	case Opened:
		s.attempts = 0
		stopTimer(&s.cooldown)
		s.keepalive = s.clock.NewTicker(s.policy.KeepaliveInterval)
		s.setState(StateOpen)
		s.logger.InfoContext(s.attemptCtx, "Live stream connected")
	case Received:
		s.deliver(e.Data)
	case Closed:
		s.detach()
		s.setState(StateClosed)
		s.afterClosure(e)
	default:
		s.logger.Warn("Subscription received unknown event type", "event_type", fmt.Sprintf("%T", ev))
	}
}

func (s *Subscription) deliver(data []byte) {
	msg, err := domain.ParseMessage(data)
	if err != nil {
		s.logger.WarnContext(s.attemptCtx, "Dropping malformed frame", "error", err, "size", len(data))
		s.observer.FrameDropped(s.identifier)
		return
	}
	s.latest = msg
	s.observer.MessageReceived(s.identifier, msg.Type())
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

func (s *Subscription) afterClosure(e Closed) {
	ctx := s.attemptCtx
	if IsExpectedClosure(e.Code) {
		s.logger.InfoContext(ctx, "Live stream closed", "code", e.Code, "reason", e.Reason)
		return
	}

	attrs := []any{"code", e.Code}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}

	if s.attempts >= s.policy.MaxAttempts {
		attrs = append(attrs, "attempts", s.attempts, "cooldown", s.policy.Cooldown)
		s.logger.WarnContext(ctx, "Max reconnect attempts reached, not reconnecting", attrs...)
		s.observer.GaveUp(s.identifier)
		stopTimer(&s.cooldown)
		s.cooldown = s.clock.NewTimer(s.policy.Cooldown)
		return
	}

	delay := s.policy.Delay(s.attempts)
	s.attempts++
	s.retry = s.clock.NewTimer(delay)
	s.observer.ReconnectScheduled(s.identifier, s.attempts, delay)

	attrs = append(attrs, "delay", delay, "attempt", s.attempts, "max_attempts", s.policy.MaxAttempts)
	s.logger.InfoContext(ctx, "Live stream lost, reconnecting", attrs...)
}

// connect starts a new transport unless one already exists.
func (s *Subscription) connect() {
	if s.identifier == "" {
		s.logger.Debug("No identifier, not connecting")
		return
	}
	if s.transport != nil {
		s.logger.Debug("Already connected or connecting")
		return
	}
	stopTimer(&s.retry)
	stopTimer(&s.restart)

	s.attemptCtx, _ = correlation.WithNewID(s.ctx)
	t := s.dialer.Dial(s.attemptCtx, s.identifier)
	s.transport = t
	s.events = t.Events()
	s.setState(StateConnecting)
	s.logger.DebugContext(s.attemptCtx, "Connecting to live stream", "attempts", s.attempts)
}

// detach drops the current transport without closing it. The events channel
// is cleared first so the old transport can no longer reach the actor.
func (s *Subscription) detach() Transport {
	t := s.transport
	s.events = nil
	s.transport = nil
	if s.keepalive != nil {
		s.keepalive.Stop()
		s.keepalive = nil
	}
	return t
}

// teardown detaches and closes the transport and cancels pending reconnects.
// It never schedules a reconnect.
func (s *Subscription) teardown() {
	t := s.detach()
	stopTimer(&s.retry)
	stopTimer(&s.restart)
	if t != nil {
		if err := t.Close(); err != nil {
			s.logger.DebugContext(s.attemptCtx, "Transport close failed", "error", err)
		}
	}
	s.setState(StateClosed)
}

func (s *Subscription) sendProbe() {
	if s.transport == nil || s.state != StateOpen {
		return
	}
	if err := s.transport.Send([]byte(s.policy.Probe)); err != nil {
		s.logger.WarnContext(s.attemptCtx, "Keepalive probe failed", "error", err)
	}
}

func (s *Subscription) setState(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.logger.Debug("Subscription state changed", "from", prev.String(), "to", next.String())
	s.observer.StateChanged(s.identifier, next)
	if s.onState != nil {
		s.onState(next)
	}
}

func (s *Subscription) status() Status {
	return Status{
		Identifier:       s.identifier,
		State:            s.state,
		Connected:        s.state == StateOpen,
		Attempts:         s.attempts,
		ReconnectPending: s.retry != nil || s.restart != nil,
		Latest:           s.latest,
	}
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// timerChan returns nil for a nil timer so its select case never fires.
func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
