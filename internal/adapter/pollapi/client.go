package pollapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/gadroo/poll-prediction/internal/adapter/metrics"
	"github.com/gadroo/poll-prediction/internal/domain"
	"github.com/gadroo/poll-prediction/internal/platform/correlation"
	"github.com/gadroo/poll-prediction/internal/platform/retry"
	"github.com/gadroo/poll-prediction/internal/platform/version"
	"golang.org/x/sync/singleflight"
)

const (
	httpCallTimeout    = 10 * time.Second
	sharedFetchTimeout = 30 * time.Second
	maxErrorBody       = 512
)

var DefaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   500 * time.Millisecond,
	MaxBackoff:       5 * time.Second,
	RateLimitBackoff: 2 * time.Second,
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: api returned status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: api returned status %d", e.Op, e.StatusCode)
}

// Client reads polls from the REST API that seeds the live views.
// Concurrent identical reads share one request.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	policy  retry.Policy
	breaker circuitbreaker.CircuitBreaker[any]
	group   singleflight.Group
	metrics *metrics.APIMetrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(cl *Client) { cl.policy = p }
}

func WithMetrics(m *metrics.APIMetrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb circuitbreaker.CircuitBreaker[any]) Option {
	return func(cl *Client) { cl.breaker = cb }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: httpCallTimeout},
		policy:  DefaultRetryPolicy,
		breaker: NewBreaker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Poll API request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		}
	}
	return c, nil
}

// NewBreaker opens after 60% failures over at least 5 requests in 10s and
// probes again after 30s.
func NewBreaker() circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "pollapi",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()
}

// GetPoll fetches the detail view of one poll. A missing poll returns an
// error wrapping domain.ErrPollNotFound.
func (c *Client) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	v, err := c.shared(ctx, "get_poll", "poll:"+id, func(ctx context.Context) (any, error) {
		var p domain.Poll
		if err := c.getJSON(ctx, "get poll "+id, []string{"api", "polls", id}, &p); err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(*domain.Poll).Clone()
	return &p, nil
}

// ListPolls fetches the poll list in server order.
func (c *Client) ListPolls(ctx context.Context) ([]domain.PollSummary, error) {
	v, err := c.shared(ctx, "list_polls", "polls", func(ctx context.Context) (any, error) {
		var polls []domain.PollSummary
		if err := c.getJSON(ctx, "list polls", []string{"api", "polls"}, &polls); err != nil {
			return nil, err
		}
		return polls, nil
	})
	if err != nil {
		return nil, err
	}
	polls := v.([]domain.PollSummary)
	return append([]domain.PollSummary(nil), polls...), nil
}

// ListComments fetches the top-level comments of a poll.
func (c *Client) ListComments(ctx context.Context, pollID string) ([]domain.Comment, error) {
	v, err := c.shared(ctx, "list_comments", "comments:"+pollID, func(ctx context.Context) (any, error) {
		var comments []domain.Comment
		if err := c.getJSON(ctx, "list comments "+pollID, []string{"api", "polls", pollID, "comments"}, &comments); err != nil {
			return nil, err
		}
		return comments, nil
	})
	if err != nil {
		return nil, err
	}
	comments := v.([]domain.Comment)
	return append([]domain.Comment(nil), comments...), nil
}

// shared runs fetch with retries, deduplicated by key. The shared fetch is
// detached from the caller that started it and bounded by sharedFetchTimeout;
// each caller stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, op, key string, fetch retry.Operation[any]) (any, error) {
	start := time.Now()
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return retry.Do(fetchCtx, c.policy, classify, fetch)
	})

	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

func (c *Client) getJSON(ctx context.Context, op string, path []string, dst any) error {
	if !c.breaker.TryAcquirePermit() {
		return fmt.Errorf("%s: %w", op, circuitbreaker.ErrOpen)
	}

	err := c.doGet(ctx, op, path, dst)
	if isBreakerFailure(err) {
		c.breaker.RecordError(err)
	} else {
		c.breaker.RecordSuccess()
	}
	return err
}

func (c *Client) doGet(ctx context.Context, op string, path []string, dst any) error {
	ctx, id := correlation.WithNewID(ctx)
	target := c.baseURL.JoinPath(path...).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Correlation-ID", id)

	slog.DebugContext(ctx, "Poll API request", "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: %w", op, domain.ErrPollNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &decodeError{err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.metrics.RequestsTotal.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrPollNotFound):
		return "not_found"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// classify maps a failed attempt to a retry action: 5xx and transport
// errors retry, 429 backs off longer, anything else stops.
func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if errors.Is(err, domain.ErrPollNotFound) || errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.Stop
	}
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return retry.Stop
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case statusErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	return retry.Retry
}

// isBreakerFailure reports whether err says the API is unhealthy. Client
// errors and missing polls are healthy answers.
func isBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, domain.ErrPollNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}
