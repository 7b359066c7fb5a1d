package shadow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryProvider wraps a ProviderClient and automatically retries transient
// provider-transport failures (ProviderTransportError with status 429 or
// 503) with exponential backoff, using cenkalti/backoff/v5 in place of the
// teacher's hand-rolled loop for the same concern (§11).
type retryProvider struct {
	inner       ProviderClient
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay roughly doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry sequence. The
// zero value (default) disables the timeout.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.timeout = d }
}

// RetryLogger sets the logger used to record retry attempts.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient ProviderTransportError
// (429, 503). Compose with other decorators:
//
//	client = shadow.WithRetry(anthropicClient)
//	client = shadow.WithRetry(anthropicClient, shadow.RetryMaxAttempts(5))
//	client = shadow.WithRetry(anthropicClient, shadow.RetryTimeout(30*time.Second))
func WithRetry(p ProviderClient, opts ...RetryOption) ProviderClient {
	r := &retryProvider{
		inner:       p,
		maxAttempts: 3,
		baseDelay:   time.Second,
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) SupportsNativeReasoning() bool { return r.inner.SupportsNativeReasoning() }

func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return backoff.Retry(ctx, func() (ChatResponse, error) {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			return ChatResponse{}, backoff.Permanent(err)
		}
		r.logger.Warn("transient provider error, retrying", "provider", r.inner.Name(), "status", statusOf(err))
		return ChatResponse{}, err
	}, r.backoffOpts()...)
}

// StreamChat retries only while no chunks have reached raw yet — once
// streaming has started, a transient error passes straight through to avoid
// emitting duplicate content for a tool-call id already in flight.
func (r *retryProvider) StreamChat(ctx context.Context, req ChatRequest, raw chan<- ProviderChunk) error {
	defer close(raw)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		mid := make(chan ProviderChunk, 64)
		done := make(chan error, 1)
		go func() { done <- r.inner.StreamChat(ctx, req, mid) }()

		var chunksSent bool
		for chunk := range mid {
			chunksSent = true
			raw <- chunk
		}
		streamErr := <-done

		if streamErr == nil {
			return struct{}{}, nil
		}
		if chunksSent || !isTransient(streamErr) {
			return struct{}{}, backoff.Permanent(streamErr)
		}
		r.logger.Warn("transient provider error, retrying stream", "provider", r.inner.Name(), "status", statusOf(streamErr))
		return struct{}{}, streamErr
	}, r.backoffOpts()...)
	return err
}

func (r *retryProvider) backoffOpts() []backoff.RetryOption {
	eb := backoff.NewExponentialBackOff()
	if r.baseDelay > 0 {
		eb.InitialInterval = r.baseDelay
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(eb)}
	if r.maxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(r.maxAttempts)))
	}
	if r.timeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.timeout))
	}
	return opts
}

// withTimeout returns a child context with a deadline if r.timeout is set.
func (r *retryProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// isTransient reports whether err is a retryable provider-transport error
// (429 or 503).
func isTransient(err error) bool {
	var e *ProviderTransportError
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status code from a ProviderTransportError, or 0.
func statusOf(err error) int {
	var e *ProviderTransportError
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// compile-time check
var _ ProviderClient = (*retryProvider)(nil)
