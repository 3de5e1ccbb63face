package drivers

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries transient read failures with exponential backoff.
type RetryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
	logger       *zap.Logger
}

type RetryOption func(*RetryPolicy)

func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.initialDelay = d
	}
}

func WithMaxDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.maxDelay = d
	}
}

// WithJitter spreads retries of concurrent face loads apart.
func WithJitter(enabled bool) RetryOption {
	return func(p *RetryPolicy) {
		p.jitter = enabled
	}
}

func WithRetryLogger(logger *zap.Logger) RetryOption {
	return func(p *RetryPolicy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
		multiplier:   2.0,
		jitter:       true,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn until it succeeds, fails permanently or attempts run out.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				p.logger.Debug("read succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if permanent(lastErr) || attempt == p.maxAttempts-1 {
			break
		}

		delay := p.delay(attempt)
		p.logger.Debug("read failed, retrying",
			zap.Error(lastErr),
			zap.Int("attempt", attempt+1),
			zap.Int("maxAttempts", p.maxAttempts),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}
	if p.jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// RetryingDriver retries reads against a remote backend. Writes pass through
// once since the payload reader cannot be replayed.
type RetryingDriver struct {
	backend Driver
	policy  *RetryPolicy
}

func NewRetryingDriver(backend Driver, policy *RetryPolicy) *RetryingDriver {
	if policy == nil {
		policy = NewRetryPolicy()
	}
	return &RetryingDriver{backend: backend, policy: policy}
}

func (r *RetryingDriver) Name() string {
	return "retrying-" + r.backend.Name()
}

func (r *RetryingDriver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := r.policy.Execute(ctx, func() error {
		var err error
		rc, err = r.backend.Get(ctx, container, artifact)
		return err
	})
	return rc, err
}

func (r *RetryingDriver) Put(ctx context.Context, container, artifact string, data io.Reader) error {
	return r.backend.Put(ctx, container, artifact, data)
}

func (r *RetryingDriver) List(ctx context.Context, container, prefix string) ([]string, error) {
	var keys []string
	err := r.policy.Execute(ctx, func() error {
		var err error
		keys, err = r.backend.List(ctx, container, prefix)
		return err
	})
	return keys, err
}

func (r *RetryingDriver) Exists(ctx context.Context, container, artifact string) (bool, error) {
	var ok bool
	err := r.policy.Execute(ctx, func() error {
		var err error
		ok, err = r.backend.Exists(ctx, container, artifact)
		return err
	})
	return ok, err
}

func (r *RetryingDriver) HealthCheck(ctx context.Context) error {
	return r.backend.HealthCheck(ctx)
}
