// internal/drivers/throttle.go
package drivers

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottledDriver caps the read bandwidth of the wrapped driver so face
// downloads do not starve other traffic.
type ThrottledDriver struct {
	backend Driver
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewThrottledDriver creates a driver with bandwidth throttling
func NewThrottledDriver(backend Driver, bytesPerSecond int, logger *zap.Logger) *ThrottledDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Create limiter with bytes per second rate and burst size
	limiter := rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)

	return &ThrottledDriver{
		backend: backend,
		limiter: limiter,
		logger:  logger,
	}
}

// throttledReader wraps an io.ReadCloser with rate limiting
type throttledReader struct {
	io.ReadCloser
	limiter *rate.Limiter
	ctx     context.Context
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	// never ask for more than the burst in one wait
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := tr.ReadCloser.Read(p)
	if n > 0 {
		// Wait for permission to read n bytes
		if waitErr := tr.limiter.WaitN(tr.ctx, n); waitErr != nil {
			return 0, waitErr
		}
	}
	return n, err
}

func (t *ThrottledDriver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	rc, err := t.backend.Get(ctx, container, artifact)
	if err != nil {
		return nil, err
	}
	return &throttledReader{ReadCloser: rc, limiter: t.limiter, ctx: ctx}, nil
}

// Delegate other required methods
func (t *ThrottledDriver) Name() string {
	return "throttled-" + t.backend.Name()
}

func (t *ThrottledDriver) Put(ctx context.Context, container, artifact string, data io.Reader) error {
	return t.backend.Put(ctx, container, artifact, data)
}

func (t *ThrottledDriver) List(ctx context.Context, container, prefix string) ([]string, error) {
	return t.backend.List(ctx, container, prefix)
}

func (t *ThrottledDriver) Exists(ctx context.Context, container, artifact string) (bool, error) {
	return t.backend.Exists(ctx, container, artifact)
}

func (t *ThrottledDriver) HealthCheck(ctx context.Context) error {
	return t.backend.HealthCheck(ctx)
}
