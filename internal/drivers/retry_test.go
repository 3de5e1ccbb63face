package drivers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyDriver fails the first n Gets before delegating.
type flakyDriver struct {
	Driver
	failures int
	gets     int
}

func (f *flakyDriver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	f.gets++
	if f.gets <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.Driver.Get(ctx, container, artifact)
}

func fastPolicy(attempts int) *RetryPolicy {
	return NewRetryPolicy(
		WithMaxAttempts(attempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
		WithJitter(false),
	)
}

func TestRetryPolicy(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		attempts := 0
		err := fastPolicy(5).Execute(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		err := fastPolicy(3).Execute(context.Background(), func() error {
			attempts++
			return errors.New("still failing")
		})

		assert.EqualError(t, err, "still failing")
		assert.Equal(t, 3, attempts)
	})

	t.Run("does not retry missing artifacts", func(t *testing.T) {
		attempts := 0
		err := fastPolicy(5).Execute(context.Background(), func() error {
			attempts++
			return ErrNotFound
		})

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, attempts)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := fastPolicy(5).Execute(ctx, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("delay grows and is capped", func(t *testing.T) {
		p := NewRetryPolicy(WithInitialDelay(10*time.Millisecond), WithMaxDelay(30*time.Millisecond), WithJitter(false))
		assert.Equal(t, 10*time.Millisecond, p.delay(0))
		assert.Equal(t, 20*time.Millisecond, p.delay(1))
		assert.Equal(t, 30*time.Millisecond, p.delay(2))
	})
}

func TestRetryingDriver(t *testing.T) {
	ctx := context.Background()
	local := NewLocalDriver(t.TempDir(), zap.NewNop())
	require.NoError(t, local.Put(ctx, "viewer", "plant/stations.json", bytes.NewReader([]byte(`{}`))))

	flaky := &flakyDriver{Driver: local, failures: 2}
	d := NewRetryingDriver(flaky, fastPolicy(3))
	assert.Equal(t, "retrying-local", d.Name())

	data, err := ReadAll(ctx, d, "viewer", "plant/stations.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, 3, flaky.gets)

	flaky.gets, flaky.failures = 0, 0
	_, err = d.Get(ctx, "viewer", "plant/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, flaky.gets)
}
