// internal/drivers/throttle_test.go
package drivers

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestBandwidthThrottle(t *testing.T) {
	t.Run("throttles read operations", func(t *testing.T) {
		// Create 5KB of data
		dataSize := 5 * 1024
		data := make([]byte, dataSize)
		for i := range data {
			data[i] = byte(i % 256)
		}

		// 5KB/s rate, 1KB burst - should take ~1 second
		limiter := rate.NewLimiter(rate.Limit(5*1024), 1024)
		throttled := &throttledReader{
			ReadCloser: io.NopCloser(bytes.NewReader(data)),
			limiter:    limiter,
			ctx:        context.Background(),
		}

		start := time.Now()
		buffer := make([]byte, 4096) // larger than the burst, clipped per read
		totalRead := 0

		for {
			n, err := throttled.Read(buffer)
			totalRead += n
			if err != nil {
				break
			}
		}
		duration := time.Since(start)

		// Assert
		assert.Equal(t, dataSize, totalRead)

		// Should take at least 0.6 seconds (allowing for burst and timing variations)
		assert.GreaterOrEqual(t, duration.Seconds(), 0.6,
			"Read too fast for 5KB/s limit")
	})

	t.Run("wraps driver reads", func(t *testing.T) {
		ctx := context.Background()
		backend := NewLocalDriver(t.TempDir(), nil)
		require.NoError(t, backend.Put(ctx, "c", "a.bin", bytes.NewReader([]byte("payload"))))

		driver := NewThrottledDriver(backend, 1<<20, nil)
		assert.Equal(t, "throttled-local", driver.Name())

		data, err := ReadAll(ctx, driver, "c", "a.bin")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("cancelled context stops reads", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(1), 1)
		limiter.AllowN(time.Now(), 1) // drain the burst
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		throttled := &throttledReader{
			ReadCloser: io.NopCloser(bytes.NewReader([]byte("abc"))),
			limiter:    limiter,
			ctx:        ctx,
		}
		_, err := throttled.Read(make([]byte, 1))
		assert.Error(t, err)
	})
}
