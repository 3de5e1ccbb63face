package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("independent registries", func(t *testing.T) {
		a := NewRegistry()
		b := NewRegistry()

		a.Cache.Evictions.Inc()

		assert.Equal(t, 1.0, testutil.ToFloat64(a.Cache.Evictions))
		assert.Equal(t, 0.0, testutil.ToFloat64(b.Cache.Evictions))
	})

	t.Run("http observe", func(t *testing.T) {
		r := NewRegistry()
		r.HTTP.Observe("GET", "/health", 200, 0.01)
		r.HTTP.Observe("GET", "/health", 200, 0.02)

		assert.Equal(t, 2.0, testutil.ToFloat64(r.HTTP.RequestCounter.WithLabelValues("GET", "/health", "200")))
	})

	t.Run("handler exposes metrics", func(t *testing.T) {
		r := NewRegistry()
		r.Cache.Requests.WithLabelValues("miss").Inc()

		w := httptest.NewRecorder()
		r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

		body, err := io.ReadAll(w.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "viewercore_image360_cache_requests_total")
	})

	t.Run("gatherer counts series", func(t *testing.T) {
		r := NewRegistry()
		r.Cache.Requests.WithLabelValues("hit").Inc()
		r.Cache.Requests.WithLabelValues("miss").Inc()

		n, err := testutil.GatherAndCount(r.Gatherer(), "viewercore_image360_cache_requests_total")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
