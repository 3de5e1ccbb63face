package image360

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/metrics"
)

const (
	// DefaultCacheCapacity is the number of entities kept resident.
	DefaultCacheCapacity = 10
	// DefaultLoadTimeout bounds one face download.
	DefaultLoadTimeout = 30 * time.Second
)

var (
	// ErrCacheClosed is returned by operations on a closed cache.
	ErrCacheClosed = errors.New("image360: loading cache closed")
	// ErrPurged is the result seen by preloads whose load was discarded by Purge.
	ErrPurged = errors.New("image360: load discarded by purge")
)

// State is the cache's view of one entity.
type State int

const (
	StateIdle State = iota
	StatePending
	StateLoaded
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Capacity  int   `json:"capacity"`
	Entries   int   `json:"entries"`
	Pending   int   `json:"pending"`
	Hits      int64 `json:"hits"`
	Joins     int64 `json:"joins"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	Failures  int64 `json:"failures"`
	Evictions int64 `json:"evictions"`
	Purges    int64 `json:"purges"`
}

// entry tracks one entity. done is closed once the load settles; err is
// only read after that.
type entry struct {
	entity  *Entity
	state   State
	done    chan struct{}
	err     error
	purging bool
	elem    *list.Element
}

// LoadingCache loads entity faces at most once concurrently per entity and
// keeps up to capacity loaded entities resident, evicting the least recently
// used. Pending entries never sit in the LRU list, so they cannot be evicted.
type LoadingCache struct {
	loader      FaceLoader
	logger      *zap.Logger
	metrics     *metrics.CacheMetrics
	loadTimeout time.Duration

	mu       sync.Mutex
	capacity int
	entries  map[uuid.UUID]*entry
	lru      *list.List // front is most recently used
	pending  int
	stats    Stats
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// CacheOption configures a LoadingCache.
type CacheOption func(*LoadingCache)

// WithCapacity sets the number of resident entities. Values below 1 are
// raised to 1.
func WithCapacity(n int) CacheOption {
	return func(c *LoadingCache) { c.capacity = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CacheOption {
	return func(c *LoadingCache) { c.logger = l }
}

// WithMetrics reports cache activity to m.
func WithMetrics(m *metrics.CacheMetrics) CacheOption {
	return func(c *LoadingCache) { c.metrics = m }
}

// WithLoadTimeout bounds each load. Zero disables the timeout.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *LoadingCache) { c.loadTimeout = d }
}

// NewLoadingCache creates a cache fetching faces through loader.
func NewLoadingCache(loader FaceLoader, opts ...CacheOption) *LoadingCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &LoadingCache{
		loader:      loader,
		loadTimeout: DefaultLoadTimeout,
		capacity:    DefaultCacheCapacity,
		entries:     make(map[uuid.UUID]*entry),
		lru:         list.New(),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.capacity < 1 {
		c.capacity = 1
	}
	return c
}

// CachedPreload makes e's faces resident. Concurrent calls for the same
// entity share one load. Cancelling ctx only stops this caller's wait.
func (c *LoadingCache) CachedPreload(ctx context.Context, e *Entity) error {
	if e.IsDisposed() {
		c.dropDisposed(e)
		return ErrDisposed
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrCacheClosed
		}

		ent, ok := c.entries[e.ID]
		if ok && ent.purging {
			// let the purge finish before loading again
			done := ent.done
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if ok && ent.state == StateLoaded {
			c.lru.MoveToFront(ent.elem)
			c.stats.Hits++
			c.mu.Unlock()
			c.countRequest("hit")
			return nil
		}

		if ok && ent.state == StatePending {
			c.stats.Joins++
			c.mu.Unlock()
			c.countRequest("join")
			return c.wait(ctx, ent)
		}

		ent = &entry{entity: e, state: StatePending, done: make(chan struct{})}
		c.entries[e.ID] = ent
		c.pending++
		c.stats.Misses++
		c.wg.Add(1)
		c.updateGaugesLocked()
		c.mu.Unlock()

		c.countRequest("miss")
		c.logger.Debug("loading image360 faces",
			zap.String("entity", e.ID.String()),
			zap.String("station", e.Station.ID))

		go c.load(ent)
		return c.wait(ctx, ent)
	}
}

func (c *LoadingCache) wait(ctx context.Context, ent *entry) error {
	select {
	case <-ent.done:
		return ent.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LoadingCache) load(ent *entry) {
	defer c.wg.Done()

	ctx := c.baseCtx
	var cancel context.CancelFunc
	if c.loadTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	start := time.Now()
	faces, err := c.loader.Faces(ctx, ent.entity.Station)
	cancel()
	c.observeLoad(start, err)

	id := ent.entity.ID
	var release []*Texture

	c.mu.Lock()
	c.pending--
	switch {
	case err != nil:
		ent.err = fmt.Errorf("load faces for station %s: %w", ent.entity.Station.ID, err)
		ent.state = StateFailed
		c.stats.Failures++
		c.removeLocked(id, ent)
		release = faces
	case ent.purging:
		ent.err = ErrPurged
		ent.state = StateDisposed
		c.removeLocked(id, ent)
		release = faces
	case !ent.entity.attachFaces(faces):
		ent.err = ErrDisposed
		ent.state = StateDisposed
		c.removeLocked(id, ent)
		release = faces
	default:
		ent.state = StateLoaded
		ent.elem = c.lru.PushFront(ent)
		c.stats.Loads++
		release = c.evictLocked(ent)
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	// release before settling so a waiting Purge never returns early
	releaseAll(release)
	close(ent.done)

	if err != nil {
		c.logger.Warn("image360 load failed",
			zap.String("entity", id.String()),
			zap.String("station", ent.entity.Station.ID),
			zap.Error(err))
	}
}

func (c *LoadingCache) removeLocked(id uuid.UUID, ent *entry) {
	if cur, ok := c.entries[id]; ok && cur == ent {
		delete(c.entries, id)
	}
	if ent.elem != nil {
		c.lru.Remove(ent.elem)
		ent.elem = nil
	}
}

// dropDisposed forgets a loaded entry whose entity was disposed without a
// purge. Pending entries settle on their own.
func (c *LoadingCache) dropDisposed(e *Entity) {
	c.mu.Lock()
	ent, ok := c.entries[e.ID]
	if !ok || ent.state != StateLoaded {
		c.mu.Unlock()
		return
	}
	c.removeLocked(e.ID, ent)
	ent.state = StateDisposed
	faces := e.detachFaces()
	c.updateGaugesLocked()
	c.mu.Unlock()

	releaseAll(faces)
	c.logger.Debug("dropped disposed image360 entity", zap.String("entity", e.ID.String()))
}

// sweepDisposedLocked removes loaded entries of disposed entities so they do
// not hold capacity. Their textures were released by Dispose.
func (c *LoadingCache) sweepDisposedLocked() {
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		ent := el.Value.(*entry)
		if ent.entity.IsDisposed() {
			c.removeLocked(ent.entity.ID, ent)
			ent.state = StateDisposed
		}
		el = next
	}
}

// evictLocked drops least recently used entries until the list fits. keep is
// never evicted. Textures are detached here and released by the caller.
func (c *LoadingCache) evictLocked(keep *entry) []*Texture {
	var release []*Texture
	if c.lru.Len() > c.capacity {
		c.sweepDisposedLocked()
	}
	for c.lru.Len() > c.capacity {
		back := c.lru.Back()
		victim := back.Value.(*entry)
		if victim == keep {
			break
		}
		c.lru.Remove(back)
		victim.elem = nil
		victim.state = StateIdle
		delete(c.entries, victim.entity.ID)
		release = append(release, victim.entity.detachFaces()...)
		c.stats.Evictions++
		if c.metrics != nil {
			c.metrics.Evictions.Inc()
		}
		c.logger.Debug("evicted image360 entity",
			zap.String("entity", victim.entity.ID.String()))
	}
	return release
}

// Purge removes e from the cache and releases its textures. A pending load is
// awaited first and its result discarded. Purging an unknown entity is a no-op.
func (c *LoadingCache) Purge(ctx context.Context, e *Entity) error {
	c.mu.Lock()
	ent, ok := c.entries[e.ID]
	if !ok {
		c.mu.Unlock()
		return nil
	}

	if ent.state == StateLoaded {
		c.removeLocked(e.ID, ent)
		ent.state = StateDisposed
		faces := e.detachFaces()
		c.stats.Purges++
		c.updateGaugesLocked()
		c.mu.Unlock()

		c.countPurge()
		releaseAll(faces)
		return nil
	}

	if !ent.purging {
		ent.purging = true
		c.stats.Purges++
		c.countPurge()
	}
	done := ent.done
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the cache state of e. A disposed entity reports Disposed
// once no load for it is pending.
func (c *LoadingCache) State(e *Entity) State {
	c.mu.Lock()
	ent, ok := c.entries[e.ID]
	var s State
	if ok {
		s = ent.state
	}
	c.mu.Unlock()

	switch {
	case ok && s == StatePending:
		return s
	case e.IsDisposed():
		return StateDisposed
	case !ok:
		return StateIdle
	default:
		return s
	}
}

// Contains reports whether e is pending or loaded.
func (c *LoadingCache) Contains(e *Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[e.ID]
	return ok
}

// Len returns the number of tracked entities, pending included.
func (c *LoadingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *LoadingCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Capacity = c.capacity
	s.Entries = len(c.entries)
	s.Pending = c.pending
	return s
}

// Capacity returns the resident entity limit.
func (c *LoadingCache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// SetCapacity changes the limit, evicting immediately when it shrinks.
func (c *LoadingCache) SetCapacity(n int) {
	if n < 1 {
		n = 1
	}
	c.mu.Lock()
	old := c.capacity
	c.capacity = n
	release := c.evictLocked(nil)
	c.updateGaugesLocked()
	c.mu.Unlock()

	releaseAll(release)
	if old != n {
		c.logger.Info("image360 cache capacity changed",
			zap.Int("from", old),
			zap.Int("to", n))
	}
}

// Close purges every entity, cancels in-flight loads and waits for their
// goroutines. Later preloads fail with ErrCacheClosed.
func (c *LoadingCache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tracked := make([]*Entity, 0, len(c.entries))
	for _, ent := range c.entries {
		tracked = append(tracked, ent.entity)
	}
	c.mu.Unlock()

	c.cancel()

	var errs []error
	for _, e := range tracked {
		if err := c.Purge(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func (c *LoadingCache) updateGaugesLocked() {
	if c.metrics == nil {
		return
	}
	c.metrics.Entries.Set(float64(len(c.entries)))
	c.metrics.Pending.Set(float64(c.pending))
}

func (c *LoadingCache) countRequest(result string) {
	if c.metrics != nil {
		c.metrics.Requests.WithLabelValues(result).Inc()
	}
}

func (c *LoadingCache) countPurge() {
	if c.metrics != nil {
		c.metrics.Purges.Inc()
	}
}

func (c *LoadingCache) observeLoad(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.Loads.WithLabelValues(status).Inc()
	c.metrics.LoadDuration.Observe(time.Since(start).Seconds())
}
