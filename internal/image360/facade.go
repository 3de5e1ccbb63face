package image360

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/geom"
)

// Facade owns the entity collection of one viewer session. Entities keep
// insertion order, which decides ties when picking.
type Facade[T any] struct {
	factory *Factory[T]
	cache   *LoadingCache
	logger  *zap.Logger

	mu       sync.RWMutex
	entities []*Entity
}

// NewFacade wires a factory and a cache together.
func NewFacade[T any](factory *Factory[T], cache *LoadingCache, logger *zap.Logger) *Facade[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade[T]{factory: factory, cache: cache, logger: logger}
}

// Create builds entities for filter and appends them to the collection. Only
// the new entities are returned.
func (f *Facade[T]) Create(ctx context.Context, filter T, postTransform *mgl64.Mat4, preComputedRotation bool) ([]*Entity, error) {
	created, err := f.factory.Create(ctx, filter, postTransform, preComputedRotation)
	if err != nil {
		return nil, fmt.Errorf("create image360 entities: %w", err)
	}

	f.mu.Lock()
	f.entities = append(f.entities, created...)
	total := len(f.entities)
	f.mu.Unlock()

	f.logger.Info("image360 entities added",
		zap.Int("created", len(created)),
		zap.Int("total", total))
	return created, nil
}

// Delete removes e from the collection, purges it from the cache and disposes
// it. Deleting an entity that is not in the collection still purges and
// disposes it. e is disposed even when ctx ends before a pending load
// settles; that load then discards its faces on its own.
func (f *Facade[T]) Delete(ctx context.Context, e *Entity) error {
	f.mu.Lock()
	if i := slices.Index(f.entities, e); i >= 0 {
		f.entities = slices.Delete(f.entities, i, i+1)
	}
	f.mu.Unlock()

	var purgeErr error
	if err := f.cache.Purge(ctx, e); err != nil {
		purgeErr = fmt.Errorf("purge entity %s: %w", e.ID, err)
	}
	e.Dispose()

	if purgeErr != nil {
		f.logger.Warn("image360 entity disposed before its load settled",
			zap.String("entity", e.ID.String()),
			zap.Error(purgeErr))
		return purgeErr
	}
	f.logger.Debug("image360 entity deleted", zap.String("entity", e.ID.String()))
	return nil
}

// Preload makes e's faces resident through the cache.
func (f *Facade[T]) Preload(ctx context.Context, e *Entity) error {
	return f.cache.CachedPreload(ctx, e)
}

// Intersect casts a ray from ndc through cam and returns the first entity in
// insertion order whose visible icon is hit, or nil. The nearest hit does not
// win over an earlier entity.
func (f *Facade[T]) Intersect(ndc mgl64.Vec2, cam geom.Camera) *Entity {
	ray, err := geom.RayFromNDC(ndc, cam)
	if err != nil {
		f.logger.Debug("intersect skipped", zap.Error(err))
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.entities {
		if _, hit := e.Icon().Intersect(ray); hit {
			return e
		}
	}
	return nil
}

// SetAllIconsVisibility shows or hides every icon.
func (f *Facade[T]) SetAllIconsVisibility(visible bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.entities {
		e.Icon().SetVisible(visible)
	}
}

// SetAllHoverIconsVisibility shows or hides every hover outline.
func (f *Facade[T]) SetAllHoverIconsVisibility(visible bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.entities {
		e.Icon().SetHoverVisible(visible)
	}
}

// Entities returns a snapshot of the collection.
func (f *Facade[T]) Entities() []*Entity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Entity, len(f.entities))
	copy(out, f.entities)
	return out
}

// EntityByID looks an entity up by id.
func (f *Facade[T]) EntityByID(id uuid.UUID) (*Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Len returns the collection size.
func (f *Facade[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entities)
}

// Cache exposes the loading cache for stats and capacity changes.
func (f *Facade[T]) Cache() *LoadingCache {
	return f.cache
}
