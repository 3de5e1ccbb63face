package image360

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultIconRadius is the pick radius of a station icon in scene units.
const DefaultIconRadius = 0.3

// Factory builds entities from provider records. It never touches face
// textures; those are loaded through the LoadingCache.
type Factory[T any] struct {
	provider        DataProvider[T]
	logger          *zap.Logger
	iconRadius      float64
	rotationWorkers int
	onDispose       func(*Entity)
}

// FactoryOption configures a Factory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger          *zap.Logger
	iconRadius      float64
	rotationWorkers int
	onDispose       func(*Entity)
}

// WithFactoryLogger sets the logger.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = l }
}

// WithIconRadius sets the pick radius of created icons.
func WithIconRadius(r float64) FactoryOption {
	return func(o *factoryOptions) { o.iconRadius = r }
}

// WithRotationWorkers bounds concurrent rotation lookups during eager creation.
func WithRotationWorkers(n int) FactoryOption {
	return func(o *factoryOptions) { o.rotationWorkers = n }
}

// WithDisposeHook registers a callback run once per disposed entity.
func WithDisposeHook(fn func(*Entity)) FactoryOption {
	return func(o *factoryOptions) { o.onDispose = fn }
}

// NewFactory creates a factory over provider.
func NewFactory[T any](provider DataProvider[T], opts ...FactoryOption) *Factory[T] {
	o := factoryOptions{iconRadius: DefaultIconRadius, rotationWorkers: 8}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.rotationWorkers <= 0 {
		o.rotationWorkers = 1
	}
	return &Factory[T]{
		provider:        provider,
		logger:          o.logger,
		iconRadius:      o.iconRadius,
		rotationWorkers: o.rotationWorkers,
		onDispose:       o.onDispose,
	}
}

// Create queries the provider and builds one entity per station, in provider
// order. A nil postTransform means identity. With preComputedRotation every
// rotation is resolved before returning; otherwise on first use.
func (f *Factory[T]) Create(ctx context.Context, filter T, postTransform *mgl64.Mat4, preComputedRotation bool) ([]*Entity, error) {
	stations, err := f.provider.Stations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}

	post := mgl64.Ident4()
	if postTransform != nil {
		post = *postTransform
	}

	entities := make([]*Entity, 0, len(stations))
	for _, station := range stations {
		entities = append(entities, f.newEntity(station, post))
	}

	if preComputedRotation {
		if err := f.resolveRotations(ctx, entities); err != nil {
			return nil, err
		}
	}

	f.logger.Debug("created image360 entities",
		zap.Int("count", len(entities)),
		zap.Bool("preComputedRotation", preComputedRotation))
	return entities, nil
}

func (f *Factory[T]) newEntity(station StationDescriptor, post mgl64.Mat4) *Entity {
	e := &Entity{
		ID:            uuid.New(),
		Station:       station,
		postTransform: post,
		onDispose:     f.onDispose,
	}
	e.icon = newIcon(e.Position(), f.iconRadius)
	e.resolveRot = func(ctx context.Context) (mgl64.Quat, error) {
		return f.provider.Rotation(ctx, station)
	}
	return e
}

func (f *Factory[T]) resolveRotations(ctx context.Context, entities []*Entity) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.rotationWorkers)

	for _, e := range entities {
		g.Go(func() error {
			q, err := f.provider.Rotation(gctx, e.Station)
			if err != nil {
				return fmt.Errorf("resolve rotation for station %s: %w", e.Station.ID, err)
			}
			e.setRotation(q)
			return nil
		})
	}
	return g.Wait()
}
