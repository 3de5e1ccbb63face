package image360

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteStations() []StationDescriptor {
	return []StationDescriptor{
		{ID: "s1", Site: "plant", Position: mgl64.Vec3{1, 0, 0}, RotationAxis: mgl64.Vec3{0, 1, 0}, RotationAngle: math.Pi / 2},
		{ID: "s2", Site: "plant", Position: mgl64.Vec3{2, 0, 0}},
		{ID: "s3", Site: "yard", Position: mgl64.Vec3{3, 0, 0}},
	}
}

func TestFactory_Create(t *testing.T) {
	t.Run("builds entities in provider order", func(t *testing.T) {
		// Arrange
		p := newFakeProvider()
		p.stations = siteStations()
		f := NewFactory[string](p)

		// Act
		entities, err := f.Create(context.Background(), "plant", nil, false)

		// Assert
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, "s1", entities[0].Station.ID)
		assert.Equal(t, "s2", entities[1].Station.ID)
		assert.NotEqual(t, entities[0].ID, entities[1].ID)
		assert.Equal(t, mgl64.Vec3{1, 0, 0}, entities[0].Position())
		assert.True(t, entities[0].Icon().Visible())
		assert.Equal(t, DefaultIconRadius, entities[0].Icon().Sprite().Radius)
		assert.Equal(t, int32(0), p.faceCalls.Load())
	})

	t.Run("applies post transform", func(t *testing.T) {
		p := newFakeProvider()
		p.stations = siteStations()[:1]
		f := NewFactory[string](p, WithIconRadius(1.5))
		post := mgl64.Translate3D(0, 10, 0)

		entities, err := f.Create(context.Background(), "", &post, false)

		require.NoError(t, err)
		require.Len(t, entities, 1)
		assert.True(t, entities[0].Position().ApproxEqual(mgl64.Vec3{1, 10, 0}))
		assert.True(t, entities[0].Icon().Sprite().Center.ApproxEqual(mgl64.Vec3{1, 10, 0}))
		assert.Equal(t, 1.5, entities[0].Icon().Sprite().Radius)
	})

	t.Run("lazy rotation resolves once on first use", func(t *testing.T) {
		p := newFakeProvider()
		p.stations = siteStations()[:1]
		f := NewFactory[string](p)

		entities, err := f.Create(context.Background(), "", nil, false)
		require.NoError(t, err)
		e := entities[0]
		assert.False(t, e.RotationResolved())
		assert.Equal(t, int32(0), p.rotationCalls.Load())

		q, err := e.Rotation(context.Background())
		require.NoError(t, err)
		_, err = e.Rotation(context.Background())
		require.NoError(t, err)

		assert.Equal(t, int32(1), p.rotationCalls.Load())
		rotated := q.Rotate(mgl64.Vec3{1, 0, 0})
		assert.True(t, rotated.ApproxEqualThreshold(mgl64.Vec3{0, 0, -1}, 1e-9))
	})

	t.Run("precomputed rotation resolves every station", func(t *testing.T) {
		p := newFakeProvider()
		p.stations = siteStations()
		f := NewFactory[string](p, WithRotationWorkers(2))

		entities, err := f.Create(context.Background(), "", nil, true)

		require.NoError(t, err)
		require.Len(t, entities, 3)
		assert.Equal(t, int32(3), p.rotationCalls.Load())
		for _, e := range entities {
			assert.True(t, e.RotationResolved())
		}
	})

	t.Run("provider errors propagate", func(t *testing.T) {
		p := newFakeProvider()
		p.stationsErr = errBoom
		f := NewFactory[string](p)

		_, err := f.Create(context.Background(), "", nil, false)

		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("rotation errors propagate when precomputed", func(t *testing.T) {
		p := newFakeProvider()
		p.stations = siteStations()
		p.rotationErr = errBoom
		f := NewFactory[string](p)

		entities, err := f.Create(context.Background(), "", nil, true)

		assert.ErrorIs(t, err, errBoom)
		assert.Nil(t, entities)
	})
}

func TestEntity_WorldTransform(t *testing.T) {
	p := newFakeProvider()
	p.stations = siteStations()[:1]
	post := mgl64.Translate3D(0, 0, 5)
	entities, err := NewFactory[string](p).Create(context.Background(), "", &post, true)
	require.NoError(t, err)

	m, err := entities[0].WorldTransform(context.Background())

	require.NoError(t, err)
	origin := mgl64.TransformCoordinate(mgl64.Vec3{}, m)
	assert.True(t, origin.ApproxEqual(mgl64.Vec3{1, 0, 5}))
	forward := mgl64.TransformNormal(mgl64.Vec3{1, 0, 0}, m)
	assert.True(t, forward.ApproxEqualThreshold(mgl64.Vec3{0, 0, -1}, 1e-9))
}

func TestEntity_Dispose(t *testing.T) {
	// Arrange
	var hookCalls int
	p := newFakeProvider()
	p.stations = siteStations()[:1]
	f := NewFactory[string](p, WithDisposeHook(func(*Entity) { hookCalls++ }))
	entities, err := f.Create(context.Background(), "", nil, false)
	require.NoError(t, err)
	e := entities[0]
	faces, err := p.Faces(context.Background(), e.Station)
	require.NoError(t, err)
	require.True(t, e.attachFaces(faces))

	// Act
	e.Dispose()
	e.Dispose()

	// Assert
	assert.True(t, e.IsDisposed())
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, int32(2), p.releases.Load())
	assert.False(t, e.Loaded())
	assert.False(t, e.Icon().Visible())
	assert.False(t, e.attachFaces(faces))
}
