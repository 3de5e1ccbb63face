package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox3(t *testing.T) {
	box := NewBox3(0, 0, 0, 2, 2, 2)

	t.Run("contains point with borders", func(t *testing.T) {
		assert.True(t, box.ContainsPoint(mgl64.Vec3{1, 1, 1}))
		assert.True(t, box.ContainsPoint(mgl64.Vec3{2, 0, 2}))
		assert.False(t, box.ContainsPoint(mgl64.Vec3{2.1, 1, 1}))
		assert.False(t, box.ContainsPoint(mgl64.Vec3{1, -0.1, 1}))
	})

	t.Run("keeps corners verbatim", func(t *testing.T) {
		inverted := NewBox3(1, 1, 1, -1, -1, -1)
		assert.Equal(t, mgl64.Vec3{1, 1, 1}, inverted.Min)
		assert.Equal(t, mgl64.Vec3{-1, -1, -1}, inverted.Max)
	})

	t.Run("center and diagonal", func(t *testing.T) {
		assert.Equal(t, mgl64.Vec3{1, 1, 1}, box.Center())
		assert.InDelta(t, math.Sqrt(12), box.Diagonal(), 1e-9)
	})

	t.Run("box overlap", func(t *testing.T) {
		assert.True(t, box.IntersectsBox(NewBox3(1, 1, 1, 3, 3, 3)))
		assert.True(t, box.IntersectsBox(NewBox3(2, 0, 0, 3, 1, 1)), "touching faces overlap")
		assert.False(t, box.IntersectsBox(NewBox3(3, 3, 3, 4, 4, 4)))
	})

	t.Run("ray slab test", func(t *testing.T) {
		d, hit := box.IntersectRay(NewRay(mgl64.Vec3{1, 1, -5}, mgl64.Vec3{0, 0, 1}))
		require.True(t, hit)
		assert.InDelta(t, 5.0, d, 1e-9)

		_, hit = box.IntersectRay(NewRay(mgl64.Vec3{5, 5, -5}, mgl64.Vec3{0, 0, 1}))
		assert.False(t, hit)

		d, hit = box.IntersectRay(NewRay(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{1, 0, 0}))
		require.True(t, hit)
		assert.Zero(t, d, "ray starting inside hits at zero")
	})
}

func TestSprite_IntersectRay(t *testing.T) {
	s := Sprite{Center: mgl64.Vec3{0, 0, -10}, Radius: 1}

	t.Run("hit in front", func(t *testing.T) {
		d, hit := s.IntersectRay(NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}))
		require.True(t, hit)
		assert.InDelta(t, 9.0, d, 1e-9)
	})

	t.Run("miss beside", func(t *testing.T) {
		_, hit := s.IntersectRay(NewRay(mgl64.Vec3{3, 0, 0}, mgl64.Vec3{0, 0, -1}))
		assert.False(t, hit)
	})

	t.Run("behind the origin is not a hit", func(t *testing.T) {
		_, hit := s.IntersectRay(NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}))
		assert.False(t, hit)
	})

	t.Run("zero radius never hits", func(t *testing.T) {
		_, hit := Sprite{Center: s.Center}.IntersectRay(NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}))
		assert.False(t, hit)
	})
}

func TestRayFromNDC(t *testing.T) {
	cam := NewPerspectiveCamera(60, 1, 0.1, 100,
		mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, -1}, mgl64.Vec3{0, 1, 0})

	t.Run("center of screen looks down the view axis", func(t *testing.T) {
		ray, err := RayFromNDC(mgl64.Vec2{0, 0}, cam)
		require.NoError(t, err)
		assert.InDelta(t, 0, ray.Direction[0], 1e-9)
		assert.InDelta(t, 0, ray.Direction[1], 1e-9)
		assert.InDelta(t, -1, ray.Direction[2], 1e-9)
	})

	t.Run("right edge bends right", func(t *testing.T) {
		ray, err := RayFromNDC(mgl64.Vec2{1, 0}, cam)
		require.NoError(t, err)
		assert.Greater(t, ray.Direction[0], 0.0)
	})

	t.Run("degenerate camera", func(t *testing.T) {
		_, err := RayFromNDC(mgl64.Vec2{0, 0}, Camera{})
		assert.ErrorIs(t, err, ErrDegenerateCamera)
	})

	t.Run("params apply defaults", func(t *testing.T) {
		c := CameraParams{Target: mgl64.Vec3{0, 0, -1}}.Camera()
		ray, err := RayFromNDC(mgl64.Vec2{0, 0}, c)
		require.NoError(t, err)
		assert.InDelta(t, -1, ray.Direction[2], 1e-9)
	})
}

func TestTransformHelpers(t *testing.T) {
	m := mgl64.Translate3D(1, 2, 3)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, Translation(m))
	assert.True(t, TransformPoint(m, mgl64.Vec3{1, 1, 1}).ApproxEqual(mgl64.Vec3{2, 3, 4}))

	q := AxisAngle(mgl64.Vec3{}, 1)
	assert.Equal(t, mgl64.QuatIdent(), q)

	q = AxisAngle(mgl64.Vec3{0, 2, 0}, math.Pi/2)
	rotated := q.Rotate(mgl64.Vec3{1, 0, 0})
	assert.True(t, rotated.ApproxEqualThreshold(mgl64.Vec3{0, 0, -1}, 1e-9))
}
