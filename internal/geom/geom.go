// Package geom holds the small amount of 3D math the viewer core needs for
// picking and culling. Vectors and matrices are mathgl's float64 types.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Box3 is an axis-aligned bounding box stored as two corners.
// The corners are kept exactly as given; Min is not guaranteed to be <= Max.
type Box3 struct {
	Min mgl64.Vec3 `json:"min"`
	Max mgl64.Vec3 `json:"max"`
}

// NewBox3 builds a box from the six scalar corner values.
func NewBox3(minX, minY, minZ, maxX, maxY, maxZ float64) Box3 {
	return Box3{
		Min: mgl64.Vec3{minX, minY, minZ},
		Max: mgl64.Vec3{maxX, maxY, maxZ},
	}
}

// Center returns the midpoint of the two corners.
func (b Box3) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Diagonal returns the length of the box diagonal.
func (b Box3) Diagonal() float64 {
	return b.Max.Sub(b.Min).Len()
}

// ContainsPoint reports whether p lies inside the box, borders included.
func (b Box3) ContainsPoint(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// IntersectsBox reports whether two boxes overlap. Touching faces count.
func (b Box3) IntersectsBox(o Box3) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || b.Min[i] > o.Max[i] {
			return false
		}
	}
	return true
}

// IntersectRay runs a slab test and returns the entry distance along the ray.
// A ray starting inside the box hits at distance 0.
func (b Box3) IntersectRay(r Ray) (float64, bool) {
	tMin := 0.0
	tMax := math.Inf(1)

	for i := 0; i < 3; i++ {
		if math.Abs(r.Direction[i]) < 1e-12 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}

		inv := 1.0 / r.Direction[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}

	return tMin, true
}

// Ray is a half line with a normalized direction.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// NewRay normalizes dir before storing it.
func NewRay(origin, dir mgl64.Vec3) Ray {
	return Ray{Origin: origin, Direction: dir.Normalize()}
}

// Sprite is a camera-facing billboard. For picking it behaves like a sphere
// whose radius is half the sprite's world size.
type Sprite struct {
	Center mgl64.Vec3 `json:"center"`
	Radius float64    `json:"radius"`
}

// IntersectRay returns the distance to the first hit, if any.
func (s Sprite) IntersectRay(r Ray) (float64, bool) {
	if s.Radius <= 0 {
		return 0, false
	}

	oc := r.Origin.Sub(s.Center)
	b := oc.Dot(r.Direction)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}

	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}

// TransformPoint applies a homogeneous transform to p.
func TransformPoint(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	if v[3] != 0 && v[3] != 1 {
		return v.Vec3().Mul(1 / v[3])
	}
	return v.Vec3()
}

// Translation extracts the translation column of an affine transform.
func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return mgl64.Vec3{m[12], m[13], m[14]}
}

// AxisAngle returns a rotation quaternion; a zero axis yields the identity.
func AxisAngle(axis mgl64.Vec3, angleRad float64) mgl64.Quat {
	if axis.Len() == 0 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatRotate(angleRad, axis.Normalize())
}
