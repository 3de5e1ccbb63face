package geom

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrDegenerateCamera is returned when the view-projection cannot be inverted.
var ErrDegenerateCamera = errors.New("geom: camera view-projection is not invertible")

// Camera carries the matrices needed to unproject screen coordinates.
type Camera struct {
	Position   mgl64.Vec3
	View       mgl64.Mat4
	Projection mgl64.Mat4
}

// CameraParams is the wire form of a perspective camera.
type CameraParams struct {
	Position mgl64.Vec3 `json:"position"`
	Target   mgl64.Vec3 `json:"target"`
	Up       mgl64.Vec3 `json:"up"`
	FovY     float64    `json:"fovY"` // degrees
	Aspect   float64    `json:"aspect"`
	Near     float64    `json:"near"`
	Far      float64    `json:"far"`
}

// Camera builds a perspective camera, filling zero values with defaults.
func (p CameraParams) Camera() Camera {
	up := p.Up
	if up.Len() == 0 {
		up = mgl64.Vec3{0, 1, 0}
	}
	fov := p.FovY
	if fov <= 0 {
		fov = 60
	}
	aspect := p.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	near, far := p.Near, p.Far
	if near <= 0 {
		near = 0.1
	}
	if far <= near {
		far = near * 10000
	}
	return NewPerspectiveCamera(fov, aspect, near, far, p.Position, p.Target, up)
}

// NewPerspectiveCamera builds a look-at camera. fovYDeg is in degrees.
func NewPerspectiveCamera(fovYDeg, aspect, near, far float64, eye, target, up mgl64.Vec3) Camera {
	return Camera{
		Position:   eye,
		View:       mgl64.LookAtV(eye, target, up),
		Projection: mgl64.Perspective(mgl64.DegToRad(fovYDeg), aspect, near, far),
	}
}

// RayFromNDC casts a ray through normalized device coordinates, both axes in [-1, 1].
func RayFromNDC(ndc mgl64.Vec2, cam Camera) (Ray, error) {
	viewProj := cam.Projection.Mul4(cam.View)
	if math.Abs(viewProj.Det()) < 1e-18 {
		return Ray{}, ErrDegenerateCamera
	}
	inv := viewProj.Inv()

	near := unproject(inv, mgl64.Vec4{ndc[0], ndc[1], -1, 1})
	far := unproject(inv, mgl64.Vec4{ndc[0], ndc[1], 1, 1})

	dir := far.Sub(near)
	if dir.Len() == 0 {
		return Ray{}, ErrDegenerateCamera
	}
	return NewRay(near, dir), nil
}

func unproject(inv mgl64.Mat4, clip mgl64.Vec4) mgl64.Vec3 {
	v := inv.Mul4x1(clip)
	if v[3] == 0 {
		return v.Vec3()
	}
	return v.Vec3().Mul(1 / v[3])
}
