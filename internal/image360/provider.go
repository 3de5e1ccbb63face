// Package image360 owns 360° image capture points: building them from a data
// provider, loading their face textures through a bounded cache, and picking
// them by ray.
package image360

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrNotFound is returned when an entity id is unknown.
	ErrNotFound = errors.New("image360: entity not found")
	// ErrDisposed is returned when an operation targets a disposed entity.
	ErrDisposed = errors.New("image360: entity disposed")
)

// FaceDescriptor names one downloadable face image of a station.
type FaceDescriptor struct {
	Face string `json:"face"` // front, back, left, right, top, bottom
	Key  string `json:"key"`  // provider specific location
}

// StationDescriptor is one capture point record as yielded by a provider.
type StationDescriptor struct {
	ID            string           `json:"id"`
	Label         string           `json:"label"`
	Site          string           `json:"site"`
	Position      mgl64.Vec3       `json:"position"`
	RotationAxis  mgl64.Vec3       `json:"rotationAxis"`
	RotationAngle float64          `json:"rotationAngle"` // radians
	Faces         []FaceDescriptor `json:"faces"`
}

// Texture is a decoded face image that stands in for a GPU texture handle.
// Release runs the release hook at most once.
type Texture struct {
	Face  string
	Image image.Image
	Size  int64

	once      sync.Once
	onRelease func()
	released  atomic.Bool
}

// NewTexture wraps a decoded face. onRelease may be nil.
func NewTexture(face string, img image.Image, size int64, onRelease func()) *Texture {
	return &Texture{Face: face, Image: img, Size: size, onRelease: onRelease}
}

// Release frees the texture. Calling it again is a no-op.
func (t *Texture) Release() {
	t.once.Do(func() {
		t.released.Store(true)
		if t.onRelease != nil {
			t.onRelease()
		}
	})
}

// Released reports whether Release has run.
func (t *Texture) Released() bool {
	return t.released.Load()
}

func releaseAll(textures []*Texture) {
	for _, t := range textures {
		if t != nil {
			t.Release()
		}
	}
}

// FaceLoader fetches and decodes a station's face textures.
type FaceLoader interface {
	Faces(ctx context.Context, station StationDescriptor) ([]*Texture, error)
}

// DataProvider yields capture points for an opaque, provider specific filter.
type DataProvider[T any] interface {
	FaceLoader
	Stations(ctx context.Context, filter T) ([]StationDescriptor, error)
	Rotation(ctx context.Context, station StationDescriptor) (mgl64.Quat, error)
}
