package image360

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/FairForge/viewercore/internal/geom"
)

// Icon is the pickable sprite marking an entity in the scene.
type Icon struct {
	mu           sync.RWMutex
	sprite       geom.Sprite
	visible      bool
	hoverVisible bool
	removed      bool
}

func newIcon(center mgl64.Vec3, radius float64) *Icon {
	return &Icon{
		sprite:  geom.Sprite{Center: center, Radius: radius},
		visible: true,
	}
}

// Sprite returns the icon geometry.
func (i *Icon) Sprite() geom.Sprite {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sprite
}

// Visible reports whether the icon is shown.
func (i *Icon) Visible() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.visible && !i.removed
}

// SetVisible shows or hides the icon.
func (i *Icon) SetVisible(v bool) {
	i.mu.Lock()
	i.visible = v
	i.mu.Unlock()
}

// HoverVisible reports whether the hover outline is shown.
func (i *Icon) HoverVisible() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.hoverVisible && !i.removed
}

// SetHoverVisible shows or hides the hover outline.
func (i *Icon) SetHoverVisible(v bool) {
	i.mu.Lock()
	i.hoverVisible = v
	i.mu.Unlock()
}

// Intersect returns the hit distance for a visible icon.
func (i *Icon) Intersect(r geom.Ray) (float64, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if !i.visible || i.removed {
		return 0, false
	}
	return i.sprite.IntersectRay(r)
}

func (i *Icon) remove() {
	i.mu.Lock()
	i.removed = true
	i.mu.Unlock()
}

// Entity is one 360° capture point placed in the scene.
type Entity struct {
	ID      uuid.UUID
	Station StationDescriptor

	postTransform mgl64.Mat4
	icon          *Icon

	rotMu       sync.Mutex
	rotation    mgl64.Quat
	rotResolved bool
	resolveRot  func(ctx context.Context) (mgl64.Quat, error)

	mu        sync.Mutex
	faces     []*Texture
	disposed  bool
	onDispose func(*Entity)
}

// Icon returns the entity's icon.
func (e *Entity) Icon() *Icon {
	return e.icon
}

// Position returns the station position after the post transform.
func (e *Entity) Position() mgl64.Vec3 {
	return geom.TransformPoint(e.postTransform, e.Station.Position)
}

// RotationResolved reports whether the rotation is already known.
func (e *Entity) RotationResolved() bool {
	e.rotMu.Lock()
	defer e.rotMu.Unlock()
	return e.rotResolved
}

// Rotation returns the station rotation, asking the provider on first use
// when it was not resolved at creation time.
func (e *Entity) Rotation(ctx context.Context) (mgl64.Quat, error) {
	e.rotMu.Lock()
	defer e.rotMu.Unlock()
	if e.rotResolved {
		return e.rotation, nil
	}
	if e.resolveRot == nil {
		return mgl64.QuatIdent(), nil
	}
	q, err := e.resolveRot(ctx)
	if err != nil {
		return mgl64.Quat{}, fmt.Errorf("resolve rotation for station %s: %w", e.Station.ID, err)
	}
	e.rotation = q
	e.rotResolved = true
	return q, nil
}

func (e *Entity) setRotation(q mgl64.Quat) {
	e.rotMu.Lock()
	e.rotation = q
	e.rotResolved = true
	e.rotMu.Unlock()
}

// WorldTransform is postTransform * translate(position) * rotation.
func (e *Entity) WorldTransform(ctx context.Context) (mgl64.Mat4, error) {
	q, err := e.Rotation(ctx)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	p := e.Station.Position
	local := mgl64.Translate3D(p[0], p[1], p[2]).Mul4(q.Mat4())
	return e.postTransform.Mul4(local), nil
}

// Faces returns the resident face textures, nil when not loaded.
func (e *Entity) Faces() []*Texture {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Texture, len(e.faces))
	copy(out, e.faces)
	return out
}

// Loaded reports whether face textures are resident.
func (e *Entity) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.faces) > 0
}

// attachFaces stores loaded textures. It returns false when the entity was
// disposed in the meantime; the caller still owns the textures then.
func (e *Entity) attachFaces(faces []*Texture) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.faces = faces
	return true
}

// detachFaces hands the resident textures to the caller for release.
func (e *Entity) detachFaces() []*Texture {
	e.mu.Lock()
	defer e.mu.Unlock()
	faces := e.faces
	e.faces = nil
	return faces
}

// IsDisposed reports whether Dispose has run.
func (e *Entity) IsDisposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Dispose releases the entity's textures and removes its icon. Only the
// first call has an effect.
func (e *Entity) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	faces := e.faces
	e.faces = nil
	hook := e.onDispose
	e.mu.Unlock()

	releaseAll(faces)
	e.icon.remove()
	if hook != nil {
		hook(e)
	}
}
