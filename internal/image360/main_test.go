package image360

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/FairForge/viewercore/internal/geom"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBoom = errors.New("boom")

// fakeProvider serves stations from memory. Faces for a station listed in
// gates block until that channel is closed.
type fakeProvider struct {
	stations    []StationDescriptor
	stationsErr error
	rotationErr error
	gates       map[string]chan struct{}

	mu       sync.Mutex
	failNext int

	started       chan string
	faceCalls     atomic.Int32
	rotationCalls atomic.Int32
	releases      atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

func (p *fakeProvider) gate(stationID string) chan struct{} {
	ch := make(chan struct{})
	p.gates[stationID] = ch
	return ch
}

func (p *fakeProvider) failTimes(n int) {
	p.mu.Lock()
	p.failNext = n
	p.mu.Unlock()
}

func (p *fakeProvider) Stations(_ context.Context, site string) ([]StationDescriptor, error) {
	if p.stationsErr != nil {
		return nil, p.stationsErr
	}
	var out []StationDescriptor
	for _, s := range p.stations {
		if site == "" || s.Site == site {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *fakeProvider) Rotation(_ context.Context, s StationDescriptor) (mgl64.Quat, error) {
	p.rotationCalls.Add(1)
	if p.rotationErr != nil {
		return mgl64.Quat{}, p.rotationErr
	}
	return geom.AxisAngle(s.RotationAxis, s.RotationAngle), nil
}

func (p *fakeProvider) Faces(ctx context.Context, s StationDescriptor) ([]*Texture, error) {
	p.faceCalls.Add(1)
	p.started <- s.ID

	if g, ok := p.gates[s.ID]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	fail := p.failNext > 0
	if fail {
		p.failNext--
	}
	p.mu.Unlock()
	if fail {
		return nil, errBoom
	}

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	faces := make([]*Texture, 0, 2)
	for _, face := range []string{"front", "back"} {
		faces = append(faces, NewTexture(face, img, int64(len(img.Pix)), func() { p.releases.Add(1) }))
	}
	return faces, nil
}

func testEntity(stationID string, pos mgl64.Vec3) *Entity {
	return &Entity{
		ID:            uuid.New(),
		Station:       StationDescriptor{ID: stationID, Position: pos},
		postTransform: mgl64.Ident4(),
		icon:          newIcon(pos, DefaultIconRadius),
	}
}
