// Package provider holds the concrete data providers feeding image360
// entities and scene metadata from blob storage and PostgreSQL.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // face decoders
	_ "image/png"
	"path"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/viewercore/internal/drivers"
	"github.com/FairForge/viewercore/internal/geom"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/scene"
)

const (
	manifestName  = "stations.json"
	sceneFileName = "scene.json"
)

// ErrUnknownSite is returned when a site has no station manifest.
var ErrUnknownSite = errors.New("provider: unknown site")

// SiteFilter selects stations of one site, optionally narrowed to labels.
type SiteFilter struct {
	Site   string   `json:"site"`
	Labels []string `json:"labels,omitempty"`
}

// Matches reports whether s passes the label filter.
func (f SiteFilter) Matches(s image360.StationDescriptor) bool {
	return len(f.Labels) == 0 || slices.Contains(f.Labels, s.Label)
}

// Validate checks the filter before it reaches storage.
func (f SiteFilter) Validate() error {
	if f.Site == "" {
		return errors.New("provider: site is required")
	}
	if path.Clean(f.Site) != f.Site || path.IsAbs(f.Site) || f.Site == ".." || strings.HasPrefix(f.Site, "../") {
		return fmt.Errorf("provider: invalid site %q", f.Site)
	}
	return nil
}

type stationManifest struct {
	Stations []image360.StationDescriptor `json:"stations"`
}

// BlobProvider reads station manifests, face images and scene metadata from
// a blob driver. Layout inside the container:
//
//	<site>/stations.json
//	<model>/scene.json
//
// Face keys in the manifest are artifact names in the same container.
type BlobProvider struct {
	driver      drivers.Driver
	container   string
	faceWorkers int
	logger      *zap.Logger
}

// NewBlobProvider creates a provider reading from container through d.
func NewBlobProvider(d drivers.Driver, container string, logger *zap.Logger) *BlobProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobProvider{driver: d, container: container, faceWorkers: 6, logger: logger}
}

// Stations returns the stations of f.Site in manifest order.
func (p *BlobProvider) Stations(ctx context.Context, f SiteFilter) ([]image360.StationDescriptor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	artifact := path.Join(f.Site, manifestName)
	data, err := drivers.ReadAll(ctx, p.driver, p.container, artifact)
	if errors.Is(err, drivers.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, f.Site)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", artifact, err)
	}

	var m stationManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", artifact, err)
	}

	out := make([]image360.StationDescriptor, 0, len(m.Stations))
	for _, s := range m.Stations {
		if s.Site == "" {
			s.Site = f.Site
		}
		if f.Matches(s) {
			out = append(out, s)
		}
	}

	p.logger.Debug("stations loaded",
		zap.String("site", f.Site),
		zap.Int("manifest", len(m.Stations)),
		zap.Int("matched", len(out)))
	return out, nil
}

// Rotation derives the rotation from the manifest axis-angle.
func (p *BlobProvider) Rotation(_ context.Context, s image360.StationDescriptor) (mgl64.Quat, error) {
	return geom.AxisAngle(s.RotationAxis, s.RotationAngle), nil
}

// Faces downloads and decodes every face of s. On failure nothing is
// returned and already decoded faces are released.
func (p *BlobProvider) Faces(ctx context.Context, s image360.StationDescriptor) ([]*image360.Texture, error) {
	if len(s.Faces) == 0 {
		return nil, fmt.Errorf("station %s has no faces", s.ID)
	}

	textures := make([]*image360.Texture, len(s.Faces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.faceWorkers)
	for i, face := range s.Faces {
		g.Go(func() error {
			tex, err := p.decodeFace(gctx, face)
			if err != nil {
				return fmt.Errorf("face %s of station %s: %w", face.Face, s.ID, err)
			}
			textures[i] = tex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range textures {
			if t != nil {
				t.Release()
			}
		}
		return nil, err
	}
	return textures, nil
}

func (p *BlobProvider) decodeFace(ctx context.Context, face image360.FaceDescriptor) (*image360.Texture, error) {
	data, err := drivers.ReadAll(ctx, p.driver, p.container, face.Key)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", face.Key, err)
	}

	key := face.Key
	p.logger.Debug("face decoded",
		zap.String("key", key),
		zap.String("format", format),
		zap.Int("bytes", len(data)))
	return image360.NewTexture(face.Face, img, int64(len(data)), func() {
		p.logger.Debug("face released", zap.String("key", key))
	}), nil
}

// SceneMetadata reads the raw sector metadata of model.
func (p *BlobProvider) SceneMetadata(ctx context.Context, model string) (*scene.SceneMetadata, error) {
	artifact := path.Join(model, sceneFileName)
	rc, err := p.driver.Get(ctx, p.container, artifact)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", artifact, err)
	}
	defer func() { _ = rc.Close() }()
	return scene.Decode(rc)
}

// Scene reads, validates and parses the sector scene of model.
func (p *BlobProvider) Scene(ctx context.Context, model string) (*scene.SectorScene, error) {
	artifact := path.Join(model, sceneFileName)
	data, err := drivers.ReadAll(ctx, p.driver, p.container, artifact)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", artifact, err)
	}
	return scene.ParseJSON(data)
}
