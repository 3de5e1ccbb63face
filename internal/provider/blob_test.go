package provider

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/drivers"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/scene"
)

const testContainer = "viewer"

const plantManifest = `{
  "stations": [
    {"id": "s1", "label": "north", "position": [1, 2, 3], "rotationAxis": [0, 1, 0], "rotationAngle": 1.5707963267948966,
     "faces": [{"face": "front", "key": "plant/s1/front.png"}, {"face": "back", "key": "plant/s1/back.jpg"}]},
    {"id": "s2", "label": "south", "position": [4, 5, 6],
     "faces": [{"face": "front", "key": "plant/s2/front.png"}]},
    {"id": "s3", "label": "north", "site": "annex", "position": [7, 8, 9],
     "faces": [{"face": "front", "key": "plant/s3/missing.png"}]}
  ]
}`

const plantScene = `{
  "version": 9, "maxTreeIndex": 2, "unit": "Feet",
  "sectors": [
    {"id": 0, "parentId": -1, "depth": 0, "path": "0/",
     "boundingBox": {"min": {"x": 0, "y": 0, "z": 0}, "max": {"x": 10, "y": 10, "z": 10}}},
    {"id": 1, "parentId": 0, "depth": 1, "path": "0/0/", "downloadSize": 1024,
     "boundingBox": {"min": {"x": 0, "y": 0, "z": 0}, "max": {"x": 5, "y": 5, "z": 5}}}
  ]
}`

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func seedBlobStore(t *testing.T) drivers.Driver {
	t.Helper()
	ctx := context.Background()
	d := drivers.NewLocalDriver(t.TempDir(), zap.NewNop())

	put := func(artifact string, data []byte) {
		require.NoError(t, d.Put(ctx, testContainer, artifact, bytes.NewReader(data)))
	}
	put("plant/stations.json", []byte(plantManifest))
	put("plant/s1/front.png", encodePNG(t, 4, 4))
	put("plant/s1/back.jpg", encodeJPEG(t, 8, 8))
	put("plant/s2/front.png", []byte("not an image"))
	put("plant/scene.json", []byte(plantScene))
	return d
}

func TestBlobProvider_Stations(t *testing.T) {
	ctx := context.Background()
	p := NewBlobProvider(seedBlobStore(t), testContainer, nil)

	t.Run("all stations in manifest order", func(t *testing.T) {
		stations, err := p.Stations(ctx, SiteFilter{Site: "plant"})

		require.NoError(t, err)
		require.Len(t, stations, 3)
		assert.Equal(t, "s1", stations[0].ID)
		assert.Equal(t, "plant", stations[0].Site)
		assert.Equal(t, "annex", stations[2].Site)
		assert.Equal(t, mgl64.Vec3{4, 5, 6}, stations[1].Position)
		assert.Len(t, stations[0].Faces, 2)
	})

	t.Run("label filter", func(t *testing.T) {
		stations, err := p.Stations(ctx, SiteFilter{Site: "plant", Labels: []string{"north"}})

		require.NoError(t, err)
		require.Len(t, stations, 2)
		assert.Equal(t, "s1", stations[0].ID)
		assert.Equal(t, "s3", stations[1].ID)
	})

	t.Run("unknown site", func(t *testing.T) {
		_, err := p.Stations(ctx, SiteFilter{Site: "warehouse"})
		assert.ErrorIs(t, err, ErrUnknownSite)
	})

	t.Run("invalid filters", func(t *testing.T) {
		for _, site := range []string{"", "..", "../etc", "/abs", "a/../b"} {
			_, err := p.Stations(ctx, SiteFilter{Site: site})
			assert.Error(t, err, site)
		}
	})
}

func TestBlobProvider_Faces(t *testing.T) {
	ctx := context.Background()
	p := NewBlobProvider(seedBlobStore(t), testContainer, zap.NewNop())
	stations, err := p.Stations(ctx, SiteFilter{Site: "plant"})
	require.NoError(t, err)

	t.Run("decodes png and jpeg", func(t *testing.T) {
		faces, err := p.Faces(ctx, stations[0])

		require.NoError(t, err)
		require.Len(t, faces, 2)
		assert.Equal(t, "front", faces[0].Face)
		assert.Equal(t, 4, faces[0].Image.Bounds().Dx())
		assert.Equal(t, "back", faces[1].Face)
		assert.Equal(t, 8, faces[1].Image.Bounds().Dx())
		assert.Positive(t, faces[1].Size)
	})

	t.Run("undecodable face fails the station", func(t *testing.T) {
		faces, err := p.Faces(ctx, stations[1])

		assert.Error(t, err)
		assert.Nil(t, faces)
	})

	t.Run("missing face is not found", func(t *testing.T) {
		_, err := p.Faces(ctx, stations[2])
		assert.ErrorIs(t, err, drivers.ErrNotFound)
	})

	t.Run("station without faces", func(t *testing.T) {
		_, err := p.Faces(ctx, image360.StationDescriptor{ID: "bare"})
		assert.Error(t, err)
	})
}

func TestBlobProvider_Rotation(t *testing.T) {
	p := NewBlobProvider(seedBlobStore(t), testContainer, nil)

	q, err := p.Rotation(context.Background(), image360.StationDescriptor{
		RotationAxis:  mgl64.Vec3{0, 0, 2},
		RotationAngle: math.Pi,
	})

	require.NoError(t, err)
	assert.True(t, q.Rotate(mgl64.Vec3{1, 0, 0}).ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-9))
}

func TestBlobProvider_Scene(t *testing.T) {
	ctx := context.Background()
	p := NewBlobProvider(seedBlobStore(t), testContainer, nil)

	t.Run("parsed scene", func(t *testing.T) {
		s, err := p.Scene(ctx, "plant")

		require.NoError(t, err)
		assert.Equal(t, "Feet", s.Unit)
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, int64(1024), s.TotalDownloadSize())
	})

	t.Run("raw metadata", func(t *testing.T) {
		meta, err := p.SceneMetadata(ctx, "plant")

		require.NoError(t, err)
		assert.Equal(t, 9, meta.Version)
		assert.Len(t, meta.Sectors, 2)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := p.Scene(ctx, "nope")
		assert.ErrorIs(t, err, drivers.ErrNotFound)

		_, err = p.SceneMetadata(ctx, "nope")
		assert.ErrorIs(t, err, drivers.ErrNotFound)
	})

	t.Run("structural error surfaces", func(t *testing.T) {
		d := drivers.NewLocalDriver(t.TempDir(), nil)
		require.NoError(t, d.Put(ctx, testContainer, "broken/scene.json", bytes.NewReader([]byte(
			`{"sectors": [{"id": 1, "parentId": 0, "boundingBox": {"min": {"x": 0, "y": 0, "z": 0}, "max": {"x": 1, "y": 1, "z": 1}}}]}`))))

		_, err := NewBlobProvider(d, testContainer, nil).Scene(ctx, "broken")

		var missing scene.MissingRootSectorError
		assert.ErrorAs(t, err, &missing)
	})
}
