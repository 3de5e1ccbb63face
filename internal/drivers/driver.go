package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned (wrapped) when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Driver is the blob interface the viewer providers read station manifests,
// face images and scene metadata through.
type Driver interface {
	Name() string
	Get(ctx context.Context, container, artifact string) (io.ReadCloser, error)
	// Put is not used by the viewer read path; it seeds containers for
	// fixtures and local ingest.
	Put(ctx context.Context, container, artifact string, data io.Reader) error
	List(ctx context.Context, container, prefix string) ([]string, error)
	Exists(ctx context.Context, container, artifact string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// ReadAll fetches an artifact fully into memory.
func ReadAll(ctx context.Context, d Driver, container, artifact string) ([]byte, error) {
	rc, err := d.Get(ctx, container, artifact)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", container, artifact, err)
	}
	return data, nil
}
