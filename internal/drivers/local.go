package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LocalDriver implements the Driver interface for local filesystem
type LocalDriver struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalDriver creates a new local filesystem driver
func NewLocalDriver(basePath string, logger *zap.Logger) *LocalDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDriver{
		basePath: basePath,
		logger:   logger,
	}
}

// Name returns the driver name
func (d *LocalDriver) Name() string {
	return "local"
}

func (d *LocalDriver) resolve(container, artifact string) (string, error) {
	full := filepath.Join(d.basePath, container, filepath.FromSlash(artifact))
	root := filepath.Join(d.basePath, container)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %q escapes container %q", artifact, container)
	}
	return full, nil
}

// Get retrieves an artifact from a container
func (d *LocalDriver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	fullPath, err := d.resolve(container, artifact)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("LocalDriver.Get",
		zap.String("container", container),
		zap.String("artifact", artifact),
		zap.String("fullPath", fullPath))

	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get %s/%s: %w", container, artifact, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", container, artifact, err)
	}
	return f, nil
}

// Put stores an artifact in a container
func (d *LocalDriver) Put(ctx context.Context, container, artifact string, data io.Reader) error {
	fullPath, err := d.resolve(container, artifact)
	if err != nil {
		return err
	}

	// Create parent directory if artifact has subdirectories
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err = io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}
	return nil
}

// List lists artifacts in a container, slash separated and sorted
func (d *LocalDriver) List(ctx context.Context, container, prefix string) ([]string, error) {
	containerPath := filepath.Join(d.basePath, container)
	var artifacts []string

	err := filepath.WalkDir(containerPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(containerPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			artifacts = append(artifacts, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", container, err)
	}

	sort.Strings(artifacts)
	return artifacts, nil
}

// Exists reports whether an artifact is present
func (d *LocalDriver) Exists(ctx context.Context, container, artifact string) (bool, error) {
	fullPath, err := d.resolve(container, artifact)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// HealthCheck verifies the driver is working
func (d *LocalDriver) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(d.basePath); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
