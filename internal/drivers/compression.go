package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Codec decodes one compressed artifact variant.
type Codec struct {
	Suffix string
	Open   func(r io.Reader) (io.ReadCloser, error)
}

// DefaultCodecs are tried in order when the plain artifact is missing.
var DefaultCodecs = []Codec{
	{Suffix: ".zst", Open: openZstd},
	{Suffix: ".gz", Open: openGzip},
	{Suffix: ".sz", Open: openSnappy},
}

func openZstd(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(256*1024*1024),
	)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func openGzip(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func openSnappy(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

// DecompressingDriver serves "sector_3.glb" from "sector_3.glb.zst" (or .gz,
// .sz) when only the compressed variant is stored.
type DecompressingDriver struct {
	backend Driver
	codecs  []Codec
	logger  *zap.Logger
}

// NewDecompressingDriver wraps backend with DefaultCodecs.
func NewDecompressingDriver(backend Driver, logger *zap.Logger) *DecompressingDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecompressingDriver{backend: backend, codecs: DefaultCodecs, logger: logger}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *DecompressingDriver) Get(ctx context.Context, container, artifact string) (io.ReadCloser, error) {
	rc, err := d.backend.Get(ctx, container, artifact)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return rc, err
	}

	for _, codec := range d.codecs {
		raw, cerr := d.backend.Get(ctx, container, artifact+codec.Suffix)
		if errors.Is(cerr, ErrNotFound) {
			continue
		}
		if cerr != nil {
			return nil, cerr
		}

		dec, derr := codec.Open(raw)
		if derr != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("decode %s/%s%s: %w", container, artifact, codec.Suffix, derr)
		}
		d.logger.Debug("serving compressed variant",
			zap.String("artifact", artifact),
			zap.String("suffix", codec.Suffix))
		return &stackedCloser{Reader: dec, closers: []io.Closer{dec, raw}}, nil
	}

	return nil, err
}

func (d *DecompressingDriver) Name() string {
	return "decompressing-" + d.backend.Name()
}

func (d *DecompressingDriver) Put(ctx context.Context, container, artifact string, data io.Reader) error {
	return d.backend.Put(ctx, container, artifact, data)
}

func (d *DecompressingDriver) List(ctx context.Context, container, prefix string) ([]string, error) {
	return d.backend.List(ctx, container, prefix)
}

func (d *DecompressingDriver) Exists(ctx context.Context, container, artifact string) (bool, error) {
	ok, err := d.backend.Exists(ctx, container, artifact)
	if err != nil || ok {
		return ok, err
	}
	for _, codec := range d.codecs {
		if ok, err := d.backend.Exists(ctx, container, artifact+codec.Suffix); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (d *DecompressingDriver) HealthCheck(ctx context.Context) error {
	return d.backend.HealthCheck(ctx)
}
