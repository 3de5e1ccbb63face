package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/config"
	"github.com/FairForge/viewercore/internal/geom"
	"github.com/FairForge/viewercore/internal/image360"
)

// ErrUnknownStation is returned when a station row is missing.
var ErrUnknownStation = errors.New("provider: unknown station")

const (
	selectStations = `SELECT id, label, site, pos_x, pos_y, pos_z, rot_axis_x, rot_axis_y, rot_axis_z, rot_angle
		FROM image360_stations WHERE site = $1`
	selectFaces = `SELECT station_id, face, object_key
		FROM image360_faces WHERE station_id = ANY($1) ORDER BY station_id, ordinal`
	selectRotation = `SELECT rot_axis_x, rot_axis_y, rot_axis_z, rot_angle
		FROM image360_stations WHERE id = $1`
)

// OpenPostgres opens a pooled connection from cfg.
func OpenPostgres(cfg config.PostgresConfig) (*sql.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// PostgresProvider reads station records from PostgreSQL. Face images still
// come from blob storage through faces.
type PostgresProvider struct {
	db     *sql.DB
	faces  image360.FaceLoader
	logger *zap.Logger
}

// NewPostgresProvider creates a provider over db.
func NewPostgresProvider(db *sql.DB, faces image360.FaceLoader, logger *zap.Logger) *PostgresProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresProvider{db: db, faces: faces, logger: logger}
}

// CreateTables creates the station schema if missing.
func (p *PostgresProvider) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS image360_stations (
			id VARCHAR(255) PRIMARY KEY,
			site VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL DEFAULT '',
			ordinal INTEGER NOT NULL DEFAULT 0,
			pos_x DOUBLE PRECISION NOT NULL,
			pos_y DOUBLE PRECISION NOT NULL,
			pos_z DOUBLE PRECISION NOT NULL,
			rot_axis_x DOUBLE PRECISION NOT NULL DEFAULT 0,
			rot_axis_y DOUBLE PRECISION NOT NULL DEFAULT 1,
			rot_axis_z DOUBLE PRECISION NOT NULL DEFAULT 0,
			rot_angle DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS image360_stations_site ON image360_stations (site, ordinal)`,
		`CREATE TABLE IF NOT EXISTS image360_faces (
			station_id VARCHAR(255) NOT NULL REFERENCES image360_stations(id) ON DELETE CASCADE,
			face VARCHAR(16) NOT NULL,
			ordinal INTEGER NOT NULL DEFAULT 0,
			object_key TEXT NOT NULL,
			PRIMARY KEY (station_id, face)
		)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Stations returns the stations of f.Site ordered by ordinal, with their faces.
func (p *PostgresProvider) Stations(ctx context.Context, f SiteFilter) ([]image360.StationDescriptor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	query := selectStations
	args := []any{f.Site}
	if len(f.Labels) > 0 {
		query += " AND label = ANY($2)"
		args = append(args, pq.Array(f.Labels))
	}
	query += " ORDER BY ordinal, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stations []image360.StationDescriptor
	index := make(map[string]int)
	for rows.Next() {
		var s image360.StationDescriptor
		if err := rows.Scan(&s.ID, &s.Label, &s.Site,
			&s.Position[0], &s.Position[1], &s.Position[2],
			&s.RotationAxis[0], &s.RotationAxis[1], &s.RotationAxis[2],
			&s.RotationAngle); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		index[s.ID] = len(stations)
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	if len(stations) == 0 {
		return stations, nil
	}

	if err := p.attachFaces(ctx, stations, index); err != nil {
		return nil, err
	}

	p.logger.Debug("stations queried",
		zap.String("site", f.Site),
		zap.Int("count", len(stations)))
	return stations, nil
}

func (p *PostgresProvider) attachFaces(ctx context.Context, stations []image360.StationDescriptor, index map[string]int) error {
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}

	rows, err := p.db.QueryContext(ctx, selectFaces, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query faces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var stationID string
		var face image360.FaceDescriptor
		if err := rows.Scan(&stationID, &face.Face, &face.Key); err != nil {
			return fmt.Errorf("scan face: %w", err)
		}
		i, ok := index[stationID]
		if !ok {
			continue
		}
		stations[i].Faces = append(stations[i].Faces, face)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate faces: %w", err)
	}
	return nil
}

// Rotation reads the current rotation of s from the database.
func (p *PostgresProvider) Rotation(ctx context.Context, s image360.StationDescriptor) (mgl64.Quat, error) {
	var axis mgl64.Vec3
	var angle float64
	err := p.db.QueryRowContext(ctx, selectRotation, s.ID).Scan(&axis[0], &axis[1], &axis[2], &angle)
	if errors.Is(err, sql.ErrNoRows) {
		return mgl64.Quat{}, fmt.Errorf("%w: %s", ErrUnknownStation, s.ID)
	}
	if err != nil {
		return mgl64.Quat{}, fmt.Errorf("query rotation: %w", err)
	}
	return geom.AxisAngle(axis, angle), nil
}

// Faces delegates to the blob face loader.
func (p *PostgresProvider) Faces(ctx context.Context, s image360.StationDescriptor) ([]*image360.Texture, error) {
	return p.faces.Faces(ctx, s)
}

// HealthCheck pings the database.
func (p *PostgresProvider) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
