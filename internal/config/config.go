package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/viewercore/internal/logging"
)

type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Cache    CacheConfig          `yaml:"cache"`
	Provider ProviderConfig       `yaml:"provider"`
	Logging  logging.LoggerConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`

	// Per-client request limits; RequestsPerSecond 0 disables limiting.
	RequestsPerSecond int `yaml:"requests_per_second" default:"100"`
	RequestBurst      int `yaml:"request_burst" default:"200"`
}

type CacheConfig struct {
	Capacity    int           `yaml:"capacity" default:"10"`
	LoadTimeout time.Duration `yaml:"load_timeout" default:"1m"`
}

// ProviderConfig selects where station records, faces and scene metadata come from.
type ProviderConfig struct {
	Mode           string         `yaml:"mode" default:"local"` // local, s3 or postgres
	LocalPath      string         `yaml:"local_path"`
	S3             S3Config       `yaml:"s3"`
	Postgres       PostgresConfig `yaml:"postgres"`
	BytesPerSecond int            `yaml:"bytes_per_second"` // 0 disables throttling
	Container      string         `yaml:"container" default:"viewer"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region" default:"us-east-1"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout:   30 * time.Second,
			RequestsPerSecond: 100,
			RequestBurst:      200,
		},
		Cache: CacheConfig{
			Capacity:    10,
			LoadTimeout: time.Minute,
		},
		Provider: ProviderConfig{
			Mode:      "local",
			LocalPath: "/tmp/viewercore-data",
			Container: "viewer",
			S3:        S3Config{Region: "us-east-1"},
			Postgres:  PostgresConfig{Port: 5432, SSLMode: "disable"},
		},
		Logging: logging.LoggerConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
	}
}

// Validate checks the values a running server depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RequestsPerSecond < 0 || (c.Server.RequestsPerSecond > 0 && c.Server.RequestBurst <= 0) {
		errs = append(errs, fmt.Errorf("server rate limit invalid: %d/s burst %d",
			c.Server.RequestsPerSecond, c.Server.RequestBurst))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive: %d", c.Cache.Capacity))
	}
	switch c.Provider.Mode {
	case "local", "s3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("provider.mode invalid: %q", c.Provider.Mode))
	}
	if c.Provider.Mode == "s3" && (c.Provider.S3.AccessKey == "" || c.Provider.S3.SecretKey == "") {
		errs = append(errs, errors.New("provider.s3 access_key and secret_key required in s3 mode"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML file, applies environment overrides and validates.
// An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
