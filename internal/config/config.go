// Package config loads backfill configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/backfill/backfill"
	"github.com/pithecene-io/backfill/backfill/s3"
)

// Environment variables overriding file configuration.
const (
	EnvDataPath       = "BACKFILL_DATA_PATH"
	EnvArchiveBackend = "BACKFILL_ARCHIVE_BACKEND"
	EnvArchiveBucket  = "BACKFILL_ARCHIVE_BUCKET"
	EnvArchivePath    = "BACKFILL_ARCHIVE_PATH"
	EnvRelease        = "BACKFILL_RELEASE"
	EnvS3Region       = "BACKFILL_S3_REGION"
	EnvS3Endpoint     = "BACKFILL_S3_ENDPOINT"
	EnvS3Prefix       = "BACKFILL_S3_PREFIX"
	EnvS3PathStyle    = "BACKFILL_S3_PATH_STYLE"
	EnvLogLevel       = "BACKFILL_LOG_LEVEL"
	EnvLogFormat      = "BACKFILL_LOG_FORMAT"
)

// Config is the complete backfill configuration.
type Config struct {
	DataPath string        `yaml:"data_path"`
	Archive  ArchiveConfig `yaml:"archive"`
	Log      LogConfig     `yaml:"log"`
}

// ArchiveConfig selects and configures the archive backend.
type ArchiveConfig struct {
	Backend string   `yaml:"backend"` // "", "cloud", "filesystem"
	Bucket  string   `yaml:"bucket"`
	Path    string   `yaml:"path"`
	Release string   `yaml:"release"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 client used by the cloud backend.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// Load builds a Config from the optional YAML file at path, then the
// environment, then defaults, and validates the result.
//
// ${VAR} references in the file are expanded from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- path is from CLI args
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		env string
		dst *string
	}{
		{EnvDataPath, &cfg.DataPath},
		{EnvArchiveBackend, &cfg.Archive.Backend},
		{EnvArchiveBucket, &cfg.Archive.Bucket},
		{EnvArchivePath, &cfg.Archive.Path},
		{EnvRelease, &cfg.Archive.Release},
		{EnvS3Region, &cfg.Archive.S3.Region},
		{EnvS3Endpoint, &cfg.Archive.S3.Endpoint},
		{EnvS3Prefix, &cfg.Archive.S3.Prefix},
		{EnvLogLevel, &cfg.Log.Level},
		{EnvLogFormat, &cfg.Log.Format},
	}
	for _, s := range strs {
		if v, ok := lookup(s.env); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvS3PathStyle); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvS3PathStyle, err)
		}
		cfg.Archive.S3.UsePathStyle = b
	}
	return nil
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.DataPath == "" {
		cfg.DataPath = "data"
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(cfg.DataPath, "archive")
	}
	if cfg.Archive.Release == "" {
		cfg.Archive.Release = "latest"
	}
	if cfg.Archive.S3.Region == "" {
		cfg.Archive.S3.Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks the configuration values. Missing backend settings are
// not errors here; the resolver reports them when the backend is needed.
func (c *Config) Validate() error {
	var errs []string

	if _, err := backfill.ParseBackendKind(c.Archive.Backend); err != nil {
		errs = append(errs, fmt.Sprintf("archive.backend: unknown backend %q", c.Archive.Backend))
	}
	if strings.ContainsAny(c.Archive.Release, `/\`) {
		errs = append(errs, "archive.release must be a single path segment")
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: invalid level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: must be console or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Backfill converts the configuration into a backfill.Config. The cloud
// backend is built lazily from the S3 settings.
func (c *Config) Backfill(logger *zap.Logger) (backfill.Config, error) {
	kind, err := backfill.ParseBackendKind(c.Archive.Backend)
	if err != nil {
		return backfill.Config{}, err
	}

	rc := backfill.ResolverConfig{
		Kind:        kind,
		Bucket:      c.Archive.Bucket,
		ArchivePath: c.Archive.Path,
	}
	if kind == backfill.BackendCloud {
		rc.CloudFactory = s3.Factory(c.S3Client(), c.Archive.S3.Prefix, logger)
	}

	return backfill.Config{
		DataPath: c.DataPath,
		Release:  c.Archive.Release,
		Resolver: rc,
	}, nil
}

// S3Client returns the S3 client configuration.
func (c *Config) S3Client() s3.ClientConfig {
	return s3.ClientConfig{
		Region:          c.Archive.S3.Region,
		Endpoint:        c.Archive.S3.Endpoint,
		UsePathStyle:    c.Archive.S3.UsePathStyle,
		AccessKeyID:     c.Archive.S3.AccessKeyID,
		SecretAccessKey: c.Archive.S3.SecretAccessKey,
	}
}
