// Package config loads the hybridindex configuration from a YAML file, a
// .env file and HYBRIDINDEX_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hybridindex/internal/cache"
	"github.com/dshills/hybridindex/internal/chunker"
	"github.com/dshills/hybridindex/internal/connections"
	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/internal/indexer"
	"github.com/dshills/hybridindex/internal/weaviate"
)

// EnvPrefix prefixes every override variable
const EnvPrefix = "HYBRIDINDEX_"

// Vector store backends
const (
	BackendSQLite   = "sqlite"
	BackendWeaviate = "weaviate"
)

// Config holds all configuration for the indexing service
type Config struct {
	// DataDir holds the SQLite database and the cache unless their paths
	// are set explicitly.
	DataDir string `yaml:"data_dir"`

	Log         LogConfig          `yaml:"log"`
	Storage     StorageConfig      `yaml:"storage"`
	Cache       cache.Config       `yaml:"cache"`
	Embedder    embedder.Config    `yaml:"embedder"`
	Chunker     chunker.Config     `yaml:"chunker"`
	Connections connections.Config `yaml:"connections"`
	Indexer     indexer.Config     `yaml:"indexer"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Tracing     TracingConfig      `yaml:"tracing"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StorageConfig selects the store backends
type StorageConfig struct {
	// Path is the SQLite database shared by the graph store, the record
	// catalog and the local vector store.
	Path string `yaml:"path"`

	// VectorBackend is sqlite or weaviate
	VectorBackend string          `yaml:"vector_backend"`
	Weaviate      weaviate.Config `yaml:"weaviate"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address of /metrics, empty to disable
	Addr string `yaml:"addr"`
}

// TracingConfig controls span export
type TracingConfig struct {
	// Stdout writes finished spans to stderr as JSON
	Stdout bool `yaml:"stdout"`
}

// Default returns the default configuration. Embedding tiers are detected
// from provider keys in the environment.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			VectorBackend: BackendSQLite,
			Weaviate: weaviate.Config{
				ClassName: weaviate.DefaultClassName,
				BatchSize: weaviate.DefaultBatchSize,
				Timeout:   weaviate.DefaultTimeout,
			},
		},
		Cache:       cache.DefaultConfig(""),
		Embedder:    embedder.DefaultConfig(),
		Chunker:     chunker.DefaultConfig(),
		Connections: connections.DefaultConfig(),
		Indexer: indexer.Config{
			WriteConcurrency: indexer.DefaultWriteConcurrency,
			StoreTimeout:     indexer.DefaultStoreTimeout,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hybridindex"
	}
	return filepath.Join(home, ".hybridindex")
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	return cfg, cfg.Validate()
}

// resolvePaths places unset store paths under DataDir
func (c *Config) resolvePaths() {
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "index.db")
	}
	if c.Cache.Path == "" && !c.Cache.InMemory {
		c.Cache.Path = filepath.Join(c.DataDir, "cache")
	}
}

// Validate checks the configuration for values no component can accept
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Storage.VectorBackend {
	case BackendSQLite:
	case BackendWeaviate:
		if c.Storage.Weaviate.URL == "" {
			errs = append(errs, errors.New("storage.weaviate.url is required for the weaviate backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.vector_backend must be sqlite or weaviate, got %q", c.Storage.VectorBackend))
	}

	if len(c.Embedder.Tiers) == 0 {
		errs = append(errs, embedder.ErrNoProviderEnabled)
	}
	names := map[string]bool{}
	for i, tier := range c.Embedder.Tiers {
		switch strings.ToLower(tier.Kind) {
		case embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderOllama, embedder.ProviderLocal:
		default:
			errs = append(errs, fmt.Errorf("embedder.tiers[%d]: %w: %q", i, embedder.ErrUnsupportedKind, tier.Kind))
		}
		name := tier.Name
		if name == "" {
			name = strings.ToLower(tier.Kind)
		}
		if names[name] {
			errs = append(errs, fmt.Errorf("embedder.tiers[%d]: duplicate tier name %q", i, name))
		}
		names[name] = true
	}
	if c.Embedder.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("embedder.failure_threshold must be >= 0, got %d", c.Embedder.FailureThreshold))
	}

	if c.Cache.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_bytes must be >= 0, got %d", c.Cache.MaxBytes))
	}
	if c.Cache.GCDiscardRatio < 0 || c.Cache.GCDiscardRatio >= 1 {
		errs = append(errs, fmt.Errorf("cache.gc_discard_ratio must be in [0, 1), got %g", c.Cache.GCDiscardRatio))
	}
	if c.Connections.MaxRetries < 0 || c.Connections.MaxRetries > 20 {
		errs = append(errs, fmt.Errorf("connections.max_retries must be 0-20, got %d", c.Connections.MaxRetries))
	}

	return errors.Join(errs...)
}

// applyEnv overrides fields from HYBRIDINDEX_* variables
func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("DB_PATH", &c.Storage.Path)
	str("VECTOR_BACKEND", &c.Storage.VectorBackend)
	str("WEAVIATE_URL", &c.Storage.Weaviate.URL)
	str("WEAVIATE_API_KEY", &c.Storage.Weaviate.APIKey)
	str("WEAVIATE_CLASS", &c.Storage.Weaviate.ClassName)
	str("CACHE_PATH", &c.Cache.Path)
	dur("CACHE_TTL", &c.Cache.TTL)
	str("METRICS_ADDR", &c.Metrics.Addr)
	boolean("TRACE_STDOUT", &c.Tracing.Stdout)
	dur("HEALTH_INTERVAL", &c.Connections.HealthInterval)
	integer("MAX_RETRIES", &c.Connections.MaxRetries)
	integer("WRITE_CONCURRENCY", &c.Indexer.WriteConcurrency)
	integer("FAILURE_THRESHOLD", &c.Embedder.FailureThreshold)

	if v := os.Getenv(EnvPrefix + "CACHE_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCACHE_MAX_BYTES: %w", EnvPrefix, err))
		} else {
			c.Cache.MaxBytes = n
		}
	}

	return errors.Join(errs...)
}
