package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/embedder"
)

// clearProviderEnv hides provider keys of the developer's shell
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{embedder.EnvJinaAPIKey, embedder.EnvOpenAIAPIKey, embedder.EnvOllamaHost} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hybridindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv(EnvPrefix+"DATA_DIR", "/tmp/hi")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/hi", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/hi", "index.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join("/tmp/hi", "cache"), cfg.Cache.Path)
	assert.Equal(t, BackendSQLite, cfg.Storage.VectorBackend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60*time.Second, cfg.Connections.HealthInterval)

	require.Len(t, cfg.Embedder.Tiers, 1, "only the local tier without provider keys")
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedder.Tiers[0].Kind)
}

func TestLoad_DetectsProviderTiers(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv(embedder.EnvJinaAPIKey, "jina-key")
	t.Setenv(embedder.EnvOllamaHost, "http://ollama:11434")

	cfg, err := Load("")
	require.NoError(t, err)

	var kinds []string
	for _, tier := range cfg.Embedder.Tiers {
		kinds = append(kinds, tier.Kind)
	}
	assert.Equal(t, []string{embedder.ProviderJina, embedder.ProviderOllama, embedder.ProviderLocal}, kinds)
}

func TestLoad_File(t *testing.T) {
	clearProviderEnv(t)
	path := writeConfig(t, `
data_dir: /var/lib/hybridindex
log:
  level: debug
  format: json
storage:
  vector_backend: weaviate
  weaviate:
    url: http://weaviate:8080
cache:
  ttl: 48h
  max_bytes: 1048576
embedder:
  failure_threshold: 3
  tiers:
    - kind: openai
      model: text-embedding-3-small
      rate_limit: 5
    - kind: local
connections:
  health_interval: 15s
  max_retries: 5
indexer:
  write_concurrency: 4
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, BackendWeaviate, cfg.Storage.VectorBackend)
	assert.Equal(t, "http://weaviate:8080", cfg.Storage.Weaviate.URL)
	assert.Equal(t, "CodeChunk", cfg.Storage.Weaviate.ClassName, "defaults survive partial sections")
	assert.Equal(t, 48*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, int64(1<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, 3, cfg.Embedder.FailureThreshold)
	require.Len(t, cfg.Embedder.Tiers, 2)
	assert.Equal(t, 5.0, cfg.Embedder.Tiers[0].RateLimit)
	assert.Equal(t, 15*time.Second, cfg.Connections.HealthInterval)
	assert.Equal(t, 5, cfg.Connections.MaxRetries)
	assert.Equal(t, 4, cfg.Indexer.WriteConcurrency)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "/var/lib/hybridindex/index.db", cfg.Storage.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearProviderEnv(t)
	path := writeConfig(t, "log:\n  level: debug\nconnections:\n  health_interval: 15s\n")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "warn")
	t.Setenv(EnvPrefix+"HEALTH_INTERVAL", "2m")
	t.Setenv(EnvPrefix+"CACHE_MAX_BYTES", "2048")
	t.Setenv(EnvPrefix+"TRACE_STDOUT", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Connections.HealthInterval)
	assert.Equal(t, int64(2048), cfg.Cache.MaxBytes)
	assert.True(t, cfg.Tracing.Stdout)
}

func TestLoad_Errors(t *testing.T) {
	clearProviderEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log: [unclosed"))
	assert.Error(t, err)

	t.Setenv(EnvPrefix+"HEALTH_INTERVAL", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "HYBRIDINDEX_HEALTH_INTERVAL")
}

func TestValidate(t *testing.T) {
	clearProviderEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad backend", func(c *Config) { c.Storage.VectorBackend = "qdrant" }, "vector_backend"},
		{"weaviate without url", func(c *Config) { c.Storage.VectorBackend = BackendWeaviate }, "weaviate.url"},
		{"no tiers", func(c *Config) { c.Embedder.Tiers = nil }, "no embedding provider"},
		{"unknown tier", func(c *Config) { c.Embedder.Tiers = []embedder.TierConfig{{Kind: "cohere"}} }, "unsupported provider kind"},
		{"duplicate tier", func(c *Config) {
			c.Embedder.Tiers = []embedder.TierConfig{{Kind: "local"}, {Kind: "local"}}
		}, "duplicate tier name"},
		{"negative cache", func(c *Config) { c.Cache.MaxBytes = -1 }, "cache.max_bytes"},
		{"discard ratio", func(c *Config) { c.Cache.GCDiscardRatio = 1 }, "gc_discard_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("HYBRIDINDEX_TEST_DOTENV=loaded\n"), 0644))
	t.Setenv("HYBRIDINDEX_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("HYBRIDINDEX_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "loaded", os.Getenv("HYBRIDINDEX_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")), "missing files are ignored")
}
