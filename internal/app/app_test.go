package app

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/config"
	"github.com/dshills/hybridindex/internal/connections"
	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/internal/indexer"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

const source = `package greet

// Hello returns a greeting for name
func Hello(name string) string {
	return "hello " + name + ", welcome back to the service"
}

// Goodbye returns a farewell for name
func Goodbye(name string) string {
	return "goodbye " + name + ", see you again very soon"
}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Path = filepath.Join(cfg.DataDir, "data", "index.db")
	cfg.Cache.InMemory = true
	cfg.Embedder.Tiers = []embedder.TierConfig{{Kind: embedder.ProviderLocal}}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_ConnectsLocalStores(t *testing.T) {
	a := newTestApp(t)

	report := a.Connections.Health()
	assert.True(t, report.Healthy())
	assert.Equal(t, connections.StatusUp, report.Vector.Status)
	assert.FileExists(t, a.Config.Storage.Path)
}

func TestNew_UnreachableVectorStoreIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.VectorBackend = config.BackendWeaviate
	cfg.Storage.Weaviate.URL = "http://127.0.0.1:1"
	cfg.Connections.DialTimeout = 200 * time.Millisecond

	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer a.Close()

	report := a.Connections.Health()
	assert.Equal(t, connections.StatusDown, report.Vector.Status)
	assert.Equal(t, connections.StatusUp, report.Graph.Status)

	summary, err := a.Pipeline.IndexSource(context.Background(), indexer.SourceFile{Path: "greet.go", Content: []byte(source)})
	require.NoError(t, err)
	assert.Equal(t, summary.Chunks, summary.Failed, "every chunk fails while the vector store is down")

	_, err = a.Search(context.Background(), "hello", 5, storage.VectorFilter{})
	assert.ErrorIs(t, err, types.ErrStoreUnreachable)
}

func TestApp_IndexAndSearch(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	summary, err := a.Pipeline.IndexSource(ctx, indexer.SourceFile{Path: "greet.go", Content: []byte(source)})
	require.NoError(t, err)
	require.Positive(t, summary.Chunks)
	require.Equal(t, summary.Chunks, summary.Complete)

	hits, err := a.Search(ctx, "Goodbye farewell", 2, storage.VectorFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, "greet.go", hit.FilePath)
		assert.Equal(t, embedder.ProviderLocal, hit.Tier)
	}

	hits, err = a.Search(ctx, "Goodbye", 2, storage.VectorFilter{Tier: "openai"})
	require.NoError(t, err)
	assert.Empty(t, hits, "vectors from another tier are never compared")
}

func TestApp_Health(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	summary, err := a.Pipeline.IndexSource(ctx, indexer.SourceFile{Path: "greet.go", Content: []byte(source)})
	require.NoError(t, err)

	h, err := a.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Stores.Healthy())
	require.Len(t, h.Tiers, 1)
	assert.Equal(t, types.TierHealthy, h.Tiers[0].Health)
	assert.Equal(t, summary.Chunks, h.Records[types.StatusComplete])
	assert.Equal(t, summary.Chunks, h.Cache.Entries)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	NewLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
}

func TestSetupTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf, "test")
	require.NoError(t, err)

	a := newTestApp(t)
	_, err = a.Pipeline.IndexSource(context.Background(), indexer.SourceFile{Path: "greet.go", Content: []byte(source)})
	require.NoError(t, err)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "hybridindex")
}
