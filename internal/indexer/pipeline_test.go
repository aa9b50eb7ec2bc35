package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/chunker"
	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/pkg/types"
)

const goSource = `package config

import "strings"

// Settings holds the loaded configuration values
type Settings struct {
	Values   map[string]string
	Source   string
	Readonly bool
}

// Get returns the value stored for key
func (s *Settings) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.Values[strings.ToLower(key)]
}

// Parse splits text into key value pairs
func Parse(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, _ := strings.Cut(line, "=")
		out[key] = value
	}
	return out
}
`

// stubEmbedder returns a unit vector per chunk, failing the chunks whose
// content matches failOn.
type stubEmbedder struct {
	calls  atomic.Int32
	failOn string
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, chunks []*types.CodeChunk) ([]embedder.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]embedder.Result, len(chunks))
	for i, c := range chunks {
		if s.failOn != "" && c.Metadata.Name == s.failOn {
			out[i] = embedder.Result{Err: types.ErrAllTiersExhausted}
			continue
		}
		raw := make([]float32, types.CanonicalDimension)
		raw[i%len(raw)] = 1
		out[i] = embedder.Result{Vector: types.Normalize(raw, "stub")}
	}
	return out, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fixture, *stubEmbedder) {
	t.Helper()
	f := newFixture(t)
	emb := &stubEmbedder{}
	p := NewPipeline(chunker.New(chunker.DefaultConfig(), nil), emb, f.hybrid, f.records, nil)
	return p, f, emb
}

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	err := os.MkdirAll(filepath.Dir(filePath), 0755)
	require.NoError(t, err)

	err = os.WriteFile(filePath, []byte(content), 0644)
	require.NoError(t, err)

	return filePath
}

func TestIndexSource(t *testing.T) {
	p, f, _ := newTestPipeline(t)

	summary, err := p.IndexSource(context.Background(), SourceFile{Path: "config.go", Content: []byte(goSource)})
	require.NoError(t, err)
	assert.Equal(t, "config.go", summary.FilePath)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 3, summary.Complete)
	assert.False(t, summary.Degraded)
	assert.NotZero(t, summary.Version)
	assert.Equal(t, 3, f.vectorCount(t, "config.go"))
	assert.Equal(t, summary.Version, summary.Records[0].Version)
}

func TestIndexSource_Degraded(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	src := "package broken\n\nfunc Missing( {\n\treturn strings.Repeat(\"x\", 10) + strings.Repeat(\"y\", 10)\n}\n"
	summary, err := p.IndexSource(context.Background(), SourceFile{Path: "broken.go", Content: []byte(src)})
	require.NoError(t, err)
	assert.True(t, summary.Degraded)
	assert.Positive(t, summary.Chunks)
}

func TestIndexSource_PartialEmbeddingFailure(t *testing.T) {
	p, _, emb := newTestPipeline(t)
	emb.failOn = "Get"

	summary, err := p.IndexSource(context.Background(), SourceFile{Path: "config.go", Content: []byte(goSource)})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Complete)
	assert.Equal(t, 1, summary.Failed)
}

func TestIndexSource_Errors(t *testing.T) {
	p, _, emb := newTestPipeline(t)

	_, err := p.IndexSource(context.Background(), SourceFile{Content: []byte(goSource)})
	assert.ErrorIs(t, err, types.ErrMissingPath)

	emb.err = context.DeadlineExceeded
	_, err = p.IndexSource(context.Background(), SourceFile{Path: "config.go", Content: []byte(goSource)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIndexSource_EmptyFileClearsOldData(t *testing.T) {
	p, f, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.IndexSource(ctx, SourceFile{Path: "config.go", Content: []byte(goSource)})
	require.NoError(t, err)

	summary, err := p.IndexSource(ctx, SourceFile{Path: "config.go"})
	require.NoError(t, err)
	assert.Zero(t, summary.Chunks)
	assert.Zero(t, f.vectorCount(t, "config.go"))
}

func TestDiscoverFiles(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()

	createTestFile(t, dir, "main.go", goSource)
	createTestFile(t, dir, "pkg/util.py", "def util():\n    return 1\n")
	createTestFile(t, dir, "pkg/util_test.go", goSource)
	createTestFile(t, dir, "tests/test_util.py", "def test():\n    pass\n")
	createTestFile(t, dir, "vendor/lib/lib.go", goSource)
	createTestFile(t, dir, "web/node_modules/x/index.js", "module.exports = 1\n")
	createTestFile(t, dir, ".git/hooks/pre-commit.sh", "echo hi\n")
	createTestFile(t, dir, "README", "plain text\n")
	createTestFile(t, dir, "empty.go", "")
	createTestFile(t, dir, "blob.go", "package x\x00\x01")

	rel := func(files []string) []string {
		out := make([]string, len(files))
		for i, f := range files {
			r, err := filepath.Rel(dir, f)
			require.NoError(t, err)
			out[i] = filepath.ToSlash(r)
		}
		sort.Strings(out)
		return out
	}

	files, err := p.discoverFiles(dir, &Options{MaxFileBytes: DefaultMaxFileBytes})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "pkg/util.py"}, rel(files))

	files, err = p.discoverFiles(dir, &Options{MaxFileBytes: DefaultMaxFileBytes, IncludeTests: true, IncludeVendor: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"main.go",
		"pkg/util.py",
		"pkg/util_test.go",
		"tests/test_util.py",
		"vendor/lib/lib.go",
		"web/node_modules/x/index.js",
	}, rel(files))

	single := filepath.Join(dir, "main.go")
	files, err = p.discoverFiles(single, &Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)

	_, err = p.discoverFiles(filepath.Join(dir, "missing"), &Options{})
	assert.Error(t, err)
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"parser_test.go", true},
		{"test_parser.py", true},
		{"parser.test.ts", true},
		{"parser.spec.js", true},
		{"parser.go", false},
		{"testing.py", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTestFile(tt.name))
		})
	}
}

func TestIndexPaths_Incremental(t *testing.T) {
	p, f, emb := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	mainPath := createTestFile(t, dir, "main.go", goSource)
	createTestFile(t, dir, "pkg/extra.go", goSource)

	stats, err := p.IndexPaths(ctx, []string{dir}, &Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesFailed)
	assert.Equal(t, 6, stats.ChunksComplete)
	require.Len(t, stats.Files, 2)
	assert.Less(t, stats.Files[0].FilePath, stats.Files[1].FilePath, "summaries sorted by path")

	hash, err := f.records.FileHash(ctx, mainPath)
	require.NoError(t, err)
	assert.Equal(t, types.HashText(goSource), hash)

	// unchanged content is skipped
	calls := emb.calls.Load()
	stats, err = p.IndexPaths(ctx, []string{dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, calls, emb.calls.Load())

	// a modified file is re-indexed
	createTestFile(t, dir, "main.go", goSource+"\n// trailing note\n")
	stats, err = p.IndexPaths(ctx, []string{dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)

	stats, err = p.IndexPaths(ctx, []string{dir}, &Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
}

func TestIndexPaths_FailedChunksKeepFileEligible(t *testing.T) {
	p, f, emb := newTestPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := createTestFile(t, dir, "main.go", goSource)

	emb.failOn = "Parse"
	stats, err := p.IndexPaths(ctx, []string{dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.ChunksFailed)

	_, err = f.records.FileHash(ctx, path)
	assert.Error(t, err, "no hash recorded while chunks failed")

	emb.failOn = ""
	stats, err = p.IndexPaths(ctx, []string{dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 3, stats.ChunksComplete)
}

func TestIndexPaths_CollectsFailures(t *testing.T) {
	p, _, emb := newTestPipeline(t)
	dir := t.TempDir()
	createTestFile(t, dir, "main.go", goSource)
	emb.err = assert.AnError

	stats, err := p.IndexPaths(context.Background(), []string{dir}, nil)
	require.NoError(t, err, "per-file failures never abort the run")
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "main.go")
}

func TestIndexPaths_InProgress(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	require.True(t, p.lock.TryAcquire())

	_, err := p.IndexPaths(context.Background(), []string{t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrIndexInProgress)

	p.lock.Release()
	stats, err := p.IndexPaths(context.Background(), []string{t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
}

func TestIndexPaths_Cancelled(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	createTestFile(t, dir, "main.go", goSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.IndexPaths(ctx, []string{dir}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
