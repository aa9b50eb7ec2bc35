package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridindex/internal/chunker"
	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// DefaultMaxFileBytes skips files larger than 1 MiB
const DefaultMaxFileBytes = 1 << 20

// ErrIndexInProgress is returned when a directory run is already active
var ErrIndexInProgress = errors.New("indexing already in progress")

// Embedder produces one result per chunk, in order
type Embedder interface {
	Embed(ctx context.Context, chunks []*types.CodeChunk) ([]embedder.Result, error)
}

// SourceFile is one file handed to the pipeline
type SourceFile struct {
	Path     string
	Content  []byte
	Language string // detected from the extension when empty
}

// Options controls directory indexing
type Options struct {
	Workers       int   // Concurrent files (default: runtime.NumCPU())
	IncludeTests  bool  // Index test files (default: false)
	IncludeVendor bool  // Index vendor and node_modules (default: false)
	Force         bool  // Re-index files whose content hash is unchanged
	MaxFileBytes  int64 // Skip larger files (default: 1 MiB)
}

// Statistics contains statistics about a directory run
type Statistics struct {
	FilesIndexed    int                  `json:"files_indexed"`
	FilesSkipped    int                  `json:"files_skipped"`
	FilesFailed     int                  `json:"files_failed"`
	FilesSuperseded int                  `json:"files_superseded"`
	ChunksComplete  int                  `json:"chunks_complete"`
	ChunksPartial   int                  `json:"chunks_partial"`
	ChunksFailed    int                  `json:"chunks_failed"`
	Duration        time.Duration        `json:"duration"`
	ErrorMessages   []string             `json:"errors,omitempty"`
	Files           []*types.FileSummary `json:"files,omitempty"`
}

// Pipeline coordinates chunking, embedding and the dual-store write
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	hybrid   *HybridIndexer
	records  storage.RecordStore
	logger   *slog.Logger
	lock     IndexLock
}

// NewPipeline creates a Pipeline
func NewPipeline(ch *chunker.Chunker, emb Embedder, hybrid *HybridIndexer, records storage.RecordStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:  ch,
		embedder: emb,
		hybrid:   hybrid,
		records:  records,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
}

// Hybrid returns the underlying store writer
func (p *Pipeline) Hybrid() *HybridIndexer {
	return p.hybrid
}

// IndexSource indexes one file: acquire a version, chunk, embed, write.
// A superseded request returns its summary with Superseded set together
// with types.ErrSuperseded.
func (p *Pipeline) IndexSource(ctx context.Context, src SourceFile) (*types.FileSummary, error) {
	if src.Path == "" {
		return nil, types.ErrMissingPath
	}
	start := time.Now()

	versions := p.hybrid.Versions()
	ctx, tok := versions.Acquire(ctx, src.Path)
	defer versions.Release(tok)

	summary := &types.FileSummary{FilePath: src.Path, Version: tok.Version}
	superseded := func() (*types.FileSummary, error) {
		summary.Superseded = true
		summary.Duration = time.Since(start)
		return summary, types.ErrSuperseded
	}

	chunks, err := p.chunker.ChunkFile(ctx, src.Path, src.Content, src.Language)
	if errors.Is(err, types.ErrParseDegraded) {
		summary.Degraded = true
		metrics.ParseDegraded.Inc()
	} else if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", src.Path, err)
	}

	results, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		if !versions.IsCurrent(tok) {
			return superseded()
		}
		return nil, fmt.Errorf("embed %s: %w", src.Path, err)
	}

	records, err := p.hybrid.WriteFile(ctx, tok, chunks, results)
	if errors.Is(err, types.ErrSuperseded) {
		return superseded()
	}
	summary.Records = records
	summary.Tally()
	summary.Duration = time.Since(start)
	metrics.FileDuration.Observe(summary.Duration.Seconds())
	if err != nil {
		return summary, err
	}

	p.logger.Debug("indexed file",
		slog.String("file", src.Path),
		slog.Int("chunks", summary.Chunks),
		slog.Int("complete", summary.Complete),
		slog.Int("partial", summary.Partial),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// IndexPaths indexes every eligible file under roots. A root may also be a
// single file. Per-file failures are collected in the statistics and never
// abort the run.
func (p *Pipeline) IndexPaths(ctx context.Context, roots []string, opts *Options) (*Statistics, error) {
	if !p.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer p.lock.Release()

	if opts == nil {
		opts = &Options{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}

	startTime := time.Now()
	stats := &Statistics{}

	var files []string
	for _, root := range roots {
		found, err := p.discoverFiles(root, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to discover files in %s: %w", root, err)
		}
		files = append(files, found...)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, path := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			summary, err := p.indexPath(gctx, path, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, types.ErrSuperseded):
				stats.FilesSuperseded++
			case err != nil:
				stats.FilesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			case summary.Skipped:
				stats.FilesSkipped++
			default:
				stats.FilesIndexed++
			}
			if summary != nil {
				stats.ChunksComplete += summary.Complete
				stats.ChunksPartial += summary.Partial
				stats.ChunksFailed += summary.Failed
				stats.Files = append(stats.Files, summary)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	sort.Slice(stats.Files, func(i, j int) bool {
		return stats.Files[i].FilePath < stats.Files[j].FilePath
	})
	stats.Duration = time.Since(startTime)

	p.logger.Info("indexing finished",
		slog.Int("indexed", stats.FilesIndexed),
		slog.Int("skipped", stats.FilesSkipped),
		slog.Int("failed", stats.FilesFailed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// indexPath reads a file and indexes it unless its content is unchanged
func (p *Pipeline) indexPath(ctx context.Context, path string, opts *Options) (*types.FileSummary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hash := types.HashText(string(content))

	if !opts.Force {
		prev, err := p.records.FileHash(ctx, path)
		switch {
		case err == nil && prev == hash:
			return &types.FileSummary{FilePath: path, Skipped: true}, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to read file hash: %w", err)
		}
	}

	summary, err := p.IndexSource(ctx, SourceFile{Path: path, Content: content})
	if err != nil {
		return summary, err
	}

	// Files with failed chunks stay eligible for the next run
	if summary.Failed == 0 {
		if err := p.records.SetFileHash(ctx, path, hash); err != nil {
			return summary, fmt.Errorf("failed to store file hash: %w", err)
		}
	}
	return summary, nil
}

// discoverFiles finds all indexable files under root
func (p *Pipeline) discoverFiles(root string, opts *Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			// Skip hidden directories
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			// Skip dependency trees unless explicitly included
			if !opts.IncludeVendor && (name == "vendor" || name == "node_modules") {
				return filepath.SkipDir
			}
			if !opts.IncludeTests && isTestDir(name) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if p.chunker.DetectLanguage(path) == chunker.LanguageText {
			return nil
		}
		if !opts.IncludeTests && isTestFile(d.Name()) {
			return nil
		}
		if fi, err := d.Info(); err != nil || fi.Size() > opts.MaxFileBytes || fi.Size() == 0 {
			return nil
		}
		if isBinary(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

func isTestDir(name string) bool {
	switch name {
	case "test", "tests", "__tests__", "testdata":
		return true
	}
	return false
}

func isTestFile(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(base, "_test") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(base, ".test") ||
		strings.HasSuffix(base, ".spec")
}

// isBinary reports whether the start of the file contains a NUL byte
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 8000)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
