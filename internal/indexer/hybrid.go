package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// Defaults
const (
	DefaultWriteConcurrency = 8
	DefaultStoreTimeout     = 30 * time.Second
)

var errVectorLength = errors.New("vectors and chunks differ in length")

// Stores hands out store clients. It is satisfied by *connections.Manager.
type Stores interface {
	VectorStore() (storage.VectorStore, error)
	GraphStore() (storage.GraphStore, error)
}

// Config tunes the dual-store writer
type Config struct {
	WriteConcurrency int           `yaml:"write_concurrency"`
	StoreTimeout     time.Duration `yaml:"store_timeout"`
}

func (c Config) withDefaults() Config {
	if c.WriteConcurrency <= 0 {
		c.WriteConcurrency = DefaultWriteConcurrency
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	return c
}

// ReconcileReport summarizes a reconciliation pass
type ReconcileReport struct {
	Pending    int      `json:"pending"`
	Reconciled int      `json:"reconciled"`
	Cleaned    int      `json:"cleaned"`
	Failed     int      `json:"failed"`
	Files      []string `json:"files,omitempty"`
}

// HybridIndexer writes chunks into the vector and graph stores, which share
// no transaction, and records the per-chunk outcome in the catalog.
type HybridIndexer struct {
	cfg      Config
	stores   Stores
	records  storage.RecordStore
	versions *Versions
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewHybrid creates a HybridIndexer
func NewHybrid(cfg Config, stores Stores, records storage.RecordStore, logger *slog.Logger) *HybridIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridIndexer{
		cfg:      cfg.withDefaults(),
		stores:   stores,
		records:  records,
		versions: NewVersions(),
		logger:   logger.With(slog.String("component", "indexer")),
		tracer:   otel.Tracer("indexer"),
		now:      time.Now,
	}
}

// Versions exposes the version registry so callers can acquire a token
// before chunking and embedding.
func (h *HybridIndexer) Versions() *Versions {
	return h.versions
}

// IndexFile replaces everything stored for filePath with chunks. vectors
// holds the embedding result of each chunk, in the same order. Records are
// returned in chunk order. A newer request for the same path makes this one
// return types.ErrSuperseded.
func (h *HybridIndexer) IndexFile(ctx context.Context, filePath string, chunks []*types.CodeChunk, vectors []embedder.Result) ([]types.IndexRecord, error) {
	ctx, tok := h.versions.Acquire(ctx, filePath)
	defer h.versions.Release(tok)
	return h.WriteFile(ctx, tok, chunks, vectors)
}

// WriteFile is IndexFile for a caller that already holds tok
func (h *HybridIndexer) WriteFile(ctx context.Context, tok Token, chunks []*types.CodeChunk, vectors []embedder.Result) ([]types.IndexRecord, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", errVectorLength, len(chunks), len(vectors))
	}

	ctx, span := h.tracer.Start(ctx, "indexer.WriteFile", trace.WithAttributes(
		attribute.String("file_path", tok.Path),
		attribute.Int("chunks", len(chunks))))
	defer span.End()

	unlock, err := h.lockCurrent(ctx, tok)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer unlock()

	records := make([]types.IndexRecord, len(chunks))
	for i, c := range chunks {
		records[i] = types.IndexRecord{
			ChunkID:  c.ID(),
			FilePath: tok.Path,
			Position: c.Position,
			Version:  tok.Version,
			PointID:  PointID(tok.Path, c.Position),
			NodeID:   c.ID(),
			Status:   types.StatusFailed,
		}
	}

	vs, vErr := h.stores.VectorStore()
	gs, gErr := h.stores.GraphStore()

	if vErr != nil {
		// No delete is possible, so nothing new may be written either
		failAll(records, vErr)
		return h.finish(ctx, tok, records)
	}

	removed, err := h.deleteFile(ctx, tok.Path, vs, gs, gErr)
	if removed.vector != nil {
		failAll(records, removed.vector)
		return h.finish(ctx, tok, records)
	}
	if err != nil {
		return nil, err
	}
	graphDown := gErr
	if removed.graph != nil {
		graphDown = removed.graph
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.WriteConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			return h.writeChunk(gctx, tok, chunk, vectors[i], &records[i], vs, gs, graphDown)
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, types.ErrSuperseded) || !h.versions.IsCurrent(tok) {
			metrics.Superseded.Inc()
			h.logger.Info("indexing superseded", slog.String("file", tok.Path), slog.Uint64("version", tok.Version))
			return nil, types.ErrSuperseded
		}
		span.RecordError(err)
		return nil, err
	}

	return h.finish(ctx, tok, records)
}

// lockCurrent takes the path lock and checks that tok was not overtaken
// while waiting for it.
func (h *HybridIndexer) lockCurrent(ctx context.Context, tok Token) (func(), error) {
	unlock, err := h.versions.Lock(ctx, tok.Path)
	if err != nil {
		if !h.versions.IsCurrent(tok) {
			metrics.Superseded.Inc()
			return nil, types.ErrSuperseded
		}
		return nil, err
	}
	if !h.versions.IsCurrent(tok) {
		unlock()
		metrics.Superseded.Inc()
		return nil, types.ErrSuperseded
	}
	return unlock, nil
}

func (h *HybridIndexer) writeChunk(ctx context.Context, tok Token, chunk *types.CodeChunk, res embedder.Result,
	rec *types.IndexRecord, vs storage.VectorStore, gs storage.GraphStore, graphDown error) error {

	if res.Err != nil || res.Vector == nil {
		err := res.Err
		if err == nil {
			err = types.ErrAllTiersExhausted
		}
		rec.Status = types.StatusFailed
		rec.Error = fmt.Sprintf("embedding: %v", err)
		return nil
	}

	if !h.versions.IsCurrent(tok) {
		return types.ErrSuperseded
	}
	uctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err := vs.Upsert(uctx, []storage.VectorPoint{vectorPoint(chunk, res.Vector, h.now())})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rec.Status = types.StatusFailed
		rec.Error = fmt.Sprintf("vector upsert: %v", err)
		return nil
	}

	batch := graphBatch(chunk)
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode graph batch for %s: %w", chunk.ID(), err)
	}

	if graphDown != nil {
		rec.Status = types.StatusPartialVectorOnly
		rec.Error = fmt.Sprintf("graph write skipped: %v", graphDown)
		rec.GraphPayload = payload
		return nil
	}

	if !h.versions.IsCurrent(tok) {
		return types.ErrSuperseded
	}
	mctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err = gs.MergeGraph(mctx, batch)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("graph write failed, chunk kept for reconciliation",
			slog.String("chunk", chunk.ID()),
			slog.String("error", err.Error()))
		rec.Status = types.StatusPartialVectorOnly
		rec.Error = fmt.Sprintf("graph merge: %v", err)
		rec.GraphPayload = payload
		return nil
	}

	rec.Status = types.StatusComplete
	return nil
}

// finish persists the records of a completed write
func (h *HybridIndexer) finish(ctx context.Context, tok Token, records []types.IndexRecord) ([]types.IndexRecord, error) {
	if !h.versions.IsCurrent(tok) {
		metrics.Superseded.Inc()
		return nil, types.ErrSuperseded
	}

	now := h.now()
	for i := range records {
		records[i].UpdatedAt = now
		metrics.ChunksIndexed.WithLabelValues(string(records[i].Status)).Inc()
	}
	if len(records) > 0 {
		if err := h.records.SaveRecords(ctx, records); err != nil {
			return records, fmt.Errorf("save index records for %s: %w", tok.Path, err)
		}
	}
	return records, nil
}

func failAll(records []types.IndexRecord, err error) {
	for i := range records {
		records[i].Status = types.StatusFailed
		records[i].Error = err.Error()
	}
}

// deleteErrors carries per-store delete failures
type deleteErrors struct {
	vector error
	graph  error
}

// deleteFile removes filePath from both stores and the catalog. Store
// failures are reported through deleteErrors; the returned error is a
// catalog failure.
func (h *HybridIndexer) deleteFile(ctx context.Context, filePath string, vs storage.VectorStore, gs storage.GraphStore, gErr error) (deleteErrors, error) {
	var out deleteErrors

	dctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	points, err := vs.DeleteByFile(dctx, filePath)
	cancel()
	if err != nil {
		out.vector = fmt.Errorf("%w: vector delete: %w", types.ErrStoreUnreachable, err)
		return out, nil
	}

	nodes := 0
	if gErr != nil {
		out.graph = gErr
	} else {
		dctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
		nodes, err = gs.DeleteByFile(dctx, filePath)
		cancel()
		if err != nil {
			out.graph = fmt.Errorf("%w: graph delete: %w", types.ErrStoreUnreachable, err)
			h.logger.Warn("graph delete failed, graph writes skipped",
				slog.String("file", filePath),
				slog.String("error", err.Error()))
		}
	}

	// Until the graph delete succeeds the graph may hold an older version
	// of the file, so Reconcile must delete before it replays anything.
	if out.graph != nil {
		if err := h.records.MarkGraphCleanup(ctx, filePath, out.graph.Error()); err != nil {
			return out, err
		}
	} else if err := h.records.ClearGraphCleanup(ctx, filePath); err != nil {
		return out, err
	}

	if _, err := h.records.DeleteRecordsByFile(ctx, filePath); err != nil {
		return out, fmt.Errorf("delete index records for %s: %w", filePath, err)
	}

	h.logger.Debug("removed file from stores",
		slog.String("file", filePath),
		slog.Int("points", points),
		slog.Int("nodes", nodes))
	return out, nil
}

// RemoveFile deletes everything stored for filePath. It supersedes any
// in-flight indexing request for the path.
func (h *HybridIndexer) RemoveFile(ctx context.Context, filePath string) error {
	ctx, tok := h.versions.Acquire(ctx, filePath)
	defer h.versions.Release(tok)

	ctx, span := h.tracer.Start(ctx, "indexer.RemoveFile", trace.WithAttributes(attribute.String("file_path", filePath)))
	defer span.End()

	unlock, err := h.lockCurrent(ctx, tok)
	if err != nil {
		return err
	}
	defer unlock()

	vs, err := h.stores.VectorStore()
	if err != nil {
		return err
	}
	gs, gErr := h.stores.GraphStore()

	removed, err := h.deleteFile(ctx, filePath, vs, gs, gErr)
	if err != nil {
		return err
	}
	if removed.vector != nil {
		span.RecordError(removed.vector)
		return removed.vector
	}
	if err := h.records.DeleteFileHash(ctx, filePath); err != nil {
		return fmt.Errorf("delete file hash for %s: %w", filePath, err)
	}
	if removed.graph != nil {
		// the cleanup marker hands the graph delete to Reconcile
		span.RecordError(removed.graph)
		return removed.graph
	}
	return nil
}

// Reconcile finishes the graph side of earlier writes. Files whose graph
// delete is still owed are deleted from the graph first; then the graph
// writes of PARTIAL_VECTOR_ONLY records are replayed. Each file is handled
// under its path lock; records overtaken by a newer index of the file are
// left to that index.
func (h *HybridIndexer) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := h.tracer.Start(ctx, "indexer.Reconcile")
	defer span.End()

	var report ReconcileReport
	pending, err := h.records.PendingRecords(ctx, types.StatusPartialVectorOnly)
	if err != nil {
		return report, fmt.Errorf("list pending records: %w", err)
	}
	cleanups, err := h.records.GraphCleanups(ctx)
	if err != nil {
		return report, fmt.Errorf("list graph cleanups: %w", err)
	}
	report.Pending = len(pending)
	if len(pending) == 0 && len(cleanups) == 0 {
		return report, nil
	}

	gs, err := h.stores.GraphStore()
	if err != nil {
		return report, err
	}

	var files []string
	seen := map[string]bool{}
	for _, path := range cleanups {
		seen[path] = true
		files = append(files, path)
	}
	for _, r := range pending {
		if !seen[r.FilePath] {
			seen[r.FilePath] = true
			files = append(files, r.FilePath)
		}
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := h.reconcileFile(ctx, gs, path)
		report.Reconciled += res.ok
		report.Failed += res.failed
		if res.cleaned {
			report.Cleaned++
		}
		if res.ok > 0 || res.cleaned {
			report.Files = append(report.Files, path)
		}
		if err != nil {
			return report, err
		}
	}

	h.logger.Info("reconciliation finished",
		slog.Int("pending", report.Pending),
		slog.Int("reconciled", report.Reconciled),
		slog.Int("cleaned", report.Cleaned),
		slog.Int("failed", report.Failed))
	return report, nil
}

type fileReconcile struct {
	ok, failed int
	cleaned    bool
}

func (h *HybridIndexer) reconcileFile(ctx context.Context, gs storage.GraphStore, path string) (fileReconcile, error) {
	var res fileReconcile
	unlock, err := h.versions.Lock(ctx, path)
	if err != nil {
		return res, err
	}
	defer unlock()

	// re-read under the lock; an index that ran meanwhile replaced them
	records, err := h.records.RecordsByFile(ctx, path)
	if err != nil {
		return res, fmt.Errorf("load records for %s: %w", path, err)
	}
	var partial []types.IndexRecord
	for _, r := range records {
		if r.Status == types.StatusPartialVectorOnly {
			partial = append(partial, r)
		}
	}

	owed, err := h.records.GraphCleanupPending(ctx, path)
	if err != nil {
		return res, err
	}
	if owed {
		dctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
		nodes, err := gs.DeleteByFile(dctx, path)
		cancel()
		if err != nil {
			// no replay while old graph data of the path may remain
			h.logger.Warn("graph cleanup failed, replay postponed",
				slog.String("file", path),
				slog.String("error", err.Error()))
			metrics.Reconciled.WithLabelValues("failure").Add(float64(len(partial)))
			res.failed = len(partial)
			return res, nil
		}
		if err := h.records.ClearGraphCleanup(ctx, path); err != nil {
			return res, err
		}
		res.cleaned = true
		h.logger.Debug("stale graph data removed", slog.String("file", path), slog.Int("nodes", nodes))
	}

	var updated []types.IndexRecord
	for _, r := range partial {
		var batch storage.GraphBatch
		if err := json.Unmarshal(r.GraphPayload, &batch); err != nil {
			h.logger.Warn("unreadable graph payload", slog.String("chunk", r.ChunkID), slog.String("error", err.Error()))
			metrics.Reconciled.WithLabelValues("failure").Inc()
			res.failed++
			continue
		}

		mctx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
		err := gs.MergeGraph(mctx, batch)
		cancel()
		if err != nil {
			metrics.Reconciled.WithLabelValues("failure").Inc()
			res.failed++
			r.Error = fmt.Sprintf("graph merge: %v", err)
			r.UpdatedAt = h.now()
			updated = append(updated, r)
			continue
		}

		metrics.Reconciled.WithLabelValues("success").Inc()
		res.ok++
		r.Status = types.StatusComplete
		r.Error = ""
		r.GraphPayload = nil
		r.UpdatedAt = h.now()
		updated = append(updated, r)
	}

	if len(updated) > 0 {
		if err := h.records.SaveRecords(ctx, updated); err != nil {
			return res, fmt.Errorf("save reconciled records for %s: %w", path, err)
		}
	}
	return res, nil
}

// Records returns the catalog entries of filePath in chunk order
func (h *HybridIndexer) Records(ctx context.Context, filePath string) ([]types.IndexRecord, error) {
	return h.records.RecordsByFile(ctx, filePath)
}
