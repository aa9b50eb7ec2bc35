// Package app wires the configured components into a running indexing
// service. It is the only place where concrete stores, caches and
// providers are chosen.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/hybridindex/internal/cache"
	"github.com/dshills/hybridindex/internal/chunker"
	"github.com/dshills/hybridindex/internal/config"
	"github.com/dshills/hybridindex/internal/connections"
	"github.com/dshills/hybridindex/internal/embedder"
	"github.com/dshills/hybridindex/internal/indexer"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/internal/weaviate"
	"github.com/dshills/hybridindex/pkg/types"
)

// App holds the wired components
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Cache       *cache.Cache
	Embedder    *embedder.FallbackEmbedder
	Chunker     *chunker.Chunker
	Connections *connections.Manager
	Records     *storage.SQLiteRecords
	Hybrid      *indexer.HybridIndexer
	Pipeline    *indexer.Pipeline
}

// Health is the combined status report of the service
type Health struct {
	Stores  connections.HealthReport  `json:"stores"`
	Tiers   []embedder.TierStatus     `json:"tiers"`
	Cache   cache.Stats               `json:"cache"`
	Records map[types.IndexStatus]int `json:"records"`
}

// New opens every component described by cfg. Store connection failures
// are not fatal: the affected store starts DOWN and the health loop keeps
// trying.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := ensureDir(cfg.Storage.Path); err != nil {
		return nil, err
	}

	a.Cache, err = cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	a.Embedder, err = embedder.New(cfg.Embedder, a.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	a.Records, err = storage.OpenRecords(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open record catalog: %w", err)
	}

	a.Chunker = chunker.New(cfg.Chunker, logger)
	a.Connections = connections.New(cfg.Connections, vectorDialer(cfg, logger), graphDialer(cfg), logger)
	report := a.Connections.Connect(ctx)
	for _, s := range []connections.StoreHealth{report.Vector, report.Graph} {
		if s.Status != connections.StatusUp {
			logger.Warn("store unavailable at startup",
				slog.String("store", s.Name),
				slog.String("error", s.LastError))
		}
	}

	a.Hybrid = indexer.NewHybrid(cfg.Indexer, a.Connections, a.Records, logger)
	a.Pipeline = indexer.NewPipeline(a.Chunker, a.Embedder, a.Hybrid, a.Records, logger)
	return a, nil
}

func ensureDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func vectorDialer(cfg *config.Config, logger *slog.Logger) connections.VectorDialer {
	if cfg.Storage.VectorBackend == config.BackendWeaviate {
		wcfg := cfg.Storage.Weaviate
		return func(ctx context.Context) (storage.VectorStore, error) {
			store, err := weaviate.Dial(ctx, wcfg, logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	}
	path := cfg.Storage.Path
	return func(ctx context.Context) (storage.VectorStore, error) {
		store, err := storage.OpenVectors(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func graphDialer(cfg *config.Config) connections.GraphDialer {
	path := cfg.Storage.Path
	return func(ctx context.Context) (storage.GraphStore, error) {
		store, err := storage.OpenGraph(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Start launches the background loops: tier probing and store health
func (a *App) Start(ctx context.Context) {
	a.Embedder.Start(ctx)
	a.Connections.Start(ctx)
}

// Search embeds query and returns the nearest chunks. Unless the filter
// names a tier, only vectors produced by the same tier as the query are
// compared.
func (a *App) Search(ctx context.Context, query string, limit int, filter storage.VectorFilter) ([]types.SearchHit, error) {
	vec, err := a.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if filter.Tier == "" {
		filter.Tier = vec.Tier
	}
	vs, err := a.Connections.VectorStore()
	if err != nil {
		return nil, err
	}
	return vs.Search(ctx, vec.Values, limit, filter)
}

// Health gathers the status of every component
func (a *App) Health(ctx context.Context) (Health, error) {
	h := Health{
		Stores: a.Connections.Health(),
		Tiers:  a.Embedder.Tiers(),
		Cache:  a.Cache.Stats(),
	}
	counts, err := a.Records.CountByStatus(ctx)
	if err != nil {
		return h, fmt.Errorf("count records: %w", err)
	}
	h.Records = counts
	return h, nil
}

// Close releases every component in reverse order of creation
func (a *App) Close() error {
	var errs []error
	if a.Connections != nil {
		errs = append(errs, a.Connections.Close())
	}
	if a.Records != nil {
		errs = append(errs, a.Records.Close())
	}
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	return errors.Join(errs...)
}
