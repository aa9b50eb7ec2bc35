package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/hybridindex/pkg/types"
)

// SQLiteVectors is the local VectorStore. Similarity is computed in Go over
// the filtered rows, which is adequate for single-repository indexes.
type SQLiteVectors struct {
	db *sql.DB
}

var _ VectorStore = (*SQLiteVectors)(nil)

// OpenVectors opens or creates a local vector store at dbPath
func OpenVectors(ctx context.Context, dbPath string) (*SQLiteVectors, error) {
	db, err := openDatabase(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	return &SQLiteVectors{db: db}, nil
}

// EnsureSchema re-applies pending migrations. Opening already does this.
func (s *SQLiteVectors) EnsureSchema(ctx context.Context) error {
	return ApplyMigrations(ctx, s.db)
}

func (s *SQLiteVectors) Upsert(ctx context.Context, points []VectorPoint) error {
	for _, p := range points {
		if p.ID == "" {
			return types.ErrInvalidPoint
		}
		if len(p.Vector) != types.CanonicalDimension {
			return fmt.Errorf("%w: point %s has %d values", types.ErrDimensionSize, p.ID, len(p.Vector))
		}
	}

	return withTx(ctx, s.db, func(q querier) error {
		now := time.Now()
		for _, p := range points {
			payload, err := json.Marshal(p.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode payload of %s: %w", p.ID, err)
			}
			_, err = q.ExecContext(ctx, `
				INSERT INTO vector_points (point_id, file_path, language, chunk_kind, tier, vector, payload, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(point_id) DO UPDATE SET
					file_path = excluded.file_path,
					language = excluded.language,
					chunk_kind = excluded.chunk_kind,
					tier = excluded.tier,
					vector = excluded.vector,
					payload = excluded.payload,
					updated_at = excluded.updated_at
			`, p.ID, p.Payload.FilePath, p.Payload.Language, string(p.Payload.ChunkKind),
				p.Payload.Tier, serializeVector(p.Vector), string(payload), now)
			if err != nil {
				return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteVectors) Search(ctx context.Context, vector []float32, limit int, filter VectorFilter) ([]types.SearchHit, error) {
	query := "SELECT point_id, vector, payload FROM vector_points WHERE 1 = 1"
	query, args := applyVectorFilters(query, nil, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, vector, filter)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates)
	return buildSearchHits(candidates, limit)
}

func (s *SQLiteVectors) DeleteByFile(ctx context.Context, filePath string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM vector_points WHERE file_path = ?", filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points of %s: %w", filePath, err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLiteVectors) Count(ctx context.Context, filter VectorFilter) (int, error) {
	query, args := applyVectorFilters("SELECT COUNT(*) FROM vector_points WHERE 1 = 1", nil, filter)
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

func (s *SQLiteVectors) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

func (s *SQLiteVectors) Close() error {
	return s.db.Close()
}
