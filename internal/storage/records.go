package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/hybridindex/pkg/types"
)

// SQLiteRecords implements RecordStore
type SQLiteRecords struct {
	db *sql.DB
}

var _ RecordStore = (*SQLiteRecords)(nil)

// OpenRecords opens or creates the record catalog at dbPath
func OpenRecords(ctx context.Context, dbPath string) (*SQLiteRecords, error) {
	db, err := openDatabase(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open record database: %w", err)
	}
	return &SQLiteRecords{db: db}, nil
}

const recordColumns = `chunk_id, file_path, position, version, point_id, node_id,
	status, error, graph_payload, updated_at`

func (s *SQLiteRecords) SaveRecords(ctx context.Context, records []types.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(q querier) error {
		for _, r := range records {
			updated := r.UpdatedAt
			if updated.IsZero() {
				updated = time.Now()
			}
			var errText sql.NullString
			if r.Error != "" {
				errText = sql.NullString{String: r.Error, Valid: true}
			}
			_, err := q.ExecContext(ctx, `
				INSERT INTO index_records (`+recordColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(chunk_id) DO UPDATE SET
					file_path = excluded.file_path,
					position = excluded.position,
					version = excluded.version,
					point_id = excluded.point_id,
					node_id = excluded.node_id,
					status = excluded.status,
					error = excluded.error,
					graph_payload = excluded.graph_payload,
					updated_at = excluded.updated_at
			`, r.ChunkID, r.FilePath, r.Position, int64(r.Version), r.PointID, r.NodeID,
				string(r.Status), errText, r.GraphPayload, updated)
			if err != nil {
				return fmt.Errorf("failed to save record %s: %w", r.ChunkID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteRecords) RecordsByFile(ctx context.Context, filePath string) ([]types.IndexRecord, error) {
	return s.query(ctx, "SELECT "+recordColumns+" FROM index_records WHERE file_path = ? ORDER BY position", filePath)
}

func (s *SQLiteRecords) DeleteRecordsByFile(ctx context.Context, filePath string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM index_records WHERE file_path = ?", filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records of %s: %w", filePath, err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLiteRecords) PendingRecords(ctx context.Context, status types.IndexStatus) ([]types.IndexRecord, error) {
	return s.query(ctx,
		"SELECT "+recordColumns+" FROM index_records WHERE status = ? ORDER BY file_path, position",
		string(status))
}

func (s *SQLiteRecords) CountByStatus(ctx context.Context) (map[types.IndexStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM index_records GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[types.IndexStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[types.IndexStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteRecords) query(ctx context.Context, query string, args ...interface{}) ([]types.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.IndexRecord
	for rows.Next() {
		var (
			r       types.IndexRecord
			version int64
			status  string
			errText sql.NullString
		)
		if err := rows.Scan(&r.ChunkID, &r.FilePath, &r.Position, &version, &r.PointID, &r.NodeID,
			&status, &errText, &r.GraphPayload, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Version = uint64(version)
		r.Status = types.IndexStatus(status)
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteRecords) FileHash(ctx context.Context, filePath string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM file_hashes WHERE file_path = ?", filePath).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *SQLiteRecords) SetFileHash(ctx context.Context, filePath, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_hashes (file_path, content_hash, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			indexed_at = excluded.indexed_at
	`, filePath, hash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set hash of %s: %w", filePath, err)
	}
	return nil
}

func (s *SQLiteRecords) DeleteFileHash(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM file_hashes WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("failed to delete hash of %s: %w", filePath, err)
	}
	return nil
}

func (s *SQLiteRecords) MarkGraphCleanup(ctx context.Context, filePath, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_cleanups (file_path, reason, marked_at) VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			reason = excluded.reason,
			marked_at = excluded.marked_at
	`, filePath, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark graph cleanup of %s: %w", filePath, err)
	}
	return nil
}

func (s *SQLiteRecords) GraphCleanupPending(ctx context.Context, filePath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_cleanups WHERE file_path = ?", filePath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check graph cleanup of %s: %w", filePath, err)
	}
	return n > 0, nil
}

func (s *SQLiteRecords) GraphCleanups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_path FROM graph_cleanups ORDER BY file_path")
	if err != nil {
		return nil, fmt.Errorf("failed to list graph cleanups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteRecords) ClearGraphCleanup(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM graph_cleanups WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("failed to clear graph cleanup of %s: %w", filePath, err)
	}
	return nil
}

func (s *SQLiteRecords) Close() error {
	return s.db.Close()
}
