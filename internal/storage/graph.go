package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteGraph implements GraphStore on two tables: graph_nodes unique on
// (label, natural_key) and graph_edges unique on (type, from_id, to_id).
type SQLiteGraph struct {
	db *sql.DB
}

var _ GraphStore = (*SQLiteGraph)(nil)

// OpenGraph opens or creates a graph store at dbPath
func OpenGraph(ctx context.Context, dbPath string) (*SQLiteGraph, error) {
	db, err := openDatabase(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}
	return &SQLiteGraph{db: db}, nil
}

func (g *SQLiteGraph) MergeGraph(ctx context.Context, batch GraphBatch) error {
	return withTx(ctx, g.db, func(q querier) error {
		ids := make(map[NodeRef]int64, len(batch.Nodes))
		now := time.Now()

		for _, node := range batch.Nodes {
			id, err := mergeNode(ctx, q, node, now)
			if err != nil {
				return err
			}
			ids[node.Ref()] = id
		}

		for _, edge := range batch.Edges {
			from, err := nodeID(ctx, q, ids, edge.From)
			if err != nil {
				return err
			}
			to, err := nodeID(ctx, q, ids, edge.To)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx, `
				INSERT INTO graph_edges (type, from_id, to_id) VALUES (?, ?, ?)
				ON CONFLICT(type, from_id, to_id) DO NOTHING
			`, edge.Type, from, to)
			if err != nil {
				return fmt.Errorf("failed to merge %s edge: %w", edge.Type, err)
			}
		}
		return nil
	})
}

func mergeNode(ctx context.Context, q querier, node GraphNode, now time.Time) (int64, error) {
	props := node.Properties
	if props == nil {
		props = map[string]any{}
	}
	encoded, err := json.Marshal(props)
	if err != nil {
		return 0, fmt.Errorf("failed to encode properties of %s %q: %w", node.Label, node.Key, err)
	}

	var filePath sql.NullString
	if node.FilePath != "" {
		filePath = sql.NullString{String: node.FilePath, Valid: true}
	}

	var id int64
	err = q.QueryRowContext(ctx, `
		INSERT INTO graph_nodes (label, natural_key, file_path, properties, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(label, natural_key) DO UPDATE SET
			file_path = COALESCE(excluded.file_path, graph_nodes.file_path),
			properties = excluded.properties,
			updated_at = excluded.updated_at
		RETURNING id
	`, node.Label, node.Key, filePath, string(encoded), now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to merge %s node %q: %w", node.Label, node.Key, err)
	}
	return id, nil
}

// nodeID resolves a reference from the batch or from existing nodes
func nodeID(ctx context.Context, q querier, ids map[NodeRef]int64, ref NodeRef) (int64, error) {
	if id, ok := ids[ref]; ok {
		return id, nil
	}
	var id int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM graph_nodes WHERE label = ? AND natural_key = ?", ref.Label, ref.Key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %q", ErrMissingEndpoint, ref.Label, ref.Key)
	}
	if err != nil {
		return 0, err
	}
	ids[ref] = id
	return id, nil
}

func (g *SQLiteGraph) DeleteByFile(ctx context.Context, filePath string) (int, error) {
	var deleted int64
	err := withTx(ctx, g.db, func(q querier) error {
		result, err := q.ExecContext(ctx, "DELETE FROM graph_nodes WHERE file_path = ?", filePath)
		if err != nil {
			return fmt.Errorf("failed to delete nodes of %s: %w", filePath, err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return err
		}

		// Edges went with their endpoints; drop shared nodes nobody references
		_, err = q.ExecContext(ctx, `
			DELETE FROM graph_nodes
			WHERE label IN (?, ?)
			AND NOT EXISTS (
				SELECT 1 FROM graph_edges e
				WHERE e.from_id = graph_nodes.id OR e.to_id = graph_nodes.id
			)
		`, LabelSymbol, LabelModule)
		if err != nil {
			return fmt.Errorf("failed to prune orphan nodes: %w", err)
		}
		return nil
	})
	return int(deleted), err
}

func (g *SQLiteGraph) Node(ctx context.Context, label, key string) (*GraphNode, error) {
	var (
		node     = GraphNode{Label: label, Key: key}
		filePath sql.NullString
		props    string
	)
	err := g.db.QueryRowContext(ctx,
		"SELECT file_path, properties FROM graph_nodes WHERE label = ? AND natural_key = ?",
		label, key).Scan(&filePath, &props)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	node.FilePath = filePath.String
	if err := json.Unmarshal([]byte(props), &node.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties of %s %q: %w", label, key, err)
	}
	return &node, nil
}

// Edges returns every edge touching the node, outgoing first
func (g *SQLiteGraph) Edges(ctx context.Context, label, key string) ([]GraphEdge, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT e.type, f.label, f.natural_key, t.label, t.natural_key,
		       CASE WHEN f.label = ? AND f.natural_key = ? THEN 0 ELSE 1 END AS direction
		FROM graph_edges e
		INNER JOIN graph_nodes f ON e.from_id = f.id
		INNER JOIN graph_nodes t ON e.to_id = t.id
		WHERE (f.label = ? AND f.natural_key = ?) OR (t.label = ? AND t.natural_key = ?)
		ORDER BY direction, e.type, t.natural_key, f.natural_key
	`, label, key, label, key, label, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []GraphEdge
	for rows.Next() {
		var (
			edge      GraphEdge
			direction int
		)
		if err := rows.Scan(&edge.Type, &edge.From.Label, &edge.From.Key,
			&edge.To.Label, &edge.To.Key, &direction); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func (g *SQLiteGraph) Ping(ctx context.Context) error {
	return ping(ctx, g.db)
}

func (g *SQLiteGraph) Close() error {
	return g.db.Close()
}
