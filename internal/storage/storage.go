package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/hybridindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrMissingEndpoint is returned when an edge references an unknown node
	ErrMissingEndpoint = errors.New("edge endpoint not found")
)

// Graph node labels
const (
	LabelFile     = "File"
	LabelFunction = "Function"
	LabelClass    = "Class"
	LabelBlock    = "Block"
	LabelSymbol   = "Symbol"
	LabelModule   = "Module"
)

// Graph edge types
const (
	EdgeContains = "CONTAINS"
	EdgeDefines  = "DEFINES"
	EdgeCalls    = "CALLS"
	EdgeExtends  = "EXTENDS"
	EdgeImports  = "IMPORTS"
)

// VectorStore holds one point per chunk for similarity search
type VectorStore interface {
	// EnsureSchema creates the collection or tables if missing
	EnsureSchema(ctx context.Context) error

	// Upsert inserts or replaces points by ID
	Upsert(ctx context.Context, points []VectorPoint) error

	// Search returns the closest points, best first, with 1-based ranks
	Search(ctx context.Context, vector []float32, limit int, filter VectorFilter) ([]types.SearchHit, error)

	// DeleteByFile removes every point whose payload file_path matches
	DeleteByFile(ctx context.Context, filePath string) (int, error)

	Count(ctx context.Context, filter VectorFilter) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// GraphStore holds the code relationship graph. Nodes are merged by
// (label, key) and edges by (type, from, to).
type GraphStore interface {
	// MergeGraph applies a batch atomically
	MergeGraph(ctx context.Context, batch GraphBatch) error

	// DeleteByFile removes the file node and its chunk nodes with their
	// edges, then prunes symbol and module nodes left without edges. It
	// returns the number of file-scoped nodes removed.
	DeleteByFile(ctx context.Context, filePath string) (int, error)

	Node(ctx context.Context, label, key string) (*GraphNode, error)
	Edges(ctx context.Context, label, key string) ([]GraphEdge, error)
	Ping(ctx context.Context) error
	Close() error
}

// RecordStore is the catalog of IndexRecords, indexed file hashes and
// pending graph cleanups
type RecordStore interface {
	SaveRecords(ctx context.Context, records []types.IndexRecord) error
	RecordsByFile(ctx context.Context, filePath string) ([]types.IndexRecord, error)
	DeleteRecordsByFile(ctx context.Context, filePath string) (int, error)
	PendingRecords(ctx context.Context, status types.IndexStatus) ([]types.IndexRecord, error)
	CountByStatus(ctx context.Context) (map[types.IndexStatus]int, error)

	// FileHash returns ErrNotFound for files never indexed
	FileHash(ctx context.Context, filePath string) (string, error)
	SetFileHash(ctx context.Context, filePath, hash string) error
	DeleteFileHash(ctx context.Context, filePath string) error

	// A graph cleanup marker records that the graph may still hold an older
	// version of a file. It outlives the file's records and is cleared only
	// once the graph delete succeeds.
	MarkGraphCleanup(ctx context.Context, filePath, reason string) error
	GraphCleanupPending(ctx context.Context, filePath string) (bool, error)
	GraphCleanups(ctx context.Context) ([]string, error)
	ClearGraphCleanup(ctx context.Context, filePath string) error

	Close() error
}

// VectorPoint is one chunk vector with its searchable payload
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload is the metadata stored next to each vector
type Payload struct {
	Content        string          `json:"content"`
	FilePath       string          `json:"file_path"`
	Language       string          `json:"language"`
	ChunkKind      types.ChunkKind `json:"chunk_kind"`
	StartLine      int             `json:"start_line"`
	EndLine        int             `json:"end_line"`
	Name           string          `json:"name,omitempty"`
	Signature      string          `json:"signature,omitempty"`
	LeadingComment string          `json:"leading_comment,omitempty"`
	Complexity     int             `json:"complexity"`
	Tier           string          `json:"tier"`
	Padded         bool            `json:"padded"`
	IndexedAt      time.Time       `json:"indexed_at"`
}

// VectorFilter narrows searches and counts. Empty fields match everything.
type VectorFilter struct {
	FilePath  string
	Language  string
	ChunkKind types.ChunkKind
	Tier      string
	MinScore  float64
}

// NodeRef identifies a graph node by its natural key
type NodeRef struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// GraphNode is a labelled node. FilePath is set for file-scoped nodes and
// drives DeleteByFile.
type GraphNode struct {
	Label      string         `json:"label"`
	Key        string         `json:"key"`
	FilePath   string         `json:"file_path,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Ref returns the node's natural key
func (n GraphNode) Ref() NodeRef {
	return NodeRef{Label: n.Label, Key: n.Key}
}

// GraphEdge is a directed typed relationship
type GraphEdge struct {
	Type string  `json:"type"`
	From NodeRef `json:"from"`
	To   NodeRef `json:"to"`
}

// GraphBatch is the set of nodes and edges written for one chunk
type GraphBatch struct {
	FilePath string      `json:"file_path"`
	Nodes    []GraphNode `json:"nodes"`
	Edges    []GraphEdge `json:"edges"`
}
