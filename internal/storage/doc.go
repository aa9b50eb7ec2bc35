// Package storage defines the store interfaces used by the indexer and
// provides their SQLite implementations.
//
// # Stores
//
//   - VectorStore: one point per chunk, searched by cosine similarity.
//     SQLiteVectors is the local implementation; internal/weaviate provides
//     the remote one.
//   - GraphStore: File, Function, Class, Block, Symbol and Module nodes
//     joined by CONTAINS, DEFINES, CALLS, EXTENDS and IMPORTS edges.
//     Nodes merge on (label, key) and edges on (type, from, to), so
//     replaying a batch is harmless.
//   - RecordStore: the IndexRecord catalog plus content hashes used to skip
//     unchanged files, and markers for files whose graph data still needs
//     deleting.
//
// # Database Schema
//
// Tables:
//   - graph_nodes, graph_edges: the relationship graph
//   - vector_points: vectors with their JSON payload
//   - index_records: per-chunk cross-store status
//   - file_hashes: SHA-256 of the last indexed content per file
//   - graph_cleanups: files whose graph delete is still owed
//
// Migrations are versioned with semver and applied on open.
//
// # Basic Usage
//
//	graph, err := storage.OpenGraph(ctx, "index.db")
//	if err != nil {
//	    return err
//	}
//	defer graph.Close()
//
//	err = graph.MergeGraph(ctx, storage.GraphBatch{
//	    FilePath: "app/models.py",
//	    Nodes: []storage.GraphNode{
//	        {Label: storage.LabelFile, Key: "app/models.py", FilePath: "app/models.py"},
//	        {Label: storage.LabelClass, Key: "app/models.py#0", FilePath: "app/models.py"},
//	    },
//	    Edges: []storage.GraphEdge{{
//	        Type: storage.EdgeContains,
//	        From: storage.NodeRef{Label: storage.LabelFile, Key: "app/models.py"},
//	        To:   storage.NodeRef{Label: storage.LabelClass, Key: "app/models.py#0"},
//	    }},
//	})
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C compiler. Build
// with -tags sqlite_cgo to use github.com/mattn/go-sqlite3 instead.
//
// # Concurrency
//
// Each store holds a single-connection pool, so writes are serialized per
// store. File databases run in WAL mode with a busy timeout, which lets the
// three stores share one file.
package storage
