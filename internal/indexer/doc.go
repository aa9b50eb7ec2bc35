// Package indexer writes code chunks into the vector and graph stores and
// drives the end-to-end indexing pipeline.
//
// # Basic Usage
//
//	hybrid := indexer.NewHybrid(indexer.Config{}, connManager, records, logger)
//	pipeline := indexer.NewPipeline(chunker, embedder, hybrid, records, logger)
//
//	stats, err := pipeline.IndexPaths(ctx, []string{"/path/to/project"}, &indexer.Options{
//	    Workers: 4,
//	})
//
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Indexing Pipeline
//
// Each file goes through:
//
//  1. Version: take a new version token for the path, cancelling any
//     older request for it
//  2. Chunk: structural split with generic fallback
//  3. Embed: fallback embedder, cache first
//  4. Write: dual-store write under the path lock
//
// # Write Protocol
//
// The vector and graph stores share no transaction. For each file the
// writer first deletes everything stored under the path, then for each
// chunk upserts the vector point and merges the chunk's graph batch. The
// outcome is recorded per chunk:
//
//	COMPLETE             both stores hold the chunk
//	PARTIAL_VECTOR_ONLY  vector written, graph write failed or skipped
//	FAILED               embedding or vector write failed
//
// A chunk is never written to the graph without its vector, so
// PARTIAL_GRAPH_ONLY does not occur. PARTIAL_VECTOR_ONLY records keep the
// serialized graph batch; Reconcile replays it once the graph store is back.
// When the graph delete of a file was skipped or failed, the catalog keeps a
// cleanup marker for the path, and Reconcile deletes the file's old graph
// data before replaying anything.
//
// # Incremental Indexing
//
// Directory runs skip files whose SHA-256 content hash matches the one
// recorded after the last successful index. Files with FAILED chunks keep
// no hash and are retried on the next run. Set Options.Force to re-index
// everything.
//
// # Supersession
//
// Requests for the same path are ordered by version. A newer request
// cancels the older one's context; the older request stops before its next
// write and returns types.ErrSuperseded. The newer request's initial delete
// removes anything the older one had already written.
package indexer
