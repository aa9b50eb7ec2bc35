// Package types provides shared type definitions for the hybrid indexing pipeline.
//
// This package defines the domain types that flow between the chunker, the
// embedder, and the indexer, together with the error taxonomy used across
// the pipeline.
//
// # Core Types
//
// CodeChunk is a semantic unit of a source file (function, class, or a generic
// block of lines):
//
//	chunk := &types.CodeChunk{
//	    FilePath:  "internal/auth/service.go",
//	    Language:  "go",
//	    Kind:      types.ChunkFunction,
//	    StartLine: 12,
//	    EndLine:   40,
//	    Content:   body,
//	}
//
// Chunks of one file are ordered by start line and never overlap.
//
// EmbeddingVector always has CanonicalDimension values. Vectors from tiers
// with a smaller native dimension are zero-filled and flagged:
//
//	vec := types.Normalize(raw384, "local")
//	vec.Padded          // true
//	vec.NativeDimension // 384
//
// IndexRecord links a chunk to its vector point and graph node and carries
// the cross-store status:
//
//	COMPLETE             both stores hold the chunk
//	PARTIAL_VECTOR_ONLY  graph write failed, awaiting reconciliation
//	PARTIAL_GRAPH_ONLY   graph holds the chunk, vector store does not
//	FAILED               nothing usable was written
//
// FileSummary aggregates the records of one indexing request. An indexing
// request never reports a single pass/fail verdict.
//
// # Errors
//
// Sentinel errors are matched with errors.Is:
//
//	if errors.Is(err, types.ErrAllTiersExhausted) {
//	    // chunk could not be embedded, the batch continues
//	}
package types
