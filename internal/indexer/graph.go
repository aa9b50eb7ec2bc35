package indexer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// pointNamespace scopes chunk point IDs
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("hybridindex/chunk"))

// PointID returns the vector point ID of the chunk at position in filePath.
// The same path and position always give the same ID, so re-indexing
// overwrites instead of accumulating points.
func PointID(filePath string, position int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s#%d", filePath, position)).String()
}

func chunkLabel(kind types.ChunkKind) string {
	switch kind {
	case types.ChunkFunction:
		return storage.LabelFunction
	case types.ChunkClass:
		return storage.LabelClass
	default:
		return storage.LabelBlock
	}
}

// graphBatch builds the nodes and edges written for one chunk
func graphBatch(chunk *types.CodeChunk) storage.GraphBatch {
	file := storage.NodeRef{Label: storage.LabelFile, Key: chunk.FilePath}
	self := storage.NodeRef{Label: chunkLabel(chunk.Kind), Key: chunk.ID()}
	meta := chunk.Metadata

	props := map[string]any{
		"kind":       string(chunk.Kind),
		"language":   chunk.Language,
		"start_line": chunk.StartLine,
		"end_line":   chunk.EndLine,
		"complexity": meta.Complexity,
	}
	if meta.Name != "" {
		props["name"] = meta.Name
	}
	if meta.Signature != "" {
		props["signature"] = meta.Signature
	}

	batch := storage.GraphBatch{
		FilePath: chunk.FilePath,
		Nodes: []storage.GraphNode{
			{Label: file.Label, Key: file.Key, FilePath: chunk.FilePath,
				Properties: map[string]any{"language": chunk.Language}},
			{Label: self.Label, Key: self.Key, FilePath: chunk.FilePath, Properties: props},
		},
		Edges: []storage.GraphEdge{{Type: storage.EdgeContains, From: file, To: self}},
	}

	seen := map[storage.NodeRef]bool{file: true, self: true}
	link := func(edge string, from storage.NodeRef, label, key string) {
		if key == "" {
			return
		}
		to := storage.NodeRef{Label: label, Key: key}
		if !seen[to] {
			seen[to] = true
			batch.Nodes = append(batch.Nodes, storage.GraphNode{Label: label, Key: key})
		}
		batch.Edges = append(batch.Edges, storage.GraphEdge{Type: edge, From: from, To: to})
	}

	link(storage.EdgeDefines, self, storage.LabelSymbol, meta.Name)
	for _, callee := range dedupe(meta.Calls) {
		link(storage.EdgeCalls, self, storage.LabelSymbol, callee)
	}
	for _, parent := range dedupe(meta.Extends) {
		link(storage.EdgeExtends, self, storage.LabelSymbol, parent)
	}
	for _, mod := range dedupe(meta.Imports) {
		link(storage.EdgeImports, file, storage.LabelModule, mod)
	}
	return batch
}

// vectorPoint builds the vector store point for a chunk
func vectorPoint(chunk *types.CodeChunk, vec *types.EmbeddingVector, now time.Time) storage.VectorPoint {
	return storage.VectorPoint{
		ID:     PointID(chunk.FilePath, chunk.Position),
		Vector: vec.Values,
		Payload: storage.Payload{
			Content:        chunk.Content,
			FilePath:       chunk.FilePath,
			Language:       chunk.Language,
			ChunkKind:      chunk.Kind,
			StartLine:      chunk.StartLine,
			EndLine:        chunk.EndLine,
			Name:           chunk.Metadata.Name,
			Signature:      chunk.Metadata.Signature,
			LeadingComment: chunk.Metadata.LeadingComment,
			Complexity:     chunk.Metadata.Complexity,
			Tier:           vec.Tier,
			Padded:         vec.Padded,
			IndexedAt:      now,
		},
	}
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
