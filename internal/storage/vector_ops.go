package storage

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/hybridindex/pkg/types"
)

// applyVectorFilters appends WHERE conditions for the non-empty filter fields
func applyVectorFilters(query string, args []interface{}, filter VectorFilter) (string, []interface{}) {
	if filter.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, filter.FilePath)
	}
	if filter.Language != "" {
		query += " AND language = ?"
		args = append(args, filter.Language)
	}
	if filter.ChunkKind != "" {
		query += " AND chunk_kind = ?"
		args = append(args, string(filter.ChunkKind))
	}
	if filter.Tier != "" {
		query += " AND tier = ?"
		args = append(args, filter.Tier)
	}
	return query, args
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filter VectorFilter) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var (
			pointID    string
			vectorBlob []byte
			payload    string
		)
		if err := rows.Scan(&pointID, &vectorBlob, &payload); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		similarity := cosineSimilarity(queryVector, vector)
		if filter.MinScore > 0 && similarity < filter.MinScore {
			continue
		}

		candidates = append(candidates, candidate{pointID: pointID, payload: payload, score: similarity})
	}

	return candidates, rows.Err()
}

// buildSearchHits decodes the payloads of the best candidates
func buildSearchHits(candidates []candidate, limit int) ([]types.SearchHit, error) {
	// Handle negative or zero limit - return all candidates
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	hits := make([]types.SearchHit, 0, limit)
	for i := 0; i < limit; i++ {
		var p Payload
		if err := json.Unmarshal([]byte(candidates[i].payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", candidates[i].pointID, err)
		}
		hits = append(hits, p.Hit(candidates[i].pointID, i+1, candidates[i].score))
	}
	return hits, nil
}

// Hit converts a stored payload into a ranked search hit
func (p Payload) Hit(pointID string, rank int, score float64) types.SearchHit {
	return types.SearchHit{
		PointID:   pointID,
		Rank:      rank,
		Score:     score,
		FilePath:  p.FilePath,
		Language:  p.Language,
		Kind:      p.ChunkKind,
		Name:      p.Name,
		StartLine: p.StartLine,
		EndLine:   p.EndLine,
		Content:   p.Content,
		Tier:      p.Tier,
	}
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Zero padding contributes nothing, so two padded vectors score as they
// would in their native space.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a point with its similarity score
type candidate struct {
	pointID string
	payload string
	score   float64
}

// sortCandidates sorts candidates by score, best first. Ties keep point ID
// order so results are deterministic.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].pointID < candidates[j].pointID
	})
}

// CosineSimilarity is exported for stores that rank in Go
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
