package types

import (
	"time"
)

// IndexStatus is the cross-store outcome for one chunk
type IndexStatus string

const (
	StatusComplete          IndexStatus = "COMPLETE"
	StatusPartialVectorOnly IndexStatus = "PARTIAL_VECTOR_ONLY"
	StatusPartialGraphOnly  IndexStatus = "PARTIAL_GRAPH_ONLY"
	StatusFailed            IndexStatus = "FAILED"
)

// IsPartial reports whether the chunk is represented in exactly one store
func (s IndexStatus) IsPartial() bool {
	return s == StatusPartialVectorOnly || s == StatusPartialGraphOnly
}

// TierHealth is the health state of an embedding provider tier
type TierHealth string

const (
	TierHealthy     TierHealth = "HEALTHY"
	TierDegraded    TierHealth = "DEGRADED"
	TierUnavailable TierHealth = "UNAVAILABLE"
)

// IndexRecord links one chunk to its representations in both stores
type IndexRecord struct {
	ChunkID  string
	FilePath string
	Position int
	Version  uint64

	PointID string // vector store point identifier
	NodeID  string // graph store natural key of the chunk node

	Status IndexStatus
	Error  string

	// GraphPayload is the serialized graph batch, kept while the record is
	// PARTIAL_VECTOR_ONLY so the graph write can be replayed.
	GraphPayload []byte

	UpdatedAt time.Time
}

// FileSummary is the per-file report of an indexing request
type FileSummary struct {
	FilePath   string
	Version    uint64
	Chunks     int
	Complete   int
	Partial    int
	Failed     int
	Degraded   bool // structural parsing fell back to the generic splitter
	Superseded bool // a newer request for the same path took over
	Skipped    bool // content unchanged since the last index
	Records    []IndexRecord
	Duration   time.Duration
}

// Tally recomputes the counters from the records
func (s *FileSummary) Tally() {
	s.Chunks = len(s.Records)
	s.Complete, s.Partial, s.Failed = 0, 0, 0
	for _, r := range s.Records {
		switch {
		case r.Status == StatusComplete:
			s.Complete++
		case r.Status.IsPartial():
			s.Partial++
		default:
			s.Failed++
		}
	}
}

// PartialChunkIDs returns the chunks awaiting reconciliation
func (s *FileSummary) PartialChunkIDs() []string {
	var ids []string
	for _, r := range s.Records {
		if r.Status.IsPartial() {
			ids = append(ids, r.ChunkID)
		}
	}
	return ids
}
