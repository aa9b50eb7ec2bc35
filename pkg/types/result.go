package types

// SearchHit is a single similarity search result from the vector store
type SearchHit struct {
	// Identification
	PointID string
	Rank    int // Position in result set (1-based)

	// Scoring
	Score float64 // Store-reported similarity, higher is closer

	// Payload
	FilePath  string
	Language  string
	Kind      ChunkKind
	Name      string
	StartLine int
	EndLine   int
	Content   string
	Tier      string
}

// Validate checks if the search hit is valid
func (h *SearchHit) Validate() error {
	if h.PointID == "" {
		return ErrInvalidPoint
	}

	if h.Rank < 1 {
		return ErrInvalidRank
	}

	if h.FilePath == "" {
		return ErrMissingPath
	}

	if h.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
