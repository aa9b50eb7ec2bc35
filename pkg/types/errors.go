package types

import "errors"

// Pipeline error taxonomy
var (
	// ErrParseDegraded marks a file whose structural parse failed and fell
	// back to the generic splitter. It is informational.
	ErrParseDegraded = errors.New("structural parse degraded to generic splitting")

	// ErrProviderTransient wraps timeouts and transport failures of a tier
	ErrProviderTransient = errors.New("embedding provider transient failure")

	// ErrProviderQuotaExceeded is returned when a call would exceed a tier quota
	ErrProviderQuotaExceeded = errors.New("embedding provider quota exceeded")

	// ErrAllTiersExhausted is a hard embedding failure for one chunk
	ErrAllTiersExhausted = errors.New("all embedding tiers exhausted")

	// ErrStoreUnreachable is returned when a downstream store is down
	ErrStoreUnreachable = errors.New("store unreachable")

	// ErrCacheCorrupt marks an unreadable cache entry
	ErrCacheCorrupt = errors.New("cache entry corrupt")

	// ErrSuperseded is returned to an indexing request overtaken by a newer
	// request for the same file
	ErrSuperseded = errors.New("indexing request superseded")
)

// Search hit errors
var (
	ErrInvalidRank   = errors.New("rank must be >= 1")
	ErrMissingPath   = errors.New("file path is required")
	ErrEmptyContent  = errors.New("content cannot be empty")
	ErrInvalidPoint  = errors.New("invalid point ID")
	ErrDimensionSize = errors.New("vector has wrong dimension")
)
