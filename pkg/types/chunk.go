package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ChunkKind represents the kind of code chunk
type ChunkKind string

const (
	ChunkFunction ChunkKind = "function"
	ChunkClass    ChunkKind = "class"
	ChunkBlock    ChunkKind = "block"
)

// ChunkMetadata carries the structural facts extracted alongside a chunk
type ChunkMetadata struct {
	Name           string   `json:"name,omitempty"`
	Signature      string   `json:"signature,omitempty"`
	LeadingComment string   `json:"leading_comment,omitempty"`
	Complexity     int      `json:"complexity"`
	Calls          []string `json:"calls,omitempty"`
	Extends        []string `json:"extends,omitempty"`
	Imports        []string `json:"imports,omitempty"`

	// Degraded is set when the structural parser failed and the chunk came
	// from the generic line splitter.
	Degraded bool `json:"degraded,omitempty"`
}

// CodeChunk is a semantic unit of a source file. Chunks are created fresh for
// each indexing request and never mutated afterwards.
type CodeChunk struct {
	// Identification
	FilePath string
	Language string
	Position int // 0-based ordinal within the file

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	// Content
	Kind     ChunkKind
	Content  string
	Metadata ChunkMetadata
}

// ID returns the chunk identifier, unique per file path and position
func (c *CodeChunk) ID() string {
	return fmt.Sprintf("%s#%d", c.FilePath, c.Position)
}

// ContentHash returns the SHA-256 hex digest of the exact chunk text
func (c *CodeChunk) ContentHash() string {
	return HashText(c.Content)
}

// LineCount returns the number of lines spanned by the chunk
func (c *CodeChunk) LineCount() int {
	return c.EndLine - c.StartLine + 1
}

// Overlaps reports whether two chunks share any line
func (c *CodeChunk) Overlaps(other *CodeChunk) bool {
	return c.StartLine <= other.EndLine && other.StartLine <= c.EndLine
}

// ValidateContent checks if the chunk content is valid
func (c *CodeChunk) ValidateContent() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// ValidateKind checks if the chunk kind is valid
func (c *CodeChunk) ValidateKind() error {
	switch c.Kind {
	case ChunkFunction, ChunkClass, ChunkBlock:
		return nil
	default:
		return errors.New("invalid chunk kind")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *CodeChunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}

	if err := c.ValidateKind(); err != nil {
		return err
	}

	if c.FilePath == "" {
		return errors.New("file path is required")
	}

	return nil
}

// EstimateTokens estimates provider tokens for a text as words * 1.3
func EstimateTokens(text string) int64 {
	words := len(strings.Fields(text))
	return int64(words*13+9) / 10
}

// HashText computes the SHA-256 hex digest of text
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
