package chunker

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/hybridindex/pkg/types"
)

const (
	// DefaultGenericWindow is the line count of a generic splitter window
	DefaultGenericWindow = 50

	// DefaultMaxChunkLines is the size above which structural chunks are split
	DefaultMaxChunkLines = 200

	// DefaultMinChunkChars is the minimum trimmed length of a kept chunk
	DefaultMinChunkChars = 50

	// minChunkTokens is the minimum whitespace-separated token count of a kept chunk
	minChunkTokens = 2
)

// Config controls chunk sizing
type Config struct {
	GenericWindow int `yaml:"generic_window"`
	MaxChunkLines int `yaml:"max_chunk_lines"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

// DefaultConfig returns the default chunk sizing
func DefaultConfig() Config {
	return Config{
		GenericWindow: DefaultGenericWindow,
		MaxChunkLines: DefaultMaxChunkLines,
		MinChunkChars: DefaultMinChunkChars,
	}
}

// Chunker splits source files into ordered, non-overlapping semantic chunks.
// It is stateless apart from its configuration and safe for concurrent use.
type Chunker struct {
	cfg      Config
	registry *Registry
	logger   *slog.Logger
}

// New creates a Chunker with the bundled grammars. Zero config fields take
// their defaults.
func New(cfg Config, logger *slog.Logger) *Chunker {
	def := DefaultConfig()
	if cfg.GenericWindow <= 0 {
		cfg.GenericWindow = def.GenericWindow
	}
	if cfg.MaxChunkLines <= 0 {
		cfg.MaxChunkLines = def.MaxChunkLines
	}
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = def.MinChunkChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		cfg:      cfg,
		registry: DefaultRegistry(),
		logger:   logger.With(slog.String("component", "chunker")),
	}
}

// Registry returns the tree-sitter language registry used by the chunker
func (c *Chunker) Registry() *Registry {
	return c.registry
}

// Chunk splits content into chunks. It never fails: structural problems
// degrade to the generic splitter and are visible through Metadata.Degraded.
func (c *Chunker) Chunk(filePath string, content []byte, language string) []*types.CodeChunk {
	chunks, _ := c.ChunkFile(context.Background(), filePath, content, language)
	return chunks
}

// ChunkFile splits content into chunks. When structural parsing failed and
// the generic splitter was used, the chunks are still returned together with
// types.ErrParseDegraded, which is informational only.
func (c *Chunker) ChunkFile(ctx context.Context, filePath string, content []byte, language string) ([]*types.CodeChunk, error) {
	if language == "" {
		language = c.DetectLanguage(filePath)
	}
	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, nil
	}

	var (
		structural []*types.CodeChunk
		err        error
		attempted  bool
	)
	if language == "go" {
		attempted = true
		structural, err = c.chunkGo(filePath, content, lines)
	} else if spec := c.registry.Lookup(language); spec != nil {
		attempted = true
		structural, err = c.chunkTreeSitter(ctx, spec, filePath, language, content, lines)
	}

	var chunks []*types.CodeChunk
	var degraded error
	switch {
	case attempted && err != nil:
		c.logger.Debug("structural parse failed, using line windows",
			slog.String("file", filePath),
			slog.String("language", language),
			slog.String("error", err.Error()))
		chunks = c.chunkGeneric(filePath, language, lines, true)
		degraded = types.ErrParseDegraded
	case len(structural) > 0:
		chunks = c.splitOversized(structural, lines)
	default:
		// Nothing structural to extract, e.g. a file of constants
		chunks = c.chunkGeneric(filePath, language, lines, false)
	}

	return c.postprocess(chunks), degraded
}

// splitOversized breaks structural chunks longer than MaxChunkLines into
// line windows that keep the parent's kind and metadata.
func (c *Chunker) splitOversized(chunks []*types.CodeChunk, lines []string) []*types.CodeChunk {
	out := make([]*types.CodeChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.LineCount() <= c.cfg.MaxChunkLines {
			out = append(out, chunk)
			continue
		}
		for _, piece := range windows(chunk.FilePath, chunk.Language, lines,
			chunk.StartLine, chunk.EndLine, c.cfg.MaxChunkLines, chunk.Kind, chunk.Metadata.Degraded) {
			piece.Metadata = chunk.Metadata
			out = append(out, piece)
		}
	}
	return out
}

// postprocess orders chunks, removes overlaps, drops low quality chunks and
// assigns positions.
func (c *Chunker) postprocess(chunks []*types.CodeChunk) []*types.CodeChunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].StartLine < chunks[j].StartLine
	})

	kept := make([]*types.CodeChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if n := len(kept); n > 0 && kept[n-1].Overlaps(chunk) {
			continue
		}
		kept = append(kept, chunk)
	}

	out := kept[:0]
	for _, chunk := range kept {
		if !c.meetsQuality(chunk) {
			continue
		}
		chunk.Position = len(out)
		out = append(out, chunk)
	}
	return out
}

func (c *Chunker) meetsQuality(chunk *types.CodeChunk) bool {
	trimmed := strings.TrimSpace(chunk.Content)
	if len(trimmed) < c.cfg.MinChunkChars {
		return false
	}
	return len(strings.Fields(trimmed)) >= minChunkTokens
}
