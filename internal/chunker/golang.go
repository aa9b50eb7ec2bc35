package chunker

import (
	"strings"

	"github.com/dshills/hybridindex/internal/parser"
	"github.com/dshills/hybridindex/pkg/types"
)

// chunkGo creates one chunk per top-level Go declaration using the go/ast
// parser. A syntax error is returned so the caller can fall back.
func (c *Chunker) chunkGo(filePath string, content []byte, lines []string) ([]*types.CodeChunk, error) {
	// A fresh parser per file keeps the token.FileSet from growing without bound.
	parseResult := parser.New().ParseSource(filePath, content)
	if parseResult.HasErrors() {
		return nil, &parseResult.Errors[0]
	}

	imports := parseResult.ImportPaths()
	chunks := make([]*types.CodeChunk, 0, len(parseResult.Symbols))
	for i := range parseResult.Symbols {
		if chunk := c.createChunkForSymbol(filePath, &parseResult.Symbols[i], lines, imports); chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// createChunkForSymbol creates a chunk for a specific symbol
func (c *Chunker) createChunkForSymbol(filePath string, sym *types.Symbol, lines []string, imports []string) *types.CodeChunk {
	// Extract the symbol's content based on line numbers
	if sym.Start.Line <= 0 || sym.End.Line <= 0 || sym.Start.Line > len(lines) {
		return nil
	}

	endLine := sym.End.Line
	if endLine > len(lines) {
		endLine = len(lines)
	}

	return &types.CodeChunk{
		FilePath:  filePath,
		Language:  "go",
		Kind:      sym.ChunkKind(),
		StartLine: sym.Start.Line,
		EndLine:   endLine,
		Content:   sliceLines(lines, sym.Start.Line, endLine),
		Metadata: types.ChunkMetadata{
			Name:           sym.Name,
			Signature:      sym.Signature,
			LeadingComment: sym.DocComment,
			Complexity:     sym.Complexity,
			Calls:          sym.Calls,
			Extends:        sym.Extends,
			Imports:        imports,
		},
	}
}

// signatureLine returns the first line of a definition that is not a
// decorator or annotation, without its opening brace or colon.
func signatureLine(lines []string, start, end int) string {
	for i := start; i <= end && i <= len(lines); i++ {
		line := strings.TrimSpace(lines[i-1])
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		line = strings.TrimSuffix(line, "{")
		line = strings.TrimSuffix(line, ":")
		return strings.TrimSpace(line)
	}
	return ""
}
