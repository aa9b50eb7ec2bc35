package chunker

import (
	"strings"

	"github.com/dshills/hybridindex/pkg/types"
)

// splitLines splits content into lines, dropping the empty element a
// trailing newline produces.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// sliceLines returns the 1-based inclusive line range joined with newlines
func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// chunkGeneric emits fixed windows of whole lines with no overlap. Windows
// containing only whitespace are skipped.
func (c *Chunker) chunkGeneric(filePath, language string, lines []string, degraded bool) []*types.CodeChunk {
	return windows(filePath, language, lines, 1, len(lines), c.cfg.GenericWindow, types.ChunkBlock, degraded)
}

// windows splits the line range [from, to] into pieces of at most size lines.
func windows(filePath, language string, lines []string, from, to, size int, kind types.ChunkKind, degraded bool) []*types.CodeChunk {
	if size <= 0 {
		size = DefaultGenericWindow
	}
	var chunks []*types.CodeChunk
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		content := sliceLines(lines, start, end)
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, &types.CodeChunk{
			FilePath:  filePath,
			Language:  language,
			Kind:      kind,
			StartLine: start,
			EndLine:   end,
			Content:   content,
			Metadata: types.ChunkMetadata{
				Complexity: 1,
				Degraded:   degraded,
			},
		})
	}
	return chunks
}
