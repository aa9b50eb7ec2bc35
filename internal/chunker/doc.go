// Package chunker divides source files into semantic chunks for embedding and
// graph indexing.
//
// Go files are parsed with go/ast through the parser package. Languages with a
// registered tree-sitter grammar (Python, JavaScript, TypeScript, Java, C,
// C++, Rust, Ruby) are chunked from query captures. Everything else, and any
// file whose structural parse fails, is split into fixed line windows.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultConfig(), logger)
//	chunks, err := c.ChunkFile(ctx, "service.py", content, "")
//	if errors.Is(err, types.ErrParseDegraded) {
//	    // chunks came from the line splitter
//	}
//
// # Guarantees
//
// Chunks of one file never overlap, are ordered by start line and carry a
// 0-based Position. Chunks whose trimmed content is shorter than
// MinChunkChars, or that hold fewer than two tokens, are dropped silently.
// Structural chunks longer than MaxChunkLines are split into windows that
// keep the parent's metadata.
package chunker
