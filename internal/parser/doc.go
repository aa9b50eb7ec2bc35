// Package parser extracts top-level declarations from Go source files using AST parsing.
//
// The parser uses the standard library (go/parser, go/ast, go/token) and is the
// structural path of the chunker for Go files.
//
// # Basic Usage
//
//	p := parser.New()
//	result := p.ParseSource("service.go", content)
//	if result.HasErrors() {
//	    // fall back to generic splitting
//	}
//
//	for _, symbol := range result.Symbols {
//	    fmt.Printf("%s %s lines %d-%d complexity %d\n",
//	        symbol.Kind, symbol.Name, symbol.Start.Line, symbol.End.Line, symbol.Complexity)
//	}
//
// # Extracted Metadata
//
// For every top-level function, method, and type declaration:
//   - Signature and leading doc comment
//   - Cyclomatic complexity: 1 + if/for/range, non-default case and select
//     clauses, and && / || operators
//   - Called identifiers (bare names, builtins excluded)
//   - Embedded types of structs and interfaces
//
// Only top-level declarations are reported, so ranges never nest.
//
// # Error Handling
//
// Syntax errors do not fail ParseSource. They are recorded on the result with
// the position of the first error, and whatever declarations the partial AST
// held are still returned.
package parser
