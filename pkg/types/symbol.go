package types

import (
	"errors"
	"go/token"
)

// SymbolKind represents the kind of a top-level declaration
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindClass     SymbolKind = "class"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol represents a top-level declaration extracted by a structural parser
type Symbol struct {
	// Identification
	Name string
	Kind SymbolKind

	// Content
	Signature  string // Function signature or type definition
	DocComment string
	Receiver   string // For methods: receiver type name

	// Structure
	Complexity int      // 1 + number of branch points
	Calls      []string // Identifiers invoked from the body
	Extends    []string // Embedded or inherited types

	// Location
	Start Position
	End   Position
}

// ChunkKind maps the symbol onto the chunk kind vocabulary
func (s *Symbol) ChunkKind() ChunkKind {
	switch s.Kind {
	case KindFunction, KindMethod:
		return ChunkFunction
	default:
		return ChunkClass
	}
}

// IsExported reports whether the symbol name is exported
func (s *Symbol) IsExported() bool {
	return token.IsExported(s.Name)
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindClass:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name cannot be empty")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	// Position validation
	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}
