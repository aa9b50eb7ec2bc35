package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// LanguageSpec defines the tree-sitter grammar and extraction rules for a language.
type LanguageSpec struct {
	Language *sitter.Language

	// Query is a tree-sitter S-expression query that captures top-level
	// definitions. It must use @chunk for the outer node and @name for the
	// identifier.
	Query string

	// BranchNodes are node types that add one to the complexity estimate.
	BranchNodes map[string]bool

	// CallNode is the node type of a call and CallField the field holding the callee.
	CallNode  string
	CallField string

	// ExtendsField names the field of a class node holding its bases. When
	// empty, a child of type ExtendsNode is used instead.
	ExtendsField string
	ExtendsNode  string

	// Imports extracts imported module names from a top-level node.
	Imports func(node *sitter.Node, src []byte) []string
}

// Registry maps language names and file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*LanguageSpec // language name → spec
	exts  map[string]string        // extension (without dot) → language name
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*LanguageSpec),
		exts:  make(map[string]string),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[name] = spec
	for _, ext := range extensions {
		r.exts[ext] = name
	}
}

// Lookup returns the spec registered for a language name, or nil.
func (r *Registry) Lookup(language string) *LanguageSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[language]
}

// LanguageFor returns the language registered for a path's extension, or "".
func (r *Registry) LanguageFor(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exts[ext]
}

// Languages returns the registered language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
