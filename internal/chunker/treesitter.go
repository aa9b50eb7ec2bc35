package chunker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/hybridindex/pkg/types"
)

var errSyntaxTree = errors.New("syntax tree contains errors")

// capture is one @chunk match of a language query
type capture struct {
	node      *sitter.Node
	name      string
	startByte uint32
	endByte   uint32
}

// chunkTreeSitter extracts top-level definitions with a tree-sitter grammar.
// Any parse problem is returned so the caller can fall back to generic splitting.
func (c *Chunker) chunkTreeSitter(ctx context.Context, spec *LanguageSpec, filePath, language string, src []byte, lines []string) ([]*types.CodeChunk, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.Language)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errSyntaxTree
	}

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", language, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode *sitter.Node
		var name string
		for _, cp := range m.Captures {
			switch q.CaptureNameForId(cp.Index) {
			case "chunk":
				chunkNode = cp.Node
			case "name":
				name = cp.Node.Content(src)
			}
		}
		if chunkNode == nil {
			continue
		}
		captures = append(captures, capture{
			node:      chunkNode,
			name:      name,
			startByte: chunkNode.StartByte(),
			endByte:   chunkNode.EndByte(),
		})
	}

	imports := fileImports(spec, root, src)

	chunks := make([]*types.CodeChunk, 0, len(captures))
	for _, cp := range outermost(captures) {
		start := int(cp.node.StartPoint().Row) + 1
		end := int(cp.node.EndPoint().Row) + 1
		// A node ending at column 0 closes on the previous line.
		if cp.node.EndPoint().Column == 0 && end > start {
			end--
		}

		chunk := &types.CodeChunk{
			FilePath:  filePath,
			Language:  language,
			Kind:      kindForNode(cp.node),
			StartLine: start,
			EndLine:   end,
			Content:   sliceLines(lines, start, end),
			Metadata: types.ChunkMetadata{
				Name:           cp.name,
				Signature:      signatureLine(lines, start, end),
				LeadingComment: leadingComment(cp.node, src),
				Complexity:     1 + countNodes(cp.node, spec.BranchNodes),
				Calls:          callTargets(cp.node, spec, src),
				Extends:        baseNames(cp.node, spec, src),
				Imports:        imports,
			},
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// outermost drops captures contained in a larger capture, keeping the outer node.
func outermost(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	// Sort by start byte ascending, then by size descending (larger first).
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})

	result := make([]capture, 0, len(caps))
	var lastEnd uint32
	for i, cp := range caps {
		if i == 0 || cp.startByte >= lastEnd {
			result = append(result, cp)
			if cp.endByte > lastEnd {
				lastEnd = cp.endByte
			}
		}
	}
	return result
}

// kindForNode maps a definition node onto the chunk kind vocabulary
func kindForNode(node *sitter.Node) types.ChunkKind {
	t := node.Type()
	switch t {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return kindForNode(def)
		}
	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			return kindForNode(decl)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); strings.HasSuffix(child.Type(), "_declaration") {
				return kindForNode(child)
			}
		}
	}
	for _, marker := range []string{"class", "struct", "interface", "enum", "trait", "impl", "type_alias", "module"} {
		if strings.Contains(t, marker) {
			return types.ChunkClass
		}
	}
	return types.ChunkFunction
}

// countNodes counts descendants whose type is in the set
func countNodes(node *sitter.Node, set map[string]bool) int {
	count := 0
	walk(node, func(n *sitter.Node) bool {
		if set[n.Type()] {
			count++
		}
		return true
	})
	return count
}

// callTargets returns the bare names of called functions in first-appearance order
func callTargets(node *sitter.Node, spec *LanguageSpec, src []byte) []string {
	if spec.CallNode == "" {
		return nil
	}
	seen := make(map[string]bool)
	var calls []string
	walk(node, func(n *sitter.Node) bool {
		if n.Type() != spec.CallNode {
			return true
		}
		callee := n.ChildByFieldName(spec.CallField)
		if callee == nil {
			return true
		}
		name := lastIdentifier(callee, src)
		if name != "" && !seen[name] {
			seen[name] = true
			calls = append(calls, name)
		}
		return true
	})
	return calls
}

// baseNames returns the names a class node inherits from
func baseNames(node *sitter.Node, spec *LanguageSpec, src []byte) []string {
	target := definitionNode(node)
	var bases *sitter.Node
	switch {
	case spec.ExtendsField != "":
		bases = target.ChildByFieldName(spec.ExtendsField)
	case spec.ExtendsNode != "":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			if child := target.NamedChild(i); child.Type() == spec.ExtendsNode {
				bases = child
				break
			}
		}
	}
	if bases == nil {
		return nil
	}

	var names []string
	walk(bases, func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier", "type_identifier", "constant", "attribute", "member_expression", "scoped_type_identifier":
			names = append(names, n.Content(src))
			return false
		}
		return true
	})
	return names
}

// definitionNode unwraps decorator and export wrappers
func definitionNode(node *sitter.Node) *sitter.Node {
	switch node.Type() {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			return def
		}
	case "export_statement":
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			return decl
		}
	}
	return node
}

// leadingComment returns the comment directly above a definition, or a
// Python-style docstring opening its body.
func leadingComment(node *sitter.Node, src []byte) string {
	var parts []string
	for prev := node.PrevNamedSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevNamedSibling() {
		parts = append([]string{prev.Content(src)}, parts...)
	}
	if len(parts) > 0 {
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}

	body := definitionNode(node).ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() == "expression_statement" && first.NamedChildCount() > 0 && first.NamedChild(0).Type() == "string" {
		return strings.TrimSpace(strings.Trim(first.NamedChild(0).Content(src), `"'`))
	}
	return ""
}

// lastIdentifier resolves a callee expression to its final name segment
func lastIdentifier(node *sitter.Node, src []byte) string {
	for node.NamedChildCount() > 0 {
		node = node.NamedChild(int(node.NamedChildCount()) - 1)
	}
	name := node.Content(src)
	if strings.ContainsAny(name, " ()[]{}\"'") {
		return ""
	}
	return name
}

// fileImports collects module names from the top-level import nodes
func fileImports(spec *LanguageSpec, root *sitter.Node, src []byte) []string {
	if spec.Imports == nil {
		return nil
	}
	var mods []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		mods = append(mods, spec.Imports(root.NamedChild(i), src)...)
	}
	return mods
}

// walk visits node and its named descendants depth-first. Returning false
// from fn skips the children of the visited node.
func walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	if !fn(node) {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), fn)
	}
}
