package chunker

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// DefaultRegistry returns a registry with every bundled grammar registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerPython(r)
	registerJavaScript(r)
	registerTypeScript(r)
	registerJava(r)
	registerRust(r)
	registerC(r)
	registerCPP(r)
	registerRuby(r)
	return r
}

func registerPython(r *Registry) {
	r.Register("python", &LanguageSpec{
		Language: python.GetLanguage(),
		Query: `
			(function_definition name: (identifier) @name) @chunk
			(class_definition name: (identifier) @name) @chunk
			(decorated_definition definition: (function_definition name: (identifier) @name)) @chunk
			(decorated_definition definition: (class_definition name: (identifier) @name)) @chunk
		`,
		BranchNodes: nodeSet("if_statement", "elif_clause", "for_statement",
			"while_statement", "try_statement"),
		CallNode:     "call",
		CallField:    "function",
		ExtendsField: "superclasses",
		Imports: func(node *sitter.Node, src []byte) []string {
			switch node.Type() {
			case "import_from_statement":
				if mod := node.ChildByFieldName("module_name"); mod != nil {
					return []string{mod.Content(src)}
				}
			case "import_statement":
				var mods []string
				for i := 0; i < int(node.NamedChildCount()); i++ {
					child := node.NamedChild(i)
					switch child.Type() {
					case "dotted_name":
						mods = append(mods, child.Content(src))
					case "aliased_import":
						if name := child.ChildByFieldName("name"); name != nil {
							mods = append(mods, name.Content(src))
						}
					}
				}
				return mods
			}
			return nil
		},
	}, "py", "pyi")
}

var ecmaBranches = nodeSet("if_statement", "for_statement", "for_in_statement",
	"while_statement", "do_statement", "try_statement", "switch_case", "ternary_expression")

func ecmaImports(node *sitter.Node, src []byte) []string {
	if node.Type() != "import_statement" {
		return nil
	}
	if source := node.ChildByFieldName("source"); source != nil {
		return []string{strings.Trim(source.Content(src), "'\"`")}
	}
	return nil
}

func registerJavaScript(r *Registry) {
	r.Register("javascript", &LanguageSpec{
		Language: javascript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
		`,
		BranchNodes: ecmaBranches,
		CallNode:    "call_expression",
		CallField:   "function",
		ExtendsNode: "class_heritage",
		Imports:     ecmaImports,
	}, "js", "jsx", "mjs", "cjs")
}

func registerTypeScript(r *Registry) {
	r.Register("typescript", &LanguageSpec{
		Language: typescript.GetLanguage(),
		Query: `
			(function_declaration name: (identifier) @name) @chunk
			(class_declaration name: (type_identifier) @name) @chunk
			(method_definition name: (property_identifier) @name) @chunk
			(export_statement (function_declaration name: (identifier) @name)) @chunk
			(export_statement (class_declaration name: (type_identifier) @name)) @chunk
			(lexical_declaration (variable_declarator name: (identifier) @name value: (arrow_function))) @chunk
			(interface_declaration name: (type_identifier) @name) @chunk
			(type_alias_declaration name: (type_identifier) @name) @chunk
		`,
		BranchNodes: ecmaBranches,
		CallNode:    "call_expression",
		CallField:   "function",
		ExtendsNode: "class_heritage",
		Imports:     ecmaImports,
	}, "ts", "tsx")
}

func registerJava(r *Registry) {
	r.Register("java", &LanguageSpec{
		Language: java.GetLanguage(),
		Query: `
			(class_declaration name: (identifier) @name) @chunk
			(interface_declaration name: (identifier) @name) @chunk
			(enum_declaration name: (identifier) @name) @chunk
			(method_declaration name: (identifier) @name) @chunk
			(constructor_declaration name: (identifier) @name) @chunk
		`,
		BranchNodes: nodeSet("if_statement", "for_statement", "enhanced_for_statement",
			"while_statement", "do_statement", "try_statement", "catch_clause",
			"switch_label", "ternary_expression"),
		CallNode:     "method_invocation",
		CallField:    "name",
		ExtendsField: "superclass",
		Imports: func(node *sitter.Node, src []byte) []string {
			if node.Type() != "import_declaration" || node.NamedChildCount() == 0 {
				return nil
			}
			return []string{node.NamedChild(0).Content(src)}
		},
	}, "java")
}

func registerRust(r *Registry) {
	r.Register("rust", &LanguageSpec{
		Language: rust.GetLanguage(),
		Query: `
			(function_item name: (identifier) @name) @chunk
			(struct_item name: (type_identifier) @name) @chunk
			(enum_item name: (type_identifier) @name) @chunk
			(trait_item name: (type_identifier) @name) @chunk
			(impl_item type: (type_identifier) @name) @chunk
		`,
		BranchNodes: nodeSet("if_expression", "for_expression", "while_expression",
			"loop_expression", "match_arm"),
		CallNode:  "call_expression",
		CallField: "function",
		Imports: func(node *sitter.Node, src []byte) []string {
			if node.Type() != "use_declaration" {
				return nil
			}
			if arg := node.ChildByFieldName("argument"); arg != nil {
				return []string{arg.Content(src)}
			}
			return nil
		},
	}, "rs")
}

var cBranches = nodeSet("if_statement", "for_statement", "while_statement",
	"do_statement", "case_statement", "conditional_expression")

func cIncludes(node *sitter.Node, src []byte) []string {
	if node.Type() != "preproc_include" {
		return nil
	}
	if path := node.ChildByFieldName("path"); path != nil {
		return []string{strings.Trim(path.Content(src), "<>\"")}
	}
	return nil
}

func registerC(r *Registry) {
	r.Register("c", &LanguageSpec{
		Language: c.GetLanguage(),
		Query: `
			(function_definition declarator: (function_declarator declarator: (identifier) @name)) @chunk
			(struct_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
			(enum_specifier name: (type_identifier) @name body: (enumerator_list)) @chunk
		`,
		BranchNodes: cBranches,
		CallNode:    "call_expression",
		CallField:   "function",
		Imports:     cIncludes,
	}, "c", "h")
}

func registerCPP(r *Registry) {
	r.Register("cpp", &LanguageSpec{
		Language: cpp.GetLanguage(),
		Query: `
			(function_definition declarator: (function_declarator declarator: (identifier) @name)) @chunk
			(function_definition declarator: (function_declarator declarator: (qualified_identifier) @name)) @chunk
			(class_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
			(struct_specifier name: (type_identifier) @name body: (field_declaration_list)) @chunk
		`,
		BranchNodes: nodeSet("if_statement", "for_statement", "for_range_loop",
			"while_statement", "do_statement", "case_statement", "catch_clause",
			"conditional_expression"),
		CallNode:    "call_expression",
		CallField:   "function",
		ExtendsNode: "base_class_clause",
		Imports:     cIncludes,
	}, "cc", "cpp", "cxx", "hpp", "hh")
}

func registerRuby(r *Registry) {
	r.Register("ruby", &LanguageSpec{
		Language: ruby.GetLanguage(),
		Query: `
			(method name: (identifier) @name) @chunk
			(singleton_method name: (identifier) @name) @chunk
			(class name: (constant) @name) @chunk
			(module name: (constant) @name) @chunk
		`,
		BranchNodes: nodeSet("if", "elsif", "unless", "while", "until", "for",
			"when", "conditional", "rescue"),
		CallNode:     "call",
		CallField:    "method",
		ExtendsField: "superclass",
		Imports: func(node *sitter.Node, src []byte) []string {
			if node.Type() != "call" {
				return nil
			}
			method := node.ChildByFieldName("method")
			if method == nil {
				return nil
			}
			if m := method.Content(src); m != "require" && m != "require_relative" {
				return nil
			}
			args := node.ChildByFieldName("arguments")
			if args == nil || args.NamedChildCount() == 0 {
				return nil
			}
			return []string{strings.Trim(args.NamedChild(0).Content(src), "'\"")}
		},
	}, "rb")
}

func nodeSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, t := range names {
		set[t] = true
	}
	return set
}
