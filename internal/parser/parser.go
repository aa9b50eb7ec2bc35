package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"strings"

	"github.com/dshills/hybridindex/pkg/types"
)

// builtins are never recorded as call targets
var builtins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
}

// Parser handles AST-based parsing of Go source files
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		fset: token.NewFileSet(),
	}
}

// ParseFile reads and parses a Go source file
func (p *Parser) ParseFile(filePath string) (*types.ParseResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.ParseSource(filePath, content), nil
}

// ParseSource parses Go source and extracts top-level declarations, imports,
// and package information. Syntax errors are recorded on the result; callers
// decide whether a partial result is usable.
func (p *Parser) ParseSource(filePath string, content []byte) *types.ParseResult {
	result := &types.ParseResult{}

	// Parse the file with comments for doc extraction
	file, err := parser.ParseFile(p.fset, filePath, content, parser.ParseComments)
	if err != nil {
		line, col := 0, 0
		if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
			line, col = list[0].Pos.Line, list[0].Pos.Column
		}
		result.AddError(filePath, line, col, fmt.Sprintf("syntax error: %v", err))
	}

	if file == nil {
		return result
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}
	result.Imports = p.extractImports(file)

	extractor := &symbolExtractor{
		fset:    p.fset,
		symbols: make([]types.Symbol, 0, len(file.Decls)),
	}
	for _, decl := range file.Decls {
		extractor.visit(decl)
	}
	result.Symbols = extractor.symbols

	return result
}

// extractImports extracts import statements from the AST
func (p *Parser) extractImports(file *ast.File) []types.Import {
	imports := make([]types.Import, 0, len(file.Imports))

	for _, imp := range file.Imports {
		importSpec := types.Import{
			Path: strings.Trim(imp.Path.Value, `"`),
		}

		// Check for alias
		if imp.Name != nil {
			importSpec.Alias = imp.Name.Name
		}

		imports = append(imports, importSpec)
	}

	return imports
}

// symbolExtractor collects top-level declarations. Nested declarations stay
// inside their parent so that chunk ranges never overlap.
type symbolExtractor struct {
	fset    *token.FileSet
	symbols []types.Symbol
}

func (e *symbolExtractor) visit(decl ast.Decl) {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		e.extractFunction(d)
	case *ast.GenDecl:
		if d.Tok == token.TYPE {
			e.extractTypeDecl(d)
		}
	}
}

// extractFunction extracts function and method declarations
func (e *symbolExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	sym := types.Symbol{
		Name:       funcDecl.Name.Name,
		DocComment: e.extractDocComment(funcDecl.Doc),
		Start:      e.positionFromToken(funcDecl.Pos()),
		End:        e.positionFromToken(funcDecl.End()),
		Complexity: 1,
	}

	// Determine if this is a method or function
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = e.extractReceiverType(funcDecl.Recv.List[0].Type)
	} else {
		sym.Kind = types.KindFunction
	}

	sym.Signature = e.extractFunctionSignature(funcDecl)

	if funcDecl.Body != nil {
		sym.Complexity, sym.Calls = analyzeBody(funcDecl.Body)
	}

	e.symbols = append(e.symbols, sym)
}

// extractTypeDecl extracts struct, interface, and named type declarations.
// A single-spec declaration spans the whole "type" keyword line; specs in a
// grouped declaration each get their own range.
func (e *symbolExtractor) extractTypeDecl(genDecl *ast.GenDecl) {
	grouped := genDecl.Lparen.IsValid()
	for _, spec := range genDecl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}

		doc := typeSpec.Doc
		start, end := typeSpec.Pos(), typeSpec.End()
		if !grouped {
			doc = genDecl.Doc
			start, end = genDecl.Pos(), genDecl.End()
		}

		sym := types.Symbol{
			Name:       typeSpec.Name.Name,
			DocComment: e.extractDocComment(doc),
			Start:      e.positionFromToken(start),
			End:        e.positionFromToken(end),
			Complexity: 1,
		}

		switch t := typeSpec.Type.(type) {
		case *ast.StructType:
			sym.Kind = types.KindStruct
			sym.Signature = e.extractStructSignature(typeSpec.Name.Name, t)
			sym.Extends = embeddedNames(t.Fields)
		case *ast.InterfaceType:
			sym.Kind = types.KindInterface
			sym.Signature = e.extractInterfaceSignature(typeSpec.Name.Name, t)
			sym.Extends = embeddedNames(t.Methods)
		default:
			sym.Kind = types.KindType
			sym.Signature = fmt.Sprintf("type %s %s", typeSpec.Name.Name, exprToString(typeSpec.Type))
		}

		e.symbols = append(e.symbols, sym)
	}
}

// analyzeBody computes the branch complexity of a body and the identifiers
// it calls, in first-appearance order.
func analyzeBody(body *ast.BlockStmt) (int, []string) {
	complexity := 1
	seen := make(map[string]bool)
	var calls []string

	ast.Inspect(body, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			complexity++
		case *ast.CaseClause:
			if node.List != nil {
				complexity++
			}
		case *ast.CommClause:
			if node.Comm != nil {
				complexity++
			}
		case *ast.BinaryExpr:
			if node.Op == token.LAND || node.Op == token.LOR {
				complexity++
			}
		case *ast.CallExpr:
			name := calleeName(node.Fun)
			if name != "" && !builtins[name] && !seen[name] {
				seen[name] = true
				calls = append(calls, name)
			}
		}
		return true
	})

	return complexity, calls
}

// calleeName returns the bare name of a called function or method
func calleeName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	case *ast.IndexExpr:
		return calleeName(f.X)
	case *ast.IndexListExpr:
		return calleeName(f.X)
	}
	return ""
}

// embeddedNames returns the type names of anonymous fields
func embeddedNames(fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var names []string
	for _, field := range fields.List {
		if len(field.Names) > 0 {
			continue
		}
		name := exprToString(field.Type)
		name = strings.TrimPrefix(name, "*")
		if name != "" && name != "..." {
			names = append(names, name)
		}
	}
	return names
}

// extractReceiverType extracts the receiver type name from a method
func (e *symbolExtractor) extractReceiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexExpr:
		return e.extractReceiverType(t.X)
	case *ast.IndexListExpr:
		return e.extractReceiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// extractFunctionSignature builds a function signature string
func (e *symbolExtractor) extractFunctionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")

	// Add receiver for methods
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(funcDecl.Name.Name)

	// Parameters
	sig.WriteString("(")
	if funcDecl.Type.Params != nil {
		sig.WriteString(fieldListToString(funcDecl.Type.Params))
	}
	sig.WriteString(")")

	// Results
	if funcDecl.Type.Results != nil {
		results := fieldListToString(funcDecl.Type.Results)
		if results != "" {
			if funcDecl.Type.Results.NumFields() > 1 || len(funcDecl.Type.Results.List[0].Names) > 0 {
				sig.WriteString(" (")
				sig.WriteString(results)
				sig.WriteString(")")
			} else {
				sig.WriteString(" ")
				sig.WriteString(results)
			}
		}
	}

	return sig.String()
}

// extractStructSignature builds a struct signature string
func (e *symbolExtractor) extractStructSignature(name string, structType *ast.StructType) string {
	fieldCount := 0
	if structType.Fields != nil {
		fieldCount = structType.Fields.NumFields()
	}
	return fmt.Sprintf("type %s struct { ... } // %d fields", name, fieldCount)
}

// extractInterfaceSignature builds an interface signature string
func (e *symbolExtractor) extractInterfaceSignature(name string, interfaceType *ast.InterfaceType) string {
	methodCount := 0
	if interfaceType.Methods != nil {
		methodCount = interfaceType.Methods.NumFields()
	}
	return fmt.Sprintf("type %s interface { ... } // %d methods", name, methodCount)
}

// fieldListToString converts a field list to a string representation
func fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}

	return strings.Join(parts, ", ")
}

// exprToString converts an expression to a string representation
func exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	default:
		return "..."
	}
}

// extractDocComment extracts documentation from a comment group
func (e *symbolExtractor) extractDocComment(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// positionFromToken converts a token position to our Position type
func (e *symbolExtractor) positionFromToken(pos token.Pos) types.Position {
	position := e.fset.Position(pos)
	return types.Position{
		Line:   position.Line,
		Column: position.Column,
	}
}
