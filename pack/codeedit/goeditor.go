package codeedit

import (
	"context"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// GoEditor edits Go source files.
type GoEditor struct{}

var _ Editor = GoEditor{}

type element struct {
	name       string
	start, end token.Pos
}

// Elements lists functions, methods (as Type.Method), types, constants and
// variables in declaration order.
func (GoEditor) Elements(_ context.Context, source string) ([]string, error) {
	_, f, err := parseGo(source)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, d := range f.Decls {
		for _, el := range elementsOf(d) {
			names = append(names, el.name)
		}
	}
	return names, nil
}

// ReplaceElement swaps the declaration called name for code and gofmts the
// result. A receiver may be written as T.M, (*T).M or *T.M.
func (GoEditor) ReplaceElement(_ context.Context, source, name, code string) (string, error) {
	fset, f, err := parseGo(source)
	if err != nil {
		return "", err
	}
	want := normalizeName(name)
	for _, d := range f.Decls {
		for _, el := range elementsOf(d) {
			if el.name != want {
				continue
			}
			file := fset.File(f.Pos())
			start, end := file.Offset(el.start), file.Offset(el.end)
			return formatGo(source[:start] + strings.TrimSpace(code) + source[end:])
		}
	}
	return "", fmt.Errorf("%w: %s", ErrElementNotFound, name)
}

// AddImport adds path (optionally named alias) to the import block.
func (GoEditor) AddImport(_ context.Context, source, path, alias string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty import path", ErrInvalidSource)
	}
	fset, f, err := parseGo(source)
	if err != nil {
		return "", err
	}
	for _, imp := range f.Imports {
		existing, _ := strconv.Unquote(imp.Path.Value)
		if existing != path {
			continue
		}
		if alias == "" || (imp.Name != nil && imp.Name.Name == alias) {
			return source, nil
		}
	}

	spec := strconv.Quote(path)
	if alias != "" {
		spec = alias + " " + spec
	}

	var last *ast.GenDecl
	for _, d := range f.Decls {
		if g, ok := d.(*ast.GenDecl); ok && g.Tok == token.IMPORT {
			last = g
		}
	}

	file := fset.File(f.Pos())
	var out string
	switch {
	case last == nil:
		off := file.Offset(f.Name.End())
		out = source[:off] + "\n\nimport " + spec + "\n" + source[off:]
	case last.Lparen.IsValid():
		off := file.Offset(last.Rparen)
		out = source[:off] + "\t" + spec + "\n" + source[off:]
	default:
		start, end := file.Offset(last.Pos()), file.Offset(last.End())
		current := source[file.Offset(last.Specs[0].Pos()):file.Offset(last.Specs[0].End())]
		out = source[:start] + "import (\n\t" + current + "\n\t" + spec + "\n)" + source[end:]
	}
	return formatGo(out)
}

func parseGo(source string) (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "source.go", source, parser.ParseComments)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return fset, f, nil
}

func formatGo(source string) (string, error) {
	out, err := format.Source([]byte(source))
	if err != nil {
		return "", fmt.Errorf("%w: edit does not compile as Go: %v", ErrInvalidSource, err)
	}
	return string(out), nil
}

// elementsOf returns the named ranges of a declaration. Ranges include the
// doc comment; grouped declarations yield one range per spec.
func elementsOf(d ast.Decl) []element {
	switch d := d.(type) {
	case *ast.FuncDecl:
		return []element{{name: funcName(d), start: withDoc(d.Pos(), d.Doc), end: d.End()}}
	case *ast.GenDecl:
		if d.Tok == token.IMPORT || len(d.Specs) == 0 {
			return nil
		}
		var out []element
		if !d.Lparen.IsValid() {
			for _, n := range specNames(d.Specs[0]) {
				out = append(out, element{name: n, start: withDoc(d.Pos(), d.Doc), end: d.End()})
			}
			return out
		}
		for _, s := range d.Specs {
			start := withDoc(s.Pos(), specDoc(s))
			for _, n := range specNames(s) {
				out = append(out, element{name: n, start: start, end: s.End()})
			}
		}
		return out
	}
	return nil
}

func withDoc(pos token.Pos, doc *ast.CommentGroup) token.Pos {
	if doc != nil {
		return doc.Pos()
	}
	return pos
}

func specNames(s ast.Spec) []string {
	switch s := s.(type) {
	case *ast.TypeSpec:
		return []string{s.Name.Name}
	case *ast.ValueSpec:
		names := make([]string, len(s.Names))
		for i, n := range s.Names {
			names[i] = n.Name
		}
		return names
	}
	return nil
}

func specDoc(s ast.Spec) *ast.CommentGroup {
	switch s := s.(type) {
	case *ast.TypeSpec:
		return s.Doc
	case *ast.ValueSpec:
		return s.Doc
	}
	return nil
}

func funcName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return d.Name.Name
	}
	return receiverType(d.Recv.List[0].Type) + "." + d.Name.Name
}

func receiverType(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.ParenExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func normalizeName(name string) string {
	return strings.NewReplacer("(", "", ")", "", "*", "", " ", "").Replace(name)
}
