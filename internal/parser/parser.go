// File path: internal/parser/parser.go
package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/codeproof/codeproof/internal/model"
)

// FileResult is everything extracted from one source file.
type FileResult struct {
	Symbols   []model.Symbol
	Routes    []model.Route
	Migration *model.Migration
	Errors    []model.ParseError
}

// Extractor parses PHP sources and emits symbols, resolved routes and
// migration summaries. An Extractor is not safe for concurrent use; create
// one per worker goroutine.
type Extractor struct {
	parser *sitter.Parser
}

// NewExtractor builds an extractor with a PHP grammar attached.
func NewExtractor() *Extractor {
	p := sitter.NewParser()
	p.SetLanguage(php.GetLanguage())
	return &Extractor{parser: p}
}

// ExtractFile parses one file. Route resolution runs only for files under a
// routes/ directory, migration classification only under migrations/. A
// parse error withholds routes for the file but symbols are still emitted
// from the parseable subtree.
func (e *Extractor) ExtractFile(ctx context.Context, path string, content []byte) (*FileResult, error) {
	result := &FileResult{}
	if !strings.HasSuffix(path, ".php") {
		return result, nil
	}
	tree, err := e.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()
	root := tree.RootNode()

	broken := root.HasError()
	if broken {
		errNode := firstErrorNode(root)
		parseErr := model.ParseError{FilePath: path, Line: 1, Column: 0, Message: "syntax error"}
		if errNode != nil {
			point := errNode.StartPoint()
			parseErr.Line = int(point.Row) + 1
			parseErr.Column = int(point.Column)
		}
		result.Errors = append(result.Errors, parseErr)
	}

	result.Symbols = extractSymbols(root, content, path)

	if isRouteFile(path) && !broken {
		result.Routes = extractRoutes(root, content, path)
	}
	if isMigrationFile(path) {
		result.Migration = extractMigration(path, content)
	}
	return result, nil
}

func isRouteFile(path string) bool {
	return strings.Contains(strings.ToLower(path), "routes/") && strings.HasSuffix(path, ".php")
}

func isMigrationFile(path string) bool {
	return strings.Contains(strings.ToLower(path), "migrations/") && strings.HasSuffix(path, ".php")
}

// extractSymbols walks the tree collecting classes, interfaces, traits,
// functions, methods and constants. Qualified names are composed from the
// literal namespace text; imported-class resolution is intentionally not
// attempted.
func extractSymbols(root *sitter.Node, src []byte, path string) []model.Symbol {
	walker := &symbolWalker{src: src, path: path}
	walker.walk(root)
	for i := range walker.symbols {
		walker.symbols[i].SearchText = walker.symbols[i].BuildSearchText()
	}
	return walker.symbols
}

type symbolWalker struct {
	src       []byte
	path      string
	namespace string
	symbols   []model.Symbol
}

func (w *symbolWalker) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "namespace_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			w.namespace = nodeText(name, w.src)
		}
	case "class_declaration":
		w.emitType(n, model.KindClass)
		return
	case "interface_declaration":
		w.emitType(n, model.KindInterface)
		return
	case "trait_declaration":
		w.emitType(n, model.KindTrait)
		return
	case "function_definition":
		w.emitFunction(n)
		return
	case "const_declaration":
		w.emitConstants(n, "")
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i))
	}
}

func (w *symbolWalker) emitType(n *sitter.Node, kind model.SymbolKind) {
	name := nodeText(n.ChildByFieldName("name"), w.src)
	if name == "" {
		return
	}
	qualified := w.qualify(name)
	w.symbols = append(w.symbols, model.Symbol{
		FilePath:      w.path,
		Name:          name,
		QualifiedName: qualified,
		Kind:          kind,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Docstring:     docComment(n, w.src),
	})
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member == nil {
			continue
		}
		switch member.Type() {
		case "method_declaration":
			w.emitMethod(member, qualified)
		case "const_declaration":
			w.emitConstants(member, qualified)
		}
	}
}

func (w *symbolWalker) emitMethod(n *sitter.Node, parent string) {
	name := nodeText(n.ChildByFieldName("name"), w.src)
	if name == "" {
		return
	}
	visibility := ""
	isStatic := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "visibility_modifier":
			visibility = nodeText(child, w.src)
		case "static_modifier":
			isStatic = true
		}
	}
	w.symbols = append(w.symbols, model.Symbol{
		FilePath:      w.path,
		Name:          name,
		QualifiedName: parent + "::" + name,
		Kind:          model.KindMethod,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     nodeText(n.ChildByFieldName("parameters"), w.src),
		Docstring:     docComment(n, w.src),
		ParentSymbol:  parent,
		Visibility:    visibility,
		IsStatic:      isStatic,
	})
}

func (w *symbolWalker) emitFunction(n *sitter.Node) {
	name := nodeText(n.ChildByFieldName("name"), w.src)
	if name == "" {
		return
	}
	w.symbols = append(w.symbols, model.Symbol{
		FilePath:      w.path,
		Name:          name,
		QualifiedName: w.qualify(name),
		Kind:          model.KindFunction,
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Signature:     nodeText(n.ChildByFieldName("parameters"), w.src),
		Docstring:     docComment(n, w.src),
	})
}

func (w *symbolWalker) emitConstants(n *sitter.Node, parent string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		element := n.NamedChild(i)
		if element == nil || element.Type() != "const_element" {
			continue
		}
		name := nodeText(element.NamedChild(0), w.src)
		if name == "" {
			continue
		}
		qualified := w.qualify(name)
		if parent != "" {
			qualified = parent + "::" + name
		}
		w.symbols = append(w.symbols, model.Symbol{
			FilePath:      w.path,
			Name:          name,
			QualifiedName: qualified,
			Kind:          model.KindConstant,
			StartLine:     int(element.StartPoint().Row) + 1,
			EndLine:       int(element.EndPoint().Row) + 1,
			ParentSymbol:  parent,
		})
	}
}

func (w *symbolWalker) qualify(name string) string {
	if w.namespace == "" {
		return name
	}
	return w.namespace + "\\" + name
}

// docComment returns the doc block immediately preceding a declaration.
func docComment(n *sitter.Node, src []byte) string {
	prev := n.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	text := nodeText(prev, src)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}
