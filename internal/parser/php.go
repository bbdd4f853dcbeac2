// File path: internal/parser/php.go
package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// nodeText returns the source text covered by a node.
func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// stringLiteral unwraps a PHP string literal node to its value. Both
// single-quoted ("string") and double-quoted ("encapsed_string") literals
// appear in route files; interpolated strings are returned verbatim without
// their quotes.
func stringLiteral(n *sitter.Node, src []byte) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "encapsed_string":
		text := nodeText(n, src)
		if len(text) >= 2 {
			first, last := text[0], text[len(text)-1]
			if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
				return text[1 : len(text)-1], true
			}
		}
		return text, true
	}
	return "", false
}

// callArguments returns the inner expression of every positional argument.
func callArguments(args *sitter.Node) []*sitter.Node {
	if args == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg == nil {
			continue
		}
		if arg.Type() == "argument" {
			if inner := arg.NamedChild(0); inner != nil {
				out = append(out, inner)
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}

// stringOrArray flattens a string literal or an array of string literals,
// preserving order. Used for middleware arguments.
func stringOrArray(n *sitter.Node, src []byte) []string {
	if n == nil {
		return nil
	}
	if value, ok := stringLiteral(n, src); ok {
		return []string{value}
	}
	if n.Type() != "array_creation_expression" {
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		element := n.NamedChild(i)
		if element == nil {
			continue
		}
		value := element
		if element.Type() == "array_element_initializer" {
			// value is the last named child (key => value form included)
			count := int(element.NamedChildCount())
			if count == 0 {
				continue
			}
			value = element.NamedChild(count - 1)
		}
		if literal, ok := stringLiteral(value, src); ok {
			out = append(out, literal)
		}
	}
	return out
}

// classConstantScope returns the class name of a `Foo::class` expression.
func classConstantScope(n *sitter.Node, src []byte) (string, bool) {
	if n == nil || n.Type() != "class_constant_access_expression" {
		return "", false
	}
	count := int(n.NamedChildCount())
	if count < 2 {
		return "", false
	}
	member := n.NamedChild(count - 1)
	if member == nil || nodeText(member, src) != "class" {
		return "", false
	}
	scope := nodeText(n.NamedChild(0), src)
	return strings.TrimPrefix(scope, "\\"), true
}

// isClosure reports whether a node is an anonymous function or arrow
// function expression.
func isClosure(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "anonymous_function_creation_expression", "arrow_function", "anonymous_function":
		return true
	}
	return false
}

// closureBody finds the statement body of a closure node.
func closureBody(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if body := n.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child != nil && child.Type() == "compound_statement" {
			return child
		}
	}
	return nil
}

// firstErrorNode locates the first ERROR or missing node in a parse tree.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
