// File path: internal/parser/routes.go
package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codeproof/codeproof/internal/model"
)

var httpMethods = map[string]string{
	"get":     "GET",
	"post":    "POST",
	"put":     "PUT",
	"patch":   "PATCH",
	"delete":  "DELETE",
	"options": "OPTIONS",
	"any":     "ANY",
}

// resourceActions is the canonical 7-route expansion, in declaration order.
// apiResource omits create and edit.
var resourceActions = []struct {
	Action string
	Method string
	Suffix string
}{
	{"index", "GET", ""},
	{"create", "GET", "/create"},
	{"store", "POST", ""},
	{"show", "GET", "/{id}"},
	{"edit", "GET", "/{id}/edit"},
	{"update", "PUT", "/{id}"},
	{"destroy", "DELETE", "/{id}"},
}

// frame is one inherited group context: a prefix and an ordered middleware
// chain. Frames are immutable; nesting pushes a derived frame and pops it
// when the closure ends.
type frame struct {
	prefix     string
	middleware []string
}

func (f frame) child(prefix string, middleware []string) frame {
	combined := make([]string, 0, len(f.middleware)+len(middleware))
	combined = append(combined, f.middleware...)
	combined = append(combined, middleware...)
	return frame{prefix: joinPrefix(f.prefix, prefix), middleware: combined}
}

// joinPrefix composes group prefixes: both sides are trimmed of slashes; two
// non-empty parts join as "/a/b", one part as "/a", none as "/".
func joinPrefix(parent, child string) string {
	parent = strings.Trim(parent, "/")
	child = strings.Trim(child, "/")
	switch {
	case parent != "" && child != "":
		return "/" + parent + "/" + child
	case parent != "":
		return "/" + parent
	case child != "":
		return "/" + child
	default:
		return "/"
	}
}

// chainLink is one method call in a fluent Route chain, root-first.
type chainLink struct {
	method string
	args   *sitter.Node
	node   *sitter.Node
}

// extractRoutes resolves every route defined in a parsed route file.
func extractRoutes(root *sitter.Node, src []byte, path string) []model.Route {
	r := &routeResolver{src: src, path: path}
	r.walkScope(root, frame{})
	return r.routes
}

type routeResolver struct {
	src    []byte
	path   string
	routes []model.Route
}

// walkScope visits statements in one lexical scope under the given frame.
// Group closures recurse with a derived frame rather than mutating shared
// state.
func (r *routeResolver) walkScope(n *sitter.Node, f frame) {
	if n == nil {
		return
	}
	if links, ok := r.decomposeChain(n); ok {
		r.handleChain(links, f)
		return
	}
	if isClosure(n) {
		// closures reached here are not group bodies; routes inside them
		// are not statically resolvable
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		r.walkScope(n.NamedChild(i), f)
	}
}

// decomposeChain unrolls a fluent call chain rooted at the Route facade into
// links ordered root-first. Non-facade chains report ok=false.
func (r *routeResolver) decomposeChain(n *sitter.Node) ([]chainLink, bool) {
	if n == nil {
		return nil, false
	}
	var reversed []chainLink
	current := n
	for current != nil && current.Type() == "member_call_expression" {
		reversed = append(reversed, chainLink{
			method: nodeText(current.ChildByFieldName("name"), r.src),
			args:   current.ChildByFieldName("arguments"),
			node:   current,
		})
		current = current.ChildByFieldName("object")
	}
	if current == nil || current.Type() != "scoped_call_expression" {
		return nil, false
	}
	scope := strings.TrimPrefix(nodeText(current.ChildByFieldName("scope"), r.src), "\\")
	if scope != "Route" && !strings.HasSuffix(scope, "\\Route") {
		return nil, false
	}
	reversed = append(reversed, chainLink{
		method: nodeText(current.ChildByFieldName("name"), r.src),
		args:   current.ChildByFieldName("arguments"),
		node:   current,
	})
	links := make([]chainLink, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		links = append(links, reversed[i])
	}
	return links, true
}

func (r *routeResolver) handleChain(links []chainLink, f frame) {
	for _, link := range links {
		if link.method == "group" {
			r.handleGroup(links, link, f)
			return
		}
	}
	for _, link := range links {
		if _, ok := httpMethods[link.method]; ok {
			r.emitRoute(links, link, f)
			return
		}
		if link.method == "resource" || link.method == "apiResource" {
			r.emitResource(links, link, f)
			return
		}
	}
}

// handleGroup collects prefix and middleware from the non-terminal links,
// pushes the derived frame and recurses into the group closure.
func (r *routeResolver) handleGroup(links []chainLink, group chainLink, f frame) {
	prefix := ""
	var middleware []string
	for _, link := range links {
		if link.node == group.node {
			continue
		}
		args := callArguments(link.args)
		switch link.method {
		case "prefix":
			if len(args) > 0 {
				if value, ok := stringLiteral(args[0], r.src); ok {
					prefix = value
				}
			}
		case "middleware":
			if len(args) > 0 {
				middleware = append(middleware, stringOrArray(args[0], r.src)...)
			}
		}
	}
	for _, arg := range callArguments(group.args) {
		if isClosure(arg) {
			r.walkScope(closureBody(arg), f.child(prefix, middleware))
			return
		}
	}
}

func (r *routeResolver) emitRoute(links []chainLink, call chainLink, f frame) {
	args := callArguments(call.args)
	if len(args) == 0 {
		return
	}
	uri, ok := stringLiteral(args[0], r.src)
	if !ok {
		return
	}
	route := model.Route{
		Method:          httpMethods[call.method],
		URI:             uri,
		FullURI:         joinPrefix(f.prefix, uri),
		HandlerType:     model.HandlerUnknown,
		GroupPrefix:     strings.Trim(f.prefix, "/"),
		GroupMiddleware: append([]string(nil), f.middleware...),
		SourceFile:      r.path,
		StartLine:       int(call.node.StartPoint().Row) + 1,
	}
	if len(args) > 1 {
		route.Controller, route.Action, route.HandlerType = parseHandler(args[1], r.src)
	}
	ownMiddleware := r.chainMiddleware(links, call)
	route.Middleware = append(append([]string(nil), f.middleware...), ownMiddleware...)
	route.Name = r.chainName(links, call)
	r.routes = append(r.routes, route)
}

func (r *routeResolver) emitResource(links []chainLink, call chainLink, f frame) {
	args := callArguments(call.args)
	if len(args) < 2 {
		return
	}
	name, ok := stringLiteral(args[0], r.src)
	if !ok {
		return
	}
	controller, _ := classConstantScope(args[1], r.src)
	ownMiddleware := r.chainMiddleware(links, call)
	middleware := append(append([]string(nil), f.middleware...), ownMiddleware...)
	apiOnly := call.method == "apiResource"
	for _, action := range resourceActions {
		if apiOnly && (action.Action == "create" || action.Action == "edit") {
			continue
		}
		uri := name + action.Suffix
		r.routes = append(r.routes, model.Route{
			Method:          action.Method,
			URI:             uri,
			FullURI:         joinPrefix(f.prefix, uri),
			Name:            name + "." + action.Action,
			HandlerType:     model.HandlerController,
			Controller:      controller,
			Action:          action.Action,
			Middleware:      append([]string(nil), middleware...),
			GroupPrefix:     strings.Trim(f.prefix, "/"),
			GroupMiddleware: append([]string(nil), f.middleware...),
			SourceFile:      r.path,
			StartLine:       int(call.node.StartPoint().Row) + 1,
		})
	}
}

// chainMiddleware gathers the route's own middleware() calls, preserving
// chain order and duplicates.
func (r *routeResolver) chainMiddleware(links []chainLink, call chainLink) []string {
	var out []string
	for _, link := range links {
		if link.node == call.node || link.method != "middleware" {
			continue
		}
		args := callArguments(link.args)
		if len(args) > 0 {
			out = append(out, stringOrArray(args[0], r.src)...)
		}
	}
	return out
}

func (r *routeResolver) chainName(links []chainLink, call chainLink) string {
	for _, link := range links {
		if link.node == call.node || link.method != "name" {
			continue
		}
		args := callArguments(link.args)
		if len(args) > 0 {
			if value, ok := stringLiteral(args[0], r.src); ok {
				return value
			}
		}
	}
	return ""
}

// parseHandler classifies the second route argument: an [Class::class, 'm']
// array is a controller action, a bare Class::class an invokable, a closure
// stays anonymous, anything else is unknown.
func parseHandler(n *sitter.Node, src []byte) (controller, action string, kind model.HandlerType) {
	if n == nil {
		return "", "", model.HandlerUnknown
	}
	if isClosure(n) {
		return "", "", model.HandlerClosure
	}
	if class, ok := classConstantScope(n, src); ok {
		return class, "__invoke", model.HandlerInvokable
	}
	if n.Type() == "array_creation_expression" {
		var values []*sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			element := n.NamedChild(i)
			if element == nil {
				continue
			}
			if element.Type() == "array_element_initializer" {
				count := int(element.NamedChildCount())
				if count > 0 {
					values = append(values, element.NamedChild(count-1))
				}
				continue
			}
			values = append(values, element)
		}
		if len(values) == 2 {
			class, ok := classConstantScope(values[0], src)
			if !ok {
				return "", "", model.HandlerUnknown
			}
			method, ok := stringLiteral(values[1], src)
			if !ok {
				return class, "", model.HandlerUnknown
			}
			return class, method, model.HandlerController
		}
	}
	return "", "", model.HandlerUnknown
}
