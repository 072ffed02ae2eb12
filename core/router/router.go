// Package router maps (method, path) pairs onto registered handlers
// using a trie keyed by path segments. Literal edges win over the
// single named-parameter edge a node may carry, and a miss is reported
// as either not-found or method-not-allowed so the server can answer
// 404 and 405 distinctly.
package router

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/searchktools/httpcore/core/http"
)

// Params maps a pattern's parameter names onto the decoded segment
// values of a matched request path.
type Params map[string]string

// MatchKind is the routing outcome. Exactly one of the three applies
// to any lookup.
type MatchKind int

const (
	MatchFound MatchKind = iota
	MatchMethodNotAllowed
	MatchNotFound
)

// Match is the result of a Lookup.
type Match struct {
	Kind    MatchKind
	Handler any
	Params  Params

	// Allow lists the methods registered at the matched path, in
	// canonical order. Populated for MatchMethodNotAllowed.
	Allow []string
}

var (
	// ErrFrozen is returned when registration is attempted after the
	// table was frozen.
	ErrFrozen = errors.New("router: route table is frozen")

	// ErrBadEscape is returned by Lookup for an invalid percent escape
	// in the request path.
	ErrBadEscape = errors.New("router: invalid percent escape in path")
)

type node struct {
	literals  map[string]*node
	param     *node
	paramName string
	handlers  map[string]any
}

func newNode() *node {
	return &node{}
}

// Router is built once during setup and then frozen; lookups after the
// freeze are lock-free because the trie is immutable.
type Router struct {
	root   *node
	frozen atomic.Bool
}

// New creates an empty router.
func New() *Router {
	return &Router{root: newNode()}
}

// Handle registers handler for (method, pattern). It fails fast on an
// unknown method, a malformed pattern, a duplicate (method, pattern),
// a conflicting parameter name, or a frozen table.
func (r *Router) Handle(method, pattern string, handler any) error {
	if r.frozen.Load() {
		return ErrFrozen
	}
	if !knownMethod(method) {
		return fmt.Errorf("router: unknown method %q", method)
	}
	if handler == nil {
		return fmt.Errorf("router: nil handler for %s %s", method, pattern)
	}

	segs, err := patternSegments(pattern)
	if err != nil {
		return err
	}

	n := r.root
	seen := make(map[string]struct{})
	for _, seg := range segs {
		if name, ok := strings.CutPrefix(seg, ":"); ok {
			if name == "" {
				return fmt.Errorf("router: unnamed parameter in %q", pattern)
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("router: duplicate parameter %q in %q", name, pattern)
			}
			seen[name] = struct{}{}
			if n.param == nil {
				n.param = newNode()
				n.param.paramName = name
			} else if n.param.paramName != name {
				return fmt.Errorf("router: parameter name conflict at %q: %q vs %q",
					pattern, name, n.param.paramName)
			}
			n = n.param
			continue
		}
		if n.literals == nil {
			n.literals = make(map[string]*node)
		}
		child, ok := n.literals[seg]
		if !ok {
			child = newNode()
			n.literals[seg] = child
		}
		n = child
	}

	if n.handlers == nil {
		n.handlers = make(map[string]any)
	}
	if _, dup := n.handlers[method]; dup {
		return fmt.Errorf("router: duplicate route %s %s", method, pattern)
	}
	n.handlers[method] = handler
	return nil
}

// Freeze makes the table immutable. Called by the server before it
// starts accepting; lookups never observe a mutating trie.
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether registration has been closed.
func (r *Router) Frozen() bool {
	return r.frozen.Load()
}

// Lookup resolves (method, path). The error is non-nil only for an
// undecodable path, which the caller treats as malformed input rather
// than a routing miss.
func (r *Router) Lookup(method, path string) (Match, error) {
	segs, err := pathSegments(path)
	if err != nil {
		return Match{}, err
	}

	n, caps, ok := r.root.match(segs, nil)
	if !ok {
		return Match{Kind: MatchNotFound}, nil
	}

	handler := n.handlers[method]
	if handler == nil && method == "HEAD" {
		// A HEAD request is served by the GET handler; the serializer
		// strips the body.
		handler = n.handlers["GET"]
	}
	if handler == nil {
		return Match{Kind: MatchMethodNotAllowed, Allow: n.allowed()}, nil
	}

	params := make(Params, len(caps))
	for _, c := range caps {
		params[c.name] = c.value
	}
	return Match{Kind: MatchFound, Handler: handler, Params: params}, nil
}

type capture struct {
	name  string
	value string
}

// match walks the trie preferring literal edges, falling back to the
// parameter edge when the literal subtree has no terminal.
func (n *node) match(segs []string, caps []capture) (*node, []capture, bool) {
	if len(segs) == 0 {
		if len(n.handlers) > 0 {
			return n, caps, true
		}
		return nil, nil, false
	}
	if child, ok := n.literals[segs[0]]; ok {
		if m, c, ok := child.match(segs[1:], caps); ok {
			return m, c, true
		}
	}
	if n.param != nil {
		next := append(caps, capture{name: n.param.paramName, value: segs[0]})
		if m, c, ok := n.param.match(segs[1:], next); ok {
			return m, c, true
		}
	}
	return nil, nil, false
}

// allowed returns the methods registered at the node in canonical
// order, with HEAD implied by GET.
func (n *node) allowed() []string {
	var out []string
	for _, m := range http.Methods() {
		name := m.String()
		if _, ok := n.handlers[name]; ok {
			out = append(out, name)
			continue
		}
		if name == "HEAD" {
			if _, ok := n.handlers["GET"]; ok {
				out = append(out, name)
			}
		}
	}
	return out
}

func knownMethod(method string) bool {
	for _, m := range http.Methods() {
		if m.String() == method {
			return true
		}
	}
	return false
}

// patternSegments validates and splits a registration pattern.
// Trailing slashes are normalized away except for the root.
func patternSegments(pattern string) ([]string, error) {
	if pattern == "*" {
		return []string{"*"}, nil
	}
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("router: pattern %q must begin with '/'", pattern)
	}
	if pattern == "/" {
		return nil, nil
	}
	pattern = strings.TrimSuffix(pattern, "/")
	segs := strings.Split(pattern[1:], "/")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("router: empty segment in pattern %q", pattern)
		}
	}
	return segs, nil
}

// pathSegments normalizes and splits a request path, percent-decoding
// each segment exactly once for comparison and capture.
func pathSegments(path string) ([]string, error) {
	if path == "*" {
		return []string{"*"}, nil
	}
	if path == "" || path[0] != '/' {
		return nil, ErrBadEscape
	}
	if path == "/" {
		return nil, nil
	}
	path = strings.TrimSuffix(path, "/")
	raw := strings.Split(path[1:], "/")
	segs := make([]string, len(raw))
	for i, seg := range raw {
		dec, ok := http.Unescape(seg)
		if !ok {
			return nil, ErrBadEscape
		}
		segs[i] = dec
	}
	return segs, nil
}
