// Package page wraps a golang.org/x/net/html parse tree with the mutation
// surface the annotator needs: mutators that emit change events, per-root
// observers, and isolated shadow sub-roots whose mutations never reach the
// parent tree's observers.
//
// A document and its shadow trees share one mutex; all operations on them
// must come from one goroutine at a time, and observer callbacks run
// synchronously while that lock is held. Observers must therefore never
// mutate the tree from inside a callback — record the node and act later,
// which is exactly what a mutation queue is for.
package page

import (
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Op is the kind of mutation observed on a tree.
type Op int

const (
	TextChanged Op = iota
	NodeAdded
	NodeRemoved
)

// Event describes one mutation. Node is the changed text node for
// TextChanged, or the root of the added/removed subtree otherwise.
type Event struct {
	Op   Op
	Node *html.Node
	Tree *Tree
}

// document is the shared registry behind a parsed document and every shadow
// tree attached beneath it.
type document struct {
	mu      sync.Mutex
	shadows map[*html.Node]*Tree
	hook    func(*Tree)
}

// Tree is an observable DOM root: either a parsed document or a shadow
// sub-root. Shadow trees share the owning document's lock and attach hook
// but keep their own observer list.
type Tree struct {
	doc       *document
	root      *html.Node
	host      *html.Node // non-nil for shadow trees
	observers map[int]func(Event)
	nextObs   int
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Tree, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Tree{
		doc:       &document{shadows: make(map[*html.Node]*Tree)},
		root:      root,
		observers: make(map[int]func(Event)),
	}, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Tree, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the tree's root node. For a parsed document this is the
// DocumentNode; for a shadow tree, the synthetic shadow container.
func (t *Tree) Root() *html.Node { return t.root }

// Host returns the shadow host element, or nil for a document tree.
func (t *Tree) Host() *html.Node { return t.host }

// Observe registers fn for mutations under this root only. The returned
// function cancels the registration.
func (t *Tree) Observe(fn func(Event)) (cancel func()) {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	return func() {
		t.doc.mu.Lock()
		defer t.doc.mu.Unlock()
		delete(t.observers, id)
	}
}

// OnShadowAttach installs the document-wide hook fired whenever a shadow
// tree is attached anywhere under this document, including inside other
// shadow trees. Installation happens once: repeat calls are no-ops.
func (t *Tree) OnShadowAttach(hook func(*Tree)) {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if t.doc.hook != nil {
		return
	}
	t.doc.hook = hook
}

// SetText replaces a text node's content and notifies observers.
func (t *Tree) SetText(n *html.Node, text string) {
	if n == nil || n.Type != html.TextNode {
		return
	}
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if n.Data == text {
		return
	}
	n.Data = text
	t.dispatch(Event{Op: TextChanged, Node: n, Tree: t})
}

// AppendChild attaches a detached node under parent and notifies observers.
func (t *Tree) AppendChild(parent, child *html.Node) {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	parent.AppendChild(child)
	t.dispatch(Event{Op: NodeAdded, Node: child, Tree: t})
}

// AppendHTML parses an HTML fragment and appends the resulting nodes under
// parent, emitting one NodeAdded event per top-level node.
func (t *Tree) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	if parent.Type == html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: parent.Data, DataAtom: parent.DataAtom}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, err
	}
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	for _, n := range nodes {
		parent.AppendChild(n)
		t.dispatch(Event{Op: NodeAdded, Node: n, Tree: t})
	}
	return nodes, nil
}

// RemoveChild detaches n from its parent and notifies observers.
func (t *Tree) RemoveChild(n *html.Node) {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
	t.dispatch(Event{Op: NodeRemoved, Node: n, Tree: t})
}

// AttachShadow creates an isolated sub-root under host. Host must be an
// element without an existing shadow. Mutations inside the shadow tree are
// only visible to observers registered on it, and its content is not part
// of the parent tree's render output.
func (t *Tree) AttachShadow(host *html.Node) (*Tree, error) {
	if host == nil || host.Type != html.ElementNode {
		return nil, errors.New("page: shadow host must be an element")
	}
	t.doc.mu.Lock()
	if _, exists := t.doc.shadows[host]; exists {
		t.doc.mu.Unlock()
		return nil, errors.New("page: host already has a shadow root")
	}
	sh := &Tree{
		doc:       t.doc,
		root:      &html.Node{Type: html.ElementNode, Data: "shadow-root"},
		host:      host,
		observers: make(map[int]func(Event)),
	}
	t.doc.shadows[host] = sh
	hook := t.doc.hook
	t.doc.mu.Unlock()

	if hook != nil {
		hook(sh)
	}
	return sh, nil
}

// Shadow returns the shadow tree attached to host, or nil.
func (t *Tree) Shadow(host *html.Node) *Tree {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.doc.shadows[host]
}

// Contains reports whether n is still attached under this tree's root.
func (t *Tree) Contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == t.root {
			return true
		}
	}
	return false
}

// Render serialises the tree. Shadow content is not included when rendering
// a document tree; render the shadow tree itself to see it.
func (t *Tree) Render(w io.Writer) error {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return html.Render(w, t.root)
}

// RenderString returns the serialised tree.
func (t *Tree) RenderString() (string, error) {
	var sb strings.Builder
	if err := t.Render(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// dispatch runs with doc.mu held.
func (t *Tree) dispatch(ev Event) {
	for _, fn := range t.observers {
		fn(ev)
	}
}

// Walk traverses n's subtree depth-first. fn returning false prunes the
// node's descendants.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// FirstText returns the first text node under root whose content contains
// substr. Intended for tests and tooling.
func FirstText(root *html.Node, substr string) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.TextNode && strings.Contains(n.Data, substr) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FirstElement returns the first element under root with the given atom.
func FirstElement(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}
