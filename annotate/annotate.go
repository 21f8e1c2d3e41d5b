// Package annotate drives the incremental currency-annotation pipeline over
// one or more page trees: classify text nodes, queue them, and rewrite each
// queued node at the next batch boundary, staying in sync as the trees
// mutate. One Annotator owns all mutable pipeline state (the enabled gate,
// the pending set, and the processed-text cache) so nothing leaks into
// package-level bindings.
package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/cadecuddy/money-dollar/control"
	"github.com/cadecuddy/money-dollar/page"
	"github.com/cadecuddy/money-dollar/rewrite"
)

// Annotator is the pipeline controller. Create one per document lifetime;
// teardown is dropping it.
type Annotator struct {
	logger *slog.Logger
	window time.Duration

	// enabled gates both enqueueing and rewriting.
	enabled atomic.Bool

	mu sync.Mutex
	// pending is the deduplicated set of nodes awaiting rewrite, keyed by
	// node with the owning tree as value (a node's text is written back
	// through its own root).
	pending map[*html.Node]*page.Tree
	// lastText caches the last text this pipeline produced for a node.
	// A rewrite triggers a TextChanged event for the node it just wrote;
	// without the cache that event would re-queue the node forever.
	lastText map[*html.Node]string
	// flushScheduled coalesces flush scheduling: while a flush is pending,
	// further enqueues do not schedule another.
	flushScheduled bool
	trees          []*page.Tree
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Annotator) { a.logger = l }
}

// WithFlushWindow sets the batch boundary interval. Zero or negative
// disables the timer; callers drive flushes explicitly via Flush (one-shot
// processing and tests).
func WithFlushWindow(d time.Duration) Option {
	return func(a *Annotator) { a.window = d }
}

// WithEnabled sets the initial gate state. Default: enabled. Pass the value
// read from persisted state at startup.
func WithEnabled(on bool) Option {
	return func(a *Annotator) { a.enabled.Store(on) }
}

// New creates an Annotator.
func New(opts ...Option) *Annotator {
	a := &Annotator{
		logger:   slog.Default(),
		window:   DefaultFlushWindow,
		pending:  make(map[*html.Node]*page.Tree),
		lastText: make(map[*html.Node]string),
	}
	a.enabled.Store(true)
	for _, o := range opts {
		o(a)
	}
	return a
}

// Enabled reports the gate state.
func (a *Annotator) Enabled() bool { return a.enabled.Load() }

// Attach wires the annotator to a tree: observe its mutations, install the
// shadow-attach hook (no-op when already installed for the document), and,
// when enabled, enumerate its current content. Shadow trees attached later
// are picked up through the hook without any top-level rewalk.
func (a *Annotator) Attach(t *page.Tree) {
	a.mu.Lock()
	a.trees = append(a.trees, t)
	a.mu.Unlock()

	t.OnShadowAttach(func(sh *page.Tree) { a.Attach(sh) })
	t.Observe(func(ev page.Event) { a.onEvent(ev) })

	if a.enabled.Load() {
		a.Scan(t)
	}
}

// Toggle sets the gate. Transitioning into enabled re-enumerates every
// attached tree so text that accumulated while disabled gets annotated.
// Transitioning into disabled reverses nothing.
func (a *Annotator) Toggle(on bool) {
	prev := a.enabled.Swap(on)
	if on == prev {
		return
	}
	a.logger.Info("annotate: toggled", "enabled", on)
	if !on {
		return
	}
	a.mu.Lock()
	trees := make([]*page.Tree, len(a.trees))
	copy(trees, a.trees)
	a.mu.Unlock()
	for _, t := range trees {
		a.Scan(t)
	}
}

// HandleMessage is a control.Handler: it accepts a TOGGLE_STATE message and
// applies it to the gate.
func (a *Annotator) HandleMessage(_ context.Context, payload []byte) ([]byte, error) {
	var msg control.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("annotate: decode message: %w", err)
	}
	if msg.Type != control.TypeToggleState {
		return nil, fmt.Errorf("annotate: unknown message type %q", msg.Type)
	}
	a.Toggle(msg.Enabled)
	return json.Marshal(map[string]bool{"enabled": msg.Enabled})
}

// Scan enumerates a tree's current content into the queue. A text root is
// queued directly; anything else is walked with skip-context subtrees
// pruned during the walk.
func (a *Annotator) Scan(t *page.Tree) {
	a.enumerate(t, t.Root())
}

func (a *Annotator) onEvent(ev page.Event) {
	switch ev.Op {
	case page.TextChanged:
		a.enqueue(ev.Tree, ev.Node)
	case page.NodeAdded:
		a.enumerate(ev.Tree, ev.Node)
	case page.NodeRemoved:
		a.forget(ev.Node)
	}
}

func (a *Annotator) enumerate(t *page.Tree, root *html.Node) {
	if root == nil {
		return
	}
	if root.Type == html.TextNode {
		a.enqueue(t, root)
		return
	}
	page.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (skipAtoms[n.DataAtom] || isEditable(n)) {
			return false
		}
		if n.Type == html.TextNode {
			a.enqueue(t, n)
		}
		return true
	})
}

// enqueue runs the classifier and, on acceptance, inserts the node into the
// pending set and schedules a flush if none is pending.
func (a *Annotator) enqueue(t *page.Tree, n *html.Node) {
	if !a.shouldProcess(n) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[n] = t
	if a.flushScheduled || a.window <= 0 {
		return
	}
	a.flushScheduled = true
	time.AfterFunc(a.window, a.Flush)
}

// Flush processes the queued nodes: re-classify, skip detached nodes and
// nodes whose text matches the cache, rewrite the rest. The queue is
// cleared unconditionally, skipped entries included. A panic while
// rewriting one node is logged and does not stop the batch.
func (a *Annotator) Flush() {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[*html.Node]*page.Tree)
	a.flushScheduled = false
	a.mu.Unlock()

	for n, t := range batch {
		a.rewriteNode(t, n)
	}
}

func (a *Annotator) rewriteNode(t *page.Tree, n *html.Node) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("annotate: node rewrite panic", "panic", r)
		}
	}()

	// State may have changed since enqueue.
	if !a.shouldProcess(n) || !t.Contains(n) {
		return
	}

	cur := n.Data
	a.mu.Lock()
	last, seen := a.lastText[n]
	a.mu.Unlock()
	if seen && last == cur {
		return
	}

	out, changed := rewrite.Rewrite(cur)

	// Record before writing back: the write dispatches a TextChanged event
	// that re-queues the node, and the next flush must see it as current.
	a.mu.Lock()
	a.lastText[n] = out
	a.mu.Unlock()

	if changed {
		t.SetText(n, out)
		a.logger.Debug("annotate: node rewritten", "len", len(out))
	}
}

// forget drops cache and queue entries for a removed subtree.
func (a *Annotator) forget(root *html.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	page.Walk(root, func(n *html.Node) bool {
		delete(a.lastText, n)
		delete(a.pending, n)
		return true
	})
}

// PendingCount reports the queue size. Intended for status surfaces.
func (a *Annotator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
