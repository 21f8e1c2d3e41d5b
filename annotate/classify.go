package annotate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cadecuddy/money-dollar/rewrite"
)

// skipAtoms are element types whose text must never be rewritten: code and
// preformatted regions, form controls, and script/style payloads.
var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Code:     true,
	atom.Pre:      true,
	atom.Kbd:      true,
	atom.Samp:     true,
	atom.Textarea: true,
	atom.Input:    true,
	atom.Select:   true,
	atom.Option:   true,
	atom.Button:   true,
}

// inSkipContext reports whether any element ancestor of n is a skip context
// or an explicitly editable region.
func inSkipContext(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if skipAtoms[p.DataAtom] {
			return true
		}
		if isEditable(p) {
			return true
		}
	}
	return false
}

// isEditable detects contenteditable elements. An empty attribute value
// means "true" per the HTML spec.
func isEditable(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "contenteditable" {
			return !strings.EqualFold(a.Val, "false")
		}
	}
	return false
}

// shouldProcess is the text classifier: a node is eligible iff the gate is
// on, its text is non-empty after trimming, it carries a currency glyph,
// and it sits outside every skip context.
func (a *Annotator) shouldProcess(n *html.Node) bool {
	if !a.enabled.Load() {
		return false
	}
	if n == nil || n.Type != html.TextNode {
		return false
	}
	if strings.TrimSpace(n.Data) == "" {
		return false
	}
	if !rewrite.ContainsSymbol(n.Data) {
		return false
	}
	return !inSkipContext(n)
}
