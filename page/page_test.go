package page

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const sampleDoc = `<html><head><title>t</title></head><body>
<p id="a">first paragraph</p>
<div id="b"><span>nested text</span></div>
</body></html>`

func mustParse(t *testing.T, s string) *Tree {
	t.Helper()
	tree, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return tree
}

func TestSetText_EmitsEvent(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var events []Event
	tree.Observe(func(ev Event) { events = append(events, ev) })

	n := FirstText(tree.Root(), "first paragraph")
	if n == nil {
		t.Fatal("text node not found")
	}
	tree.SetText(n, "replaced")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Op != TextChanged || events[0].Node != n {
		t.Errorf("unexpected event %+v", events[0])
	}
	if n.Data != "replaced" {
		t.Errorf("node text = %q", n.Data)
	}

	// Same content again: no event.
	tree.SetText(n, "replaced")
	if len(events) != 1 {
		t.Errorf("unchanged SetText emitted event, got %d events", len(events))
	}
}

func TestAppendHTML_EmitsNodeAdded(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var added int
	tree.Observe(func(ev Event) {
		if ev.Op == NodeAdded {
			added++
		}
	})

	body := FirstElement(tree.Root(), atom.Body)
	nodes, err := tree.AppendHTML(body, `<p>one</p><p>two</p>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if added != 2 {
		t.Errorf("got %d NodeAdded events, want 2", added)
	}

	out, err := tree.RenderString()
	if err != nil {
		t.Fatalf("RenderString: %v", err)
	}
	if !strings.Contains(out, "<p>one</p><p>two</p>") {
		t.Errorf("render missing appended fragment: %s", out)
	}
}

func TestRemoveChild_EmitsNodeRemoved(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var removed *Event
	tree.Observe(func(ev Event) {
		if ev.Op == NodeRemoved {
			removed = &ev
		}
	})

	div := FirstElement(tree.Root(), atom.Div)
	tree.RemoveChild(div)

	if removed == nil || removed.Node != div {
		t.Fatal("NodeRemoved event not delivered for removed div")
	}
	if tree.Contains(div) {
		t.Error("Contains still true for detached node")
	}
}

func TestObserveCancel(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var count int
	cancel := tree.Observe(func(Event) { count++ })

	n := FirstText(tree.Root(), "first paragraph")
	tree.SetText(n, "x")
	cancel()
	tree.SetText(n, "y")

	if count != 1 {
		t.Errorf("got %d events after cancel, want 1", count)
	}
}

func TestShadow_Isolation(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var parentEvents, shadowEvents int
	tree.Observe(func(Event) { parentEvents++ })

	host := FirstElement(tree.Root(), atom.Div)
	sh, err := tree.AttachShadow(host)
	if err != nil {
		t.Fatalf("AttachShadow: %v", err)
	}
	sh.Observe(func(Event) { shadowEvents++ })

	if _, err := sh.AppendHTML(sh.Root(), `<p>inside shadow</p>`); err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}

	if parentEvents != 0 {
		t.Errorf("parent observer saw %d shadow events, want 0", parentEvents)
	}
	if shadowEvents != 1 {
		t.Errorf("shadow observer saw %d events, want 1", shadowEvents)
	}

	// Shadow content is not part of the parent render.
	out, _ := tree.RenderString()
	if strings.Contains(out, "inside shadow") {
		t.Errorf("shadow content leaked into parent render: %s", out)
	}
	if tree.Shadow(host) != sh {
		t.Error("Shadow lookup failed")
	}
}

func TestShadow_AttachHook(t *testing.T) {
	tree := mustParse(t, sampleDoc)

	var hooked []*Tree
	tree.OnShadowAttach(func(sh *Tree) { hooked = append(hooked, sh) })
	// Second install is a no-op.
	tree.OnShadowAttach(func(sh *Tree) { t.Error("second hook must not fire") })

	host := FirstElement(tree.Root(), atom.Div)
	sh, err := tree.AttachShadow(host)
	if err != nil {
		t.Fatalf("AttachShadow: %v", err)
	}
	if len(hooked) != 1 || hooked[0] != sh {
		t.Fatalf("hook fired %d times", len(hooked))
	}

	// Nested shadow inside a shadow tree reaches the same hook.
	nodes, err := sh.AppendHTML(sh.Root(), `<section>deep</section>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	nested, err := sh.AttachShadow(nodes[0])
	if err != nil {
		t.Fatalf("nested AttachShadow: %v", err)
	}
	if len(hooked) != 2 || hooked[1] != nested {
		t.Fatalf("nested hook fired %d times", len(hooked))
	}

	// Double attachment on one host is rejected.
	if _, err := tree.AttachShadow(host); err == nil {
		t.Error("second AttachShadow on same host succeeded")
	}
}

func TestWalk_Prunes(t *testing.T) {
	tree := mustParse(t, sampleDoc)
	var sawNested bool
	Walk(tree.Root(), func(n *html.Node) bool {
		if n.Type == html.TextNode && strings.Contains(n.Data, "nested") {
			sawNested = true
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div {
			return false
		}
		return true
	})
	if sawNested {
		t.Error("walk did not prune the div subtree")
	}
}
