package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/cadecuddy/money-dollar/state"
)

func TestBroadcast_SwallowsFailingTarget(t *testing.T) {
	b := NewBroadcaster(nil)

	var delivered []string
	ok := func(id string) Handler {
		return func(_ context.Context, payload []byte) ([]byte, error) {
			var msg Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				t.Errorf("target %s got bad payload: %v", id, err)
			}
			delivered = append(delivered, id)
			return nil, nil
		}
	}
	b.Register("a", ok("a"))
	b.Register("broken", func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("page gone")
	})
	b.Register("c", ok("c"))

	failed := b.Broadcast(context.Background(), Message{Type: TypeToggleState, Enabled: true})
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(delivered) != 2 {
		t.Errorf("delivered to %d targets, want 2 despite one failure", len(delivered))
	}
}

func TestBroadcast_Unregister(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Register("x", func(context.Context, []byte) ([]byte, error) { return nil, nil })
	b.Register("y", func(context.Context, []byte) ([]byte, error) { return nil, nil })
	b.Unregister("x")

	pages := b.Pages()
	if len(pages) != 1 || pages[0] != "y" {
		t.Errorf("Pages = %v, want [y]", pages)
	}
}

func testServer(t *testing.T) (*Server, *Broadcaster) {
	t.Helper()
	db := state.OpenMemory(t)
	b := NewBroadcaster(nil)
	return NewServer(db, b, nil), b
}

func TestHTTP_ToggleAndStatus(t *testing.T) {
	srv, b := testServer(t)

	var seen []Message
	b.Register("page-1", func(_ context.Context, payload []byte) ([]byte, error) {
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		seen = append(seen, msg)
		return nil, nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/toggle", "application/json", strings.NewReader(`{"enabled":false}`))
	if err != nil {
		t.Fatalf("POST /toggle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /toggle status = %d", resp.StatusCode)
	}

	if len(seen) != 1 || seen[0].Type != TypeToggleState || seen[0].Enabled {
		t.Fatalf("broadcast not delivered, seen = %+v", seen)
	}

	sresp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer sresp.Body.Close()
	var status struct {
		Enabled bool     `json:"enabled"`
		Pages   []string `json:"pages"`
	}
	if err := json.NewDecoder(sresp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Enabled {
		t.Error("status.enabled = true after disabling")
	}
	if len(status.Pages) != 1 || status.Pages[0] != "page-1" {
		t.Errorf("status.pages = %v", status.Pages)
	}
}

func TestHTTP_Rewrite(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/rewrite", "application/json",
		strings.NewReader(`{"text":"$5 is due"}`))
	if err != nil {
		t.Fatalf("POST /rewrite: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Text    string `json:"text"`
		Changed bool   `json:"changed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "$5 dollars is due" || !out.Changed {
		t.Errorf("rewrite = %+v", out)
	}
}

func TestHTTP_ToggleBadBody(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/toggle", "application/json", strings.NewReader(`not json`))
	if err != nil {
		t.Fatalf("POST /toggle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
