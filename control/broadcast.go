package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic message endpoint: bytes in, bytes out.
// Both in-process annotators and live-page adapters implement it.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Broadcaster fans messages out to every registered page.
type Broadcaster struct {
	mu      sync.RWMutex
	targets map[string]Handler
	logger  *slog.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		targets: make(map[string]Handler),
		logger:  logger,
	}
}

// Register adds (or replaces) a page's handler.
func (b *Broadcaster) Register(pageID string, h Handler) {
	b.mu.Lock()
	b.targets[pageID] = h
	b.mu.Unlock()
}

// Unregister removes a page.
func (b *Broadcaster) Unregister(pageID string) {
	b.mu.Lock()
	delete(b.targets, pageID)
	b.mu.Unlock()
}

// Pages lists registered page IDs, sorted.
func (b *Broadcaster) Pages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.targets))
	for id := range b.targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast marshals msg once and delivers it to every page. A failing
// target is logged and skipped; delivery to the remaining targets
// continues. The error count is returned for status surfaces.
func (b *Broadcaster) Broadcast(ctx context.Context, msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("control: marshal message", "error", err)
		return 0
	}

	b.mu.RLock()
	targets := make(map[string]Handler, len(b.targets))
	for id, h := range b.targets {
		targets[id] = h
	}
	b.mu.RUnlock()

	failed := 0
	for id, h := range targets {
		if _, err := h(ctx, payload); err != nil {
			failed++
			b.logger.Warn("control: delivery failed", "page", id, "error", err)
		}
	}
	return failed
}
