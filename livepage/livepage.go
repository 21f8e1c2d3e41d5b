// Package livepage runs the annotation pipeline against a real Chrome page.
// An injected script watches text nodes through a MutationObserver and
// reports them over a Runtime binding; the Go side rewrites each reported
// text and pushes the result back into the page. One Page per tab.
package livepage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/cadecuddy/money-dollar/control"
	"github.com/cadecuddy/money-dollar/rewrite"
)

//go:embed observer.js
var observerJS string

const bindingName = "__moneydollar_binding"

// Config configures a live page session.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	Remote string

	// Stealth applies anti-detection measures to the tab. Default: on.
	Stealth bool

	// NavigateTimeout bounds navigation plus initial load. Default: 30s.
	NavigateTimeout time.Duration

	// Enabled is the initial gate state, usually read from persisted state.
	Enabled bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Page is one observed browser tab.
type Page struct {
	cfg    Config
	logger *slog.Logger
	url    string

	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page

	enabled atomic.Bool
	cancel  context.CancelFunc

	mu sync.Mutex
	// lastText caches the text last written for a node id: the write shows
	// up again as a characterData record, and the cache keeps it from
	// bouncing through the rewriter forever.
	lastText map[int]string
}

// record is one text node report from the injected script.
type record struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Open connects to Chrome (or launches one), opens a tab on pageURL, and
// starts the observe-rewrite loop. Close releases the tab and, when the
// browser was launched locally, the browser.
func Open(ctx context.Context, pageURL string, cfg Config) (*Page, error) {
	cfg.defaults()

	p := &Page{
		cfg:      cfg,
		logger:   cfg.Logger,
		url:      pageURL,
		lastText: make(map[int]string),
	}
	p.enabled.Store(cfg.Enabled)

	if err := p.connect(); err != nil {
		return nil, err
	}
	if err := p.openTab(ctx, pageURL); err != nil {
		p.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.listenBinding(loopCtx)

	if err := p.inject(); err != nil {
		p.Close()
		return nil, err
	}

	p.logger.Info("livepage: observing", "url", pageURL, "enabled", cfg.Enabled)
	return p, nil
}

func (p *Page) connect() error {
	wsURL := p.cfg.Remote
	if wsURL == "" {
		l := launcher.New().Headless(true)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("livepage: launch: %w", err)
		}
		wsURL = u
		p.lnch = l
		p.logger.Info("livepage: launched local chrome", "url", wsURL)
	} else {
		p.logger.Info("livepage: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("livepage: connect: %w", err)
	}
	p.browser = b
	return nil
}

func (p *Page) openTab(ctx context.Context, pageURL string) error {
	var (
		page *rod.Page
		err  error
	)
	if p.cfg.Stealth {
		page, err = stealth.Page(p.browser)
	} else {
		page, err = p.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return fmt.Errorf("livepage: create tab: %w", err)
	}
	p.page = page

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("livepage: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.logger.Warn("livepage: wait load timeout", "url", pageURL, "error", err)
	}
	return nil
}

func (p *Page) inject() error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(p.page); err != nil {
		p.logger.Warn("livepage: addBinding failed (may already exist)", "error", err)
	}
	if _, err := p.page.Eval(observerJS); err != nil {
		return fmt.Errorf("livepage: inject observer: %w", err)
	}
	return nil
}

// listenBinding receives text node reports and writes back rewrites.
func (p *Page) listenBinding(ctx context.Context) {
	p.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var records []record
		if err := json.Unmarshal([]byte(e.Payload), &records); err != nil {
			p.logger.Warn("livepage: parse binding payload", "error", err)
			return
		}
		for _, rec := range records {
			p.process(rec)
		}
	})()
}

func (p *Page) process(rec record) {
	if !p.enabled.Load() {
		return
	}

	p.mu.Lock()
	last, seen := p.lastText[rec.ID]
	p.mu.Unlock()
	if seen && last == rec.Text {
		return
	}

	out, changed := rewrite.Rewrite(rec.Text)

	p.mu.Lock()
	p.lastText[rec.ID] = out
	p.mu.Unlock()

	if !changed {
		return
	}
	_, err := p.page.Eval(`(id, text) => window.__moneydollar_apply(id, text)`, rec.ID, out)
	if err != nil {
		p.logger.Error("livepage: apply rewrite", "id", rec.ID, "error", err)
		return
	}
	p.logger.Debug("livepage: node rewritten", "id", rec.ID, "len", len(out))
}

// Enabled reports the gate state.
func (p *Page) Enabled() bool { return p.enabled.Load() }

// Toggle sets the gate. Transitioning into enabled triggers a page rescan so
// text that accumulated while disabled gets annotated.
func (p *Page) Toggle(on bool) {
	prev := p.enabled.Swap(on)
	if on == prev || !on {
		return
	}
	if _, err := p.page.Eval(`() => window.__moneydollar_rescan()`); err != nil {
		p.logger.Warn("livepage: rescan failed", "error", err)
	}
}

// HandleMessage is a control.Handler: it accepts a TOGGLE_STATE message and
// applies it to the page.
func (p *Page) HandleMessage(_ context.Context, payload []byte) ([]byte, error) {
	var msg control.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("livepage: decode message: %w", err)
	}
	if msg.Type != control.TypeToggleState {
		return nil, fmt.Errorf("livepage: unknown message type %q", msg.Type)
	}
	p.Toggle(msg.Enabled)
	return json.Marshal(map[string]bool{"enabled": msg.Enabled})
}

// HTML serialises the page's current DOM.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("livepage: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close stops the binding listener and releases the tab. A locally launched
// browser is shut down too; a remote browser is left running.
func (p *Page) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.page != nil {
		p.page.Close()
		p.page = nil
	}
	if p.lnch != nil {
		if p.browser != nil {
			p.browser.Close()
			p.browser = nil
		}
		p.lnch.Cleanup()
		p.lnch = nil
	}
	return nil
}
