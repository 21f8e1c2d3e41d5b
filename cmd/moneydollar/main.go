// Command moneydollar annotates currency amounts in web page text.
//
// Usage:
//
//	moneydollar -file page.html               # annotate one document to stdout
//	moneydollar -file - -markdown             # annotate stdin, emit markdown
//	moneydollar -url https://example.com      # live-annotate a browser tab
//	moneydollar -serve                        # control server only
//	moneydollar -toggle off                   # flip the persisted flag
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/cadecuddy/money-dollar/annotate"
	"github.com/cadecuddy/money-dollar/control"
	"github.com/cadecuddy/money-dollar/livepage"
	"github.com/cadecuddy/money-dollar/mcpquic"
	"github.com/cadecuddy/money-dollar/page"
	"github.com/cadecuddy/money-dollar/preview"
	"github.com/cadecuddy/money-dollar/state"
)

func main() {
	configPath := flag.String("config", "", "path to moneydollar.yaml config file")
	filePath := flag.String("file", "", "annotate an HTML file to stdout (\"-\" for stdin)")
	markdown := flag.Bool("markdown", false, "with -file: emit a markdown preview instead of HTML")
	liveURL := flag.String("url", "", "live-annotate a browser tab at this URL")
	serve := flag.Bool("serve", false, "run the control server without a page")
	toggle := flag.String("toggle", "", "set the persisted flag: on or off")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *filePath, *markdown, *liveURL, *serve, *toggle); err != nil {
		logger.Error("moneydollar: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, filePath string, markdown bool, liveURL string, serve bool, toggle string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch {
	case toggle != "":
		return runToggle(ctx, logger, cfg, toggle)
	case filePath != "":
		return runFile(logger, filePath, markdown)
	case liveURL != "":
		return runLive(ctx, logger, cfg, liveURL)
	case serve:
		return runServe(ctx, logger, cfg)
	}

	fmt.Fprintln(os.Stderr, "usage: moneydollar -file <path> | -url <url> | -serve | -toggle on|off")
	os.Exit(1)
	return nil
}

func loadConfig(path string) (*annotate.Config, error) {
	if path != "" {
		return annotate.LoadConfigFile(path)
	}
	cfg := &annotate.Config{}
	cfg.Defaults()
	return cfg, nil
}

// runFile annotates one document and writes the result to stdout.
func runFile(logger *slog.Logger, path string, markdown bool) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	tree, err := page.Parse(r)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	a := annotate.New(annotate.WithLogger(logger), annotate.WithFlushWindow(0))
	a.Attach(tree)
	a.Flush()

	out, err := tree.RenderString()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if markdown {
		md, err := preview.Markdown(out)
		if err != nil {
			return fmt.Errorf("markdown: %w", err)
		}
		out = md
	}
	_, err = io.WriteString(os.Stdout, out+"\n")
	return err
}

// runLive attaches to a real browser tab and runs the control server next to
// it so toggles reach both the persisted flag and the page.
func runLive(ctx context.Context, logger *slog.Logger, cfg *annotate.Config, url string) error {
	db, err := state.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	enabled := state.LoadEnabled(ctx, db, logger)

	stealth := true
	if cfg.Live.Stealth != nil {
		stealth = *cfg.Live.Stealth
	}
	p, err := livepage.Open(ctx, url, livepage.Config{
		Remote:          cfg.Live.Remote,
		Stealth:         stealth,
		NavigateTimeout: cfg.Live.NavigateTimeout,
		Enabled:         enabled,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	bcast := control.NewBroadcaster(logger)
	bcast.Register(url, p.HandleMessage)

	// Toggles persisted by another process reach the page through the
	// state watcher; toggles through this process's /toggle reach it
	// through the broadcaster.
	go state.WatchEnabled(ctx, db, state.WatchOptions{Logger: logger}, func(on bool) {
		p.Toggle(on)
	})

	srv := control.NewServer(db, bcast, logger)
	startMCPQuic(ctx, logger, cfg, srv)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// runServe runs the control server alone, for toggling and rewrite checks.
func runServe(ctx context.Context, logger *slog.Logger, cfg *annotate.Config) error {
	db, err := state.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	srv := control.NewServer(db, control.NewBroadcaster(logger), logger)
	startMCPQuic(ctx, logger, cfg, srv)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// startMCPQuic exposes the control tools over QUIC when configured. Failures
// here degrade the process, they do not stop it.
func startMCPQuic(ctx context.Context, logger *slog.Logger, cfg *annotate.Config, srv *control.Server) {
	if cfg.MCPQuic.Listen == "" {
		return
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "moneydollar",
		Version: "1.0.0",
	}, nil)
	srv.RegisterMCP(mcpSrv)

	var (
		tlsCfg *tls.Config
		err    error
	)
	if cfg.MCPQuic.Cert != "" && cfg.MCPQuic.Key != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCPQuic.Cert, cfg.MCPQuic.Key)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		logger.Error("moneydollar: mcp quic tls", "error", err)
		return
	}

	ql, err := mcpquic.NewListener(cfg.MCPQuic.Listen, tlsCfg, mcpSrv, logger)
	if err != nil {
		logger.Error("moneydollar: mcp quic listener", "error", err)
		return
	}
	go func() {
		if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("moneydollar: mcp quic serve", "error", err)
		}
		ql.Close()
	}()
}

// runToggle persists the flag and best-effort notifies a running control
// server so attached pages pick it up immediately.
func runToggle(ctx context.Context, logger *slog.Logger, cfg *annotate.Config, arg string) error {
	var on bool
	switch arg {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return fmt.Errorf("toggle: want on or off, got %q", arg)
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	if err := state.SetEnabled(ctx, db, on); err != nil {
		return fmt.Errorf("persist toggle: %w", err)
	}
	logger.Info("moneydollar: flag persisted", "enabled", on)

	// A running server re-broadcasts to its pages. Its absence is fine:
	// the persisted flag alone is authoritative.
	body, _ := json.Marshal(map[string]bool{"enabled": on})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"http://"+cfg.Listen+"/toggle", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("moneydollar: no control server reachable", "error", err)
		return nil
	}
	resp.Body.Close()
	return nil
}
