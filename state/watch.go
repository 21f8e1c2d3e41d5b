package state

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// WatchOptions tunes the flag watcher.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before fn fires; further
	// changes during the window reset the timer. 0 fires immediately.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WatchEnabled polls the settings row and calls fn with the new flag value
// whenever another process flips it. This is how a toggle written by the
// control CLI reaches a running page daemon. Blocks until ctx is done.
func WatchEnabled(ctx context.Context, db *sql.DB, opts WatchOptions, fn func(enabled bool)) {
	opts.defaults()
	log := opts.Logger

	last, err := flagToken(ctx, db)
	if err != nil {
		log.Warn("state: initial watch read failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	log.Info("state: watching enabled flag", "interval", opts.Interval, "debounce", opts.Debounce)

	fire := func(token int64) {
		enabled, err := Enabled(ctx, db)
		if err != nil {
			log.Warn("state: read after change failed", "error", err)
			return
		}
		last = token
		fn(enabled)
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("state: watch stopped")
			return

		case <-ticker.C:
			cur, err := flagToken(ctx, db)
			if err != nil {
				log.Warn("state: watch read failed", "error", err)
				continue
			}
			if cur == last || cur == pending {
				continue
			}
			if opts.Debounce <= 0 {
				fire(cur)
				continue
			}
			pending = cur
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				fire(pending)
				pending = -1
			}
		}
	}
}

// flagToken returns a version token for the enabled row: its updated_at,
// or 0 when the row is absent. Two different tokens mean the flag was
// written in between.
func flagToken(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(updated_at), 0) FROM settings WHERE key = ?`, keyEnabled).Scan(&v)
	return v, err
}
