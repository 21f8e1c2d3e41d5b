package state

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestEnabled_DefaultTrue(t *testing.T) {
	db := OpenMemory(t)
	enabled, err := Enabled(context.Background(), db)
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if !enabled {
		t.Error("absent flag should default to enabled")
	}
}

func TestSetEnabled_RoundTrip(t *testing.T) {
	db := OpenMemory(t)
	ctx := context.Background()

	for _, want := range []bool{false, true, false} {
		if err := SetEnabled(ctx, db, want); err != nil {
			t.Fatalf("SetEnabled(%v): %v", want, err)
		}
		got, err := Enabled(ctx, db)
		if err != nil {
			t.Fatalf("Enabled: %v", err)
		}
		if got != want {
			t.Errorf("Enabled = %v, want %v", got, want)
		}
	}
}

func TestLoadEnabled_FailSafe(t *testing.T) {
	db := OpenMemory(t)
	ctx := context.Background()

	// Healthy store, absent row: defaults on.
	if !LoadEnabled(ctx, db, nil) {
		t.Error("LoadEnabled on healthy store should default to enabled")
	}

	// Broken store: must fail safe to disabled.
	if _, err := db.Exec(`DROP TABLE settings`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if LoadEnabled(ctx, db, nil) {
		t.Error("LoadEnabled on broken store must return disabled")
	}
}

func TestWatchEnabled_DeliversToggle(t *testing.T) {
	db := OpenMemory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan bool, 4)
	go WatchEnabled(ctx, db, WatchOptions{Interval: 10 * time.Millisecond}, func(enabled bool) {
		got <- enabled
	})

	// Give the watcher a poll cycle to seed its token, then flip the flag.
	time.Sleep(50 * time.Millisecond)
	if err := SetEnabled(ctx, db, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	select {
	case v := <-got:
		if v {
			t.Error("watcher delivered enabled=true, want false")
		}
	case <-ctx.Done():
		t.Fatal("watcher never delivered the toggle")
	}
	cancel()
}
