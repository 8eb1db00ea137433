package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/need/internal/config"
)

func TestWatcher_DetectsRCRewrite(t *testing.T) {
	dir := t.TempDir()
	rcPath := filepath.Join(dir, "need.rc")
	if err := os.WriteFile(rcPath, []byte("priority.span=2\n"), 0o644); err != nil {
		t.Fatalf("write rc: %v", err)
	}

	w := config.NewWatcher(rcPath, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	// Rewrite via rename, the way the rc store publishes changes. Retry until
	// the watcher is ready.
	rewrite := func() {
		tmp := filepath.Join(dir, ".need.rc.tmp")
		_ = os.WriteFile(tmp, []byte("priority.span=3\n"), 0o644)
		_ = os.Rename(tmp, rcPath)
	}
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	rewrite()

	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) != "need.rc" {
				t.Fatalf("expected need.rc event, got %s", ev.Path)
			}
			return
		case <-tick.C:
			rewrite()
		case <-deadline:
			t.Fatalf("timed out waiting for rc change event")
		}
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	rcPath := filepath.Join(dir, "need.rc")
	if err := os.WriteFile(rcPath, []byte(""), 0o644); err != nil {
		t.Fatalf("write rc: %v", err)
	}
	w := config.NewWatcher(rcPath, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(300 * time.Millisecond):
	}
}
