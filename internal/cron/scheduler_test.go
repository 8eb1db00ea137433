package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/hook"
)

// waitFor polls check at short intervals until it returns true or the deadline
// elapses.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

type fakeRecomputer struct {
	mu       sync.Mutex
	triggers []string
	err      error
}

func (f *fakeRecomputer) Recompute(_ context.Context, change hook.Change) (hook.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, change.Trigger)
	return hook.Result{Written: true}, f.err
}

func (f *fakeRecomputer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.triggers...)
}

type fakeRules struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (f *fakeRules) Lines() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...), f.err
}

func (f *fakeRules) set(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = lines
}

type fakePruner struct {
	calls []int
}

func (f *fakePruner) Prune(_ context.Context, days int) (int64, error) {
	f.calls = append(f.calls, days)
	return 2, nil
}

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler(Config{Schedule: "every minute"}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := NewScheduler(Config{Schedule: "*/15 * * * *"}); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestScheduler_RunsOnStart(t *testing.T) {
	rec := &fakeRecomputer{}
	s, err := NewScheduler(Config{
		Recomputer: rec,
		Schedule:   "0 0 1 1 *",
		Logger:     slog.Default(),
		Interval:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return s.Runs() == 1 })
	if got := rec.seen(); got[0] != TriggerStart {
		t.Fatalf("expected start trigger, got %v", got)
	}
}

func TestScheduler_RecomputesOnlyOnPolicyChange(t *testing.T) {
	rec := &fakeRecomputer{}
	rules := &fakeRules{lines: []string{"priority.1.auto=+urgent", "context.needs.read=priority:1"}}
	events := make(chan config.ReloadEvent, 4)
	s, err := NewScheduler(Config{
		Recomputer: rec,
		Rules:      rules,
		Schedule:   "0 0 1 1 *",
		Events:     events,
		Interval:   time.Hour,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop()
	waitFor(t, 2*time.Second, func() bool { return s.Runs() == 1 })

	// Our own context write: ignored.
	rules.set("priority.1.auto=+urgent", "context.needs.read=priority:2")
	events <- config.ReloadEvent{Path: "need.rc"}
	// A policy edit: recomputed.
	rules.set("priority.1.auto=+urgent", "priority.span=3", "context.needs.read=priority:2")
	events <- config.ReloadEvent{Path: "need.rc"}

	waitFor(t, 2*time.Second, func() bool { return s.Runs() == 2 })
	time.Sleep(50 * time.Millisecond)
	got := rec.seen()
	if len(got) != 2 || got[1] != TriggerRCChange {
		t.Fatalf("expected exactly one rc-change run, got %v", got)
	}
}

func TestScheduler_ClosedEventsKeepsRunning(t *testing.T) {
	rec := &fakeRecomputer{err: errors.New("locked")}
	events := make(chan config.ReloadEvent)
	close(events)
	s, err := NewScheduler(Config{Recomputer: rec, Schedule: "0 0 1 1 *", Events: events, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return s.Runs() == 1 })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	if s.Runs() != 1 {
		t.Fatalf("closed event channel must not trigger runs, got %d", s.Runs())
	}
}

func TestScheduler_TickFiresWhenDueAndPrunes(t *testing.T) {
	rec := &fakeRecomputer{}
	pruner := &fakePruner{}
	s, err := NewScheduler(Config{
		Recomputer:    rec,
		Schedule:      "*/15 * * * *",
		Pruner:        pruner,
		RetentionDays: 30,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	now := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	s.nextRun = time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)

	s.tick(context.Background(), now)
	if s.Runs() != 0 {
		t.Fatalf("tick before the next run must not fire")
	}

	now = now.Add(9 * time.Minute)
	s.tick(context.Background(), now)
	if s.Runs() != 1 || rec.seen()[0] != TriggerSchedule {
		t.Fatalf("expected one scheduled run, got %v", rec.seen())
	}
	if want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC); !s.nextRun.Equal(want) {
		t.Fatalf("expected next run %v, got %v", want, s.nextRun)
	}
	if len(pruner.calls) != 1 || pruner.calls[0] != 30 {
		t.Fatalf("expected prune with retention 30, got %v", pruner.calls)
	}
}

func TestFingerprint_IgnoresNonPolicyLines(t *testing.T) {
	a := Fingerprint([]string{"# comment", "priority.span=2", "context.needs.read=priority:1"})
	b := Fingerprint([]string{"  priority.span=2  ", "context.needs.read=priority:4", "uda.priority.values=1,2"})
	if a != b {
		t.Fatalf("expected equal fingerprints, got %q and %q", a, b)
	}
	if a == Fingerprint([]string{"priority.span=3"}) {
		t.Fatal("expected policy edits to change the fingerprint")
	}
}

func TestNextRunTime(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		expr     string
		expected time.Time
	}{
		{"every 5 minutes", "*/5 * * * *", time.Date(2026, 1, 15, 10, 5, 0, 0, time.UTC)},
		{"every hour", "0 * * * *", time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)},
		{"daily at midnight", "0 0 * * *", time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRunTime(tt.expr, base)
			if err != nil {
				t.Fatalf("NextRunTime(%q): %v", tt.expr, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("NextRunTime(%q) = %v, want %v", tt.expr, got, tt.expected)
			}
		})
	}
	if _, err := NextRunTime("bad", base); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
