// Package cron keeps the context filter fresh outside of hook runs: on a cron
// schedule, so date windows and external edits are picked up, and whenever the
// rules or policy in the rc file change.
package cron

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/hook"
	"github.com/basket/need/internal/priority"
)

// Triggers recorded in history for refresher runs.
const (
	TriggerStart    = "watch-start"
	TriggerSchedule = "schedule"
	TriggerRCChange = "rc-change"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Recomputer rebuilds and writes the context filter.
type Recomputer interface {
	Recompute(ctx context.Context, change hook.Change) (hook.Result, error)
}

// Pruner drops history rows past the retention window.
type Pruner interface {
	Prune(ctx context.Context, retentionDays int) (int64, error)
}

// Config holds the dependencies for the refresher.
type Config struct {
	Recomputer Recomputer
	// Rules is read to tell policy edits apart from the refresher's own
	// context writes.
	Rules    priority.LineSource
	Schedule string
	Events   <-chan config.ReloadEvent
	Pruner   Pruner
	// RetentionDays is passed to Pruner after each scheduled run.
	RetentionDays int
	Logger        *slog.Logger
	Interval      time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler recomputes the context on schedule and on rc changes.
type Scheduler struct {
	recomputer    Recomputer
	rules         priority.LineSource
	schedule      cronlib.Schedule
	events        <-chan config.ReloadEvent
	pruner        Pruner
	retentionDays int
	logger        *slog.Logger
	interval      time.Duration

	mu          sync.Mutex
	fingerprint string
	nextRun     time.Time
	runs        int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the schedule expression and returns a Scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		recomputer:    cfg.Recomputer,
		rules:         cfg.Rules,
		schedule:      sched,
		events:        cfg.Events,
		pruner:        cfg.Pruner,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		interval:      interval,
	}, nil
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("refresher started", "interval", s.interval)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("refresher stopped")
}

// Runs reports how many recomputations the scheduler has made.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fingerprint = s.readFingerprint()
	s.run(ctx, TriggerStart)
	s.nextRun = s.schedule.Next(time.Now())

	events := s.events
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onChange(ctx)
		}
	}
}

// tick fires the scheduled run once its time has passed.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if now.Before(s.nextRun) {
		return
	}
	s.run(ctx, TriggerSchedule)
	s.nextRun = s.schedule.Next(now)
	if s.pruner != nil && s.retentionDays > 0 {
		n, err := s.pruner.Prune(ctx, s.retentionDays)
		if err != nil {
			s.logger.Error("refresher: history prune failed", "error", err)
		} else if n > 0 {
			s.logger.Info("refresher: history pruned", "rows", n)
		}
	}
	s.logger.Debug("refresher: next scheduled run", "next_run_at", s.nextRun)
}

// onChange recomputes only when rules or policy changed; the refresher's own
// writes to the context key land here too and are ignored.
func (s *Scheduler) onChange(ctx context.Context) {
	fp := s.readFingerprint()
	if fp == s.fingerprint {
		return
	}
	s.fingerprint = fp
	s.run(ctx, TriggerRCChange)
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	res, err := s.recomputer.Recompute(ctx, hook.Change{Trigger: trigger})
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("refresher: recompute failed", "trigger", trigger, "error", err)
		return
	}
	s.logger.Info("refresher: context recomputed", "trigger", trigger, "written", res.Written)
}

// readFingerprint keeps the rule and policy lines. A read failure yields ""
// so the next successful read counts as a change.
func (s *Scheduler) readFingerprint() string {
	if s.rules == nil {
		return ""
	}
	lines, err := s.rules.Lines()
	if err != nil {
		return ""
	}
	return Fingerprint(lines)
}

// Fingerprint reduces rc lines to the ones that affect the context filter.
func Fingerprint(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "priority.") {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
