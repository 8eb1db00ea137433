package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/cron"
)

// runWatchCommand keeps the context filter fresh until interrupted: once at
// start, on the refresh schedule, and whenever rules or policy change.
func runWatchCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("watch", stderr)
	schedule := fs.String("schedule", "", "cron expression overriding refresh_schedule")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	a, ctx := openApp(ctx, "watch", false)
	defer a.Close()

	expr := a.cfg.RefreshSchedule
	if *schedule != "" {
		expr = *schedule
	}

	watcher := config.NewWatcher(a.cfg.RCPath, a.logger)
	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error watching %s: %v\n", a.cfg.RCPath, err)
		return 1
	}

	cfg := cron.Config{
		Recomputer: a.orch,
		Rules:      a.rc,
		Schedule:   expr,
		Events:     watcher.Events(),
		Logger:     a.logger,
	}
	if a.history != nil {
		cfg.Pruner = a.history
		cfg.RetentionDays = a.cfg.History.RetentionDays
	}
	sched, err := cron.NewScheduler(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid refresh schedule %q: %v\n", expr, err)
		return 2
	}

	fmt.Fprintf(stdout, "Watching %s (%s); Ctrl-C to stop\n", a.cfg.RCPath, describeSchedule(expr, time.Now()))
	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	fmt.Fprintf(stdout, "Stopped after %d recomputation(s)\n", sched.Runs())
	return 0
}

func describeSchedule(expr string, now time.Time) string {
	next, err := cron.NextRunTime(expr, now)
	if err != nil {
		return fmt.Sprintf("schedule %q", expr)
	}
	return fmt.Sprintf("schedule %q, next refresh %s", expr, next.Format(time.RFC3339))
}
