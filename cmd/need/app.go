package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/basket/need/internal/config"
	"github.com/basket/need/internal/hook"
	"github.com/basket/need/internal/oracle"
	otelPkg "github.com/basket/need/internal/otel"
	"github.com/basket/need/internal/persistence"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/rcfile"
	"github.com/basket/need/internal/shared"
	"github.com/basket/need/internal/telemetry"
)

// app is the wiring shared by every command that touches the task store.
type app struct {
	cfg     config.Config
	loadErr error
	traceID string

	logger   *slog.Logger
	closers  []io.Closer
	provider *otelPkg.Provider

	task    *oracle.TaskCLI
	taskErr error
	rc      *rcfile.Store
	history *persistence.Store
	orch    *hook.Orchestrator
}

// openApp loads settings and builds the orchestrator. Nothing here aborts: a
// hook must always be able to echo its task. A task command that cannot be
// tokenized is kept in taskErr and every count fails with it.
func openApp(ctx context.Context, component string, quiet bool) (*app, context.Context) {
	a := &app{traceID: shared.NewTraceID()}
	ctx = shared.WithTraceID(ctx, a.traceID)

	a.cfg, a.loadErr = config.Load()

	logger, closer, err := telemetry.NewLogger(a.cfg.LogDir(), component, a.cfg.LogLevel, a.traceID, quiet)
	if err != nil {
		logger = telemetry.Discard()
	} else {
		a.closers = append(a.closers, closer)
	}
	a.logger = logger
	if a.loadErr != nil {
		logger.Warn("settings partially unusable, defaults applied", "error", a.loadErr)
	}

	otelCfg := a.cfg.OTel
	if otelCfg.Path == "" {
		otelCfg.Path = filepath.Join(a.cfg.LogDir(), "traces.jsonl")
	}
	provider, err := otelPkg.Init(ctx, otelCfg)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		provider, _ = otelPkg.Init(ctx, otelPkg.Config{})
	}
	a.provider = provider
	metrics, err := otelPkg.NewMetrics(provider.Meter)
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
		metrics = nil
	}

	var counter oracle.Counter
	task, err := oracle.NewTaskCLI(a.cfg.TaskCommand, a.cfg.QueryTimeoutDuration(), logger)
	if err != nil {
		a.taskErr = fmt.Errorf("task command %q: %w", a.cfg.TaskCommand, err)
		logger.Error("task command unusable", "error", err)
		counter = oracle.CounterFunc(func(context.Context, priority.Level, string) (int, error) {
			return 0, a.taskErr
		})
	} else {
		task.SetTracer(provider.Tracer)
		a.task = task
		counter = task
	}
	a.rc = rcfile.New(a.cfg.RCPath, a.cfg.LockTimeoutDuration())

	a.orch = &hook.Orchestrator{
		Store:      a.rc,
		Counter:    counter,
		ContextKey: a.cfg.ContextKey(),
		Logger:     logger,
		Tracer:     provider.Tracer,
		Metrics:    metrics,
	}
	if a.cfg.History.On() {
		hist, err := persistence.Open(a.cfg.History.Path)
		if err != nil {
			logger.Warn("history unavailable", "path", a.cfg.History.Path, "error", err)
		} else {
			a.history = hist
			a.closers = append(a.closers, hist)
			a.orch.History = hist
		}
	}
	return a, ctx
}

// Close flushes telemetry and releases the history database and log file.
func (a *app) Close() error {
	var errs []error
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.provider.Shutdown(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
