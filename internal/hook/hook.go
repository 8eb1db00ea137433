// Package hook runs the Taskwarrior on-add and on-modify hooks: it fills in
// or repairs a task's priority, hands the task back, and re-derives the
// context filter from the pending-task distribution.
//
// Only malformed input is fatal. Rule, policy, query and rc-write failures are
// logged and the hook carries on with defaults, so a task mutation is never
// blocked by this tool.
package hook

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/need/internal/oracle"
	"github.com/basket/need/internal/otel"
	"github.com/basket/need/internal/persistence"
	"github.com/basket/need/internal/priority"
	"github.com/basket/need/internal/shared"
)

const (
	HookAdd    = "on-add"
	HookModify = "on-modify"
)

// ScriptNames are the executables `need install` links into the Taskwarrior
// hooks directory. Taskwarrior picks hooks by their name prefix.
var ScriptNames = []string{HookAdd + "-need", HookModify + "-need"}

// RCStore is the subset of rcfile.Store the hooks use.
type RCStore interface {
	Lines() ([]string, error)
	Lookup(key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// HistoryRecorder stores one row per recomputation.
type HistoryRecorder interface {
	Record(ctx context.Context, u persistence.ContextUpdate) (int64, error)
}

// MalformedInputError means the task input could not be used. The raw input
// has already been echoed when it is returned.
type MalformedInputError struct {
	Hook string
	Err  error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("%s: malformed input: %v", e.Hook, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Orchestrator sequences rule resolution, the count survey and the context
// write for one hook invocation. Store and Counter are required; the rest may
// be nil.
type Orchestrator struct {
	Store      RCStore
	Counter    oracle.Counter
	ContextKey string
	Logger     *slog.Logger
	History    HistoryRecorder
	Tracer     trace.Tracer
	Metrics    *otel.Metrics
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.Tracer == nil {
		return nooptrace.NewTracerProvider().Tracer(otel.TracerName)
	}
	return o.Tracer
}

func (o *Orchestrator) contextKey() string {
	if o.ContextKey == "" {
		return priority.ContextKey("")
	}
	return o.ContextKey
}

// OnAdd handles one new task. A task that already has a valid priority is
// echoed byte for byte.
func (o *Orchestrator) OnAdd(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, span := otel.StartSpan(ctx, o.tracer(), "hook.on-add", otel.AttrHook.String(HookAdd))
	defer span.End()

	r := bufio.NewReader(in)
	line, readErr := readLine(r)
	if readErr != nil {
		return o.fail(ctx, HookAdd, out, line, readErr)
	}
	snap, err := parseSnapshot(line)
	if err != nil {
		return o.fail(ctx, HookAdd, out, line, err)
	}

	log := o.logger().With("uuid", snap.task.UUID)
	ctx = shared.WithTaskUUID(ctx, snap.task.UUID)
	span.SetAttributes(otel.AttrTaskUUID.String(snap.task.UUID))

	if l, ok := snap.level(); ok {
		log.Debug("priority already set", "priority", l.String())
	} else {
		snap, err = o.assign(ctx, log, snap)
		if err != nil {
			return o.fail(ctx, HookAdd, out, line, err)
		}
	}
	if err := emit(out, snap.raw); err != nil {
		return err
	}
	o.Metrics.RecordHook(ctx, HookAdd, "ok")

	change := Change{Trigger: HookAdd}
	if snap.task.Status == "" || snap.task.Status == StatusPending {
		change.Include, _ = snap.level()
	}
	_, _ = o.Recompute(ctx, change)
	return nil
}

// assign resolves a priority from the rules, defaulting to level 4.
func (o *Orchestrator) assign(ctx context.Context, log *slog.Logger, snap snapshot) (snapshot, error) {
	rules, err := priority.LoadRules(o.Store)
	if err != nil {
		log.Warn("rules unavailable, using default priority", "error", err)
	}

	level, filter, matched := rules.Match(snap.task)
	source := "rule"
	if matched {
		log.Info("rule matched", "filter", filter.String(), "priority", level.String())
	} else {
		level = priority.DefaultLevel
		source = "default"
		log.Info("no rule matched, using default priority", "priority", level.String(), "previous", snap.given)
	}
	o.Metrics.RecordAssigned(ctx, int(level), source)
	return snap.withPriority(level)
}

// OnModify handles one modification. Priority is repaired to level 4 unless
// the task is being deleted, and the context is always recomputed afterwards.
func (o *Orchestrator) OnModify(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, span := otel.StartSpan(ctx, o.tracer(), "hook.on-modify", otel.AttrHook.String(HookModify))
	defer span.End()

	r := bufio.NewReader(in)
	origLine, err := readLine(r)
	if err != nil {
		return o.fail(ctx, HookModify, out, origLine, fmt.Errorf("original task: %w", err))
	}
	modLine, err := readLine(r)
	if err != nil {
		// Nothing better than the original to hand back.
		echo := modLine
		if len(echo) == 0 {
			echo = origLine
		}
		return o.fail(ctx, HookModify, out, echo, fmt.Errorf("modified task: %w", err))
	}
	if _, err := parseSnapshot(origLine); err != nil {
		return o.fail(ctx, HookModify, out, modLine, fmt.Errorf("original task: %w", err))
	}
	snap, err := parseSnapshot(modLine)
	if err != nil {
		return o.fail(ctx, HookModify, out, modLine, fmt.Errorf("modified task: %w", err))
	}

	log := o.logger().With("uuid", snap.task.UUID, "status", snap.task.Status)
	ctx = shared.WithTaskUUID(ctx, snap.task.UUID)
	span.SetAttributes(otel.AttrTaskUUID.String(snap.task.UUID))

	if snap.task.Status != StatusDeleted {
		if _, ok := snap.level(); !ok {
			previous := snap.given
			snap, err = snap.withPriority(priority.DefaultLevel)
			if err != nil {
				return o.fail(ctx, HookModify, out, modLine, err)
			}
			if previous == "" {
				log.Info("priority missing on modify, restoring default", "priority", snap.task.Priority)
			} else {
				log.Info("invalid priority on modify, restoring default", "previous", previous, "priority", snap.task.Priority)
			}
			o.Metrics.RecordAssigned(ctx, int(priority.DefaultLevel), "repair")
		}
	}
	if err := emit(out, snap.raw); err != nil {
		return err
	}
	o.Metrics.RecordHook(ctx, HookModify, "ok")

	// The store still holds the task as it was before this modification.
	change := Change{Trigger: HookModify}
	switch snap.task.Status {
	case StatusCompleted, StatusDeleted:
		change.Exclude = snap.task.UUID
	case StatusPending:
		change.Exclude = snap.task.UUID
		change.Include, _ = snap.level()
	}
	_, _ = o.Recompute(ctx, change)
	return nil
}

// fail echoes the raw input unchanged and reports it as malformed.
func (o *Orchestrator) fail(ctx context.Context, hook string, out io.Writer, raw []byte, cause error) error {
	o.logger().Error("malformed hook input, echoing it unchanged", "hook", hook, "error", cause)
	o.Metrics.RecordHook(ctx, hook, "malformed")
	if len(raw) > 0 {
		if err := emit(out, raw); err != nil {
			return errors.Join(&MalformedInputError{Hook: hook, Err: cause}, err)
		}
	}
	return &MalformedInputError{Hook: hook, Err: cause}
}

// readLine returns the next line without its terminator. A final line with no
// newline is accepted; a missing line is an error.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return line, fmt.Errorf("read task: %w", err)
	}
	trimmed := trimEOL(line)
	if len(trimmed) == 0 && errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return trimmed, nil
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func emit(out io.Writer, raw []byte) error {
	buf := make([]byte, 0, len(raw)+1)
	buf = append(buf, raw...)
	buf = append(buf, '\n')
	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}
