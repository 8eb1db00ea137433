package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/need/internal/otel"
	"github.com/basket/need/internal/priority"
)

const (
	DefaultTaskCommand  = "task"
	DefaultQueryTimeout = 2 * time.Second

	maxQueryOutput = 4 * 1024
)

// countOverrides keep counts independent of the user's active context and
// stop the query from re-entering the hooks.
var countOverrides = []string{"rc.hooks=off", "rc.context=none", "rc.confirmation=off", "rc.verbose=nothing"}

var ErrQueryTimeout = errors.New("query timed out")

// TaskCLI counts tasks by running the Taskwarrior command line.
type TaskCLI struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewTaskCLI splits command with shell quoting rules, e.g.
// `task rc.data.location=/tmp/tasks`.
func NewTaskCLI(command string, timeout time.Duration, logger *slog.Logger) (*TaskCLI, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultTaskCommand
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse task command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("parse task command %q: empty", command)
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskCLI{
		argv:    argv,
		timeout: timeout,
		logger:  logger,
		tracer:  nooptrace.NewTracerProvider().Tracer(otel.TracerName),
	}, nil
}

// SetTracer records a client span around every task invocation. A nil
// tracer turns spans off.
func (c *TaskCLI) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(otel.TracerName)
	}
	c.tracer = tracer
}

// Count implements Counter.
func (c *TaskCLI) Count(ctx context.Context, level priority.Level, exclude string) (int, error) {
	lvl := "priority:" + level.String()
	n, err := c.count(ctx, lvl, "status:pending")
	if err != nil {
		return 0, err
	}
	if exclude == "" || n == 0 {
		return n, nil
	}
	if _, err := uuid.Parse(exclude); err != nil {
		c.logger.Warn("ignoring invalid exclusion uuid", "uuid", exclude, "error", err)
		return n, nil
	}
	excluded, err := c.count(ctx, "uuid:"+exclude, lvl, "status:pending")
	if err != nil {
		// Keep the unadjusted count rather than dropping the whole level.
		c.logger.Warn("exclusion check failed", "level", level.String(), "uuid", exclude, "error", err)
		return n, nil
	}
	n -= excluded
	if n < 0 {
		n = 0
	}
	return n, nil
}

// ActiveContext returns the name of the context currently selected in the
// task store ("" when none).
func (c *TaskCLI) ActiveContext(ctx context.Context) (string, error) {
	out, err := c.run(ctx, []string{"rc.hooks=off"}, "_get", "rc.context")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Version runs `task --version`.
func (c *TaskCLI) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, nil, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *TaskCLI) count(ctx context.Context, filter ...string) (int, error) {
	args := append(append([]string{}, filter...), "count")
	out, err := c.run(ctx, countOverrides, args...)
	if err != nil {
		return 0, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", truncate(out), err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (c *TaskCLI) run(ctx context.Context, overrides []string, args ...string) (out string, err error) {
	ctx, span := otel.StartClientSpan(ctx, c.tracer, "task.exec", otel.AttrTaskArgs.String(strings.Join(args, " ")))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := make([]string, 0, len(c.argv)-1+len(overrides)+len(args))
	full = append(full, c.argv[1:]...)
	full = append(full, overrides...)
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, c.argv[0], full...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	cmd.WaitDelay = 200 * time.Millisecond

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w after %s", ErrQueryTimeout, c.timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return "", fmt.Errorf("%s exited %d: %s", c.argv[0], exitErr.ExitCode(), truncate(strings.TrimSpace(errBuf.String())))
		}
		return "", fmt.Errorf("run %s: %w", c.argv[0], runErr)
	}
	return outBuf.String(), nil
}

func truncate(s string) string {
	if len(s) > maxQueryOutput {
		return s[:maxQueryOutput] + "...(truncated)"
	}
	return s
}
