package oracle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/need/internal/oracle"
)

const fakeTask = `#!/bin/sh
echo "$@" >> "$(dirname "$0")/calls.log"
for a in "$@"; do
  case "$a" in
    uuid:*) echo 1; exit 0 ;;
    _get) echo needs; exit 0 ;;
  esac
done
for a in "$@"; do
  case "$a" in
    priority:3) echo 2; exit 0 ;;
    priority:5) echo " 7 "; exit 0 ;;
    priority:6) echo "database locked" >&2; exit 3 ;;
    priority:2) echo "many"; exit 0 ;;
    priority:1) sleep 5; echo 1; exit 0 ;;
  esac
done
exit 0
`

func fakeTaskBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "task")
	if err := os.WriteFile(path, []byte(fakeTask), 0o755); err != nil {
		t.Fatalf("write fake task: %v", err)
	}
	return path
}

func TestTaskCLI_Count(t *testing.T) {
	bin := fakeTaskBinary(t)
	cli, err := oracle.NewTaskCLI(bin+" rc.data.location=/tmp/x", time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if n, err := cli.Count(ctx, 3, ""); err != nil || n != 2 {
		t.Fatalf("level 3: n=%d err=%v", n, err)
	}
	if n, err := cli.Count(ctx, 5, ""); err != nil || n != 7 {
		t.Fatalf("level 5: n=%d err=%v", n, err)
	}
	if n, err := cli.Count(ctx, 4, ""); err != nil || n != 0 {
		t.Fatalf("empty output should be zero: n=%d err=%v", n, err)
	}

	calls, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "calls.log"))
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	first := strings.SplitN(string(calls), "\n", 2)[0]
	want := "rc.data.location=/tmp/x rc.hooks=off rc.context=none rc.confirmation=off rc.verbose=nothing priority:3 status:pending count"
	if first != want {
		t.Fatalf("unexpected argv:\n got %q\nwant %q", first, want)
	}
}

func TestTaskCLI_CountWithExclusion(t *testing.T) {
	cli, err := oracle.NewTaskCLI(fakeTaskBinary(t), time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, err := cli.Count(context.Background(), 3, "8f4a3f7e-2b1c-4d3e-9a8b-7c6d5e4f3a2b")
	if err != nil || n != 1 {
		t.Fatalf("expected 2-1=1, got n=%d err=%v", n, err)
	}
	n, err = cli.Count(context.Background(), 3, "not-a-uuid")
	if err != nil || n != 2 {
		t.Fatalf("invalid uuid must not exclude anything, got n=%d err=%v", n, err)
	}
}

func TestTaskCLI_Errors(t *testing.T) {
	cli, err := oracle.NewTaskCLI(fakeTaskBinary(t), 300*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := cli.Count(ctx, 6, ""); err == nil || !strings.Contains(err.Error(), "database locked") {
		t.Fatalf("expected exit error with stderr, got %v", err)
	}
	if _, err := cli.Count(ctx, 2, ""); err == nil {
		t.Fatalf("expected parse error")
	}
	start := time.Now()
	if _, err := cli.Count(ctx, 1, ""); !errors.Is(err, oracle.ErrQueryTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout did not bound the query")
	}
}

func TestTaskCLI_ActiveContext(t *testing.T) {
	cli, err := oracle.NewTaskCLI(fakeTaskBinary(t), time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	name, err := cli.ActiveContext(context.Background())
	if err != nil || name != "needs" {
		t.Fatalf("got %q err=%v", name, err)
	}
}

func TestNewTaskCLI_BadQuoting(t *testing.T) {
	if _, err := oracle.NewTaskCLI(`task "unterminated`, 0, nil); err == nil {
		t.Fatalf("expected quoting error")
	}
}

func TestTaskCLI_MissingBinary(t *testing.T) {
	cli, err := oracle.NewTaskCLI(filepath.Join(t.TempDir(), "no-such-task"), time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := cli.Count(context.Background(), 1, ""); err == nil {
		t.Fatalf("expected run error")
	}
}

func TestTaskCLI_RecordsClientSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	cli, err := oracle.NewTaskCLI(fakeTaskBinary(t), time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cli.SetTracer(tp.Tracer("test"))

	if _, err := cli.Count(context.Background(), 3, ""); err != nil {
		t.Fatalf("count: %v", err)
	}
	if _, err := cli.Count(context.Background(), 6, ""); err == nil {
		t.Fatal("expected level 6 to fail")
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "task.exec" || s.SpanKind() != trace.SpanKindClient {
			t.Fatalf("unexpected span %q kind %v", s.Name(), s.SpanKind())
		}
	}
	if got := spans[1].Status().Code.String(); got != "Error" {
		t.Fatalf("failed call status = %s, want Error", got)
	}
	var args string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "need.task.args" {
			args = kv.Value.AsString()
		}
	}
	if args != "priority:3 status:pending count" {
		t.Fatalf("args attribute = %q", args)
	}
}

func TestTaskCLI_NilTracer(t *testing.T) {
	cli, err := oracle.NewTaskCLI(fakeTaskBinary(t), time.Second, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cli.SetTracer(nil)
	if n, err := cli.Count(context.Background(), 3, ""); err != nil || n != 2 {
		t.Fatalf("got %d err=%v", n, err)
	}
}
