package otel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fileConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "logs", "traces.jsonl"),
	}
}

func TestInit_Disabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.Tracer == nil {
		t.Fatal("expected non-nil tracer (noop)")
	}
	if p.Meter == nil {
		t.Fatal("expected non-nil meter (noop)")
	}
}

func TestInit_Disabled_ShutdownNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Shutdown should be a no-op and not error
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_FileExporterIsDefault(t *testing.T) {
	cfg := fileConfig(t)
	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.TracerProvider == nil || p.Tracer == nil || p.Meter == nil {
		t.Fatal("expected a live tracer provider, tracer and meter")
	}

	_, span := StartSpan(context.Background(), p.Tracer, "hook.on-add", AttrHook.String("on-add"))
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	if !strings.Contains(string(data), `"Name":"hook.on-add"`) {
		t.Fatalf("span not written as a json line: %s", data)
	}
	if strings.Count(strings.TrimSpace(string(data)), "\n") != 0 {
		t.Fatalf("expected one compact line, got %q", data)
	}
}

func TestInit_FileExporterAppends(t *testing.T) {
	cfg := fileConfig(t)
	for i := 0; i < 2; i++ {
		p, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init %d: %v", i, err)
		}
		_, span := p.Tracer.Start(context.Background(), "context.recompute")
		span.End()
		if err := p.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown %d: %v", i, err)
		}
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}
	if n := strings.Count(string(data), `"Name":"context.recompute"`); n != 2 {
		t.Fatalf("got %d spans across runs, want 2", n)
	}
}

func TestInit_FileExporterNeedsPath(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "file"}); err == nil {
		t.Fatal("expected error without a trace path")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestInit_CustomServiceName(t *testing.T) {
	cfg := fileConfig(t)
	cfg.ServiceName = "my-custom-service"
	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := p.Tracer.Start(context.Background(), "test.span")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	data, _ := os.ReadFile(cfg.Path)
	if !strings.Contains(string(data), "my-custom-service") {
		t.Fatalf("service name missing from resource: %s", data)
	}
}

func TestInit_SampleRate(t *testing.T) {
	cfg := fileConfig(t)
	cfg.SampleRate = 0.5
	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())
}

func TestInit_StdoutExporterAvoidsStdout(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "stdout",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	p, err := Init(context.Background(), fileConfig(t))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), p.Tracer, "hook.on-add",
		AttrHook.String("on-add"),
		AttrTaskUUID.String("a360fc44-315c-4366-b70c-ea7e7520b749"),
	)
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span with a valid context")
	}

	_, child := StartClientSpan(ctx, p.Tracer, "task.exec", AttrTaskArgs.String("priority:2 count"))
	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Fatal("expected child span to share the parent trace")
	}
	child.End()
	span.End()
}
