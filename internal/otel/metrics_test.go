package otel

import (
	"context"
	"testing"
	"time"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), fileConfig(t))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.HookInvocations == nil {
		t.Error("HookInvocations is nil")
	}
	if m.PriorityAssigned == nil {
		t.Error("PriorityAssigned is nil")
	}
	if m.RecomputeDuration == nil {
		t.Error("RecomputeDuration is nil")
	}
	if m.QueryErrors == nil {
		t.Error("QueryErrors is nil")
	}
	if m.RCWriteErrors == nil {
		t.Error("RCWriteErrors is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestMetrics_NilSafeRecorders(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordHook(ctx, "on-add", "ok")
	m.RecordAssigned(ctx, 2, "rule")
	m.RecordRecompute(ctx, "update", time.Millisecond, 1, true)
}

func TestMetrics_Recorders(t *testing.T) {
	p, err := Init(context.Background(), fileConfig(t))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())
	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordHook(ctx, "on-modify", "malformed")
	m.RecordAssigned(ctx, 4, "default")
	m.RecordRecompute(ctx, "watch", 20*time.Millisecond, 0, false)
}
