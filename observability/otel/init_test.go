package otel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{Traces: true}); err == nil {
		t.Fatalf("expected error without a service name")
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "lendingd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken,=x, tenant=lend ")
	if len(got) != 2 || got["api-key"] != "abc" || got["tenant"] != "lend" {
		t.Fatalf("unexpected headers %v", got)
	}
}

func TestShutdownsRunInReverseAndJoin(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	stop := shutdowns{
		func(context.Context) error { order = append(order, 1); return nil },
		func(context.Context) error { order = append(order, 2); return boom },
	}
	err := stop.run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestSamplerHonoursRatio(t *testing.T) {
	if got := (Config{SampleRatio: 0.25}).Sampler().Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Fatalf("unexpected sampler %q", got)
	}
	if got := (Config{}).Sampler().Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("unexpected default sampler %q", got)
	}
}
