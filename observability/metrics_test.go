package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"lendcore/core/events"
)

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	okBefore := testutil.ToFloat64(m.requests.WithLabelValues("lending", "supply", "success"))
	errBefore := testutil.ToFloat64(m.errors.WithLabelValues("lending", "supply", "422"))

	m.Observe("lending", "supply", 200, time.Millisecond)
	m.Observe("lending", "supply", 422, time.Millisecond)
	m.RecordThrottle("lending", "")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("lending", "supply", "success")); got != okBefore+1 {
		t.Fatalf("success counter: got %v want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("lending", "supply", "422")); got != errBefore+1 {
		t.Fatalf("error counter: got %v want %v", got, errBefore+1)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("lending", "unspecified")); got < 1 {
		t.Fatalf("throttle counter not incremented")
	}
}

func TestLendingMetricsObserveOperation(t *testing.T) {
	m := Lending()
	before := testutil.ToFloat64(m.failures.WithLabelValues("borrow", "health_factor_too_low"))
	m.ObserveOperation("borrow", "health_factor_too_low", time.Microsecond)
	m.ObserveOperation("borrow", "", time.Microsecond)

	if got := testutil.ToFloat64(m.failures.WithLabelValues("borrow", "health_factor_too_low")); got != before+1 {
		t.Fatalf("failure counter: got %v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "rejected")); got < 1 {
		t.Fatalf("rejected outcome not recorded")
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "success")); got < 1 {
		t.Fatalf("success outcome not recorded")
	}
}

func TestEventMetricsCountsLiquidations(t *testing.T) {
	m := Events()
	var emitter events.Emitter = m
	before := testutil.ToFloat64(m.liquidations.WithLabelValues("fungible"))
	emitter.Emit(events.LendingLiquidated{})
	emitter.Emit(events.LendingReserveDropped{})
	emitter.Emit(nil)

	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("fungible")); got != before+1 {
		t.Fatalf("liquidation counter: got %v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(events.TypeLendingReserveDropped)); got < 1 {
		t.Fatalf("event counter not incremented")
	}
}
