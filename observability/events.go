package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lendcore/core/events"
)

type eventMetrics struct {
	events       *prometheus.CounterVec
	liquidations *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed engine events. It
// implements events.Emitter so it can be fanned out next to other sinks.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed engine events segmented by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "events",
				Name:      "liquidations_total",
				Help:      "Count of liquidations segmented by collateral kind.",
			}, []string{"collateral"}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.liquidations)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(ev events.Event) {
	if m == nil || ev == nil {
		return
	}
	m.events.WithLabelValues(ev.EventType()).Inc()
	switch ev.(type) {
	case events.LendingLiquidated:
		m.liquidations.WithLabelValues("fungible").Inc()
	case events.LendingUniqueLiquidated:
		m.liquidations.WithLabelValues("unique").Inc()
	}
}
