package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	dropped prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "events",
				Name:      "stream_dropped_total",
				Help:      "Events not delivered to a websocket subscriber that fell behind.",
			}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

func (m *eventMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
