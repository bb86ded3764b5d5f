package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookpace/hookpace/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	DeliveriesCompleted *prometheus.CounterVec
	EntriesDeferred     prometheus.Counter
	EntriesDispatched   prometheus.Counter
	QueueDepth          *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveriesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_completed_total",
			Help: "Terminal delivery outcomes by destination and outcome class.",
		}, []string{"destination", "outcome"}),

		EntriesDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entries_deferred_total",
			Help: "Entries that could not dispatch immediately (backlog or rate-limit cooldown).",
		}),

		EntriesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entries_dispatched_total",
			Help: "Entries handed to the delivery wrapper.",
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of entries waiting per destination.",
		}, []string{"destination"}),
	}

	reg.MustRegister(
		m.DeliveriesCompleted,
		m.EntriesDeferred,
		m.EntriesDispatched,
		m.QueueDepth,
	)

	return m
}

// The On* methods centralise the prometheus observation calls so the queue
// and delivery packages stay metrics-agnostic; main composes them into
// queue.Hooks and the deliverer's completion hook.

func (m *Metrics) OnDeferred(domain.ProgressEvent) {
	m.EntriesDeferred.Inc()
}

func (m *Metrics) OnDispatch(string) {
	m.EntriesDispatched.Inc()
}

func (m *Metrics) OnDepth(destinationID string, depth int) {
	m.QueueDepth.WithLabelValues(destinationID).Set(float64(depth))
}

func (m *Metrics) OnComplete(ev domain.CompletionEvent) {
	m.DeliveriesCompleted.WithLabelValues(ev.DestinationID, string(ev.Outcome)).Inc()
}
