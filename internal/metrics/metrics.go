package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the application's prometheus collectors.
type Metrics struct {
	IncomingMessages *prometheus.CounterVec
	Intents          *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Drafts           *prometheus.CounterVec
	NLURequests      *prometheus.CounterVec
	NLULatency       *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

// New registers all collectors under the given namespace. A nil
// registerer uses the default registry; tests pass their own.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		IncomingMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_messages_total",
			Help:      "Inbound messages by type.",
		}, []string{"type"}),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Classified intents by name and source.",
		}, []string{"intent", "source"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Conversation FSM mode transitions.",
		}, []string{"from", "to"}),
		Drafts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_actions_total",
			Help:      "Draft actions by status.",
		}, []string{"status"}),
		NLURequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nlu_fallback_requests_total",
			Help:      "NLU fallback calls by outcome.",
		}, []string{"status"}),
		NLULatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nlu_fallback_latency_seconds",
			Help:      "NLU fallback call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by stage.",
		}, []string{"stage"}),
	}
}
