package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	registry *prometheus.Registry

	// Interpretation metrics
	InterpretationsTotal  *prometheus.CounterVec
	InterpretationLatency prometheus.Histogram

	// Dispatch metrics
	DispatchesTotal  *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Confirmation gate metrics
	ConfirmationsTotal   *prometheus.CounterVec
	ConfirmationsPending prometheus.Gauge

	// Telegram metrics
	TelegramMessagesSentTotal     prometheus.Counter
	TelegramMessagesReceivedTotal prometheus.Counter
	TelegramErrorsTotal           prometheus.Counter

	// Gateway metrics
	GatewayRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InterpretationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interpretations_total",
				Help: "Total number of interpreted utterances",
			},
			[]string{"kind"},
		),
		InterpretationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interpretation_duration_seconds",
				Help:    "Duration of utterance interpretation in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatches_total",
				Help: "Total number of dispatched actions",
			},
			[]string{"capability", "outcome"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_duration_seconds",
				Help:    "Duration of action execution in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),

		ConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmations_total",
				Help: "Total number of confirmation gate decisions",
			},
			[]string{"decision"},
		),
		ConfirmationsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "confirmations_pending",
				Help: "Number of actions currently awaiting confirmation",
			},
		),

		TelegramMessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_sent_total",
				Help: "Total number of Telegram messages sent",
			},
		),
		TelegramMessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_received_total",
				Help: "Total number of Telegram messages received",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_errors_total",
				Help: "Total number of Telegram errors",
			},
		),

		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of gateway HTTP requests",
			},
			[]string{"endpoint", "status"},
		),
	}

	m.registerMetrics()
	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.InterpretationsTotal)
	m.registry.MustRegister(m.InterpretationLatency)
	m.registry.MustRegister(m.DispatchesTotal)
	m.registry.MustRegister(m.DispatchDuration)
	m.registry.MustRegister(m.ConfirmationsTotal)
	m.registry.MustRegister(m.ConfirmationsPending)
	m.registry.MustRegister(m.TelegramMessagesSentTotal)
	m.registry.MustRegister(m.TelegramMessagesReceivedTotal)
	m.registry.MustRegister(m.TelegramErrorsTotal)
	m.registry.MustRegister(m.GatewayRequestsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
