package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound gateway deliveries by event and outcome.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counter on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_deliveries_total",
		Help: "Gateway webhook deliveries by event type and outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(deliveries)
	return &WebhookMetrics{deliveries: deliveries}
}

// Observe increments the delivery counter.
func (m *WebhookMetrics) Observe(event, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
