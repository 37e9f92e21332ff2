package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatbotMetrics exposes counters/histograms for the webhook, engine and
// dispatch paths. All methods are safe on a nil receiver.
type ChatbotMetrics struct {
	inboundTotal     *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	analyticsTotal   *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	sendLatency      *prometheus.HistogramVec
}

func NewChatbotMetrics(reg prometheus.Registerer) *ChatbotMetrics {
	m := &ChatbotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_navigator",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Normalized webhook events by kind and processing outcome",
		}, []string{"kind", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_navigator",
			Subsystem: "dispatch",
			Name:      "sends_total",
			Help:      "Outbound send attempts by sender mode and result",
		}, []string{"mode", "status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_navigator",
			Subsystem: "conversation",
			Name:      "transitions_total",
			Help:      "State machine steps by source and target state",
		}, []string{"from", "to"}),
		analyticsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wa_navigator",
			Subsystem: "analytics",
			Name:      "events_total",
			Help:      "Analytics events by type and sink result",
		}, []string{"event", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wa_navigator",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook request handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wa_navigator",
			Subsystem: "dispatch",
			Name:      "send_latency_seconds",
			Help:      "Latency of a single outbound send",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.transitionsTotal, m.analyticsTotal, m.webhookLatency, m.sendLatency)
	return m
}

func (m *ChatbotMetrics) ObserveInbound(kind, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ChatbotMetrics) ObserveOutbound(mode, status string, seconds float64) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(mode, status).Inc()
	m.sendLatency.WithLabelValues(mode).Observe(seconds)
}

// ObserveTransition satisfies conversation.TransitionObserver.
func (m *ChatbotMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ChatbotMetrics) ObserveAnalytics(event, status string) {
	if m == nil {
		return
	}
	m.analyticsTotal.WithLabelValues(event, status).Inc()
}

func (m *ChatbotMetrics) ObserveWebhookLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(method).Observe(seconds)
}
