package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat flow. Every best-effort
// failure that is swallowed on the request path is counted here.
type ChatMetrics struct {
	requestsTotal       *prometheus.CounterVec
	upstreamFailures    *prometheus.CounterVec
	summarizationsTotal *prometheus.CounterVec
	attachmentFailures  prometheus.Counter
	streamDuration      prometheus.Histogram
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total chat requests by outcome",
		}, []string{"outcome"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetchat",
			Subsystem: "backend",
			Name:      "failures_total",
			Help:      "Backend calls that failed and were absorbed",
		}, []string{"op"}),
		summarizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetchat",
			Subsystem: "summary",
			Name:      "passes_total",
			Help:      "Background summarization passes by outcome",
		}, []string{"outcome"}),
		attachmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetchat",
			Subsystem: "chat",
			Name:      "attachment_failures_total",
			Help:      "Requests whose EMR attachments could not be processed",
		}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vetchat",
			Subsystem: "chat",
			Name:      "stream_duration_seconds",
			Help:      "Duration of streamed completions",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.upstreamFailures, m.summarizationsTotal, m.attachmentFailures, m.streamDuration)
	return m
}

func (m *ChatMetrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveUpstreamFailure(op string) {
	if m == nil {
		return
	}
	m.upstreamFailures.WithLabelValues(op).Inc()
}

func (m *ChatMetrics) ObserveSummarization(outcome string) {
	if m == nil {
		return
	}
	m.summarizationsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveAttachmentFailure() {
	if m == nil {
		return
	}
	m.attachmentFailures.Inc()
}

func (m *ChatMetrics) ObserveStreamDuration(seconds float64) {
	if m == nil {
		return
	}
	m.streamDuration.Observe(seconds)
}
