package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCalculationsTotal counts calculation attempts by outcome.
	QuoteCalculationsTotal *prometheus.CounterVec
	// QuoteClients records how many clients each successful calculation priced.
	QuoteClients prometheus.Histogram
	// QuoteExportsTotal counts CSV export attempts by outcome.
	QuoteExportsTotal *prometheus.CounterVec
	// WebhookSubmissionsTotal tracks webhook submission outcomes.
	WebhookSubmissionsTotal *prometheus.CounterVec
	// WebhookAttemptLatency records submission latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers quote-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCalculationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calculations_total",
			Help:      "Count of quote calculation outcomes.",
		}, []string{"result"}))
		QuoteClients = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_clients",
			Help:      "Number of clients priced per successful calculation.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}))
		QuoteExportsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_exports_total",
			Help:      "Count of CSV export outcomes.",
		}, []string{"result"}))
		WebhookSubmissionsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_submissions_total",
			Help:      "Count of webhook submission outcomes.",
		}, []string{"result"}))
		WebhookAttemptLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook submission attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
	})
}

// RecordCalculation is a no-op until MustRegisterDomainMetrics has run.
func RecordCalculation(result string, clients int) {
	if QuoteCalculationsTotal == nil {
		return
	}
	QuoteCalculationsTotal.WithLabelValues(result).Inc()
	if result == "ok" && QuoteClients != nil {
		QuoteClients.Observe(float64(clients))
	}
}

// RecordExport counts a CSV export outcome.
func RecordExport(result string) {
	if QuoteExportsTotal == nil {
		return
	}
	QuoteExportsTotal.WithLabelValues(result).Inc()
}

// RecordSubmission counts a webhook submission and its latency.
func RecordSubmission(result string, elapsed time.Duration) {
	if WebhookSubmissionsTotal == nil {
		return
	}
	WebhookSubmissionsTotal.WithLabelValues(result).Inc()
	if WebhookAttemptLatency != nil {
		WebhookAttemptLatency.WithLabelValues(result).Observe(DurationMillis(elapsed))
	}
}
