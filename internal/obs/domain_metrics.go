package obs

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentInitiateTotal counts checkout initiation outcomes.
	PaymentInitiateTotal *prometheus.CounterVec
	// PaymentStatusTotal counts order status lookups by outcome.
	PaymentStatusTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound gateway callbacks by classified outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// TokenRequestsTotal counts access token lookups split by cache hit or fetch.
	TokenRequestsTotal *prometheus.CounterVec
	// PaymentEventForwardTotal counts downstream event deliveries by topic and result.
	PaymentEventForwardTotal *prometheus.CounterVec
	// UpstreamDuration records gateway call latency in milliseconds.
	UpstreamDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers payment collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentInitiateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiate_total",
			Help:      "Count of checkout initiation outcomes.",
		}, []string{"result"})
		PaymentStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_status_total",
			Help:      "Count of order status lookups by outcome.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"outcome", "result"})
		TokenRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_token_requests_total",
			Help:      "Access token lookups by source (cache or upstream).",
		}, []string{"source", "result"})
		PaymentEventForwardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_event_forward_total",
			Help:      "Payment events forwarded downstream by topic and result.",
		}, []string{"topic", "result"})
		UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_upstream_duration_ms",
			Help:      "Latency of payment gateway calls in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"endpoint", "status"})

		mustRegisterCollector(reg, PaymentInitiateTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentInitiateTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentStatusTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentStatusTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, TokenRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TokenRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentEventForwardTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentEventForwardTotal = v
			}
		})
		mustRegisterCollector(reg, UpstreamDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				UpstreamDuration = v
			}
		})
	})
}

// ObserveUpstream records a gateway call. A zero status means no response arrived.
func ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	if UpstreamDuration == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamDuration.WithLabelValues(endpoint, label).Observe(DurationMillis(elapsed))
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
