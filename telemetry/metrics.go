package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	Operations        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_operations_total", Help: "Protocol operations by name and result code"}, []string{"operation", "code"})
	RateLimitRejects  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_rate_limit_rejects_total", Help: "Calls rejected by the tier quota"}, []string{"class"})
	PaymentBypasses   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_payment_bypass_total", Help: "Calls admitted by a per-call payment proof"}, []string{"class"})
	Activations       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_activations_total", Help: "Agent activations by method"}, []string{"method"})
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_webhook_deliveries_total", Help: "Webhook delivery attempts by outcome"}, []string{"outcome"})
	StreamTicks       = prometheus.NewCounter(prometheus.CounterOpts{Name: "humanpages_stream_ticks_total", Help: "Verified micro-transfer stream ticks"})
	ListingsExpired   = prometheus.NewCounter(prometheus.CounterOpts{Name: "humanpages_listings_expired_total", Help: "Listings moved to EXPIRED by the sweeper"})
	HTTPDuration      = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "humanpages_http_request_duration_seconds", Help: "REST request latency", Buckets: prometheus.DefBuckets}, []string{"method", "route", "status"})
	ToolCalls         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "humanpages_mcp_tool_calls_total", Help: "MCP tool invocations by tool and result code"}, []string{"tool", "code"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			Operations,
			RateLimitRejects,
			PaymentBypasses,
			Activations,
			WebhookDeliveries,
			StreamTicks,
			ListingsExpired,
			HTTPDuration,
			ToolCalls,
		)
	})
	return promhttp.Handler()
}
