package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepnet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stepnet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stepnet",
			Subsystem: "match",
			Name:      "tokens_issued_total",
			Help:      "Connect tokens issued by the match-maker, by outcome.",
		},
		[]string{"app", "outcome"},
	)
	tokenMintDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stepnet",
			Subsystem: "match",
			Name:      "token_mint_duration_seconds",
			Help:      "Time spent minting one connect token.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, tokensIssued, tokenMintDuration)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTokenIssue(app, outcome string, duration time.Duration) {
	RegisterMetrics()
	tokensIssued.WithLabelValues(app, outcome).Inc()
	tokenMintDuration.WithLabelValues(app, outcome).Observe(duration.Seconds())
}
