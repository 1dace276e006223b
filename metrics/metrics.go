// Package metrics holds the Prometheus instrumentation for the server:
// tool call counts and durations, cache effectiveness and upstream retries.
// Metrics are registered lazily on first use so importing the package has
// no side effects.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type serverMetrics struct {
	once sync.Once

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	upstreamRetries prometheus.Counter
	upstreamErrors  prometheus.Counter
}

var m serverMetrics

func (s *serverMetrics) init() {
	s.once.Do(func() {
		s.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stemformatics_tool_calls_total",
			Help: "Tool invocations by tool name and outcome",
		}, []string{"tool", "outcome"})
		s.toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stemformatics_tool_call_seconds",
			Help:    "Tool call duration",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"tool"})
		s.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stemformatics_cache_hits_total",
			Help: "Result cache hits",
		})
		s.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stemformatics_cache_misses_total",
			Help: "Result cache misses",
		})
		s.upstreamRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stemformatics_upstream_retries_total",
			Help: "Retried upstream API requests",
		})
		s.upstreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stemformatics_upstream_errors_total",
			Help: "Upstream API requests that failed after retries",
		})

		prometheus.MustRegister(
			s.toolCalls, s.toolDuration,
			s.cacheHits, s.cacheMisses,
			s.upstreamRetries, s.upstreamErrors,
		)
	})
}

// RecordToolCall counts one dispatched tool call and its duration.
func RecordToolCall(tool, outcome string, elapsed time.Duration) {
	m.init()
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordCacheHit counts a result cache hit.
func RecordCacheHit() { m.init(); m.cacheHits.Inc() }

// RecordCacheMiss counts a result cache miss.
func RecordCacheMiss() { m.init(); m.cacheMisses.Inc() }

// RecordUpstreamRetry counts a retried upstream request.
func RecordUpstreamRetry() { m.init(); m.upstreamRetries.Inc() }

// RecordUpstreamError counts an upstream request that failed terminally.
func RecordUpstreamError() { m.init(); m.upstreamErrors.Inc() }

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	m.init()
	return promhttp.Handler()
}

// Serve exposes the scrape handler on addr until the server fails.
// Intended to run in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
