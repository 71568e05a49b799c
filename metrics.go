package releasea

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline and
// its auth, CSRF and idempotency layers. It is safe for concurrent use and
// every method is a no-op on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	refreshesTotal    *prometheus.CounterVec
	csrfFetchesTotal  prometheus.Counter
	csrfFailuresTotal prometheus.Counter

	idempotencyKeysTotal *prometheus.CounterVec
	idempotencyCacheSize prometheus.Gauge

	rateLimiterTokens prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	buildInfo *prometheus.GaugeVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registerer prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registerer)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_requests_total",
				Help: "Total number of logical API calls",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "releasea_api_request_duration_seconds",
				Help:    "Duration of logical API calls including retries, in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "releasea_api_requests_in_flight",
				Help: "Number of logical API calls currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_attempts_total",
				Help: "Total number of physical HTTP attempts, replays included",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_session_refreshes_total",
				Help: "Total number of session refresh sequences by result",
			},
			[]string{"result"},
		),
		csrfFetchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "releasea_api_csrf_fetches_total",
				Help: "Total number of CSRF token fetches",
			},
		),
		csrfFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "releasea_api_csrf_failures_total",
				Help: "Total number of CSRF token fetches that yielded no usable token",
			},
		),
		idempotencyKeysTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_idempotency_keys_total",
				Help: "Total number of idempotency keys attached, by source",
			},
			[]string{"source"},
		),
		idempotencyCacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "releasea_api_idempotency_cache_size",
				Help: "Current number of cached derived idempotency keys",
			},
		),
		rateLimiterTokens: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "releasea_api_rate_limiter_tokens",
				Help: "Tokens available in the client-side rate limiter",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasea_api_errors_total",
				Help: "Total number of failed logical calls by error kind",
			},
			[]string{"kind", "method", "endpoint"},
		),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "releasea_api_build_info",
				Help: "Client build metadata, always 1",
			},
			[]string{"version", "commit", "build_date", "go_version"},
		),
		registerer: registerer,
	}

	info := GetVersionInfo()
	mc.buildInfo.With(prometheus.Labels(info)).Set(1)

	if g, ok := registerer.(prometheus.Gatherer); ok {
		mc.gatherer = g
	}
	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordAttempt counts one physical HTTP attempt.
func (mc *MetricsCollector) RecordAttempt(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.attemptsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordRefresh counts a finished refresh sequence.
func (mc *MetricsCollector) RecordRefresh(result string) {
	if mc == nil {
		return
	}

	mc.refreshesTotal.WithLabelValues(result).Inc()
}

// RecordCSRFFetch counts a CSRF token fetch.
func (mc *MetricsCollector) RecordCSRFFetch() {
	if mc == nil {
		return
	}

	mc.csrfFetchesTotal.Inc()
}

// RecordCSRFFailure counts a CSRF fetch that produced no usable token.
func (mc *MetricsCollector) RecordCSRFFailure() {
	if mc == nil {
		return
	}

	mc.csrfFailuresTotal.Inc()
}

// RecordIdempotencyKey counts a key attached to a call.
func (mc *MetricsCollector) RecordIdempotencyKey(source string) {
	if mc == nil {
		return
	}

	mc.idempotencyKeysTotal.WithLabelValues(source).Inc()
}

// RecordIdempotencyCacheSize sets the derived key cache gauge.
func (mc *MetricsCollector) RecordIdempotencyCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.idempotencyCacheSize.Set(float64(size))
}

// RecordRateLimiterTokens sets available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(tokens float64) {
	if mc == nil {
		return
	}

	mc.rateLimiterTokens.Set(tokens)
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(kind, method, endpoint).Inc()
}

// Registerer exposes the registerer the collector was created on.
func (mc *MetricsCollector) Registerer() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registerer
}

// Gatherer exposes the underlying registry for scraping, or nil when the
// registerer cannot be gathered from.
func (mc *MetricsCollector) Gatherer() prometheus.Gatherer {
	if mc == nil {
		return nil
	}
	return mc.gatherer
}
