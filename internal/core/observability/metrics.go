package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls (postgis, llm) in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	queryTierAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_query_attempts_total",
			Help: "Spatial query attempts by operation, resolution tier and outcome.",
		},
		[]string{"op", "tier", "outcome"},
	)

	shapedFeatures = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shaped_features",
			Help:    "Number of features per shaped result.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"mode"},
	)

	intentResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_classifications_total",
			Help: "Intent classification results by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	cacheOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Intent cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	catalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_catalog_reloads_total",
			Help: "Layer catalogue reloads by source and result.",
		},
		[]string{"source", "result"},
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "layer_catalog_layers",
			Help: "Number of layers in the active catalogue snapshot.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_version_info",
			Help: "Version of the running binary (value is always 1).",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		queryTierAttempts, shapedFeatures, intentResults,
		cacheOps, cacheOpDuration, cacheResults,
		catalogReloads, catalogSize, buildInfo,
	}
}

func init() {
	enabled.Store(true)
	for _, c := range collectors() {
		prometheus.MustRegister(c)
	}
}

// Init additionally registers the app collectors on reg (e.g. the dedicated
// metrics listener's registry) and toggles recording.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream, outcome(err)).Observe(durationSeconds)
}

func IncQueryAttempt(op, tier string, err error, empty bool) {
	if !enabled.Load() {
		return
	}
	o := outcome(err)
	if err == nil && empty {
		o = "empty"
	}
	queryTierAttempts.WithLabelValues(op, tier, o).Inc()
}

func ObserveShaped(mode string, n int) {
	if !enabled.Load() {
		return
	}
	shapedFeatures.WithLabelValues(mode).Observe(float64(n))
}

func IncIntent(outcome string) {
	if !enabled.Load() {
		return
	}
	intentResults.WithLabelValues(outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	cacheOps.WithLabelValues(op, outcome(err)).Inc()
	cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit() {
	if enabled.Load() {
		cacheResults.WithLabelValues("hit").Inc()
	}
}

func IncCacheMiss() {
	if enabled.Load() {
		cacheResults.WithLabelValues("miss").Inc()
	}
}

func IncCatalogReload(source string, err error) {
	if !enabled.Load() {
		return
	}
	catalogReloads.WithLabelValues(source, outcome(err)).Inc()
}

func SetCatalogSize(n int) {
	catalogSize.Set(float64(n))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
