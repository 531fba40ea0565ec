package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/dentvid-api/internal/models"
)

const metricsNamespace = "dentvid"

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	transcodeDuration prometheus.Histogram
	transcodeTotal    *prometheus.CounterVec
	uploadsTotal      *prometheus.CounterVec
	uploadBytes       prometheus.Counter
	streamBytes       prometheus.Counter
	streamsTotal      *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	emailsTotal       *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transcodeCount       uint64
	transcodeFailures    uint64
	uploadCount          uint64
	streamCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "cache_latency_seconds",
		Help:      "Latency for cache operations",
		Buckets:   prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "cache_hit_ratio",
		Help:      "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_hits_total",
		Help:      "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cache_misses_total",
		Help:      "Total cache misses",
	})

	transcodeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "transcode_duration_seconds",
		Help:      "Time spent transcoding uploads",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	transcodeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "transcode_total",
		Help:      "Transcode attempts by result",
	}, []string{"result"})

	uploadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by result",
	}, []string{"result"})

	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "upload_bytes_total",
		Help:      "Bytes of processed video stored",
	})

	streamBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "stream_bytes_total",
		Help:      "Bytes written to streaming clients",
	})

	streamsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "streams_total",
		Help:      "Stream responses by kind (full, partial)",
	}, []string{"kind"})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by rate limit policy",
	}, []string{"policy"})

	emailsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "emails_total",
		Help:      "Notification emails by template and result",
	}, []string{"template", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines_total",
		Help:      "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		transcodeDuration, transcodeTotal, uploadsTotal, uploadBytes, streamBytes, streamsTotal, rateLimited, emailsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		transcodeDuration: transcodeDuration,
		transcodeTotal:    transcodeTotal,
		uploadsTotal:      uploadsTotal,
		uploadBytes:       uploadBytes,
		streamBytes:       streamBytes,
		streamsTotal:      streamsTotal,
		rateLimited:       rateLimited,
		emailsTotal:       emailsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveTranscode records one transcode run.
func (m *MetricsService) ObserveTranscode(duration time.Duration, err error) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.transcodeCount, 1)
	if err != nil {
		atomic.AddUint64(&m.transcodeFailures, 1)
		m.transcodeTotal.WithLabelValues("failure").Inc()
		return
	}
	m.transcodeDuration.Observe(duration.Seconds())
	m.transcodeTotal.WithLabelValues("success").Inc()
}

// ObserveUpload records the outcome of an upload request.
func (m *MetricsService) ObserveUpload(size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.uploadsTotal.WithLabelValues("failure").Inc()
		return
	}
	atomic.AddUint64(&m.uploadCount, 1)
	m.uploadsTotal.WithLabelValues("success").Inc()
	m.uploadBytes.Add(float64(size))
}

// ObserveStream records a stream response and the bytes it delivered.
func (m *MetricsService) ObserveStream(partial bool, written int64) {
	if m == nil {
		return
	}
	kind := "full"
	if partial {
		kind = "partial"
	}
	atomic.AddUint64(&m.streamCount, 1)
	m.streamsTotal.WithLabelValues(kind).Inc()
	m.streamBytes.Add(float64(written))
}

// ObserveRateLimited counts a rejected request.
func (m *MetricsService) ObserveRateLimited(policy string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(policy).Inc()
}

// ObserveEmail counts a notification delivery attempt.
func (m *MetricsService) ObserveEmail(template string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.emailsTotal.WithLabelValues(template, result).Inc()
}

// Snapshot returns aggregated metrics suitable for the admin system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Uploads:                  atomic.LoadUint64(&m.uploadCount),
		Transcodes:               atomic.LoadUint64(&m.transcodeCount),
		TranscodeFailures:        atomic.LoadUint64(&m.transcodeFailures),
		Streams:                  atomic.LoadUint64(&m.streamCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
