// Package metrics provides Prometheus metrics for the cache tiers, the
// conversation store and the operational HTTP surface.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lewisedginton/financial_qa/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "finqa"
)

// Metrics owns a private registry so tests and multiple instances never collide
// with the global default registry.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration prometheus.Histogram

	cacheHits          *prometheus.CounterVec
	cacheMisses        prometheus.Counter
	cacheEvictions     prometheus.Counter
	cacheInvalidations *prometheus.CounterVec
	cacheCorrupt       prometheus.Counter
	cacheMemoryEntries prometheus.Gauge

	conversationOps      *prometheus.CounterVec
	conversationDuration *prometheus.HistogramVec

	log logger.Logger
}

// NewMetrics creates a Metrics instance with every collector registered.
func NewMetrics(l logger.Logger) *Metrics {
	if l == nil {
		l = logger.NewNopLogger()
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by response code",
	}, []string{"code"})
	m.httpDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0},
	})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "cache_hits_total",
		Help:      "Cache hits by tier",
	}, []string{"tier"})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "cache_misses_total",
		Help:      "Cache lookups that found no live entry",
	})
	m.cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted from the memory tier due to capacity",
	})
	m.cacheInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "cache_invalidations_total",
		Help:      "Keys removed from the cache by invalidation kind",
	}, []string{"kind"})
	m.cacheCorrupt = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "cache_corrupt_entries_total",
		Help:      "Undecodable persistent entries that were removed",
	})
	m.cacheMemoryEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "cache_memory_entries",
		Help:      "Entries currently held in the memory tier",
	})

	m.conversationOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "conversation_operations_total",
		Help:      "Conversation store operations by result",
	}, []string{"op", "result"})
	m.conversationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "conversation_operation_duration_seconds",
		Help:      "Conversation store operation duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	m.reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheInvalidations, m.cacheCorrupt, m.cacheMemoryEntries,
		m.conversationOps, m.conversationDuration,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen serves /metrics on its own port until ctx is cancelled. It blocks and
// returns nil after a clean shutdown.
func (m *Metrics) Listen(ctx context.Context, port int) error {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		m.log.Info("Stopping metrics listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// CacheHit records a hit served from the named tier ("memory" or "persistent").
func (m *Metrics) CacheHit(tier string) {
	m.cacheHits.WithLabelValues(tier).Inc()
}

// CacheMiss records a lookup that found nothing usable.
func (m *Metrics) CacheMiss() {
	m.cacheMisses.Inc()
}

// CacheEviction records a capacity eviction from the memory tier.
func (m *Metrics) CacheEviction() {
	m.cacheEvictions.Inc()
}

// CacheInvalidation records n keys removed by kind (key, prefix, clear, expired).
func (m *Metrics) CacheInvalidation(kind string, n int) {
	if n <= 0 {
		return
	}
	m.cacheInvalidations.WithLabelValues(kind).Add(float64(n))
}

// CacheCorruptEntry records a persistent entry dropped because it could not be decoded.
func (m *Metrics) CacheCorruptEntry() {
	m.cacheCorrupt.Inc()
}

// CacheMemoryEntries sets the current memory tier size.
func (m *Metrics) CacheMemoryEntries(n int) {
	m.cacheMemoryEntries.Set(float64(n))
}

// ConversationOperation records one store operation and its duration.
func (m *Metrics) ConversationOperation(op string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.conversationOps.WithLabelValues(op, result).Inc()
	m.conversationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// HTTPMiddleware returns a Chi-compatible middleware that tracks HTTP metrics
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			m.httpDuration.Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(strconv.Itoa(rw.statusCode)).Inc()
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
