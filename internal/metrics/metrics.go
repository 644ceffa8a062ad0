// Package metrics provides Prometheus instrumentation for the CRIS scoring service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cris",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cris",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoringsTotal counts risk scores produced, by tier.
	ScoringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cris",
			Name:      "scorings_total",
			Help:      "Total risk scores produced by risk tier.",
		},
		[]string{"tier"},
	)

	// ScoringDuration observes single-customer scoring latency end to end.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cris",
		Name:      "scoring_duration_seconds",
		Help:      "Time to fetch, cleanse and score one customer.",
		Buckets:   prometheus.DefBuckets,
	})

	// PortfolioScansTotal counts batch scoring runs.
	PortfolioScansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cris",
		Name:      "portfolio_scans_total",
		Help:      "Total portfolio-wide batch scoring runs.",
	})

	// PortfolioScanDuration observes full batch scoring latency.
	PortfolioScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cris",
		Name:      "portfolio_scan_duration_seconds",
		Help:      "Time to score a full customer batch.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// SkippedCustomersTotal counts batch rows dropped for missing features.
	SkippedCustomersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cris",
		Name:      "skipped_customers_total",
		Help:      "Customers skipped during batch scoring (no feature row).",
	})

	// ModelLoaded is 1 when a model bundle is cached, 0 otherwise.
	ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris",
		Name:      "model_loaded",
		Help:      "Whether a model artifact bundle is currently loaded.",
	})

	// ModelReloadsTotal counts explicit artifact rotations.
	ModelReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cris",
		Name:      "model_reloads_total",
		Help:      "Total explicit model reloads.",
	})

	// StoreQueryDuration observes feature store query latency by query name.
	StoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cris",
			Name:      "store_query_duration_seconds",
			Help:      "Feature store query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// ActiveFeedClients tracks connected WebSocket feed clients.
	ActiveFeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris",
		Name:      "active_feed_clients",
		Help:      "Number of currently connected WebSocket feed clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cris", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoringsTotal,
		ScoringDuration,
		PortfolioScansTotal,
		PortfolioScanDuration,
		SkippedCustomersTotal,
		ModelLoaded,
		ModelReloadsTotal,
		StoreQueryDuration,
		ActiveFeedClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// ObserveStoreQuery records the duration of one feature store query.
func ObserveStoreQuery(query string, start time.Time) {
	StoreQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
