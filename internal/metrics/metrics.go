package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheer",
			Name:      "search_duration_seconds",
			Help:      "Search round-trip duration per query template",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"template", "outcome"},
	)

	mappingLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheer",
			Name:      "mapping_cache_lookups_total",
			Help:      "Mapping cache lookups by result",
		},
		[]string{"result"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheer",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheer",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(searchDuration, mappingLookups, httpRequestDuration, httpRequestsTotal)
}

// ObserveSearch records one engine search issued for template.
func ObserveSearch(template string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	searchDuration.WithLabelValues(template, outcome).Observe(d.Seconds())
}

func MappingCacheHit()  { mappingLookups.WithLabelValues("hit").Inc() }
func MappingCacheMiss() { mappingLookups.WithLabelValues("miss").Inc() }

// Middleware records HTTP request duration and count.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
