// Package metrics exports grading and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own Prometheus registry; nothing is registered globally.
type Metrics struct {
	registry *prometheus.Registry

	sheets        *prometheus.CounterVec
	blankAnswers  *prometheus.CounterVec
	gradeDuration *prometheus.HistogramVec
	jobs          *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sheets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omr_sheets_total",
				Help: "Answer sheets processed, by exam version and outcome",
			},
			[]string{"version", "outcome"},
		),
		blankAnswers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omr_blank_answers_total",
				Help: "Questions with no accepted mark",
			},
			[]string{"version", "subject"},
		),
		gradeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omr_grade_duration_seconds",
				Help:    "Time to normalize, detect and score one sheet",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"outcome"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omr_queue_jobs_total",
				Help: "Asynchronous grading jobs, by stage",
			},
			[]string{"stage"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}

	m.registry.MustRegister(
		m.sheets,
		m.blankAnswers,
		m.gradeDuration,
		m.jobs,
		m.requests,
		m.requestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveGrade records one grading attempt.
func (m *Metrics) ObserveGrade(version, outcome string, elapsed time.Duration) {
	if version == "" {
		version = "unknown"
	}
	m.sheets.WithLabelValues(version, outcome).Inc()
	m.gradeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveBlank records how many questions of one subject had no answer.
func (m *Metrics) ObserveBlank(version, subject string, blank int) {
	m.blankAnswers.WithLabelValues(version, subject).Add(float64(blank))
}

// ObserveJob records a queue job moving through a stage: enqueued,
// completed or failed.
func (m *Metrics) ObserveJob(stage string) {
	m.jobs.WithLabelValues(stage).Inc()
}

// Middleware counts and times every HTTP request by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		m.requests.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		m.requestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinHandler adapts Handler for a gin route.
func (m *Metrics) GinHandler() gin.HandlerFunc {
	h := m.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
