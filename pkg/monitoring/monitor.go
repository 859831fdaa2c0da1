package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_sessions_open",
			Help: "Number of training sessions currently accepting attendees",
		},
	)

	AttendeesAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_attendees_accepted_total",
			Help: "Verified attendee submissions accepted into a session",
		},
		[]string{"nationality"},
	)

	SubmissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_submissions_rejected_total",
			Help: "Attendee submissions rejected by the session aggregator",
		},
		[]string{"reason"},
	)

	WorkflowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_workflows_active",
			Help: "Verification workflows started but not yet finished",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SessionsOpen)
	prometheus.MustRegister(AttendeesAccepted)
	prometheus.MustRegister(SubmissionsRejected)
	prometheus.MustRegister(WorkflowsActive)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
