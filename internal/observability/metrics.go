package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionSend = "send"
	DirectionRecv = "recv"
)

var (
	registerOnce sync.Once

	sessionFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lnp",
			Subsystem: "session",
			Name:      "frames_total",
			Help:      "Frames moved through sessions.",
		},
		[]string{"kind", "direction"},
	)
	sessionBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lnp",
			Subsystem: "session",
			Name:      "bytes_total",
			Help:      "Plaintext payload bytes moved through sessions.",
		},
		[]string{"kind", "direction"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lnp",
			Name:      "sessions_closed_total",
			Help:      "Sessions closed, by close reason.",
		},
		[]string{"kind", "reason"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lnp",
			Name:      "handshakes_total",
			Help:      "Noise handshakes by role and result.",
		},
		[]string{"role", "result"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lnp",
			Name:      "handshake_duration_seconds",
			Help:      "Noise handshake duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lnp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lnp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionFrames, sessionBytes, sessionsClosed,
			handshakes, handshakeDuration,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrame(kind, direction string, size int) {
	RegisterMetrics()
	sessionFrames.WithLabelValues(kind, direction).Inc()
	sessionBytes.WithLabelValues(kind, direction).Add(float64(size))
}

func RecordSessionClosed(kind, reason string) {
	RegisterMetrics()
	sessionsClosed.WithLabelValues(kind, reason).Inc()
}

func RecordHandshake(role string, duration time.Duration, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "failed"
	}
	handshakes.WithLabelValues(role, result).Inc()
	handshakeDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
