package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bscdce"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames handed to the host, by kind.",
		},
		[]string{"kind"},
	)
	framesAssembled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_assembled_total",
			Help:      "Frames completed by the receiver, whether or not a host took them.",
		},
	)
	bytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes shifted onto the line, idle fill excluded.",
		},
	)
	receiveTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_timeouts_total",
			Help:      "Reads that ended without a complete frame.",
		},
	)
	hostCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_commands_total",
			Help:      "Host link commands processed.",
		},
		[]string{"mode", "command", "status"},
	)
	hostCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "host_command_duration_seconds",
			Help:      "Host link command duration in seconds.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"mode", "command"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			framesReceived,
			framesAssembled,
			bytesSent,
			receiveTimeouts,
			hostCommands,
			hostCommandDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

// RecordFrameAssembled is safe to call from the clock goroutine.
func RecordFrameAssembled() {
	framesAssembled.Inc()
}

func RecordBytesSent(n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	bytesSent.Add(float64(n))
}

func RecordReceiveTimeout() {
	RegisterMetrics()
	receiveTimeouts.Inc()
}

func RecordHostCommand(mode, command, status string, duration time.Duration) {
	RegisterMetrics()
	hostCommands.WithLabelValues(mode, command, status).Inc()
	hostCommandDuration.WithLabelValues(mode, command).Observe(duration.Seconds())
}
