package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeDecodeError    = "decode_error"
	OutcomeTransportError = "transport_error"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokerbot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "broker",
			Name:      "exchanges_total",
			Help:      "Request/reply exchanges by service and outcome.",
		},
		[]string{"service", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokerbot",
			Subsystem: "broker",
			Name:      "exchange_duration_seconds",
			Help:      "Request/reply round trip in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "broker",
			Name:      "replies_total",
			Help:      "Decoded replies by service and reported status.",
		},
		[]string{"service", "status"},
	)
	logicalClock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brokerbot",
			Subsystem: "session",
			Name:      "logical_clock",
			Help:      "Current logical clock of the session.",
		},
	)
	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "session",
			Name:      "cycles_total",
			Help:      "Completed discover/publish cycles.",
		},
	)
	channelsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "session",
			Name:      "channels_created_total",
			Help:      "Channels created because discovery returned none.",
		},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "session",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by result.",
		},
		[]string{"result"},
	)
	probeDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerbot",
			Subsystem: "probe",
			Name:      "deliveries_total",
			Help:      "Pub/sub deliveries seen by the probe.",
		},
		[]string{"own"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			exchanges,
			exchangeDuration,
			replies,
			logicalClock,
			cycles,
			channelsCreated,
			publishes,
			probeDeliveries,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordExchange(service, outcome string, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(service, outcome).Inc()
	exchangeDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordReplyStatus(service, status string) {
	RegisterMetrics()
	if status == "" {
		status = "none"
	}
	replies.WithLabelValues(service, status).Inc()
}

func SetClock(value int64) {
	RegisterMetrics()
	logicalClock.Set(float64(value))
}

func RecordCycle() {
	RegisterMetrics()
	cycles.Inc()
}

func RecordChannelCreated() {
	RegisterMetrics()
	channelsCreated.Inc()
}

// RecordPublish counts one publish attempt; result is "ok", "rejected" or
// an exchange outcome.
func RecordPublish(result string) {
	RegisterMetrics()
	publishes.WithLabelValues(result).Inc()
}

func RecordProbeDelivery(own bool) {
	RegisterMetrics()
	probeDeliveries.WithLabelValues(strconv.FormatBool(own)).Inc()
}
