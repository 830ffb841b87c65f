// Package telemetry holds the process Prometheus collectors, exposed by the
// gateway on /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backchannel_connections_open",
		Help: "Live peer connections tracked by the registry.",
	})
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backchannel_events_dispatched_total",
		Help: "Inbound events routed to a state mutation, by kind.",
	}, []string{"kind"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backchannel_events_dropped_total",
		Help: "Inbound events discarded, by reason.",
	}, []string{"reason"})
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backchannel_messages_sent_total",
		Help: "Locally-originated messages transmitted to a peer.",
	})
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backchannel_messages_received_total",
		Help: "Peer messages appended to a chat session.",
	})
	ResponderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backchannel_responder_calls_total",
		Help: "AI responder invocations by outcome.",
	}, []string{"outcome"})
	StoreDiskBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backchannel_store_disk_bytes",
		Help: "On-disk size of the pebble store.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backchannel_http_request_seconds",
		Help:    "Gateway request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "status"})
)

// Middleware records gateway request latency per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		httpDuration.WithLabelValues(r.URL.Path, strconv.Itoa(srw.status)).
			Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
