// Package metrics exposes the service's prometheus instruments behind
// small package-level helpers so call sites stay one-liners.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_messages_sent_total",
		Help: "Messages accepted into the mailbox",
	})
	sendsDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_sends_denied_total",
		Help: "Sends rejected by the permission gate, by reason",
	}, []string{"reason"})
	messagesAcked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_messages_acknowledged_total",
		Help: "Mailbox rows deleted by receiver acknowledgment",
	})
	pushDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_push_delivered_total",
		Help: "Push notifications handed to a live receiver channel",
	})
	pushDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_push_dropped_total",
		Help: "Push notifications dropped (receiver offline or buffer full)",
	})
	relayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nexus_relay_connections",
		Help: "Currently joined relay channels",
	})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nexus_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	registry.MustRegister(
		messagesSent, sendsDenied, messagesAcked,
		pushDelivered, pushDropped, relayConnections,
		httpRequests, httpDuration,
	)
}

func MessageSent() { messagesSent.Inc() }

func SendDenied(reason string) { sendsDenied.WithLabelValues(reason).Inc() }

func MessagesAcked(n int64) { messagesAcked.Add(float64(n)) }

func PushDelivered() { pushDelivered.Inc() }

func PushDropped() { pushDropped.Inc() }

func RelayConnected() { relayConnections.Inc() }

func RelayDisconnected() { relayConnections.Dec() }

func HTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the /metrics endpoint for this registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
