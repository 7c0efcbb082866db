// Package metrics holds the Prometheus collectors for the directory, the chat
// fanout and the HTTP layer.
//
// A nil *Metrics is valid and records nothing, so components can be built in
// tests without a registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "companion"

// Result labels shared by the counters below.
const (
	ResultOK         = "ok"
	ResultFailed     = "failed"
	ResultFallback   = "fallback"
	ResultIneligible = "ineligible"
	ResultConflict   = "conflict"
	ResultNotFound   = "not_found"
)

type Metrics struct {
	groupsCreated    prometheus.Counter
	groupJoins       *prometheus.CounterVec
	chatMessages     prometheus.Counter
	fanoutDeliveries *prometheus.CounterVec
	chatSubscribers  prometheus.Gauge
	sweeps           prometheus.Counter
	groupsExpired    prometheus.Counter
	geocodeLookups   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates and registers every collector with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		groupsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Groups created in the directory.",
		}),
		groupJoins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_joins_total",
			Help:      "Join attempts by outcome.",
		}, []string{"result"}),
		chatMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages appended to group histories.",
		}),
		fanoutDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Per-subscriber message deliveries by outcome.",
		}, []string{"result"}),
		chatSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_subscribers",
			Help:      "Live connections currently subscribed to a group.",
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed expiry sweeps.",
		}),
		groupsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_expired_total",
			Help:      "Groups removed by the expiry sweeper.",
		}),
		geocodeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_lookups_total",
			Help:      "Place coordinate resolutions by outcome.",
		}, []string{"result"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) GroupCreated() {
	if m == nil {
		return
	}
	m.groupsCreated.Inc()
}

func (m *Metrics) GroupJoin(result string) {
	if m == nil {
		return
	}
	m.groupJoins.WithLabelValues(result).Inc()
}

func (m *Metrics) ChatMessage() {
	if m == nil {
		return
	}
	m.chatMessages.Inc()
}

func (m *Metrics) FanoutDelivery(result string) {
	if m == nil {
		return
	}
	m.fanoutDeliveries.WithLabelValues(result).Inc()
}

// SubscribersChanged adjusts the live subscriber gauge by delta.
func (m *Metrics) SubscribersChanged(delta int) {
	if m == nil {
		return
	}
	m.chatSubscribers.Add(float64(delta))
}

// Swept records one finished sweep that removed expired groups.
func (m *Metrics) Swept(expired int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.groupsExpired.Add(float64(expired))
}

func (m *Metrics) GeocodeLookup(result string) {
	if m == nil {
		return
	}
	m.geocodeLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
