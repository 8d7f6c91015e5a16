// Package metrics holds the mirror's counters. The coordinator and the pool
// write them; the HTTP layer only reads, through the prometheus registry or
// a Snapshot.
package metrics

import (
	"os"
	"time"

	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var log, chk = slog.New(os.Stderr)

const namespace = "reflectr"

// Error types.
const (
	ErrConnection = "connection"
	ErrMirror     = "mirror"
	ErrParse      = "parse"
	ErrQueueFull  = "queue_full"
)

// Discard reasons.
const (
	Duplicate  = "duplicate"
	Ineligible = "ineligible"
	BadID      = "bad_id"
)

type T struct {
	Registry *prometheus.Registry
	// Mirrored counts successful sends by direction and destination relay.
	Mirrored *prometheus.CounterVec
	// Latency is the time from receipt to the end of the delivery pass.
	Latency prometheus.Histogram
	// Errors counts failures by type and relay.
	Errors *prometheus.CounterVec
	// Active is the number of open relay connections.
	Active prometheus.Gauge
	// Received counts events read from relays by group and relay.
	Received *prometheus.CounterVec
	// Discarded counts events dropped before delivery, by reason.
	Discarded *prometheus.CounterVec
	// SetSize is the size of the mirrored set after the last change.
	SetSize prometheus.Gauge
	// QueueDepth is the number of jobs waiting per destination group.
	QueueDepth *prometheus.GaugeVec
}

// New registers a fresh set of collectors, with the process and Go runtime
// collectors, on a registry of its own.
func New() (m *T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(
		collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	m = &T{
		Registry: reg,
		Mirrored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_mirrored_total",
			Help:      "Events sent to a destination relay.",
		}, []string{"direction", "relay"}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_latency_seconds",
			Help:      "Time from receipt to the end of the delivery pass.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Connection, parse, delivery and queue errors.",
		}, []string{"type", "relay"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_mirrors",
			Help:      "Open relay connections.",
		}),
		Received: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events read from relays.",
		}, []string{"group", "relay"}),
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Events dropped before delivery.",
		}, []string{"reason"}),
		SetSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirrored_set_size",
			Help:      "Event ids held by the mirrored set.",
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Delivery jobs waiting per destination group.",
		}, []string{"group"}),
	}
	return
}

func (m *T) Error(typ, relay string) { m.Errors.WithLabelValues(typ, relay).Inc() }

func (m *T) MirroredTo(direction, relay string) {
	m.Mirrored.WithLabelValues(direction, relay).Inc()
}

func (m *T) Discard(reason string) { m.Discarded.WithLabelValues(reason).Inc() }

func (m *T) ReceivedFrom(group, relay string) {
	m.Received.WithLabelValues(group, relay).Inc()
}

func (m *T) ObserveLatency(d time.Duration) { m.Latency.Observe(d.Seconds()) }

// Snapshot is a point in time reading of the mirror counters.
type Snapshot struct {
	Mirrored          map[string]map[string]float64 `json:"mirrored"`
	Errors            map[string]map[string]float64 `json:"errors"`
	Received          map[string]map[string]float64 `json:"received"`
	Discarded         map[string]float64            `json:"discarded"`
	QueueDepth        map[string]float64            `json:"queue_depth"`
	ActiveConnections float64                       `json:"active_connections"`
	MirroredSetSize   float64                       `json:"mirrored_set_size"`
	LatencyCount      uint64                        `json:"latency_count"`
	LatencySumSeconds float64                       `json:"latency_sum_seconds"`
}

// Snapshot reads the current values from the registry.
func (m *T) Snapshot() (s *Snapshot) {
	s = &Snapshot{
		Mirrored:   make(map[string]map[string]float64),
		Errors:     make(map[string]map[string]float64),
		Received:   make(map[string]map[string]float64),
		Discarded:  make(map[string]float64),
		QueueDepth: make(map[string]float64),
	}
	var err error
	var families []*dto.MetricFamily
	if families, err = m.Registry.Gather(); chk.E(err) {
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch mf.GetName() {
			case namespace + "_events_mirrored_total":
				nest(s.Mirrored, metric, "direction", "relay",
					metric.GetCounter().GetValue())
			case namespace + "_mirror_errors_total":
				nest(s.Errors, metric, "type", "relay",
					metric.GetCounter().GetValue())
			case namespace + "_events_received_total":
				nest(s.Received, metric, "group", "relay",
					metric.GetCounter().GetValue())
			case namespace + "_events_discarded_total":
				s.Discarded[label(metric, "reason")] = metric.GetCounter().GetValue()
			case namespace + "_delivery_queue_depth":
				s.QueueDepth[label(metric, "group")] = metric.GetGauge().GetValue()
			case namespace + "_active_mirrors":
				s.ActiveConnections = metric.GetGauge().GetValue()
			case namespace + "_mirrored_set_size":
				s.MirroredSetSize = metric.GetGauge().GetValue()
			case namespace + "_mirror_latency_seconds":
				s.LatencyCount = metric.GetHistogram().GetSampleCount()
				s.LatencySumSeconds = metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func nest(into map[string]map[string]float64, m *dto.Metric, outer,
	inner string, v float64) {

	o := label(m, outer)
	if into[o] == nil {
		into[o] = make(map[string]float64)
	}
	into[o][label(m, inner)] = v
}
