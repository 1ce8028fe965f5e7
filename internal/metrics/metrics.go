// Package metrics exposes prometheus collectors for presence and message fan-out.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgenie"

// Collector implements core.Metrics on top of a dedicated prometheus registry.
type Collector struct {
	registry  *prometheus.Registry
	online    prometheus.Gauge
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	gaps      prometheus.Counter
}

// New builds a collector with its own registry, so tests can create many.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of users with an active connection.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events queued to a connection, by event kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a connection queue was full, by event kind.",
		}, []string{"kind"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "direct_delivery_gaps_total",
			Help:      "Direct message parties that were offline at routing time.",
		}),
	}

	c.registry.MustRegister(
		c.online,
		c.delivered,
		c.dropped,
		c.gaps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// SetOnline records the current presence count.
func (c *Collector) SetOnline(n int) {
	c.online.Set(float64(n))
}

// ObserveDelivered counts a queued event.
func (c *Collector) ObserveDelivered(kind string) {
	c.delivered.WithLabelValues(kind).Inc()
}

// ObserveDropped counts an event lost to a full queue.
func (c *Collector) ObserveDropped(kind string) {
	c.dropped.WithLabelValues(kind).Inc()
}

// ObserveDeliveryGap counts an offline direct message party.
func (c *Collector) ObserveDeliveryGap() {
	c.gaps.Inc()
}

// Registry returns the underlying prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
