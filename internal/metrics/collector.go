// Package metrics provides Prometheus metrics for perfhint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns every perfhint metric. All methods are safe on a nil
// Collector so components can run without metrics.
type Collector struct {
	// Gauges
	groups   prometheus.Gauge
	channels prometheus.Gauge
	sessions prometheus.Gauge

	// Counters
	messages    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	blocklisted prometheus.Counter
	archived    prometheus.Counter

	// Histograms
	batchSize prometheus.Histogram
}

// NewCollector registers all metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		groups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "perfhint_channel_groups",
			Help: "Live channel groups (one worker thread each)",
		}),
		channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "perfhint_channels",
			Help: "Live client channels",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "perfhint_sessions",
			Help: "Open hint sessions",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perfhint_messages_dispatched_total",
			Help: "Messages delivered to sessions by kind",
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perfhint_messages_dropped_total",
			Help: "Messages not delivered by reason",
		}, []string{"reason"}),
		blocklisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "perfhint_clients_blocklisted_total",
			Help: "Client uids blocklisted after a protocol violation",
		}),
		archived: factory.NewCounter(prometheus.CounterOpts{
			Name: "perfhint_sessions_archived_total",
			Help: "Closed sessions written to the metrics archive",
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "perfhint_work_duration_batch_size",
			Help:    "Work durations coalesced into one report",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
	}
}

// SetGroups updates the live group count
func (c *Collector) SetGroups(n int) {
	if c == nil {
		return
	}
	c.groups.Set(float64(n))
}

// SetChannels updates the live channel count
func (c *Collector) SetChannels(n int) {
	if c == nil {
		return
	}
	c.channels.Set(float64(n))
}

// SetSessions updates the open session count
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.sessions.Set(float64(n))
}

// MessageDispatched counts one delivered message
func (c *Collector) MessageDispatched(kind string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(kind).Inc()
}

// MessageDropped counts one undelivered message
func (c *Collector) MessageDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
}

// ClientBlocklisted counts one blocklisted uid
func (c *Collector) ClientBlocklisted() {
	if c == nil {
		return
	}
	c.blocklisted.Inc()
}

// SessionArchived counts one archived session
func (c *Collector) SessionArchived() {
	if c == nil {
		return
	}
	c.archived.Inc()
}

// ObserveBatch records the size of one coalesced work-duration report
func (c *Collector) ObserveBatch(n int) {
	if c == nil {
		return
	}
	c.batchSize.Observe(float64(n))
}
