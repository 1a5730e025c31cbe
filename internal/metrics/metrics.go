// Package metrics exposes Prometheus instrumentation for the scheduler,
// the event time resolver and message delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the scheduler and delivery paths report to.
type Recorder interface {
	RecordTick(duration time.Duration)
	RecordTickSkipped(reason string)
	RecordSent(reminderType string)
	RecordSendFailure(reminderType string)
	RecordResolverSource(source string)
	SetDueUsers(n int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	ticks        prometheus.Counter
	tickSkipped  *prometheus.CounterVec
	tickDuration prometheus.Histogram
	sent         *prometheus.CounterVec
	sendFailed   *prometheus.CounterVec
	resolver     *prometheus.CounterVec
	dueUsers     prometheus.Gauge
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wabot_scheduler_ticks_total",
			Help: "Completed scheduler ticks.",
		}),
		tickSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wabot_scheduler_ticks_skipped_total",
			Help: "Scheduler ticks abandoned before evaluation.",
		}, []string{"reason"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wabot_scheduler_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wabot_reminders_sent_total",
			Help: "Reminders delivered, by type.",
		}, []string{"type"}),
		sendFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wabot_reminders_failed_total",
			Help: "Reminder deliveries that failed, by type.",
		}, []string{"type"}),
		resolver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wabot_resolver_results_total",
			Help: "Event time resolutions, by source (live, fallback, seasonal).",
		}, []string{"source"}),
		dueUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wabot_scheduler_users",
			Help: "Users with enabled reminders seen on the last tick.",
		}),
	}

	reg.MustRegister(
		c.ticks,
		c.tickSkipped,
		c.tickDuration,
		c.sent,
		c.sendFailed,
		c.resolver,
		c.dueUsers,
	)
	return c
}

func (c *Collector) RecordTick(d time.Duration) {
	c.ticks.Inc()
	c.tickDuration.Observe(d.Seconds())
}

func (c *Collector) RecordTickSkipped(reason string) {
	c.tickSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordSent(reminderType string) {
	c.sent.WithLabelValues(reminderType).Inc()
}

func (c *Collector) RecordSendFailure(reminderType string) {
	c.sendFailed.WithLabelValues(reminderType).Inc()
}

func (c *Collector) RecordResolverSource(source string) {
	c.resolver.WithLabelValues(source).Inc()
}

func (c *Collector) SetDueUsers(n int) {
	c.dueUsers.Set(float64(n))
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTick(time.Duration) {}
func (Nop) RecordTickSkipped(string) {}
func (Nop) RecordSent(string) {}
func (Nop) RecordSendFailure(string) {}
func (Nop) RecordResolverSource(string) {}
func (Nop) SetDueUsers(int) {}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
