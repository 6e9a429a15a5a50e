package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	backlogSize   prometheus.Gauge
	accepted      prometheus.Counter
	skipped       prometheus.Counter
	waited        prometheus.Counter
	evictedBacklog prometheus.Counter
	evictedRetention prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, pipeline, stage string) *metrics {
	labels := prometheus.Labels{"pipeline": pipeline, "stage": stage}
	f := promauto.With(reg)
	return &metrics{
		backlogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mcmot",
			Subsystem:   "sync",
			Name:        "backlog_size",
			Help:        "Number of buffered sync groups/heads.",
			ConstLabels: labels,
		}),
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "sync", Name: "accepted_total",
			Help: "Envelopes accepted by skip_or_wait.", ConstLabels: labels,
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "sync", Name: "skipped_total",
			Help: "Envelopes skipped by skip_or_wait.", ConstLabels: labels,
		}),
		waited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "sync", Name: "waited_total",
			Help: "Envelopes that produced a WAIT decision.", ConstLabels: labels,
		}),
		evictedBacklog: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "sync", Name: "evicted_backlog_total",
			Help: "Groups evicted due to backlog_threshold.", ConstLabels: labels,
		}),
		evictedRetention: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "sync", Name: "evicted_retention_total",
			Help: "Groups evicted due to retention_time.", ConstLabels: labels,
		}),
	}
}
