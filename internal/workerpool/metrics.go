package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	queueLength prometheus.Gauge
	queueMax    prometheus.Gauge
	jobsDone    prometheus.Counter
	jobsFailed  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, name string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"pool": name}
	return &metrics{
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcmot", Subsystem: "workerpool", Name: "queue_length",
			Help: "Current number of queued jobs not yet picked up by a worker.", ConstLabels: labels,
		}),
		queueMax: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcmot", Subsystem: "workerpool", Name: "queue_max",
			Help: "Configured queue depth.", ConstLabels: labels,
		}),
		jobsDone: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "workerpool", Name: "jobs_completed_total",
			Help: "Jobs that returned without error.", ConstLabels: labels,
		}),
		jobsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "workerpool", Name: "jobs_failed_total",
			Help: "Jobs that returned an error.", ConstLabels: labels,
		}),
	}
}
