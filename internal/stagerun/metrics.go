package stagerun

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	consumed    prometheus.Counter
	produced    prometheus.Counter
	callbackErr prometheus.Counter
	retried     prometheus.Counter
	deadLettered prometheus.Counter
	callbackLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, pipeline, stage string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"pipeline": pipeline, "stage": stage}
	return &metrics{
		consumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "consumed_total",
			Help: "Messages consumed from input topics.", ConstLabels: labels,
		}),
		produced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "produced_total",
			Help: "Messages produced to the output topic.", ConstLabels: labels,
		}),
		callbackErr: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "callback_errors_total",
			Help: "Callback invocations that returned an error.", ConstLabels: labels,
		}),
		retried: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "retries_total",
			Help: "Callback retry attempts.", ConstLabels: labels,
		}),
		deadLettered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "dead_lettered_total",
			Help: "Envelopes sent to the dead-letter topic after exhausting retries.", ConstLabels: labels,
		}),
		callbackLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mcmot", Subsystem: "stage", Name: "callback_duration_seconds",
			Help: "Stage callback latency.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
	}
}
