package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelpipeline",
			Subsystem: "pipeline",
			Name:      "operations_total",
			Help:      "Pipeline operations by name and outcome",
		},
		[]string{"operation", "result"},
	)

	uploadedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modelpipeline",
			Subsystem: "pipeline",
			Name:      "uploaded_bytes_total",
			Help:      "Model bytes appended to the upload buffer",
		},
	)

	stateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelpipeline",
			Subsystem: "pipeline",
			Name:      "state",
			Help:      "1 for the current pipeline state, 0 for the others",
		},
		[]string{"state"},
	)

	computeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelpipeline",
			Subsystem: "engine",
			Name:      "compute_duration_seconds",
			Help:      "Duration of a single compute window",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dtype"},
	)

	windowLayers = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "modelpipeline",
			Subsystem: "engine",
			Name:      "window_layers",
			Help:      "Layers run per compute window",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(operationsTotal, uploadedBytesTotal, stateGauge, computeDuration, windowLayers)
}

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}

func recordState(s State) {
	for _, other := range []State{Empty, Uploading, Parsed, Ready} {
		v := 0.0
		if other == s {
			v = 1
		}
		stateGauge.WithLabelValues(other.String()).Set(v)
	}
}
