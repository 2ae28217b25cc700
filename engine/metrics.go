package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("velograph.engine")

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "velograph_operations_total",
		Help: "Total top-level operations by kind, target, backend and outcome",
	}, []string{"op", "name", "backend", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "velograph_operation_duration_seconds",
		Help:    "Duration of top-level operations including hooks and shaping",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"op", "name", "backend"})
)
