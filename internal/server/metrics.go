package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics bundles the counters exposed on /metrics. Not required by
// the core protocol, but the rest of the ambient stack (logging,
// config, test tooling) is carried regardless of what the feature
// Non-goals exclude, and a Prometheus registry is the idiomatic way
// the retrieved corpus instruments a long-running server.
type metrics struct {
	uploadsReceived      prometheus.Counter
	measurementsIngested prometheus.Counter
	decodeErrors         *prometheus.CounterVec
	validationWarnings   *prometheus.CounterVec
}

func newMetrics(registry prometheus.Registerer) *metrics {
	factory := promauto.With(registry)
	return &metrics{
		uploadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "scale_uploads_received_total",
			Help: "Total number of POST /scale/upload requests received.",
		}),
		measurementsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "scale_measurements_ingested_total",
			Help: "Total number of measurement rows successfully inserted.",
		}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scale_decode_errors_total",
			Help: "Total number of upload frames that failed to decode, by error kind.",
		}, []string{"kind"}),
		validationWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scale_validation_warnings_total",
			Help: "Total number of validation issues observed on decoded frames, by issue kind.",
		}, []string{"kind"}),
	}
}
