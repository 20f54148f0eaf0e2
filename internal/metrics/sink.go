package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/bridgearchive/bridgesan/internal/sink"
	"github.com/c2h5oh/datasize"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the Prometheus-based implementation of the [sink.Metrics]
// interface.
type Sink struct {
	// written is a counter of written artifacts by kind.
	written *prometheus.CounterVec

	// duplicates is a counter of suppressed duplicate artifacts by kind.
	duplicates *prometheus.CounterVec

	// size is a histogram of written artifact sizes by kind.
	size *prometheus.HistogramVec
}

// NewSink registers the output metrics in reg and returns a properly
// initialized [Sink].
func NewSink(reg prometheus.Registerer) (m *Sink, err error) {
	const (
		written    = "written_total"
		duplicates = "duplicates_total"
		size       = "artifact_size_bytes"
	)

	m = &Sink{
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      written,
			Namespace: namespace,
			Subsystem: subsystemSink,
			Help:      "Count of written artifacts.",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      duplicates,
			Namespace: namespace,
			Subsystem: subsystemSink,
			Help:      "Count of suppressed duplicate artifacts.",
		}, []string{"kind"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      size,
			Namespace: namespace,
			Subsystem: subsystemSink,
			Help:      "Size of written artifacts.",
			Buckets:   []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"kind"}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   written,
		Value: m.written,
	}, {
		Key:   duplicates,
		Value: m.duplicates,
	}, {
		Key:   size,
		Value: m.size,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ sink.Metrics = (*Sink)(nil)

// IncrementWritten implements the [sink.Metrics] interface for *Sink.
func (m *Sink) IncrementWritten(_ context.Context, kind sanitize.Kind) {
	m.written.WithLabelValues(string(kind)).Inc()
}

// IncrementDuplicates implements the [sink.Metrics] interface for *Sink.
func (m *Sink) IncrementDuplicates(_ context.Context, kind sanitize.Kind) {
	m.duplicates.WithLabelValues(string(kind)).Inc()
}

// ObserveSize implements the [sink.Metrics] interface for *Sink.
func (m *Sink) ObserveSize(_ context.Context, kind sanitize.Kind, size datasize.ByteSize) {
	m.size.WithLabelValues(string(kind)).Observe(float64(size))
}
