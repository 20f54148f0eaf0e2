package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/prometheus/client_golang/prometheus"
)

// Sanitizer is the Prometheus-based implementation of the
// [sanitize.Metrics] interface.
type Sanitizer struct {
	// sanitized is a counter of successfully sanitized descriptors by kind.
	sanitized *prometheus.CounterVec

	// dropped is a counter of dropped descriptors by kind and reason.
	dropped *prometheus.CounterVec
}

// NewSanitizer registers the sanitization metrics in reg and returns a
// properly initialized [Sanitizer].
func NewSanitizer(reg prometheus.Registerer) (m *Sanitizer, err error) {
	const (
		sanitized = "sanitized_total"
		dropped   = "dropped_total"
	)

	m = &Sanitizer{
		sanitized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      sanitized,
			Namespace: namespace,
			Subsystem: subsystemSanitizer,
			Help:      "Count of successfully sanitized descriptors.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      dropped,
			Namespace: namespace,
			Subsystem: subsystemSanitizer,
			Help:      "Count of dropped descriptors.",
		}, []string{"kind", "reason"}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   sanitized,
		Value: m.sanitized,
	}, {
		Key:   dropped,
		Value: m.dropped,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ sanitize.Metrics = (*Sanitizer)(nil)

// IncrementSanitized implements the [sanitize.Metrics] interface for
// *Sanitizer.
func (m *Sanitizer) IncrementSanitized(_ context.Context, kind sanitize.Kind) {
	m.sanitized.WithLabelValues(string(kind)).Inc()
}

// IncrementDropped implements the [sanitize.Metrics] interface for
// *Sanitizer.
func (m *Sanitizer) IncrementDropped(_ context.Context, kind sanitize.Kind, reason string) {
	m.dropped.WithLabelValues(string(kind), reason).Inc()
}
