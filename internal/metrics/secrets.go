package metrics

import (
	"context"

	"github.com/AdguardTeam/golibs/container"
	"github.com/bridgearchive/bridgesan/internal/secrets"
	"github.com/prometheus/client_golang/prometheus"
)

// Secrets is the Prometheus-based implementation of the [secrets.Metrics]
// interface.
type Secrets struct {
	// monthCount is a gauge with the number of months currently persisted
	// in the secret store.
	monthCount prometheus.Gauge

	// failures is a counter of persistence and RNG failures.
	failures prometheus.Counter
}

// NewSecrets registers the secret-store metrics in reg and returns a
// properly initialized [Secrets].
func NewSecrets(reg prometheus.Registerer) (m *Secrets, err error) {
	const (
		monthCount = "months_stored"
		failures   = "failures_total"
	)

	m = &Secrets{
		monthCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      monthCount,
			Namespace: namespace,
			Subsystem: subsystemSecrets,
			Help:      "Count of months persisted in the secret store.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      failures,
			Namespace: namespace,
			Subsystem: subsystemSecrets,
			Help:      "Count of secret store persistence and RNG failures.",
		}),
	}

	err = register(reg, container.KeyValues[string, prometheus.Collector]{{
		Key:   monthCount,
		Value: m.monthCount,
	}, {
		Key:   failures,
		Value: m.failures,
	}})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// type check
var _ secrets.Metrics = (*Secrets)(nil)

// MonthCountSet implements the [secrets.Metrics] interface for *Secrets.
func (m *Secrets) MonthCountSet(_ context.Context, n float64) {
	m.monthCount.Set(n)
}

// IncrementFailures implements the [secrets.Metrics] interface for
// *Secrets.
func (m *Secrets) IncrementFailures(_ context.Context) {
	m.failures.Inc()
}
