package secrets

import "context"

// Metrics is an interface that is used for the collection of the secret-store
// statistics.
type Metrics interface {
	// MonthCountSet sets the number of months currently persisted to n.
	MonthCountSet(ctx context.Context, n float64)

	// IncrementFailures increments the number of persistence and RNG
	// failures.
	IncrementFailures(ctx context.Context)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// MonthCountSet implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) MonthCountSet(_ context.Context, _ float64) {}

// IncrementFailures implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementFailures(_ context.Context) {}
