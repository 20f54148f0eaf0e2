package sink

import (
	"context"

	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/c2h5oh/datasize"
)

// Metrics is an interface that is used for the collection of the output
// statistics.
type Metrics interface {
	// IncrementWritten increments the number of written artifacts of the
	// given kind.
	IncrementWritten(ctx context.Context, kind sanitize.Kind)

	// IncrementDuplicates increments the number of suppressed duplicate
	// artifacts of the given kind.
	IncrementDuplicates(ctx context.Context, kind sanitize.Kind)

	// ObserveSize records the size of a written artifact of the given kind.
	ObserveSize(ctx context.Context, kind sanitize.Kind, size datasize.ByteSize)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementWritten implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementWritten(_ context.Context, _ sanitize.Kind) {}

// IncrementDuplicates implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementDuplicates(_ context.Context, _ sanitize.Kind) {}

// ObserveSize implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveSize(_ context.Context, _ sanitize.Kind, _ datasize.ByteSize) {}
