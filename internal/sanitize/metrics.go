package sanitize

import "context"

// Drop reasons for [Metrics.IncrementDropped].
const (
	DropReasonParse   = "parse"
	DropReasonCrypto  = "crypto"
	DropReasonSecrets = "secrets"
	DropReasonIO      = "io"
)

// Metrics is an interface that is used for the collection of the
// sanitization statistics.
type Metrics interface {
	// IncrementSanitized increments the number of successfully sanitized
	// descriptors of the given kind.
	IncrementSanitized(ctx context.Context, kind Kind)

	// IncrementDropped increments the number of dropped descriptors of the
	// given kind for the given reason, which is one of the DropReason
	// constants.
	IncrementDropped(ctx context.Context, kind Kind, reason string)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementSanitized implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementSanitized(_ context.Context, _ Kind) {}

// IncrementDropped implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementDropped(_ context.Context, _ Kind, _ string) {}
