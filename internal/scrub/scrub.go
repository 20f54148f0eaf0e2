// Package scrub implements the keyed-hash transformation of bridge addresses
// and ports into stable pseudonyms.
package scrub

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/bridgearchive/bridgesan/internal/bsan"
)

// ErrBadInput is returned by the scrubbing methods when the input is not a
// well-formed address or port.  Callers must drop the descriptor.
const ErrBadInput errors.Error = "bad address or port"

// Fixed placeholder outputs, used when address hashing is disabled.
const (
	FixedIPv4 = "127.0.0.1"
	FixedIPv6 = "[fd9f:2e19:3bcf::]"
	FixedPort = "1"
)

// ipv6Prefix is the well-known prefix of every pseudonymized IPv6 address.
const ipv6Prefix = "fd9f:2e19:3bcf::"

// Interface is the interface of address scrubbers.  Every method transforms
// one textual field of a descriptor.  The fingerprint is mixed into the hash
// input so that two bridges sharing an address still map to different
// pseudonyms, and the publication time selects the month-scoped secret.
type Interface interface {
	// IPv4 scrubs a dotted-quad IPv4 address.
	IPv4(ctx context.Context, addr string, fp bsan.Fingerprint, pub time.Time) (out string, err error)

	// IPv6 scrubs a bracketed IPv6 address.
	IPv6(ctx context.Context, addr string, fp bsan.Fingerprint, pub time.Time) (out string, err error)

	// Port scrubs a decimal TCP port.  Port zero is passed through, since it
	// means the bridge does not expose the corresponding service.
	Port(ctx context.Context, port string, fp bsan.Fingerprint, pub time.Time) (out string, err error)

	// ORAddress scrubs an "address:port" endpoint, dispatching on whether
	// the address part is bracketed.
	ORAddress(ctx context.Context, addr string, fp bsan.Fingerprint, pub time.Time) (out string, err error)
}
