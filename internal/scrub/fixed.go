package scrub

import (
	"context"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
)

// Fixed is the [Interface] implementation used when address hashing is
// disabled.  It validates its inputs like [Keyed] does, but emits constant
// placeholders.
type Fixed struct{}

// type check
var _ Interface = Fixed{}

// IPv4 implements the [Interface] interface for Fixed.
func (Fixed) IPv4(
	_ context.Context,
	addr string,
	_ bsan.Fingerprint,
	_ time.Time,
) (out string, err error) {
	_, err = parseIPv4(addr)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	return FixedIPv4, nil
}

// IPv6 implements the [Interface] interface for Fixed.
func (Fixed) IPv6(
	_ context.Context,
	addr string,
	_ bsan.Fingerprint,
	_ time.Time,
) (out string, err error) {
	_, err = parseIPv6(addr)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	return FixedIPv6, nil
}

// Port implements the [Interface] interface for Fixed.
func (Fixed) Port(
	_ context.Context,
	port string,
	_ bsan.Fingerprint,
	_ time.Time,
) (out string, err error) {
	p, err := parsePort(port)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	} else if p == 0 {
		return "0", nil
	}

	return FixedPort, nil
}

// ORAddress implements the [Interface] interface for Fixed.
func (f Fixed) ORAddress(
	ctx context.Context,
	addr string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	return scrubORAddress(ctx, f, addr, fp, pub)
}
