package scrub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/secrets"
)

// Keyed is the [Interface] implementation that derives pseudonyms from a
// SHA-256 over the original value, the bridge fingerprint, and a month-scoped
// secret from the store.
type Keyed struct {
	store *secrets.Store
}

// NewKeyed returns a new keyed scrubber backed by store, which must not be
// nil.
func NewKeyed(store *secrets.Store) (s *Keyed) {
	return &Keyed{
		store: store,
	}
}

// type check
var _ Interface = (*Keyed)(nil)

// IPv4 implements the [Interface] interface for *Keyed.  The result is of
// the form "10.a.b.c" where a, b, and c are the first three digest bytes.
func (s *Keyed) IPv4(
	ctx context.Context,
	addr string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	ip, err := parseIPv4(addr)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	sec, err := s.store.Secret(ctx, bsan.MonthOf(pub))
	if err != nil {
		return "", fmt.Errorf("scrubbing ipv4: %w", err)
	}

	ip4 := ip.As4()
	sum := keyedSum(ip4[:], fp, sec.IPv4Key())

	return fmt.Sprintf("10.%d.%d.%d", sum[0], sum[1], sum[2]), nil
}

// IPv6 implements the [Interface] interface for *Keyed.  The result keeps
// the well-known pseudonym prefix and carries six hex digits of the digest.
func (s *Keyed) IPv6(
	ctx context.Context,
	addr string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	ip, err := parseIPv6(addr)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	sec, err := s.store.Secret(ctx, bsan.MonthOf(pub))
	if err != nil {
		return "", fmt.Errorf("scrubbing ipv6: %w", err)
	}

	ip16 := ip.As16()
	sum := keyedSum(ip16[:], fp, sec.IPv6Key())

	h := hex.EncodeToString(sum[:])
	n := len(h)

	return fmt.Sprintf("[%s%s:%s]", ipv6Prefix, h[n-6:n-4], h[n-4:]), nil
}

// Port implements the [Interface] interface for *Keyed.  A 14-bit digest of
// the port is lifted into the ephemeral range [49152,65535].
func (s *Keyed) Port(
	ctx context.Context,
	port string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	p, err := parsePort(port)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	} else if p == 0 {
		return "0", nil
	}

	sec, err := s.store.Secret(ctx, bsan.MonthOf(pub))
	if err != nil {
		return "", fmt.Errorf("scrubbing port: %w", err)
	}

	var portBE [2]byte
	binary.BigEndian.PutUint16(portBE[:], p)
	sum := keyedSum(portBE[:], fp, sec.PortKey())

	scrubbed := (uint16(sum[0])<<8|uint16(sum[1]))>>2 | 0xC000

	return strconv.Itoa(int(scrubbed)), nil
}

// ORAddress implements the [Interface] interface for *Keyed.
func (s *Keyed) ORAddress(
	ctx context.Context,
	addr string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	return scrubORAddress(ctx, s, addr, fp, pub)
}

// keyedSum returns the SHA-256 over value, the fingerprint, and the key.
func keyedSum(value []byte, fp bsan.Fingerprint, key []byte) (sum [sha256.Size]byte) {
	h := sha256.New()
	_, _ = h.Write(value)
	_, _ = h.Write(fp[:])
	_, _ = h.Write(key)

	return [sha256.Size]byte(h.Sum(nil))
}

// parseIPv4 parses a dotted-quad IPv4 address.
func parseIPv4(addr string) (ip netip.Addr, err error) {
	ip, parseErr := netip.ParseAddr(addr)
	if parseErr != nil || !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: not an ipv4 address: %q", ErrBadInput, addr)
	}

	return ip, nil
}

// parseIPv6 parses a bracketed IPv6 address.
func parseIPv6(addr string) (ip netip.Addr, err error) {
	inner, ok := strings.CutPrefix(addr, "[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}

	if !ok {
		return netip.Addr{}, fmt.Errorf("%w: not a bracketed ipv6 address: %q", ErrBadInput, addr)
	}

	ip, parseErr := netip.ParseAddr(inner)
	if parseErr != nil || !ip.Is6() || ip.Zone() != "" {
		return netip.Addr{}, fmt.Errorf("%w: not an ipv6 address: %q", ErrBadInput, addr)
	}

	return ip, nil
}

// parsePort parses a decimal TCP port.
func parsePort(port string) (p uint16, err error) {
	p64, parseErr := strconv.ParseUint(port, 10, 16)
	if parseErr != nil {
		return 0, fmt.Errorf("%w: not a port: %q", ErrBadInput, port)
	}

	return uint16(p64), nil
}

// scrubORAddress splits an "address:port" endpoint on the last colon,
// scrubs both halves using scrubber, and rejoins them.
func scrubORAddress(
	ctx context.Context,
	scrubber Interface,
	addr string,
	fp bsan.Fingerprint,
	pub time.Time,
) (out string, err error) {
	i := strings.LastIndexByte(addr, ':')
	if i < 0 {
		return "", fmt.Errorf("%w: not an address:port endpoint: %q", ErrBadInput, addr)
	}

	host, port := addr[:i], addr[i+1:]

	var scrubbedHost string
	if strings.HasPrefix(host, "[") {
		scrubbedHost, err = scrubber.IPv6(ctx, host, fp, pub)
	} else {
		scrubbedHost, err = scrubber.IPv4(ctx, host, fp, pub)
	}
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	scrubbedPort, err := scrubber.Port(ctx, port, fp, pub)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	return scrubbedHost + ":" + scrubbedPort, nil
}
