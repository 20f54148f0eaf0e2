package bsan

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// FingerprintLen is the length of a bridge identity fingerprint, which is the
// SHA-1 of the bridge's RSA identity key.
const FingerprintLen = 20

// Fingerprint is a 20-byte bridge identity fingerprint.
type Fingerprint [FingerprintLen]byte

// ErrBadFingerprint is returned by the fingerprint parsing functions when the
// input is not a valid 20-byte fingerprint.
const ErrBadFingerprint errors.Error = "bad fingerprint"

// ParseFingerprint parses a fingerprint from its hexadecimal form.  Spaces are
// ignored, so both the compact and the four-character-grouped forms are
// accepted.
func ParseFingerprint(s string) (fp Fingerprint, err error) {
	s = strings.ReplaceAll(s, " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %w", ErrBadFingerprint, err)
	} else if len(b) != FingerprintLen {
		return Fingerprint{}, fmt.Errorf("%w: got %d bytes", ErrBadFingerprint, len(b))
	}

	return Fingerprint(b), nil
}

// ParseFingerprintBase64 parses a fingerprint from the unpadded base64 form
// used by network status "r" lines.
func ParseFingerprintBase64(s string) (fp Fingerprint, err error) {
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %w", ErrBadFingerprint, err)
	} else if len(b) != FingerprintLen {
		return Fingerprint{}, fmt.Errorf("%w: got %d bytes", ErrBadFingerprint, len(b))
	}

	return Fingerprint(b), nil
}

// HexUpper returns the uppercase hexadecimal form of fp.
func (fp Fingerprint) HexUpper() (s string) {
	return strings.ToUpper(hex.EncodeToString(fp[:]))
}

// HexLower returns the lowercase hexadecimal form of fp.
func (fp Fingerprint) HexLower() (s string) {
	return hex.EncodeToString(fp[:])
}

// HexGrouped returns the uppercase hexadecimal form of fp split into ten
// space-separated groups of four characters, as used on server descriptor
// "fingerprint" lines.
func (fp Fingerprint) HexGrouped() (s string) {
	h := fp.HexUpper()
	groups := make([]string, 0, FingerprintLen/2)
	for i := 0; i < len(h); i += 4 {
		groups = append(groups, h[i:i+4])
	}

	return strings.Join(groups, " ")
}
