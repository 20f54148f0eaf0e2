package sanitize

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bridgearchive/bridgesan/internal/edkey"
)

// Markers of the embedded Ed25519 identity certificate block.
const (
	edCertBegin = "-----BEGIN ED25519 CERT-----"
	edCertEnd   = "-----END ED25519 CERT-----"
)

// edTracker accumulates the Ed25519 identity information of one descriptor
// and guards the consistency between the embedded certificate and an
// explicit master-key-ed25519 line.
type edTracker struct {
	masterKey []byte
	hasCert   bool
	emitted   bool
}

// certify records the master key certified by the certificate in certB64.
// line is the sanitized master-key-ed25519 line to append to the body, or
// empty if one has been emitted already.
func (t *edTracker) certify(certB64 string) (line string, err error) {
	cert, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(certB64, "="))
	if err != nil {
		return "", fmt.Errorf("%w: bad certificate base64: %w", ErrParse, err)
	}

	key, err := edkey.MasterKey(cert)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrParse, err)
	}

	if t.masterKey != nil && !bytes.Equal(key, t.masterKey) {
		return "", ErrKeyMismatch
	}

	t.masterKey = key
	t.hasCert = true

	return t.emit(), nil
}

// explicit records the master key from an explicit master-key-ed25519 line.
// line is as in [edTracker.certify].
func (t *edTracker) explicit(arg string) (line string, err error) {
	key, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(arg, "="))
	if err != nil {
		return "", fmt.Errorf("%w: bad master-key-ed25519: %w", ErrParse, err)
	}

	if t.masterKey != nil {
		if !bytes.Equal(key, t.masterKey) {
			return "", ErrKeyMismatch
		}

		return "", nil
	}

	t.masterKey = key

	return t.emit(), nil
}

// emit returns the sanitized master-key-ed25519 line on the first call and
// an empty string afterwards.
func (t *edTracker) emit() (line string) {
	if t.emitted {
		return ""
	}

	t.emitted = true
	sum := sha256.Sum256(t.masterKey)

	return "master-key-ed25519 " + base64.RawStdEncoding.EncodeToString(sum[:])
}

// collectCertLines gathers the base64 payload of a certificate block from
// the lines following its keyword line and returns the number of lines
// consumed.
func collectCertLines(rest []string) (certB64 string, consumed int, err error) {
	if len(rest) == 0 || rest[0] != edCertBegin {
		return "", 0, fmt.Errorf("%w: identity-ed25519 without certificate block", ErrParse)
	}

	b := &strings.Builder{}
	for i := 1; i < len(rest); i++ {
		if rest[i] == edCertEnd {
			return b.String(), i + 1, nil
		}

		b.WriteString(rest[i])
	}

	return "", 0, fmt.Errorf("%w: unterminated certificate block", ErrParse)
}
