// Package edkey extracts the long-term Ed25519 master public key from the
// identity certificate embedded in a descriptor.
package edkey

import (
	"encoding/binary"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// MasterKeyLen is the length of an Ed25519 master public key.
const MasterKeyLen = 32

// ErrBadCert is returned by [MasterKey] when the certificate structure is
// malformed or carries no master key.
const ErrBadCert errors.Error = "bad ed25519 certificate"

// Fixed offsets and values of the certificate structure.
const (
	certVersion      = 0x01
	certTypeIDSign   = 0x04
	certifiedKeyType = 0x01

	extCountOffset = 39
	extStartOffset = 40

	extTypeSignedWithKey = 0x04
)

// MasterKey walks the extensions of the base64-decoded certificate cert and
// returns the 32-byte master public key.
func MasterKey(cert []byte) (key []byte, err error) {
	if l := len(cert); l < extStartOffset {
		return nil, fmt.Errorf("%w: certificate too short: %d bytes", ErrBadCert, l)
	}

	switch {
	case cert[0] != certVersion:
		return nil, fmt.Errorf("%w: unknown version %#x", ErrBadCert, cert[0])
	case cert[1] != certTypeIDSign:
		return nil, fmt.Errorf("%w: not an identity certificate", ErrBadCert)
	case cert[6] != certifiedKeyType:
		return nil, fmt.Errorf("%w: unknown certified key type", ErrBadCert)
	}

	extCount := int(cert[extCountOffset])
	if extCount < 1 {
		return nil, fmt.Errorf("%w: no extensions", ErrBadCert)
	}

	off := extStartOffset
	for range extCount {
		if off+4 > len(cert) {
			return nil, fmt.Errorf("%w: truncated extension header", ErrBadCert)
		}

		extLen := int(binary.BigEndian.Uint16(cert[off : off+2]))
		extType := cert[off+2]
		off += 4

		if off+extLen > len(cert) {
			return nil, fmt.Errorf("%w: truncated extension payload", ErrBadCert)
		}

		if extType == extTypeSignedWithKey && extLen == MasterKeyLen {
			return cert[off : off+MasterKeyLen], nil
		}

		off += extLen
	}

	return nil, fmt.Errorf("%w: no master key extension", ErrBadCert)
}
