// Package descdigest computes the canonical digests of raw descriptors.  The
// digests are computed over exact byte ranges of the raw input, never over
// re-encoded text, since they name the resulting artifacts and appear on the
// trailer lines consumed by downstream analytics.
package descdigest

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrNoDelimiter is returned when the raw input does not contain the byte
// range delimiters of the requested digest.
const ErrNoDelimiter errors.Error = "digest range delimiter not found"

// Range end markers.  Both are inclusive: the digested range extends through
// the trailing newline of the marker.
const (
	sha1EndMarker   = "\nrouter-signature\n"
	sha256EndMarker = "\n-----END SIGNATURE-----\n"
)

// SHA1Hex returns the lowercase hexadecimal SHA-1-of-SHA-1 over the range of
// raw starting at the line beginning with startKeyword and ending at the end
// of the "router-signature" line.
func SHA1Hex(raw []byte, startKeyword string) (digest string, err error) {
	r, err := digestRange(raw, startKeyword, sha1EndMarker)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	inner := sha1.Sum(r)
	outer := sha1.Sum(inner[:])

	return hex.EncodeToString(outer[:]), nil
}

// SHA256Base64 returns the unpadded-base64 SHA-256-of-SHA-256 over the range
// of raw starting at the line beginning with startKeyword and ending at the
// end of the signature block.
func SHA256Base64(raw []byte, startKeyword string) (digest string, err error) {
	r, err := digestRange(raw, startKeyword, sha256EndMarker)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return "", err
	}

	inner := sha256.Sum256(r)
	outer := sha256.Sum256(inner[:])

	return base64.RawStdEncoding.EncodeToString(outer[:]), nil
}

// digestRange slices the digested byte range out of raw.
func digestRange(raw []byte, startKeyword, endMarker string) (r []byte, err error) {
	start := 0
	if !bytes.HasPrefix(raw, []byte(startKeyword)) {
		i := bytes.Index(raw, []byte("\n"+startKeyword))
		if i < 0 {
			return nil, fmt.Errorf("%w: no %q line", ErrNoDelimiter, startKeyword)
		}

		start = i + 1
	}

	end := bytes.Index(raw[start:], []byte(endMarker))
	if end < 0 {
		return nil, fmt.Errorf("%w: no %q marker", ErrNoDelimiter, endMarker)
	}

	return raw[start : start+end+len(endMarker)], nil
}
