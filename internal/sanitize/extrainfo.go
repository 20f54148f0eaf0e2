package sanitize

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/descdigest"
)

// extraInfo sanitizes bridge extra-info descriptors.  Unlike server
// descriptors, extra-info documents carry no addresses that need hashing:
// transport endpoints are stripped entirely.
type extraInfo struct{}

// extraInfoCopyKeywords are the keywords whose lines are copied into the
// sanitized extra-info descriptor verbatim.
var extraInfoCopyKeywords = map[string]struct{}{
	"conn-bi-direct":       {},
	"geoip-client-origins": {},
	"geoip-db-digest":      {},
	"geoip-start-time":     {},
	"geoip6-db-digest":     {},
	"padding-counts":       {},
	"read-history":         {},
	"write-history":        {},
}

// extraInfoCopyPrefixes are the keyword families whose lines are copied into
// the sanitized extra-info descriptor verbatim.
var extraInfoCopyPrefixes = []string{
	"bridge-",
	"cell-",
	"dirreq-",
	"entry-",
	"exit-",
	"hidserv-",
}

// extraInfoParse is the intermediate sanitized record of one extra-info
// descriptor.
type extraInfoParse struct {
	published time.Time
	body      []string
	ed        edTracker
	haveIdent bool
	havePub   bool
}

// sanitize transforms one raw bridge extra-info descriptor.
func (s *extraInfo) sanitize(_ context.Context, raw []byte) (res *Result, err error) {
	p := &extraInfoParse{}

	err = s.parse(p, raw)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	switch {
	case !p.haveIdent:
		return nil, fmt.Errorf("%w: no extra-info line", ErrParse)
	case !p.havePub:
		return nil, fmt.Errorf("%w: no published line", ErrParse)
	}

	return s.materialize(p, raw)
}

// parse fills p from the raw descriptor lines.
func (s *extraInfo) parse(p *extraInfoParse, raw []byte) (err error) {
	lines := splitLines(raw)
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.HasPrefix(line, "@") {
			continue
		}

		noOpt, _ := cutOpt(line)
		kw := keyword(noOpt)

		switch kw {
		case "router-signature":
			return nil
		case "identity-ed25519":
			var certB64 string
			var consumed int
			certB64, consumed, err = collectCertLines(lines[i+1:])
			if err != nil {
				// Don't wrap the error, because it's informative enough as
				// is.
				return err
			}

			var mkLine string
			mkLine, err = p.ed.certify(certB64)
			if err != nil {
				// Don't wrap the error, because it's informative enough as
				// is.
				return err
			}

			if mkLine != "" {
				p.body = append(p.body, mkLine)
			}

			i += consumed
		default:
			err = s.parseLine(p, line, noOpt, kw)
			if err != nil {
				// Don't wrap the error, because it's informative enough as
				// is.
				return err
			}
		}
	}

	return nil
}

// parseLine handles one regular line.
func (s *extraInfo) parseLine(
	p *extraInfoParse,
	line string,
	noOpt string,
	kw string,
) (err error) {
	if extraInfoLineCopied(kw) {
		p.body = append(p.body, line)

		return nil
	}

	switch kw {
	case "extra-info":
		toks := strings.Fields(noOpt)
		if len(toks) != 3 {
			return fmt.Errorf("%w: extra-info line has %d tokens", ErrParse, len(toks))
		}

		var fp bsan.Fingerprint
		fp, err = bsan.ParseFingerprint(toks[2])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		p.haveIdent = true
		hashed := bsan.Fingerprint(sha1.Sum(fp[:]))
		p.body = append(p.body, "extra-info "+toks[1]+" "+hashed.HexUpper())
	case "published":
		p.published, err = bsan.ParseTime(strings.TrimPrefix(noOpt, "published "))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		p.havePub = true
		p.body = append(p.body, line)
	case "transport":
		toks := strings.Fields(noOpt)
		if len(toks) < 2 {
			return fmt.Errorf("%w: transport line has %d tokens", ErrParse, len(toks))
		}

		// Keep the transport name only: the endpoint and any arguments
		// identify the bridge.
		p.body = append(p.body, "transport "+toks[1])
	case "transport-info":
		// Dropped: may carry session secrets.
	case "master-key-ed25519":
		var mkLine string
		mkLine, err = p.ed.explicit(strings.TrimPrefix(noOpt, "master-key-ed25519 "))
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}

		if mkLine != "" {
			p.body = append(p.body, mkLine)
		}
	case "router-sig-ed25519":
		// Dropped: signatures are not copied.
	default:
		return fmt.Errorf("%w: unrecognized line %q", ErrParse, kw)
	}

	return nil
}

// extraInfoLineCopied returns true if lines with the given keyword are
// copied verbatim.
func extraInfoLineCopied(kw string) (ok bool) {
	if _, ok = extraInfoCopyKeywords[kw]; ok {
		return true
	}

	for _, pfx := range extraInfoCopyPrefixes {
		if strings.HasPrefix(kw, pfx) {
			return true
		}
	}

	return false
}

// materialize builds the final artifact from the parsed record.
func (s *extraInfo) materialize(p *extraInfoParse, raw []byte) (res *Result, err error) {
	buf := &bytes.Buffer{}
	buf.WriteString(annotationExtraInfo)

	for _, line := range p.body {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	sha1Hex, err := descdigest.SHA1Hex(raw, "extra-info ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	if p.ed.hasCert {
		var sha256B64 string
		sha256B64, err = descdigest.SHA256Base64(raw, "extra-info ")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		fmt.Fprintf(buf, "router-digest-sha256 %s\n", sha256B64)
	}

	fmt.Fprintf(buf, "router-digest %s\n", strings.ToUpper(sha1Hex))

	return &Result{
		Published: p.published,
		Kind:      KindExtraInfo,
		SHA1Hex:   sha1Hex,
		Bytes:     buf.Bytes(),
	}, nil
}
