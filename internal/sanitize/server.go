package sanitize

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/descdigest"
	"github.com/bridgearchive/bridgesan/internal/scrub"
)

// serverDesc sanitizes bridge server descriptors.
type serverDesc struct {
	scrubber scrub.Interface
}

// serverCopyKeywords are the keywords whose lines are copied into the
// sanitized server descriptor verbatim.
var serverCopyKeywords = map[string]struct{}{
	"accept":                 {},
	"allow-single-hop-exits": {},
	"bandwidth":              {},
	"caches-extra-info":      {},
	"hibernating":            {},
	"hidden-service-dir":     {},
	"ipv6-policy":            {},
	"ntor-onion-key":         {},
	"platform":               {},
	"proto":                  {},
	"protocols":              {},
	"tunnelled-dir-server":   {},
	"uptime":                 {},
}

// serverSkipKeywords are the keywords introducing a cryptographic block that
// is discarded up to and including its "-----END" line.
var serverSkipKeywords = map[string]struct{}{
	"ntor-onion-key-crosscert": {},
	"onion-key":                {},
	"onion-key-crosscert":      {},
	"signing-key":              {},
}

// serverParse is the intermediate sanitized record of one server descriptor.
// The router and or-address lines keep their raw form until the fingerprint
// is known, then materialize scrubbed.
type serverParse struct {
	published   time.Time
	fp          bsan.Fingerprint
	routerToks  []string
	orAddresses []string
	body        []bodyLine
	ed          edTracker
	haveFP      bool
	havePub     bool
}

// bodyLine is one line of the sanitized body.  Reject lines referencing the
// router address are resolved during materialization, all other lines are
// final.
type bodyLine struct {
	text     string
	isReject bool
}

// sanitize transforms one raw bridge server descriptor.
func (s *serverDesc) sanitize(ctx context.Context, raw []byte) (res *Result, err error) {
	p := &serverParse{}

	err = s.parse(p, raw)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	switch {
	case p.routerToks == nil:
		return nil, fmt.Errorf("%w: no router line", ErrParse)
	case !p.haveFP:
		return nil, fmt.Errorf("%w: no fingerprint line", ErrParse)
	case !p.havePub:
		return nil, fmt.Errorf("%w: no published line", ErrParse)
	}

	return s.materialize(ctx, p, raw)
}

// parse fills p from the raw descriptor lines.
func (s *serverDesc) parse(p *serverParse, raw []byte) (err error) {
	lines := splitLines(raw)
	skippingBlock := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if skippingBlock {
			if strings.HasPrefix(line, "-----END") {
				skippingBlock = false
			}

			continue
		}

		if strings.HasPrefix(line, "@") {
			// A file annotation or a bridge authority cache annotation such
			// as "@purpose".  Regenerated on output.
			continue
		}

		noOpt, optPrefix := cutOpt(line)
		kw := keyword(noOpt)

		switch {
		case kw == "router-signature":
			return nil
		case kw == "identity-ed25519":
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
				p.body = append(p.body, bodyLine{text: mkLine})
			}

			i += consumed
		default:
			if _, ok := serverSkipKeywords[kw]; ok {
				skippingBlock = true

				continue
			}

			err = s.parseLine(p, line, noOpt, optPrefix, kw)
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
func (s *serverDesc) parseLine(
	p *serverParse,
	line string,
	noOpt string,
	optPrefix string,
	kw string,
) (err error) {
	if _, ok := serverCopyKeywords[kw]; ok {
		p.body = append(p.body, bodyLine{text: line})

		return nil
	}

	switch kw {
	case "router":
		toks := strings.Fields(noOpt)
		if len(toks) != 6 {
			return fmt.Errorf("%w: router line has %d tokens", ErrParse, len(toks))
		}

		p.routerToks = toks
	case "or-address":
		p.orAddresses = append(p.orAddresses, strings.TrimPrefix(noOpt, "or-address "))
	case "published":
		p.published, err = bsan.ParseTime(strings.TrimPrefix(noOpt, "published "))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		p.havePub = true
		p.body = append(p.body, bodyLine{text: line})
	case "fingerprint":
		p.fp, err = bsan.ParseFingerprint(strings.TrimPrefix(noOpt, "fingerprint "))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		p.haveFP = true
		hashed := bsan.Fingerprint(sha1.Sum(p.fp[:]))
		p.body = append(p.body, bodyLine{
			text: optPrefix + "fingerprint " + hashed.HexGrouped(),
		})
	case "contact":
		p.body = append(p.body, bodyLine{text: "contact somebody"})
	case "reject":
		p.body = append(p.body, bodyLine{text: line, isReject: true})
	case "extra-info-digest":
		var sanitized string
		sanitized, err = sanitizeExtraInfoDigestLine(noOpt)
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}

		p.body = append(p.body, bodyLine{text: optPrefix + sanitized})
	case "family":
		var sanitized string
		sanitized, err = sanitizeFamilyLine(noOpt)
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}

		p.body = append(p.body, bodyLine{text: sanitized})
	case "master-key-ed25519":
		var mkLine string
		mkLine, err = p.ed.explicit(strings.TrimPrefix(noOpt, "master-key-ed25519 "))
		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}

		if mkLine != "" {
			p.body = append(p.body, bodyLine{text: mkLine})
		}
	case "router-sig-ed25519":
		// Dropped: signatures are not copied.
	default:
		return fmt.Errorf("%w: unrecognized line %q", ErrParse, kw)
	}

	return nil
}

// materialize builds the final artifact from the parsed record.
func (s *serverDesc) materialize(
	ctx context.Context,
	p *serverParse,
	raw []byte,
) (res *Result, err error) {
	buf := &bytes.Buffer{}
	buf.WriteString(annotationServer)

	err = s.writeRouterLine(ctx, buf, p)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	for _, addr := range p.orAddresses {
		var scrubbed string
		scrubbed, err = s.scrubber.ORAddress(ctx, addr, p.fp, p.published)
		if err != nil {
			return nil, fmt.Errorf("or-address: %w", err)
		}

		fmt.Fprintf(buf, "or-address %s\n", scrubbed)
	}

	err = s.writeBody(ctx, buf, p)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	sha1Hex, err := descdigest.SHA1Hex(raw, "router ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	if p.ed.hasCert {
		var sha256B64 string
		sha256B64, err = descdigest.SHA256Base64(raw, "router ")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		fmt.Fprintf(buf, "router-digest-sha256 %s\n", sha256B64)
	}

	fmt.Fprintf(buf, "router-digest %s\n", strings.ToUpper(sha1Hex))

	return &Result{
		Published: p.published,
		Kind:      KindServer,
		SHA1Hex:   sha1Hex,
		Bytes:     buf.Bytes(),
	}, nil
}

// writeRouterLine writes the scrubbed router line.
func (s *serverDesc) writeRouterLine(
	ctx context.Context,
	buf *bytes.Buffer,
	p *serverParse,
) (err error) {
	ip, err := s.scrubber.IPv4(ctx, p.routerToks[2], p.fp, p.published)
	if err != nil {
		return fmt.Errorf("router address: %w", err)
	}

	ports := make([]string, 0, 3)
	for _, rawPort := range p.routerToks[3:6] {
		var port string
		port, err = s.scrubber.Port(ctx, rawPort, p.fp, p.published)
		if err != nil {
			return fmt.Errorf("router port: %w", err)
		}

		ports = append(ports, port)
	}

	fmt.Fprintf(buf, "router %s %s %s %s %s\n", p.routerToks[1], ip, ports[0], ports[1], ports[2])

	return nil
}

// writeBody writes the buffered body lines, resolving reject lines that
// reference the router address.
func (s *serverDesc) writeBody(ctx context.Context, buf *bytes.Buffer, p *serverParse) (err error) {
	for _, bl := range p.body {
		line := bl.text
		if bl.isReject {
			line, err = s.resolveReject(ctx, p, line)
			if err != nil {
				// Don't wrap the error, because it's informative enough as
				// is.
				return err
			}
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return nil
}

// resolveReject substitutes the scrubbed router address into a reject line
// referencing the raw one.  Other reject lines are kept as they are.
func (s *serverDesc) resolveReject(
	ctx context.Context,
	p *serverParse,
	line string,
) (out string, err error) {
	value := strings.TrimPrefix(line, "reject ")
	i := strings.LastIndexByte(value, ':')
	if i < 0 || value[:i] != p.routerToks[2] {
		return line, nil
	}

	scrubbed, err := s.scrubber.IPv4(ctx, value[:i], p.fp, p.published)
	if err != nil {
		return "", fmt.Errorf("reject address: %w", err)
	}

	return "reject " + scrubbed + value[i:], nil
}

// sanitizeExtraInfoDigestLine rewrites the digests on an extra-info-digest
// line with their hashed forms.
func sanitizeExtraInfoDigestLine(noOpt string) (out string, err error) {
	args := strings.Fields(noOpt)[1:]
	if n := len(args); n < 1 || n > 2 {
		return "", fmt.Errorf("%w: extra-info-digest line has %d arguments", ErrParse, n)
	}

	rawSHA1, err := hex.DecodeString(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad extra-info-digest: %w", ErrParse, err)
	} else if len(rawSHA1) != sha1.Size {
		return "", fmt.Errorf("%w: extra-info-digest is %d bytes", ErrParse, len(rawSHA1))
	}

	hashed := sha1.Sum(rawSHA1)
	out = "extra-info-digest " + strings.ToUpper(hex.EncodeToString(hashed[:]))

	if len(args) == 2 {
		var rawSHA256 []byte
		rawSHA256, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(args[1], "="))
		if err != nil {
			return "", fmt.Errorf("%w: bad extra-info-digest sha256: %w", ErrParse, err)
		} else if len(rawSHA256) != sha256.Size {
			return "", fmt.Errorf("%w: extra-info-digest sha256 is %d bytes", ErrParse, len(rawSHA256))
		}

		hashed256 := sha256.Sum256(rawSHA256)
		out += " " + base64.RawStdEncoding.EncodeToString(hashed256[:])
	}

	return out, nil
}

// sanitizeFamilyLine replaces every fingerprint-form member of a family line
// with its hashed form, keeping bare nicknames unchanged.
func sanitizeFamilyLine(noOpt string) (out string, err error) {
	toks := strings.Fields(noOpt)
	for i, tok := range toks[1:] {
		rest, ok := strings.CutPrefix(tok, "$")
		if !ok {
			continue
		}

		var fp bsan.Fingerprint
		fp, err = bsan.ParseFingerprint(rest)
		if err != nil {
			return "", fmt.Errorf("%w: bad family member: %w", ErrParse, err)
		}

		hashed := bsan.Fingerprint(sha1.Sum(fp[:]))
		toks[i+1] = "$" + hashed.HexUpper()
	}

	return strings.Join(toks, " "), nil
}
