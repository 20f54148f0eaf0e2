package sanitize

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/scrub"
)

// statusEntryStaleness is the skew between the newest per-bridge descriptor
// publication time and the status publication time above which a warning is
// logged.
const statusEntryStaleness = 1 * time.Hour

// networkStatus sanitizes bridge network statuses.
type networkStatus struct {
	logger   *slog.Logger
	scrubber scrub.Interface
}

// statusParse is the intermediate record of one network status document.
// Entries are collected keyed by the hex-encoded hashed bridge identity so
// that the output is byte-for-byte stable regardless of input order.
type statusParse struct {
	published      time.Time
	newestDescPub  time.Time
	flagThresholds []string
	entries        map[string][]string
	curKey         string
	cur            []string
	curFP          bsan.Fingerprint
	curDescPub     time.Time
	havePub        bool
}

// sanitize transforms one raw bridge network status.  pubHint is the
// publication time derived from the enclosing snapshot, used when the
// document itself carries no published line.  authority is the uppercase
// hexadecimal fingerprint of the publishing bridge authority.
func (s *networkStatus) sanitize(
	ctx context.Context,
	raw []byte,
	pubHint time.Time,
	authority string,
) (res *Result, err error) {
	authFP, err := bsan.ParseFingerprint(authority)
	if err != nil {
		return nil, fmt.Errorf("%w: authority: %w", ErrParse, err)
	}

	p := &statusParse{
		entries: map[string][]string{},
	}

	err = s.parse(ctx, p, raw)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	pub := p.published
	if !p.havePub {
		pub = pubHint
	}
	if pub.IsZero() {
		return nil, fmt.Errorf("%w: no publication time", ErrParse)
	}

	if !p.newestDescPub.IsZero() && pub.Sub(p.newestDescPub) > statusEntryStaleness {
		s.logger.WarnContext(
			ctx,
			"bridge descriptors in status are stale",
			"published", pub.Format(bsan.TimeLayout),
			"newest", p.newestDescPub.Format(bsan.TimeLayout),
		)
	}

	return s.materialize(p, pub, authFP), nil
}

// parse fills p from the raw status lines.
func (s *networkStatus) parse(ctx context.Context, p *statusParse, raw []byte) (err error) {
	for _, line := range splitLines(raw) {
		if strings.HasPrefix(line, "@") {
			continue
		}

		switch kw := keyword(line); kw {
		case "r":
			err = s.parseRLine(ctx, p, line)
		case "a":
			err = s.parseALine(ctx, p, line)
		case "s", "w", "p":
			if p.cur == nil {
				return fmt.Errorf("%w: %q line outside an entry", ErrParse, kw)
			}

			p.cur = append(p.cur, line)
		case "flag-thresholds":
			p.flagThresholds = append(p.flagThresholds, line)
		case "published":
			p.published, err = bsan.ParseTime(strings.TrimPrefix(line, "published "))
			if err != nil {
				return fmt.Errorf("%w: %w", ErrParse, err)
			}

			p.havePub = true
		default:
			return fmt.Errorf("%w: unrecognized line %q", ErrParse, kw)
		}

		if err != nil {
			// Don't wrap the error, because it's informative enough as is.
			return err
		}
	}

	p.flushEntry()

	return nil
}

// parseRLine starts a new status entry from an "r" line.
func (s *networkStatus) parseRLine(ctx context.Context, p *statusParse, line string) (err error) {
	p.flushEntry()

	toks := strings.Fields(line)
	if len(toks) != 9 {
		return fmt.Errorf("%w: r line has %d tokens", ErrParse, len(toks))
	}

	id, err := bsan.ParseFingerprintBase64(toks[2])
	if err != nil {
		return fmt.Errorf("%w: r identity: %w", ErrParse, err)
	}

	desc, err := bsan.ParseFingerprintBase64(toks[3])
	if err != nil {
		return fmt.Errorf("%w: r descriptor digest: %w", ErrParse, err)
	}

	descPub, err := bsan.ParseTime(toks[4] + " " + toks[5])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrParse, err)
	}

	if descPub.After(p.newestDescPub) {
		p.newestDescPub = descPub
	}

	hashedID := sha1.Sum(id[:])
	hashedDesc := sha1.Sum(desc[:])

	ip, err := s.scrubber.IPv4(ctx, toks[6], id, descPub)
	if err != nil {
		return fmt.Errorf("r address: %w", err)
	}

	orPort, err := s.scrubber.Port(ctx, toks[7], id, descPub)
	if err != nil {
		return fmt.Errorf("r orport: %w", err)
	}

	dirPort, err := s.scrubber.Port(ctx, toks[8], id, descPub)
	if err != nil {
		return fmt.Errorf("r dirport: %w", err)
	}

	p.curKey = hex.EncodeToString(hashedID[:])
	p.curFP = id
	p.curDescPub = descPub
	p.cur = []string{fmt.Sprintf(
		"r %s %s %s %s %s %s %s %s",
		toks[1],
		base64Trunc(hashedID[:]),
		base64Trunc(hashedDesc[:]),
		toks[4],
		toks[5],
		ip,
		orPort,
		dirPort,
	)}

	return nil
}

// parseALine scrubs an additional "a" endpoint of the current entry.
func (s *networkStatus) parseALine(ctx context.Context, p *statusParse, line string) (err error) {
	if p.cur == nil {
		return fmt.Errorf("%w: %q line outside an entry", ErrParse, "a")
	}

	scrubbed, err := s.scrubber.ORAddress(
		ctx,
		strings.TrimPrefix(line, "a "),
		p.curFP,
		p.curDescPub,
	)
	if err != nil {
		return fmt.Errorf("a address: %w", err)
	}

	p.cur = append(p.cur, "a "+scrubbed)

	return nil
}

// flushEntry stores the entry being accumulated, if any.
func (p *statusParse) flushEntry() {
	if p.cur != nil {
		p.entries[p.curKey] = p.cur
		p.cur = nil
	}
}

// materialize builds the final artifact from the parsed record.
func (s *networkStatus) materialize(
	p *statusParse,
	pub time.Time,
	authFP bsan.Fingerprint,
) (res *Result) {
	buf := &bytes.Buffer{}
	buf.WriteString(annotationStatus)
	fmt.Fprintf(buf, "published %s\n", pub.Format(bsan.TimeLayout))
	fmt.Fprintf(buf, "fingerprint %s\n", authFP.HexUpper())

	for _, line := range p.flagThresholds {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	for _, key := range slices.Sorted(maps.Keys(p.entries)) {
		for _, line := range p.entries[key] {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}

	return &Result{
		Published: pub,
		Kind:      KindStatus,
		Authority: authFP.HexUpper(),
		Bytes:     buf.Bytes(),
	}
}

// base64Trunc returns the first 27 characters of the standard base64 of b,
// which for a 20-byte digest is the encoding without its padding.
func base64Trunc(b []byte) (s string) {
	return base64.StdEncoding.EncodeToString(b)[:27]
}
