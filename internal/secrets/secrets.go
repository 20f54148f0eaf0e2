// Package secrets implements the persistent store of month-scoped hashing
// secrets.  A secret is created on first demand for its month and is written
// to disk before it is ever used, so that every pseudonym appearing in an
// output can be reproduced by a later run.
package secrets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/bridgearchive/bridgesan/internal/bsan"
	renameio "github.com/google/renameio/v2"
)

// SecretLen is the full length of a hashing secret, in bytes.
const SecretLen = 83

// Legacy on-disk secret lengths.  Entries of these lengths are extended to
// [SecretLen] on their next use, preserving the existing prefix.
const (
	legacyLenIPv4 = 31
	legacyLenIPv6 = 50
)

// Secret is a month-scoped hashing secret.
type Secret [SecretLen]byte

// IPv4Key returns the key bytes seeding IPv4 address hashing.
func (s Secret) IPv4Key() (k []byte) { return s[:legacyLenIPv4] }

// IPv6Key returns the key bytes seeding IPv6 address hashing.
func (s Secret) IPv6Key() (k []byte) { return s[legacyLenIPv4:legacyLenIPv6] }

// PortKey returns the key bytes seeding TCP port hashing.
func (s Secret) PortKey() (k []byte) { return s[legacyLenIPv6:] }

// ErrUnavailable is returned by [Store.Secret] after a persistence or RNG
// failure has put the store into its permanent error state.  Callers must
// drop the descriptor being sanitized.
const ErrUnavailable errors.Error = "secret store is unavailable"

// Config is the configuration structure for the secret store.
type Config struct {
	// Logger is used for logging the operation of the store.  It must not be
	// nil.
	Logger *slog.Logger

	// Clock is used to determine the current month for the retention window.
	// It must not be nil.
	Clock timeutil.Clock

	// Metrics is used for the collection of the secret-store statistics.  It
	// must not be nil.
	Metrics Metrics

	// Rand is the source of new secret material.  It must be
	// cryptographically strong.  If nil, crypto/rand is used.
	Rand io.Reader

	// FilePath is the path to the secrets file.  It must not be empty.
	FilePath string

	// RetentionMonths is the number of months a secret is kept.  Months
	// strictly older than the current month minus RetentionMonths are never
	// persisted and are removed by [Store.Prune].  It must be positive.
	RetentionMonths uint
}

// Store is the persistent month-to-secret mapping.
type Store struct {
	logger  *slog.Logger
	clock   timeutil.Clock
	metrics Metrics
	rand    io.Reader

	filePath  string
	retention uint

	// entries mirror the on-disk state.  An entry may be shorter than
	// [SecretLen] until its month is used for hashing again.
	entries map[bsan.Month][]byte

	// volatile holds the full-length secrets for months outside the
	// retention window.  They exist in memory only and are never written to
	// the file.
	volatile map[bsan.Month]Secret

	// failed is set after a persistence or RNG failure.  Once set, it is
	// never cleared for the lifetime of the store.
	failed bool

	// warnedOutOfWindow limits the out-of-window warning to one per run.
	warnedOutOfWindow bool
}

// New returns a new secret store with the entries loaded from c.FilePath.  A
// missing file is not an error.  A file containing an entry of an
// unrecognized length is a fatal load error: no store is returned, and the
// caller must not hash anything for the rest of the run.
func New(c *Config) (s *Store, err error) {
	err = errors.Join(
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("Clock", c.Clock),
		validate.NotNil("Metrics", c.Metrics),
		validate.NotEmpty("FilePath", c.FilePath),
		validate.Positive("RetentionMonths", c.RetentionMonths),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets config: %w", err)
	}

	rng := c.Rand
	if rng == nil {
		rng = rand.Reader
	}

	s = &Store{
		logger:    c.Logger,
		clock:     c.Clock,
		metrics:   c.Metrics,
		rand:      rng,
		filePath:  c.FilePath,
		retention: c.RetentionMonths,
		entries:   map[bsan.Month][]byte{},
		volatile:  map[bsan.Month]Secret{},
	}

	err = s.load()
	if err != nil {
		return nil, fmt.Errorf("loading secrets from %q: %w", c.FilePath, err)
	}

	return s, nil
}

// Secret returns the secret for month m, creating, extending, and persisting
// it as necessary.  The secret is on disk before Secret returns, except for
// months outside the retention window, which are served from memory only.
func (s *Store) Secret(ctx context.Context, m bsan.Month) (sec Secret, err error) {
	if s.failed {
		return Secret{}, ErrUnavailable
	}

	if sec, ok := s.volatile[m]; ok {
		return sec, nil
	}

	prev, ok := s.entries[m]
	if ok && len(prev) == SecretLen {
		return Secret(prev), nil
	}

	full := make([]byte, SecretLen)
	_, err = io.ReadFull(s.rand, full)
	if err != nil {
		s.fail(ctx, fmt.Errorf("reading random bytes: %w", err))

		return Secret{}, ErrUnavailable
	}

	// Keep the previously persisted prefix so that already published
	// pseudonyms for this month stay stable.
	copy(full, prev)

	if m < s.cutoff() {
		s.warnOutOfWindow(ctx, m)
		s.volatile[m] = Secret(full)

		return Secret(full), nil
	}

	s.entries[m] = full
	err = s.persist(ctx)
	if err != nil {
		return Secret{}, ErrUnavailable
	}

	return Secret(full), nil
}

// Prune rewrites the secrets file omitting all months strictly older than the
// retention cut-off.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.failed {
		return ErrUnavailable
	}

	cutoff := s.cutoff()
	pruned := 0
	for m := range s.entries {
		if m < cutoff {
			delete(s.entries, m)
			pruned++
		}
	}

	if pruned == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "pruned secrets", "months", pruned, "cutoff", cutoff)

	err = s.persist(ctx)
	if err != nil {
		return fmt.Errorf("pruning secrets: %w", err)
	}

	return nil
}

// cutoff returns the oldest month that is still inside the retention window.
func (s *Store) cutoff() (m bsan.Month) {
	return bsan.MonthOf(s.clock.Now()).Sub(s.retention)
}

// fail puts the store into its permanent error state.
func (s *Store) fail(ctx context.Context, err error) {
	s.failed = true
	s.metrics.IncrementFailures(ctx)
	s.logger.ErrorContext(ctx, "store entered error state", slogutil.KeyError, err)
}

// warnOutOfWindow logs the out-of-window warning, at most once per run.
func (s *Store) warnOutOfWindow(ctx context.Context, m bsan.Month) {
	if s.warnedOutOfWindow {
		return
	}

	s.warnedOutOfWindow = true
	s.logger.WarnContext(
		ctx,
		"secret outside retention window; pseudonyms will not be reproducible",
		"month", m,
	)
}

// persist atomically rewrites the secrets file from the in-memory entries,
// sorted by month.  On failure the store enters its error state.
func (s *Store) persist(ctx context.Context) (err error) {
	b := &strings.Builder{}
	for _, m := range slices.Sorted(maps.Keys(s.entries)) {
		_, _ = fmt.Fprintf(b, "%s,%x\n", m, s.entries[m])
	}

	err = renameio.WriteFile(s.filePath, []byte(b.String()), bsan.DefaultPerm)
	if err != nil {
		s.fail(ctx, fmt.Errorf("writing secrets file: %w", err))

		return err
	}

	s.metrics.MonthCountSet(ctx, float64(len(s.entries)))

	return nil
}

// load reads the secrets file into the store.
func (s *Store) load() (err error) {
	// #nosec G304 -- Trust the file path from the configuration.
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	}

	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}

		var m bsan.Month
		var sec []byte
		m, sec, err = parseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}

		s.entries[m] = sec
	}

	return nil
}

// parseLine parses a single "YYYY-MM,<hex>" line of the secrets file.
func parseLine(line string) (m bsan.Month, sec []byte, err error) {
	monthStr, hexStr, ok := strings.Cut(line, ",")
	if !ok || len(monthStr) != len("2006-01") {
		return "", nil, fmt.Errorf("malformed entry %q", line)
	}

	sec, err = hex.DecodeString(hexStr)
	if err != nil {
		return "", nil, fmt.Errorf("malformed secret for month %q: %w", monthStr, err)
	}

	switch len(sec) {
	case legacyLenIPv4, legacyLenIPv6, SecretLen:
		// Go on.
	default:
		return "", nil, fmt.Errorf("unrecognized secret length %d for month %q", len(sec), monthStr)
	}

	return bsan.Month(monthStr), sec, nil
}
