package snapshot

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
)

// snapshotNamePattern matches the names of extracted snapshot files:
// "<YYYYMMDD>-<HHMMSS>-<AUTH_FP>" with an optional suffix.
var snapshotNamePattern = regexp.MustCompile(`^(\d{8}-\d{6})-([0-9A-Fa-f]{40})`)

// snapshotTimeLayout is the layout of the time prefix of a snapshot name.
const snapshotTimeLayout = "20060102-150405"

// LocalDirConfig is the configuration structure for [LocalDir].
type LocalDirConfig struct {
	// Logger is used for logging skipped files.  It must not be nil.
	Logger *slog.Logger

	// Path is the directory containing the extracted snapshot files.  It
	// must not be empty.
	Path string

	// MaxSize is the maximum size of a single snapshot file.  Larger files
	// are skipped with a warning.  It must be positive.
	MaxSize datasize.ByteSize
}

// LocalDir is a [Source] reading already extracted snapshot files from a
// directory tree.  The publication hint and the authority fingerprint are
// derived from each file name.
type LocalDir struct {
	logger  *slog.Logger
	path    string
	maxSize datasize.ByteSize
}

// NewLocalDir returns a new local directory source.  c must not be nil.
func NewLocalDir(c *LocalDirConfig) (s *LocalDir, err error) {
	err = errors.Join(
		validate.NotNil("Logger", c.Logger),
		validate.NotEmpty("Path", c.Path),
		validate.Positive("MaxSize", c.MaxSize),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}

	return &LocalDir{
		logger:  c.Logger,
		path:    c.Path,
		maxSize: c.MaxSize,
	}, nil
}

// type check
var _ Source = (*LocalDir)(nil)

// Walk implements the [Source] interface for *LocalDir.
func (s *LocalDir) Walk(ctx context.Context, fn WalkFunc) (err error) {
	return filepath.WalkDir(s.path, func(path string, d fs.DirEntry, walkErr error) (err error) {
		if walkErr != nil {
			return walkErr
		} else if d.IsDir() {
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		it, ok := s.read(ctx, path, d)
		if !ok {
			return nil
		}

		return fn(ctx, it)
	})
}

// read loads one snapshot file.  ok is false when the file is skipped.
func (s *LocalDir) read(ctx context.Context, path string, d fs.DirEntry) (it *Item, ok bool) {
	m := snapshotNamePattern.FindStringSubmatch(d.Name())
	if m == nil {
		s.logger.DebugContext(ctx, "skipping foreign file", "path", path)

		return nil, false
	}

	pub, err := time.Parse(snapshotTimeLayout, m[1])
	if err != nil {
		s.logger.WarnContext(ctx, "skipping snapshot with bad time", "path", path)

		return nil, false
	}

	fi, err := d.Info()
	if err == nil && datasize.ByteSize(fi.Size()) > s.maxSize {
		s.logger.WarnContext(ctx, "skipping oversized snapshot", "path", path, "size", fi.Size())

		return nil, false
	}

	// #nosec G304 -- Trust the file paths under the configured input
	// directory.
	raw, err := os.ReadFile(path)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping unreadable snapshot", "path", path)

		return nil, false
	}

	return &Item{
		Published: pub.UTC(),
		Authority: strings.ToUpper(m[2]),
		Raw:       raw,
	}, true
}
