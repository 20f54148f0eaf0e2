// Package sink implements the placement of sanitized artifacts: the
// digest-addressed archival tree and the "recent" staging tree mirrored by
// the indexing layer.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/c2h5oh/datasize"
	renameio "github.com/google/renameio/v2"
)

// Config is the configuration structure for the file sink.
type Config struct {
	// Logger is used for logging the operation of the sink.  It must not be
	// nil.
	Logger *slog.Logger

	// Metrics is used for the collection of the output statistics.  It must
	// not be nil.
	Metrics Metrics

	// OutDir is the root of the archival tree.  It must not be empty.
	OutDir string

	// RecentDir is the root of the recent staging tree.  It must not be
	// empty.
	RecentDir string
}

// FileSink writes sanitized artifacts to the file system.  Server and
// extra-info artifacts are content-addressed by digest and written at most
// once; network statuses are addressed by publication time and authority.
type FileSink struct {
	logger  *slog.Logger
	metrics Metrics

	outDir    string
	recentDir string

	// aggregates are the paths of the temporary "rsync cat" aggregate files
	// appended to during this run, to be renamed by Finalize.
	aggregates map[string]struct{}
}

// New returns a new file sink.  c must not be nil.
func New(c *Config) (s *FileSink, err error) {
	err = errors.Join(
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("Metrics", c.Metrics),
		validate.NotEmpty("OutDir", c.OutDir),
		validate.NotEmpty("RecentDir", c.RecentDir),
	)
	if err != nil {
		return nil, fmt.Errorf("sink config: %w", err)
	}

	return &FileSink{
		logger:     c.Logger,
		metrics:    c.Metrics,
		outDir:     c.OutDir,
		recentDir:  c.RecentDir,
		aggregates: map[string]struct{}{},
	}, nil
}

// type check
var _ sanitize.Sink = (*FileSink)(nil)

// Write implements the [sanitize.Sink] interface for *FileSink.
func (s *FileSink) Write(ctx context.Context, res *sanitize.Result) (err error) {
	switch res.Kind {
	case sanitize.KindServer:
		return s.writeDigestAddressed(ctx, res, "server-descriptors")
	case sanitize.KindExtraInfo:
		return s.writeDigestAddressed(ctx, res, "extra-infos")
	default:
		return s.writeStatus(ctx, res)
	}
}

// writeDigestAddressed writes a content-addressed artifact, suppressing
// duplicates by archival file existence.
func (s *FileSink) writeDigestAddressed(
	ctx context.Context,
	res *sanitize.Result,
	subdir string,
) (err error) {
	d := res.SHA1Hex
	path := filepath.Join(
		s.outDir,
		"bridges",
		res.Published.Format("2006"),
		res.Published.Format("01"),
		subdir,
		d[0:1],
		d[1:2],
		d,
	)

	_, err = os.Stat(path)
	if err == nil {
		s.metrics.IncrementDuplicates(ctx, res.Kind)
		s.logger.DebugContext(ctx, "duplicate artifact", "path", path)

		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking artifact %q: %w", path, err)
	}

	err = writeFileAtomic(path, res.Bytes)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	err = s.appendRecent(res, subdir)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	s.count(ctx, res)

	return nil
}

// writeStatus writes a network status artifact.
func (s *FileSink) writeStatus(ctx context.Context, res *sanitize.Result) (err error) {
	name := fmt.Sprintf(
		"%s-%s",
		res.Published.Format("20060102-150405"),
		res.Authority,
	)

	path := filepath.Join(
		s.outDir,
		"bridges",
		res.Published.Format("2006"),
		res.Published.Format("01"),
		"statuses",
		res.Published.Format("02"),
		name,
	)

	err = writeFileAtomic(path, res.Bytes)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	recentPath := filepath.Join(s.recentDir, "bridge-descriptors", "statuses", name)
	err = writeFileAtomic(recentPath, res.Bytes)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	s.count(ctx, res)

	return nil
}

// appendRecent appends the artifact to the hourly aggregate file of the
// recent staging tree.  The aggregate keeps a ".tmp" suffix until Finalize.
func (s *FileSink) appendRecent(res *sanitize.Result, subdir string) (err error) {
	name := res.Published.Format("20060102-15") + "-" + subdir + tmpSuffix
	path := filepath.Join(s.recentDir, "bridge-descriptors", subdir, name)

	err = os.MkdirAll(filepath.Dir(path), bsan.DefaultDirPerm)
	if err != nil {
		return fmt.Errorf("creating recent directory: %w", err)
	}

	// #nosec G304 -- Trust the output paths built from the configuration.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, bsan.DefaultPerm)
	if err != nil {
		return fmt.Errorf("opening aggregate %q: %w", path, err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	_, err = f.Write(res.Bytes)
	if err != nil {
		return fmt.Errorf("appending to aggregate %q: %w", path, err)
	}

	s.aggregates[path] = struct{}{}

	return nil
}

// tmpSuffix marks files the indexing layer must not pick up yet.
const tmpSuffix = ".tmp"

// Finalize renames the aggregate files of this run to their final names.
func (s *FileSink) Finalize(ctx context.Context) (err error) {
	var errs []error
	for path := range s.aggregates {
		final := path[:len(path)-len(tmpSuffix)]
		renameErr := os.Rename(path, final)
		if renameErr != nil {
			errs = append(errs, fmt.Errorf("finalizing %q: %w", path, renameErr))

			continue
		}

		s.logger.DebugContext(ctx, "finalized aggregate", "path", final)
	}

	clear(s.aggregates)

	return errors.Join(errs...)
}

// count records a written artifact.
func (s *FileSink) count(ctx context.Context, res *sanitize.Result) {
	s.metrics.IncrementWritten(ctx, res.Kind)
	s.metrics.ObserveSize(ctx, res.Kind, datasize.ByteSize(len(res.Bytes)))
}

// writeFileAtomic writes data to path, creating the parent directories.
func writeFileAtomic(path string, data []byte) (err error) {
	err = os.MkdirAll(filepath.Dir(path), bsan.DefaultDirPerm)
	if err != nil {
		return fmt.Errorf("creating directory for %q: %w", path, err)
	}

	err = renameio.WriteFile(path, data, bsan.DefaultPerm)
	if err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}

	return nil
}
