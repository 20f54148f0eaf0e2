// Package cmd is the bridge descriptor sanitizer entry point.  It contains
// the environment and on-disk configuration utilities and the one-shot batch
// run wiring everything together.
package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/errcoll"
	"github.com/bridgearchive/bridgesan/internal/metrics"
	"github.com/bridgearchive/bridgesan/internal/sanitize"
	"github.com/bridgearchive/bridgesan/internal/scrub"
	"github.com/bridgearchive/bridgesan/internal/secrets"
	"github.com/bridgearchive/bridgesan/internal/sink"
	"github.com/bridgearchive/bridgesan/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus"
)

// Main is the entry point of the sanitizer.  It processes one batch of
// snapshots and returns.
func Main() {
	envs, err := readEnvs()
	check(err)

	logger := envs.configureLogs()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.InfoContext(ctx, "starting bridgesan", "version", bsan.Version())

	errColl, err := envs.buildErrColl()
	check(err)

	defer reportPanics(ctx, errColl, logger)

	conf, err := readConfig(envs.ConfPath)
	check(err)

	err = conf.validate()
	check(err)

	// Metrics and the debug HTTP service.

	reg := prometheus.NewRegistry()
	err = metrics.SetUpGauge(
		reg,
		bsan.Version(),
		bsan.BuildTime(),
		bsan.Branch(),
		bsan.Revision(),
		runtime.Version(),
	)
	check(err)

	sanMtrc, err := metrics.NewSanitizer(reg)
	check(err)

	secMtrc, err := metrics.NewSecrets(reg)
	check(err)

	sinkMtrc, err := metrics.NewSink(reg)
	check(err)

	stopDebugSvc := startDebugSvc(ctx, logger, envs, reg)
	defer stopDebugSvc()

	// The sanitization pipeline.

	scrubber, store, err := buildScrubber(conf, logger, secMtrc)
	check(err)

	fileSink, err := sink.New(&sink.Config{
		Logger:    logger.With(slogutil.KeyPrefix, "sink"),
		Metrics:   sinkMtrc,
		OutDir:    conf.OutDir,
		RecentDir: conf.RecentDir,
	})
	check(err)

	router := sanitize.NewRouter(&sanitize.RouterConfig{
		Logger:   logger.With(slogutil.KeyPrefix, "sanitize"),
		ErrColl:  errColl,
		Metrics:  sanMtrc,
		Scrubber: scrubber,
		Sink:     fileSink,
	})

	src, err := snapshot.NewLocalDir(&snapshot.LocalDirConfig{
		Logger:  logger.With(slogutil.KeyPrefix, "snapshot"),
		Path:    conf.InputDir,
		MaxSize: conf.MaxSnapshotSize.ByteSize,
	})
	check(err)

	// The run itself.

	err = src.Walk(ctx, func(ctx context.Context, it *snapshot.Item) (err error) {
		router.Process(ctx, it.Raw, it.Published, it.Authority)

		return nil
	})
	if err != nil {
		errcoll.Collect(ctx, errColl, logger, "walking snapshots", err)
	}

	if store != nil {
		err = store.Prune(ctx)
		if err != nil {
			errcoll.Collect(ctx, errColl, logger, "pruning secrets", err)
		}
	}

	err = fileSink.Finalize(ctx)
	if err != nil {
		errcoll.Collect(ctx, errColl, logger, "finalizing aggregates", err)
	}

	if f, ok := errColl.(errcoll.ErrorFlushCollector); ok {
		f.Flush()
	}

	logger.InfoContext(ctx, "run finished")
}

// buildScrubber builds the address scrubber, and, in hashing mode, the
// secret store behind it.
func buildScrubber(
	conf *configuration,
	logger *slog.Logger,
	mtrc secrets.Metrics,
) (scrubber scrub.Interface, store *secrets.Store, err error) {
	if !conf.SanitizeAddresses {
		return scrub.Fixed{}, nil, nil
	}

	store, err = secrets.New(&secrets.Config{
		Logger:          logger.With(slogutil.KeyPrefix, "secrets"),
		Clock:           timeutil.SystemClock{},
		Metrics:         mtrc,
		FilePath:        conf.SecretsFile,
		RetentionMonths: conf.RetentionMonths,
	})
	if err != nil {
		return nil, nil, err
	}

	return scrub.NewKeyed(store), store, nil
}
