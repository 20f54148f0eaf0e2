package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bridgearchive/bridgesan/internal/errcoll"
)

// check is a simple error-checking helper for the setup phase.  It must only
// be used within Main.
func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "bridgesan: fatal: %s\n", err)

		os.Exit(1)
	}
}

// reportPanics reports all panics in Main, logs them, and repanics.  It
// should be called in a defer.
func reportPanics(ctx context.Context, errColl errcoll.Interface, l *slog.Logger) {
	v := recover()
	if v == nil {
		return
	}

	err, ok := v.(error)
	if ok {
		err = fmt.Errorf("panic in cmd.Main: %w", err)
	} else {
		err = fmt.Errorf("panic in cmd.Main: %v", v)
	}

	l.ErrorContext(ctx, "panic", slogutil.KeyError, err)
	errColl.Collect(ctx, err)

	if f, ok := errColl.(errcoll.ErrorFlushCollector); ok {
		f.Flush()
	}

	panic(v)
}
