package cmd

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// debugSvcShutdownTimeout is the timeout for shutting down the debug HTTP
// service.
const debugSvcShutdownTimeout = 5 * time.Second

// startDebugSvc starts the debug HTTP service exposing the Prometheus
// metrics and returns a function stopping it.
func startDebugSvc(
	ctx context.Context,
	logger *slog.Logger,
	envs *environments,
	reg *prometheus.Registry,
) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := net.JoinHostPort(envs.ListenAddr.String(), strconv.Itoa(int(envs.ListenPort)))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	l := logger.With(slogutil.KeyPrefix, "debugsvc")
	go func() {
		l.InfoContext(ctx, "listening", "addr", addr)

		srvErr := srv.ListenAndServe()
		if srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			l.ErrorContext(ctx, "server failed", slogutil.KeyError, srvErr)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), debugSvcShutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			l.ErrorContext(ctx, "shutting down", slogutil.KeyError, shutdownErr)
		}
	}
}
