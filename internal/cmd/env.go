package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/bridgearchive/bridgesan/internal/errcoll"
	"github.com/caarlos0/env/v7"
	"github.com/getsentry/sentry-go"
)

// environments represents the configuration that is kept in the environment.
type environments struct {
	ConfPath  string `env:"CONFIG_PATH" envDefault:"./config.yaml"`
	SentryDSN string `env:"SENTRY_DSN" envDefault:"stderr"`

	ListenAddr net.IP `env:"LISTEN_ADDR" envDefault:"127.0.0.1"`

	ListenPort uint16 `env:"LISTEN_PORT" envDefault:"8181"`

	LogTimestamp strictBool `env:"LOG_TIMESTAMP" envDefault:"1"`
	LogVerbose   strictBool `env:"VERBOSE" envDefault:"0"`
}

// readEnvs reads the configuration.
func readEnvs() (envs *environments, err error) {
	envs = &environments{}
	err = env.Parse(envs)
	if err != nil {
		return nil, fmt.Errorf("parsing environments: %w", err)
	}

	return envs, nil
}

// configureLogs sets up the plain text logs and returns the root logger.
func (envs *environments) configureLogs() (l *slog.Logger) {
	return slogutil.New(&slogutil.Config{
		Output:       os.Stdout,
		Format:       slogutil.FormatAdGuardLegacy,
		AddTimestamp: bool(envs.LogTimestamp),
		Verbose:      bool(envs.LogVerbose),
	})
}

// buildErrColl builds and returns an error collector from environment.
func (envs *environments) buildErrColl() (errColl errcoll.Interface, err error) {
	dsn := envs.SentryDSN
	if dsn == "stderr" {
		return errcoll.NewWriterErrorCollector(os.Stderr), nil
	}

	cli, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          bsan.Version(),
	})
	if err != nil {
		return nil, err
	}

	return errcoll.NewSentryErrorCollector(cli), nil
}

// strictBool is a boolean environment value that accepts exactly "0" or "1".
// The usual bool spellings ("true", "t", and so on) are rejected, so a
// mistyped variable fails the startup instead of silently flipping a flag.
type strictBool bool

// UnmarshalText implements the [encoding.TextUnmarshaler] interface for
// *strictBool.
func (sb *strictBool) UnmarshalText(b []byte) (err error) {
	switch string(b) {
	case "0":
		*sb = false
	case "1":
		*sb = true
	default:
		return fmt.Errorf("bad strict bool %q: want %q or %q", b, "0", "1")
	}

	return nil
}
