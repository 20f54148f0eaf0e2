package sanitize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/bridgearchive/bridgesan/internal/errcoll"
	"github.com/bridgearchive/bridgesan/internal/scrub"
	"github.com/bridgearchive/bridgesan/internal/secrets"
)

// RouterConfig is the configuration structure for the sanitizer router.  All
// fields must be non-nil.
type RouterConfig struct {
	// Logger is used for logging the operation of the router and for the
	// per-descriptor drop warnings.
	Logger *slog.Logger

	// ErrColl is used to collect output placement errors.
	ErrColl errcoll.Interface

	// Metrics is used for the collection of the sanitization statistics.
	Metrics Metrics

	// Scrubber is used to pseudonymize addresses and ports.
	Scrubber scrub.Interface

	// Sink accepts the finished artifacts.
	Sink Sink
}

// Router classifies raw descriptors and dispatches them to the matching
// sanitizer.  All sanitization errors are handled here: a failing descriptor
// is dropped with a warning, and processing continues with the next one.
type Router struct {
	logger  *slog.Logger
	errColl errcoll.Interface
	metrics Metrics
	sink    Sink

	server *serverDesc
	extra  *extraInfo
	status *networkStatus
}

// NewRouter returns a new sanitizer router.  c must not be nil.
func NewRouter(c *RouterConfig) (r *Router) {
	return &Router{
		logger:  c.Logger,
		errColl: c.ErrColl,
		metrics: c.Metrics,
		sink:    c.Sink,
		server: &serverDesc{
			scrubber: c.Scrubber,
		},
		extra: &extraInfo{},
		status: &networkStatus{
			logger:   c.Logger,
			scrubber: c.Scrubber,
		},
	}
}

// Process sanitizes one raw descriptor and places the artifact.  pubHint is
// the publication time derived from the enclosing snapshot, and authority is
// the uppercase hexadecimal fingerprint of the publishing authority; both
// are only used for network statuses.  Empty input is dropped silently, all
// other failures are logged.
func (r *Router) Process(ctx context.Context, raw []byte, pubHint time.Time, authority string) {
	kind, ok := classify(raw)
	if !ok {
		return
	}

	var res *Result
	var err error
	switch kind {
	case KindServer:
		res, err = r.server.sanitize(ctx, raw)
	case KindExtraInfo:
		res, err = r.extra.sanitize(ctx, raw)
	default:
		res, err = r.status.sanitize(ctx, raw, pubHint, authority)
	}

	if err != nil {
		r.drop(ctx, kind, err)

		return
	}

	r.metrics.IncrementSanitized(ctx, kind)

	err = r.sink.Write(ctx, res)
	if err != nil {
		r.metrics.IncrementDropped(ctx, kind, DropReasonIO)
		errcoll.Collect(ctx, r.errColl, r.logger, fmt.Sprintf("writing %s", kind), err)
	}
}

// drop logs a dropped descriptor and counts it by reason.
func (r *Router) drop(ctx context.Context, kind Kind, err error) {
	reason := DropReasonParse
	switch {
	case errors.Is(err, ErrKeyMismatch):
		reason = DropReasonCrypto
	case errors.Is(err, secrets.ErrUnavailable):
		reason = DropReasonSecrets
	}

	r.metrics.IncrementDropped(ctx, kind, reason)
	r.logger.WarnContext(
		ctx,
		"dropping descriptor",
		"kind", kind,
		"reason", reason,
		slogutil.KeyError, err,
	)
}

// classify determines the descriptor type from the first line that is not a
// file annotation.  ok is false when the input contains no such line.
func classify(raw []byte) (kind Kind, ok bool) {
	for _, line := range splitLines(raw) {
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "router "):
			return KindServer, true
		case strings.HasPrefix(line, "extra-info "):
			return KindExtraInfo, true
		default:
			return KindStatus, true
		}
	}

	return "", false
}
