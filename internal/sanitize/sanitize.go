// Package sanitize implements the line-oriented sanitizers for the three
// bridge descriptor types and the router dispatching raw documents between
// them.  Each sanitizer removes or replaces every bridge-identifying field
// and must never pass through a line it does not recognize.
package sanitize

import (
	"context"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// Kind is the type of a sanitized descriptor.
type Kind string

// Kind values.
const (
	KindServer    Kind = "server-descriptor"
	KindExtraInfo Kind = "extra-info"
	KindStatus    Kind = "network-status"
)

// Type annotation lines prepended to sanitized artifacts.
const (
	annotationServer    = "@type bridge-server-descriptor 1.2\n"
	annotationExtraInfo = "@type bridge-extra-info 1.3\n"
	annotationStatus    = "@type bridge-network-status 1.2\n"
)

// Sanitization errors.
const (
	// ErrParse is returned when a descriptor contains a malformed or
	// unrecognized line.  The descriptor is dropped without output.
	ErrParse errors.Error = "malformed descriptor"

	// ErrKeyMismatch is returned when an explicit master-key-ed25519 line
	// contradicts the key certified by the identity-ed25519 certificate.
	ErrKeyMismatch errors.Error = "ed25519 master key mismatch"
)

// Result is one sanitized artifact.
type Result struct {
	// Published is the publication time of the descriptor, used for the
	// directory structure of the output.
	Published time.Time

	// Kind is the descriptor type.
	Kind Kind

	// SHA1Hex is the lowercase hexadecimal digest naming server and
	// extra-info artifacts.  It is empty for network statuses.
	SHA1Hex string

	// Authority is the uppercase hexadecimal fingerprint of the publishing
	// authority.  It is only set for network statuses.
	Authority string

	// Bytes is the complete sanitized artifact, including the type
	// annotation and the trailer lines.
	Bytes []byte
}

// Sink accepts finished artifacts for placement.  It is implemented by the
// output layer.
type Sink interface {
	// Write places res.  Placing an artifact whose digest has been written
	// before is a no-op.
	Write(ctx context.Context, res *Result) (err error)
}

// splitLines splits raw into lines, interpreting the bytes as US-ASCII text.
// A trailing newline does not produce an empty last line.
func splitLines(raw []byte) (lines []string) {
	lines = strings.Split(string(raw), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	return lines
}

// cutOpt splits the historical "opt " prefix off a line.
func cutOpt(line string) (rest, optPrefix string) {
	rest, ok := strings.CutPrefix(line, "opt ")
	if !ok {
		return line, ""
	}

	return rest, "opt "
}

// keyword returns the first space-separated token of a line.
func keyword(line string) (kw string) {
	kw, _, _ = strings.Cut(line, " ")

	return kw
}
