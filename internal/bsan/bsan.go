// Package bsan contains common entities and utilities of the bridge
// descriptor sanitizer.
package bsan

import (
	"fmt"
	"io/fs"
	"time"
)

// Common Constants, Types, And Utilities

// Default file and directory permissions for everything the sanitizer
// persists.  Secrets and sanitized artifacts are never world-readable.
const (
	DefaultPerm    fs.FileMode = 0o600
	DefaultDirPerm fs.FileMode = 0o700
)

// TimeLayout is the publication timestamp layout used by all three descriptor
// types as well as by publication hints derived from snapshot file names.  All
// timestamps are UTC.
const TimeLayout = "2006-01-02 15:04:05"

// ParseTime parses a publication timestamp in [TimeLayout].
func ParseTime(s string) (t time.Time, err error) {
	t, err = time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing publication time: %w", err)
	}

	return t.UTC(), nil
}

// Build information, set by the linker.  Go has no immutable variables, so
// they are exported through getters only.
var (
	branch    string
	buildtime string
	revision  string
	version   string
)

// Branch returns the Git branch the sanitizer was built from.
func Branch() (b string) {
	return branch
}

// BuildTime returns the build time of the sanitizer as a string.
func BuildTime() (t string) {
	return buildtime
}

// Revision returns the Git revision the sanitizer was built from.  It tags
// the events sent to Sentry.
func Revision() (r string) {
	return revision
}

// Version returns the sanitizer version.  It is reported as the release to
// Sentry and on the startup log line.
func Version() (v string) {
	return version
}

// Month is a month key of the form "YYYY-MM".  Month keys compare
// chronologically by comparing lexicographically.
type Month string

// MonthOf returns the month key of t.
func MonthOf(t time.Time) (m Month) {
	return Month(t.UTC().Format("2006-01"))
}

// Sub returns the month n months before m.  n must not be negative.
func (m Month) Sub(n uint) (res Month) {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		panic(fmt.Errorf("invalid month key %q: %w", m, err))
	}

	// #nosec G115 -- Retention windows are far below the int range.
	return MonthOf(t.AddDate(0, -int(n), 0))
}
