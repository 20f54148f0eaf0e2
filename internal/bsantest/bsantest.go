// Package bsantest contains shared utilities and test doubles for the
// sanitizer tests.
package bsantest

import (
	"context"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/bridgearchive/bridgesan/internal/errcoll"
)

// Interface Mocks
//
// Keep entities within a package in alphabetic order.

// Package errcoll

// type check
var _ errcoll.Interface = (*ErrorCollector)(nil)

// ErrorCollector is an [errcoll.Interface] for tests.
type ErrorCollector struct {
	OnCollect func(ctx context.Context, err error)
}

// NewErrorCollector returns a new *ErrorCollector all methods of which panic.
func NewErrorCollector() (c *ErrorCollector) {
	return &ErrorCollector{
		OnCollect: func(_ context.Context, err error) {
			panic("unexpected call to ErrorCollector.Collect: " + err.Error())
		},
	}
}

// Collect implements the [errcoll.Interface] interface for *ErrorCollector.
func (c *ErrorCollector) Collect(ctx context.Context, err error) {
	c.OnCollect(ctx, err)
}

// Package timeutil

// type check
var _ timeutil.Clock = (*Clock)(nil)

// Clock is a [timeutil.Clock] for tests.
type Clock struct {
	OnNow func() (now time.Time)
}

// Now implements the [timeutil.Clock] interface for *Clock.
func (c *Clock) Now() (now time.Time) {
	return c.OnNow()
}

// ConstClock returns a *Clock that always reports t.
func ConstClock(t time.Time) (c *Clock) {
	return &Clock{
		OnNow: func() (now time.Time) { return t },
	}
}
