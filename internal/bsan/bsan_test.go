package bsan_test

import (
	"testing"
	"time"

	"github.com/bridgearchive/bridgesan/internal/bsan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthOf(t *testing.T) {
	m := bsan.MonthOf(time.Date(2016, 6, 30, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, bsan.Month("2016-06"), m)

	// Months compare chronologically.
	assert.True(t, bsan.Month("2016-06") < bsan.Month("2016-07"))
	assert.True(t, bsan.Month("2015-12") < bsan.Month("2016-01"))
}

func TestMonth_Sub(t *testing.T) {
	assert.Equal(t, bsan.Month("2015-06"), bsan.Month("2016-06").Sub(12))
	assert.Equal(t, bsan.Month("2015-12"), bsan.Month("2016-02").Sub(2))
	assert.Equal(t, bsan.Month("2016-06"), bsan.Month("2016-06").Sub(0))
}

func TestParseTime(t *testing.T) {
	got, err := bsan.ParseTime("2016-06-30 21:43:52")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 6, 30, 21, 43, 52, 0, time.UTC), got)

	_, err = bsan.ParseTime("2016-06-30T21:43:52Z")
	assert.Error(t, err)
}

func TestParseFingerprint(t *testing.T) {
	const compact = "46D4A71197B8FA515A826C6B017C522FE264655B"
	const grouped = "46D4 A711 97B8 FA51 5A82 6C6B 017C 522F E264 655B"

	fp, err := bsan.ParseFingerprint(compact)
	require.NoError(t, err)

	fromGrouped, err := bsan.ParseFingerprint(grouped)
	require.NoError(t, err)
	assert.Equal(t, fp, fromGrouped)

	assert.Equal(t, compact, fp.HexUpper())
	assert.Equal(t, "46d4a71197b8fa515a826c6b017c522fe264655b", fp.HexLower())
	assert.Equal(t, grouped, fp.HexGrouped())

	_, err = bsan.ParseFingerprint("46D4")
	assert.ErrorIs(t, err, bsan.ErrBadFingerprint)

	_, err = bsan.ParseFingerprint("zz" + compact[2:])
	assert.ErrorIs(t, err, bsan.ErrBadFingerprint)
}

func TestParseFingerprintBase64(t *testing.T) {
	fp, err := bsan.ParseFingerprintBase64("RtSnEZe4+lFagmxrAXxSL+JkZVs")
	require.NoError(t, err)
	assert.Equal(t, "46D4A71197B8FA515A826C6B017C522FE264655B", fp.HexUpper())

	_, err = bsan.ParseFingerprintBase64("RtSnEZe4")
	assert.ErrorIs(t, err, bsan.ErrBadFingerprint)
}
