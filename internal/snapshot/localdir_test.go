package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/bridgearchive/bridgesan/internal/snapshot"
	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

func TestLocalDir_Walk(t *testing.T) {
	dir := t.TempDir()

	const name = "20160630-234028-4A0CCD2DDC7995083D73F5D667100C8A5831F16D"
	err := os.WriteFile(filepath.Join(dir, name), []byte("published 2016-06-30 23:40:28\n"), 0o600)
	require.NoError(t, err)

	// Foreign files are skipped.
	err = os.WriteFile(filepath.Join(dir, "README"), []byte("not a snapshot\n"), 0o600)
	require.NoError(t, err)

	s, err := snapshot.NewLocalDir(&snapshot.LocalDirConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Path:    dir,
		MaxSize: 1 * datasize.MB,
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	var items []*snapshot.Item
	err = s.Walk(ctx, func(_ context.Context, it *snapshot.Item) (err error) {
		items = append(items, it)

		return nil
	})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, time.Date(2016, 6, 30, 23, 40, 28, 0, time.UTC), items[0].Published)
	assert.Equal(t, "4A0CCD2DDC7995083D73F5D667100C8A5831F16D", items[0].Authority)
	assert.Equal(t, []byte("published 2016-06-30 23:40:28\n"), items[0].Raw)
}

func TestLocalDir_Walk_oversized(t *testing.T) {
	dir := t.TempDir()

	const name = "20160630-234028-4A0CCD2DDC7995083D73F5D667100C8A5831F16D"
	err := os.WriteFile(filepath.Join(dir, name), make([]byte, 2048), 0o600)
	require.NoError(t, err)

	s, err := snapshot.NewLocalDir(&snapshot.LocalDirConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Path:    dir,
		MaxSize: 1 * datasize.KB,
	})
	require.NoError(t, err)

	ctx := testutil.ContextWithTimeout(t, testTimeout)

	called := false
	err = s.Walk(ctx, func(_ context.Context, _ *snapshot.Item) (err error) {
		called = true

		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
