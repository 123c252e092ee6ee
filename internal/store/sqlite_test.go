package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/snaptext/internal/record"
)

func openTestSQLite(t *testing.T, dir string) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(dir)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpenSQLite_Schema(t *testing.T) {
	b := openTestSQLite(t, t.TempDir())

	version, err := getUserVersion(b.DB())
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)

	// Re-running migrations is a no-op.
	require.NoError(t, migrate(b.DB()))
}

func TestSQLite_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	b := openTestSQLite(t, t.TempDir())

	snap, err := b.Read(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, snap.Version)

	v, err := b.CompareAndSwap(ctx, "k", 0, []byte("one"))
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	_, err = b.CompareAndSwap(ctx, "k", 0, []byte("again"))
	require.ErrorIs(t, err, ErrVersionConflict)

	_, err = b.CompareAndSwap(ctx, "k", 5, []byte("stale"))
	require.ErrorIs(t, err, ErrVersionConflict)

	v, err = b.CompareAndSwap(ctx, "k", 1, []byte("two"))
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	snap, err = b.Read(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "two", string(snap.Payload))
	require.Equal(t, int64(2), snap.Version)
	require.False(t, snap.UpdatedAt.IsZero())

	ver, err := b.Version(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}

func TestSQLite_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := OpenSQLite(dir)
	require.NoError(t, err)
	s := newTestStore(t, first)
	res, err := s.Append(ctx, sampleRecord(1))
	require.NoError(t, err)
	_, err = s.UpdateText(ctx, record.TextUpdate{ID: res.ID, Text: "kept", Origin: record.OriginOCR})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	reopened := newTestStore(t, openTestSQLite(t, dir))
	got, err := reopened.Get(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, "kept", got.Text())
}

func TestSQLite_TwoProcessesShareState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	coordinator := newTestStore(t, openTestSQLite(t, dir))
	panel := newTestStore(t, openTestSQLite(t, dir))

	a, err := coordinator.Append(ctx, sampleRecord(1))
	require.NoError(t, err)

	changed, err := panel.UpdateText(ctx, record.TextUpdate{ID: a.ID, Text: "typed", Origin: record.OriginUser})
	require.NoError(t, err)
	require.True(t, changed)

	_, err = coordinator.Append(ctx, sampleRecord(2))
	require.NoError(t, err)

	recs, err := panel.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "typed", recs[1].Text())
}
