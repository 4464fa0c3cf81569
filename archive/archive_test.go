package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleDoc = []byte(`{"version":0,"start_time":"2024-05-01T12:00:00Z","data":[[` +
	`{"__type__":"rs:obj","recordings":[],"meta":{"special_attribs":[]}}]]}`)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpen_AppliesPragmas(t *testing.T) {
	a := openTemp(t)
	assert.NoError(t, a.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, a.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, a.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	a, err := Open(path)
	require.NoError(t, err)
	_, err = a.Put(context.Background(), "keep", sampleDoc)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Reopening reruns pragmas and migrations without touching data.
	a, err = Open(path)
	require.NoError(t, err)
	defer a.Close()
	doc, _, err := a.Get(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, doc)
}

func TestPut_RoundTrip(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	put, err := a.Put(ctx, "exchange", sampleDoc)
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(put.ID))
	assert.Equal(t, 0, put.Version)
	assert.Equal(t, 1, put.Components)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), put.StartTime)

	doc, got, err := a.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, doc, "the stored document is byte for byte identical")
	assert.Equal(t, put, got)
}

func TestPut_ReplacesExistingName(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	first, err := a.Put(ctx, "exchange", sampleDoc)
	require.NoError(t, err)

	updated := []byte(`{"version":0,"start_time":"2024-06-01T00:00:00Z","data":[]}`)
	second, err := a.Put(ctx, "exchange", updated)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "a re-import is a new import")

	doc, got, err := a.Get(ctx, "exchange")
	require.NoError(t, err)
	assert.Equal(t, updated, doc)
	assert.Equal(t, 0, got.Components)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPut_RejectsMalformedDocuments(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	_, err := a.Put(ctx, "junk", []byte("not json"))
	require.Error(t, err)

	_, err = a.Put(ctx, "junk", []byte(`{"version":0,"start_time":"yesterday","data":[]}`))
	require.Error(t, err)

	entries, err := a.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed imports leave no partial rows")
}

func TestGet_Missing(t *testing.T) {
	a := openTemp(t)
	_, _, err := a.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestList_OrderedByName(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := a.Put(ctx, name, sampleDoc)
		require.NoError(t, err)
	}

	entries, err := a.List(ctx)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	a := openTemp(t)
	entries, err := a.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	_, err := a.Put(ctx, "exchange", sampleDoc)
	require.NoError(t, err)

	removed, err := a.Remove(ctx, "exchange")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = a.Remove(ctx, "exchange")
	require.NoError(t, err)
	assert.False(t, removed)

	_, _, err = a.Get(ctx, "exchange")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
