package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	Value   string
	Expires time.Time
}

func (f fakeRecord) expired(now time.Time) bool { return now.After(f.Expires) }

func TestFileStorePutGet(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	rec := fakeRecord{Value: "hello", Expires: time.Now().Add(time.Hour)}
	require.NoError(t, store.Put("abc", rec))

	got, ok := store.Get("abc")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Value)
}

func TestFileStoreGetMissing(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	_, ok := store.Get("does-not-exist")
	assert.False(t, ok)
}

func TestFileStoreExpiredTreatedAsMissing(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	rec := fakeRecord{Value: "stale", Expires: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Put("old", rec))

	_, ok := store.Get("old")
	assert.False(t, ok)
}

func TestFileStoreDelete(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	rec := fakeRecord{Value: "x", Expires: time.Now().Add(time.Hour)}
	require.NoError(t, store.Put("id1", rec))
	store.Delete("id1")

	_, ok := store.Get("id1")
	assert.False(t, ok)
}

func TestFileStoreRejectsPathTraversal(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	rec := fakeRecord{Value: "x", Expires: time.Now().Add(time.Hour)}
	err = store.Put("../escape", rec)
	assert.Error(t, err)

	_, ok := store.Get("../../etc/passwd")
	assert.False(t, ok)
}

func TestFileStoreAllSkipsExpired(t *testing.T) {
	store, err := newFileStore[fakeRecord](t.TempDir(), "fr_")
	require.NoError(t, err)

	require.NoError(t, store.Put("live", fakeRecord{Value: "live", Expires: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Put("dead", fakeRecord{Value: "dead", Expires: time.Now().Add(-time.Hour)}))

	all := store.All()
	assert.Contains(t, all, "live")
	assert.NotContains(t, all, "dead")
}

func TestFileStoreSweepRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := newFileStore[fakeRecord](dir, "fr_")
	require.NoError(t, err)

	require.NoError(t, store.Put("gone", fakeRecord{Value: "x", Expires: time.Now().Add(-time.Hour)}))
	store.sweep()

	fresh, err := newFileStore[fakeRecord](dir, "fr_")
	require.NoError(t, err)
	_, ok := fresh.Get("gone")
	assert.False(t, ok)
}

func TestNewIDIsUnique(t *testing.T) {
	a, err := newID("")
	require.NoError(t, err)
	b, err := newID("")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
