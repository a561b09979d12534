package blobstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/blobstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	key, err := store.Put([]byte("hello channel description"))
	require.NoError(t, err)
	require.Len(t, key, 40)

	got, err := store.Get(key)
	require.NoError(t, err)
	require.Equal(t, "hello channel description", string(got))
	require.True(t, store.Has(key))
}

func TestPutIsIdempotent(t *testing.T) {
	store, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	k1, err := store.Put([]byte("same bytes"))
	require.NoError(t, err)
	k2, err := store.Put([]byte("same bytes"))
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	store, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(blobstore.Key("000000000000000000000000000000000000000a"))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestPutShardsByFirstTwoHexChars(t *testing.T) {
	root := t.TempDir()
	store, err := blobstore.Open(root)
	require.NoError(t, err)

	key, err := store.Put([]byte("shard me"))
	require.NoError(t, err)

	path := filepath.Join(root, string(key[:2]), string(key))
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestReaderStreamsBlob(t *testing.T) {
	store, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	key, err := store.Put([]byte("streamed"))
	require.NoError(t, err)

	r, err := store.Reader(key)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "streamed", string(buf[:n]))
}

func TestOpenTwiceOnSameDirectoryIsRejected(t *testing.T) {
	dir := t.TempDir()
	store, err := blobstore.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = blobstore.Open(dir)
	require.Error(t, err)
}

func TestOpenAfterCloseReacquiresTheLock(t *testing.T) {
	dir := t.TempDir()
	store, err := blobstore.Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store2, err := blobstore.Open(dir)
	require.NoError(t, err)
	defer store2.Close()
}

func TestAcquireAndReleaseLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	require.NoError(t, blobstore.AcquireLockFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, blobstore.ReleaseLockFile(path))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAcquireLockFileRejectsLiveHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	require.NoError(t, os.WriteFile(path, []byte("1"), 0o600))

	err := blobstore.AcquireLockFile(path)
	require.ErrorIs(t, err, blobstore.ErrLocked)
}
