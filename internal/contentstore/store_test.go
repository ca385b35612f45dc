package contentstore

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/hashstream"
)

func TestPutThenOpenRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	body := "the quick brown fox jumps over the lazy dog"
	res, err := store.PutStream(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), res.Size)

	wantHash, err := hashstream.Sum(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, wantHash, res.Hash)

	require.True(t, store.Exists(res.Hash))

	f, err := store.Open(res.RelativePath)
	require.NoError(t, err)
	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, body, string(got))
}

func TestPutEmptyStream(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	res, err := store.PutStream(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Size)
	require.True(t, store.Exists(res.Hash))
}

func TestPutDeduplicatesIdenticalBytes(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	body := "duplicate payload"
	first, err := store.PutStream(strings.NewReader(body))
	require.NoError(t, err)

	second, err := store.PutStream(strings.NewReader(body))
	require.NoError(t, err)

	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, first.RelativePath, second.RelativePath)
	require.False(t, first.AlreadyExisted)
	require.True(t, second.AlreadyExisted)
}

func TestRelPathFanOut(t *testing.T) {
	hash := "abcd" + strings.Repeat("0", 60)
	rel := relPath(hash)
	require.Equal(t, "ab/cd/"+hash, rel)
}
