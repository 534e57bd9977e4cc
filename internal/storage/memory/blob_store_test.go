package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

var _ crawler.BlobStore = (*BlobStore)(nil)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("%PDF-1.7")
	uri, err := store.PutObject(context.Background(), "full/abc.pdf", "application/pdf", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://full/abc.pdf", uri)

	payload[0] = 'X'
	got, kind, ok := store.Get("full/abc.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.7", string(got))
	assert.Equal(t, "application/pdf", kind)

	got[0] = 'Y'
	again, _, _ := store.Get("full/abc.pdf")
	assert.Equal(t, "%PDF-1.7", string(again))
}

func TestBlobStoreExistsAndPaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	assert.False(t, store.Exists("full/b.pdf"))
	for _, p := range []string{"full/b.pdf", "full/a.pdf"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.True(t, store.Exists("full/b.pdf"))
	assert.Equal(t, []string{"full/a.pdf", "full/b.pdf"}, store.Paths())
	assert.Empty(t, store.Root())

	_, _, ok := store.Get("full/missing.pdf")
	assert.False(t, ok)
}

func TestBlobStoreCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBlobStore().PutObject(ctx, "full/a.pdf", "", bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, context.Canceled)
}
