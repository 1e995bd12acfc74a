package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"graphclone/internal/infra/blob/core"
)

func TestS3StoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := NewMockForTests(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.DriverS3, store.Driver())

	info, err := store.Put(ctx, "snapshots/0001.json", strings.NewReader(`{"a":1}`), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"sequence": "1"}})
	require.NoError(t, err)
	assert.EqualValues(t, 7, info.Size)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, "etag", info.ETag)

	_, err = store.Put(ctx, "snapshots/0001.json", strings.NewReader("{}"), core.PutOptions{})
	assert.True(t, errors.Is(err, core.ErrExists))

	got, rc, err := store.Get(ctx, "snapshots/0001.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.JSONEq(t, `{"a":1}`, string(body))
	assert.Equal(t, "1", got.Metadata["sequence"])
	assert.Equal(t, "etag", got.ETag)

	head, err := store.Head(ctx, "snapshots/0001.json")
	require.NoError(t, err)
	assert.Equal(t, "etag", head.ETag)
	assert.EqualValues(t, 7, head.Size)

	for _, key := range []string{"snapshots/0002.json", "snapshots/0003.json", "other.json"} {
		_, err = store.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{})
		require.NoError(t, err)
	}
	list, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "snapshots/0003.json", list[2].Key)

	deleted, err := store.Delete(ctx, "snapshots/0001.json")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.Delete(ctx, "snapshots/0001.json")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, _, err = store.Get(ctx, "snapshots/0001.json")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	_, err = store.Head(ctx, "snapshots/0001.json")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestS3StorePrefixKeys(t *testing.T) {
	s := &Store{prefix: "graphclone"}
	assert.Equal(t, "graphclone/snapshots/1.json", s.objectKey("snapshots/1.json"))
	assert.Equal(t, "snapshots/1.json", s.blobKey("graphclone/snapshots/1.json"))
	bare := &Store{}
	assert.Equal(t, "k", bare.objectKey("k"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestDecodeChunked(t *testing.T) {
	assert.Equal(t, "hello", string(decodeChunked([]byte("5;chunk-signature=abc\r\nhello\r\n0\r\n\r\n"))))
	assert.Equal(t, "raw", string(decodeChunked([]byte("raw"))))
}
