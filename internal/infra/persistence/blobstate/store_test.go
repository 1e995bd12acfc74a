package blobstate

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphclone/internal/infra/blob/core"
	blobfs "graphclone/internal/infra/blob/fs"
	blobmem "graphclone/internal/infra/blob/memory"
	"graphclone/pkg/domain"
)

const docType domain.EntityType = "doc"

func model() *domain.Model {
	return domain.NewModel(domain.Definition{Type: docType, Required: []string{"title"}})
}

func saveDoc(t *testing.T, s *Store, title string) *domain.Record {
	t.Helper()
	rec := domain.NewRecord(docType, map[string]any{"title": title})
	_, err := s.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Save(rec)
		return err
	})
	require.NoError(t, err)
	return rec
}

func TestSnapshotKeys(t *testing.T) {
	key := SnapshotKey(42)
	assert.Equal(t, "snapshots/00000000000000000042.json", key)
	seq, ok := ParseSnapshotKey(key)
	require.True(t, ok)
	assert.EqualValues(t, 42, seq)
	for _, bad := range []string{"other/1.json", "snapshots/1.txt", "snapshots/x.json"} {
		_, ok := ParseSnapshotKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestStoreWritesSnapshotPerCommitAndReloads(t *testing.T) {
	ctx := context.Background()
	blobs, err := blobfs.New(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	s, err := NewStore(ctx, blobs, model(), nil)
	require.NoError(t, err)
	assert.Zero(t, s.Sequence())
	first := saveDoc(t, s, "one")
	saveDoc(t, s, "two")
	assert.EqualValues(t, 2, s.Sequence())

	infos, err := blobs.List(ctx, Prefix)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "application/json", infos[1].ContentType)
	assert.Equal(t, "2", infos[1].Metadata["sequence"])

	reloaded, err := NewStore(ctx, blobs, model(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, reloaded.Sequence())
	assert.Len(t, reloaded.List(docType), 2)
	got, ok := reloaded.Get(docType, first.ID)
	require.True(t, ok)
	assert.Equal(t, "one", got.Attributes["title"])

	saveDoc(t, reloaded, "three")
	assert.EqualValues(t, 3, reloaded.Sequence())
}

func TestStoreRetentionPrunesOldSnapshots(t *testing.T) {
	ctx := context.Background()
	blobs := blobmem.New()
	s, err := NewStore(ctx, blobs, model(), nil, WithRetention(2))
	require.NoError(t, err)
	for _, title := range []string{"a", "b", "c", "d"} {
		saveDoc(t, s, title)
	}
	infos, err := blobs.List(ctx, Prefix)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, SnapshotKey(3), infos[0].Key)
	assert.Equal(t, SnapshotKey(4), infos[1].Key)
}

func TestStoreFailedWriteAbortsCommit(t *testing.T) {
	ctx := context.Background()
	blobs := blobmem.New()
	s, err := NewStore(ctx, blobs, model(), nil)
	require.NoError(t, err)
	// occupy the next sequence so the create-only put fails
	_, err = blobs.Put(ctx, SnapshotKey(1), strings.NewReader("{}"), core.PutOptions{})
	require.NoError(t, err)

	rec := domain.NewRecord(docType, map[string]any{"title": "lost"})
	_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.Save(rec)
		return err
	})
	require.Error(t, err)
	assert.Empty(t, s.List(docType))
	assert.False(t, rec.Persisted())
	assert.Zero(t, s.Sequence())
}

func TestNewStoreErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewStore(ctx, nil, nil, nil)
	require.Error(t, err)

	blobs := blobmem.New()
	_, err = blobs.Put(ctx, SnapshotKey(1), strings.NewReader("not json"), core.PutOptions{})
	require.NoError(t, err)
	_, err = NewStore(ctx, blobs, nil, nil)
	require.Error(t, err)
}

func TestSnapshotPayloadIsJSON(t *testing.T) {
	ctx := context.Background()
	blobs := blobmem.New()
	s, err := NewStore(ctx, blobs, model(), nil)
	require.NoError(t, err)
	rec := saveDoc(t, s, "json")
	assert.Same(t, blobs, s.Blobs())

	_, rc, err := blobs.Get(ctx, SnapshotKey(1))
	require.NoError(t, err)
	payload, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"buckets"`)
	assert.Contains(t, string(payload), rec.ID)
}
