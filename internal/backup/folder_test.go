package backup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

func TestResolveOrCreate_CreatesOnceThenReuses(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	r := NewFolderResolver(store, nil, nil)

	first, err := r.ResolveOrCreate(context.Background(), "Backups", "")
	require.NoError(t, err)

	second, err := r.ResolveOrCreate(context.Background(), "Backups", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Backups", second.Title)
	assert.Equal(t, 1, store.countCalls(OpInsert))

	created := store.objects[first.ID]
	assert.Equal(t, remote.FolderContentType, created.ContentType)
	assert.Equal(t, DefaultFolderDescription, created.Description)
	assert.Equal(t, []string{remote.RootID}, created.Parents)
}

func TestResolveOrCreate_FirstMatchWins(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.pageSize = 1
	store.seed(remote.Object{ID: "f1", Title: "Backups", ContentType: remote.FolderContentType})
	store.seed(remote.Object{ID: "f2", Title: "Backups", ContentType: remote.FolderContentType})

	r := NewFolderResolver(store, nil, nil)

	h, err := r.ResolveOrCreate(context.Background(), "Backups", "desc")
	require.NoError(t, err)
	assert.Equal(t, "f1", h.ID, "first match wins")
	assert.Equal(t, 0, store.countCalls(OpInsert))
}

// emptyFirstPageStore returns an empty first page that still carries a
// continuation token.
type emptyFirstPageStore struct {
	*memStore
}

func (s emptyFirstPageStore) List(ctx context.Context, q remote.Query, token string) (remote.Page, error) {
	if token == "" {
		return remote.Page{NextPageToken: "0"}, nil
	}

	return s.memStore.List(ctx, q, token)
}

func TestResolveOrCreate_EmptyPageWithToken(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.seed(remote.Object{ID: "f1", Title: "Backups", ContentType: remote.FolderContentType})

	r := NewFolderResolver(emptyFirstPageStore{store}, nil, nil)

	h, err := r.ResolveOrCreate(context.Background(), "Backups", "")
	require.NoError(t, err)
	assert.Equal(t, "f1", h.ID)
}

func TestResolveOrCreate_IgnoresFilesAndTrashedFolders(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.seed(remote.Object{ID: "file", Title: "Backups", ContentType: "text/plain"})
	store.seed(remote.Object{ID: "old", Title: "Backups", ContentType: remote.FolderContentType, Trashed: true})

	r := NewFolderResolver(store, nil, nil)

	h, err := r.ResolveOrCreate(context.Background(), "Backups", "mine")
	require.NoError(t, err)
	assert.NotEqual(t, "file", h.ID)
	assert.NotEqual(t, "old", h.ID)
	assert.Equal(t, "mine", store.objects[h.ID].Description)
}

func TestResolveOrCreate_ListFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOps[OpList] = errInjected

	var reported []*RemoteOperationError

	r := NewFolderResolver(store, nil, func(err *RemoteOperationError) {
		reported = append(reported, err)
	})

	h, err := r.ResolveOrCreate(context.Background(), "Backups", "")
	require.Error(t, err)
	assert.Empty(t, h.ID)

	var roe *RemoteOperationError
	require.ErrorAs(t, err, &roe)
	assert.Equal(t, OpList, roe.Op)
	assert.Equal(t, "Backups", roe.Target)
	assert.ErrorIs(t, err, errInjected)
	assert.Len(t, reported, 1)
	assert.Equal(t, 0, store.countCalls(OpInsert))
}

func TestResolveOrCreate_InsertFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOps[OpInsert] = errors.New("quota exceeded")

	r := NewFolderResolver(store, nil, nil)

	_, err := r.ResolveOrCreate(context.Background(), "Backups", "")

	var roe *RemoteOperationError
	require.ErrorAs(t, err, &roe)
	assert.Equal(t, OpInsert, roe.Op)
	assert.Contains(t, err.Error(), "quota exceeded")
}
