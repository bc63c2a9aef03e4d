package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func newTestReconciler(store Store) *Reconciler {
	return NewReconciler(store, ReconcilerConfig{
		Mime: NewMimeResolver(MapTable{".txt": "text/plain", ".pdf": "application/pdf"}),
	}, nil)
}

func TestUploadUpdateListAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemStore()
	rec := newTestReconciler(store)
	path := writeFile(t, t.TempDir(), "notes.txt", "v1")

	obj, err := rec.Upload(ctx, path, "folder-1", UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", obj.Title)
	assert.Equal(t, DefaultDescription, obj.Description)
	assert.Equal(t, []string{"folder-1"}, obj.Parents)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o600))

	updated, err := rec.Update(ctx, path, "folder-1", obj.ID, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, obj.ID, updated.ID)
	assert.Equal(t, "2", updated.Revision)
	assert.Equal(t, "version two", string(store.content[obj.ID]))

	all, err := NewLister(store, nil, nil).ListAll(ctx)
	require.NoError(t, err)

	var found *remote.Object

	for i := range all {
		if all[i].ID == obj.ID {
			found = &all[i]
		}
	}

	require.NotNil(t, found)
	assert.Equal(t, "notes.txt", found.Title)
	assert.Equal(t, "text/plain", found.ContentType)
}

func TestUpload_MissingFileMakesNoRemoteCall(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := newTestReconciler(store)

	obj, err := rec.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), "p", UploadOptions{})
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Nil(t, obj)
	assert.Contains(t, err.Error(), "absent.txt")
	assert.Zero(t, store.callCount())

	_, err = rec.Update(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), "p", "id", UploadOptions{})
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Zero(t, store.callCount())
}

func TestUpload_ContentOverride(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := newTestReconciler(store)

	obj, err := rec.Upload(context.Background(), "/nowhere/generated.pdf", "", UploadOptions{
		Description: "generated",
		Content:     []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "generated.pdf", obj.Title)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, "generated", obj.Description)
	assert.Empty(t, obj.Parents, "empty parent leaves the object unparented")
	assert.Equal(t, "%PDF", string(store.content[obj.ID]))
}

func TestUpload_UnknownExtension(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	path := writeFile(t, t.TempDir(), "data.qqq", "x")

	obj, err := newTestReconciler(store).Upload(context.Background(), path, "", UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, UnknownContentType, obj.ContentType)
}

func TestUpload_RejectsDirectoriesAndOversizedFiles(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	dir := t.TempDir()
	path := writeFile(t, dir, "big.txt", "0123456789")

	rec := NewReconciler(store, ReconcilerConfig{MaxFileSize: 5}, nil)

	_, err := rec.Upload(context.Background(), path, "", UploadOptions{})
	require.ErrorIs(t, err, ErrFileTooLarge)

	_, err = rec.Upload(context.Background(), dir, "", UploadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")

	assert.Zero(t, store.callCount())
}

func TestUpload_RemoteFailureIsWrappedAndReported(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOps[OpInsert] = errInjected

	var reported []*RemoteOperationError

	rec := NewReconciler(store, ReconcilerConfig{
		Report: func(err *RemoteOperationError) { reported = append(reported, err) },
	}, nil)

	path := writeFile(t, t.TempDir(), "a.txt", "a")

	obj, err := rec.Upload(context.Background(), path, "", UploadOptions{})
	assert.Nil(t, obj)

	var roe *RemoteOperationError
	require.ErrorAs(t, err, &roe)
	assert.Equal(t, OpInsert, roe.Op)
	assert.Equal(t, path, roe.Target)
	require.ErrorIs(t, err, errInjected)
	require.Len(t, reported, 1)
	assert.Same(t, roe, reported[0])
}

func TestUpdate_NewRevisionFalse(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := newTestReconciler(store)
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	obj, err := rec.Upload(context.Background(), path, "", UploadOptions{})
	require.NoError(t, err)

	updated, err := rec.Update(context.Background(), path, "", obj.ID, UploadOptions{NewRevision: Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, "1", updated.Revision)
}

func TestReplace_OverlaysMetadataAndKeepsParents(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.seed(remote.Object{
		ID: "x", Title: "old.txt", Description: "old", ContentType: "text/plain",
		Parents: []string{"p1", "p2"}, Revision: "4",
	})

	path := writeFile(t, t.TempDir(), "new.pdf", "fresh")

	obj, err := newTestReconciler(store).Replace(context.Background(), "x", Overlay{
		Description: "replaced",
	}, path, true)
	require.NoError(t, err)

	assert.Equal(t, "old.txt", obj.Title, "empty overlay title keeps the fetched one")
	assert.Equal(t, "replaced", obj.Description)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, []string{"p1", "p2"}, obj.Parents)
	assert.Equal(t, "5", obj.Revision)
	assert.Equal(t, []string{OpGet, OpUpdate}, store.calls)
}

func TestReplace_GetFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	path := writeFile(t, t.TempDir(), "a.txt", "a")

	_, err := newTestReconciler(store).Replace(context.Background(), "missing", Overlay{Title: "t"}, path, true)

	var roe *RemoteOperationError
	require.ErrorAs(t, err, &roe)
	assert.Equal(t, OpGet, roe.Op)
	assert.Equal(t, "missing", roe.Target)
	assert.Equal(t, 0, store.countCalls(OpUpdate))
}

func TestInsertWithMetadata(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	path := writeFile(t, t.TempDir(), "raw.bin", "bytes")

	obj, err := newTestReconciler(store).InsertWithMetadata(context.Background(), Overlay{
		Title:       "Quarterly report",
		Description: "q3",
		ContentType: "application/octet-stream",
	}, path, "folder")
	require.NoError(t, err)

	assert.Equal(t, "Quarterly report", obj.Title)
	assert.Equal(t, "application/octet-stream", obj.ContentType)
	assert.Equal(t, []string{"folder"}, obj.Parents)
	assert.Equal(t, "bytes", string(store.content[obj.ID]))
}

func TestInsertWithMetadata_EmptyOverlayUsesFile(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	path := writeFile(t, t.TempDir(), "notes.TXT", "hello")

	obj, err := newTestReconciler(store).InsertWithMetadata(context.Background(), Overlay{}, path, "")
	require.NoError(t, err)

	assert.Equal(t, "notes.TXT", obj.Title)
	assert.Equal(t, "text/plain", obj.ContentType)
}

func TestInsertWithMetadata_MissingFile(t *testing.T) {
	t.Parallel()

	store := newMemStore()

	_, err := newTestReconciler(store).InsertWithMetadata(context.Background(), Overlay{Title: "t"},
		filepath.Join(t.TempDir(), "gone"), "")
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Zero(t, store.callCount())
}

func TestUpload_TitleIsNFC(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	// "e" followed by a combining acute accent.
	path := writeFile(t, t.TempDir(), "cafe\u0301.txt", "x")

	obj, err := newTestReconciler(store).Upload(context.Background(), path, "", UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", obj.Title)
}
