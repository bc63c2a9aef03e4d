package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// gatedStore holds List calls until release is closed.
type gatedStore struct {
	*memStore
	release chan struct{}
}

func (g gatedStore) List(ctx context.Context, q remote.Query, token string) (remote.Page, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return remote.Page{}, ctx.Err()
	}

	return g.memStore.List(ctx, q, token)
}

func waitReady(t *testing.T, s *Session) FolderHandle {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := s.WaitUntilReady(ctx)
	require.NoError(t, err)

	return h
}

func TestSession_ResolvesInBackground(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := NewSession(context.Background(), store, SessionConfig{}, nil)

	h := waitReady(t, s)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, DefaultFolderName, h.Title)
	assert.Equal(t, h.ID, s.FolderID())
	require.NoError(t, s.Err())

	got, ok := s.Folder()
	assert.True(t, ok)
	assert.Equal(t, h, got)
}

func TestSession_UploadLandsInFolder(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	s := NewSession(context.Background(), store, SessionConfig{FolderName: "Docs"}, nil)
	h := waitReady(t, s)

	path := writeFile(t, t.TempDir(), "a.txt", "a")

	obj, err := s.Upload(context.Background(), path, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{h.ID}, obj.Parents)

	listed, err := s.ListFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{obj.ID}, ids(listed))
}

func TestSession_EarlyUploadIsUnparented(t *testing.T) {
	t.Parallel()

	store := gatedStore{memStore: newMemStore(), release: make(chan struct{})}
	s := NewSession(context.Background(), store, SessionConfig{}, nil)

	assert.Equal(t, StateResolving, s.State())
	assert.Empty(t, s.FolderID())
	require.NoError(t, s.Err())

	path := writeFile(t, t.TempDir(), "early.txt", "x")

	obj, err := s.Upload(context.Background(), path, UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, obj.Parents)

	close(store.release)
	waitReady(t, s)
}

func TestSession_RequireReadyWaits(t *testing.T) {
	t.Parallel()

	store := gatedStore{memStore: newMemStore(), release: make(chan struct{})}
	s := NewSession(context.Background(), store, SessionConfig{RequireReady: true}, nil)

	path := writeFile(t, t.TempDir(), "late.txt", "x")

	type result struct {
		obj *remote.Object
		err error
	}

	done := make(chan result, 1)

	go func() {
		obj, err := s.Upload(context.Background(), path, UploadOptions{})
		done <- result{obj, err}
	}()

	select {
	case <-done:
		t.Fatal("upload returned before the folder was resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, []string{s.FolderID()}, r.obj.Parents)
	case <-time.After(5 * time.Second):
		t.Fatal("upload never completed")
	}
}

func TestSession_ResolutionFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOps[OpList] = errInjected

	reported := make(chan *RemoteOperationError, 4)
	s := NewSession(context.Background(), store, SessionConfig{
		RequireReady: true,
		Report:       func(e *RemoteOperationError) { reported <- e },
	}, nil)

	_, err := s.WaitUntilReady(context.Background())
	require.ErrorIs(t, err, ErrFolderUnresolved)
	require.ErrorIs(t, err, errInjected)
	assert.Equal(t, StateFailed, s.State())
	require.ErrorIs(t, s.Err(), errInjected)
	assert.Len(t, reported, 1)

	path := writeFile(t, t.TempDir(), "a.txt", "a")
	_, err = s.Upload(context.Background(), path, UploadOptions{})
	require.ErrorIs(t, err, ErrFolderUnresolved)
	assert.Equal(t, 0, store.countCalls(OpInsert))

	_, err = s.ListFolder(context.Background())
	require.ErrorIs(t, err, ErrFolderUnresolved)
}

func TestSession_FailureWithoutRequireReadyProceeds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failOps[OpList] = errInjected

	s := NewSession(context.Background(), store, SessionConfig{}, nil)
	<-s.Ready()

	path := writeFile(t, t.TempDir(), "a.txt", "a")

	obj, err := s.Upload(context.Background(), path, UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, obj.Parents)
}

func TestSession_WaitUntilReadyHonoursContext(t *testing.T) {
	t.Parallel()

	store := gatedStore{memStore: newMemStore(), release: make(chan struct{})}
	defer close(store.release)

	s := NewSession(context.Background(), store, SessionConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitUntilReady(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSessionState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "resolving", StateResolving.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "SessionState(9)", SessionState(9).String())
}
