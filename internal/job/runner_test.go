package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/ledger"
	"github.com/tonimelisma/drivebackup/internal/remote"
)

const testFolderID = "folder-1"

var errFakeNotFound = remote.Sentinel("fake: not found", remote.ErrNotFound)

// fakeUploader keeps objects in memory and records every call.
type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]*remote.Object
	nextID  int
	calls   []string
	fail    map[string]error
	waitErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string]*remote.Object), fail: make(map[string]error)}
}

func (f *fakeUploader) WaitUntilReady(context.Context) (backup.FolderHandle, error) {
	if f.waitErr != nil {
		return backup.FolderHandle{}, f.waitErr
	}

	return backup.FolderHandle{ID: testFolderID, Title: "Backup"}, nil
}

func (f *fakeUploader) Get(_ context.Context, id string) (*remote.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "get:"+id)

	obj, ok := f.objects[id]
	if !ok {
		return nil, &backup.RemoteOperationError{Op: backup.OpGet, Target: id, Err: errFakeNotFound}
	}

	return obj.Clone(), nil
}

func (f *fakeUploader) Upload(ctx context.Context, path string, _ backup.UploadOptions) (*remote.Object, error) {
	if err := f.check(ctx, "upload", path); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	obj := &remote.Object{
		ID:       fmt.Sprintf("obj-%d", f.nextID),
		Title:    filepath.Base(path),
		Parents:  []string{testFolderID},
		Revision: "1",
	}
	f.objects[obj.ID] = obj

	return obj.Clone(), nil
}

func (f *fakeUploader) Update(ctx context.Context, path, id string, _ backup.UploadOptions) (*remote.Object, error) {
	if err := f.check(ctx, "update", path); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	obj := f.objects[id]
	rev, _ := strconv.Atoi(obj.Revision)
	obj.Revision = strconv.Itoa(rev + 1)

	return obj.Clone(), nil
}

func (f *fakeUploader) check(ctx context.Context, op, path string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+filepath.Base(path))
	failErr := f.fail[filepath.Base(path)]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if failErr != nil {
		return failErr
	}

	if _, err := os.Stat(path); err != nil {
		return backup.ErrFileNotFound
	}

	return nil
}

func (f *fakeUploader) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeUploader) countCalls(prefix string) int {
	n := 0

	for _, c := range f.callLog() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}

	return n
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { l.Close() })

	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// touch moves the modification time forward so the ledger sees a change
// even on filesystems with coarse timestamps.
func touch(t *testing.T, path string, content string) {
	t.Helper()

	writeFile(t, path, content)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestRun_UploadsThenSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "beta")
	writeFile(t, filepath.Join(dir, "sub", "draft.tmp"), "ignored")

	up := newFakeUploader()
	l := newTestLedger(t)
	r := NewRunner(up, l, RunnerConfig{Workers: 2}, nil)

	report, err := r.Run(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, testFolderID, report.FolderID)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, int64(len("alpha")+len("beta")), report.BytesUploaded)
	require.NoError(t, report.Err())

	entries, err := l.List(ctx, testFolderID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), entries[0].Path)

	report, err = r.Run(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unchanged)
	assert.Zero(t, report.Uploaded)
	assert.Equal(t, 2, up.countCalls("upload:"))
}

func TestRun_UpdatesChangedFileInPlace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, "v1")

	up := newFakeUploader()
	r := NewRunner(up, newTestLedger(t), RunnerConfig{}, nil)

	first := r.BackupFile(ctx, path)
	require.NoError(t, first.Err)
	assert.Equal(t, Uploaded, first.Outcome)

	touch(t, path, "version two")

	second := r.BackupFile(ctx, path)
	require.NoError(t, second.Err)
	assert.Equal(t, Updated, second.Outcome)
	assert.Equal(t, first.ObjectID, second.ObjectID)
	assert.Equal(t, int64(len("version two")), second.Bytes)
	assert.Equal(t, []string{"upload:notes.txt", "get:" + first.ObjectID, "update:notes.txt"}, up.callLog())
}

func TestRun_ReuploadsWhenObjectGone(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "a")

	up := newFakeUploader()
	l := newTestLedger(t)
	r := NewRunner(up, l, RunnerConfig{}, nil)

	first := r.BackupFile(ctx, path)
	require.NoError(t, first.Err)

	up.mu.Lock()
	delete(up.objects, first.ObjectID)
	up.mu.Unlock()

	touch(t, path, "a2")

	second := r.BackupFile(ctx, path)
	require.NoError(t, second.Err)
	assert.Equal(t, Uploaded, second.Outcome)
	assert.NotEqual(t, first.ObjectID, second.ObjectID)

	e, err := l.Lookup(ctx, path, testFolderID)
	require.NoError(t, err)
	assert.Equal(t, second.ObjectID, e.ObjectID)
}

func TestRun_ReuploadsWhenObjectTrashed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "a")

	up := newFakeUploader()
	r := NewRunner(up, newTestLedger(t), RunnerConfig{}, nil)

	first := r.BackupFile(ctx, path)
	require.NoError(t, first.Err)

	up.mu.Lock()
	up.objects[first.ObjectID].Trashed = true
	up.mu.Unlock()

	touch(t, path, "a2")

	second := r.BackupFile(ctx, path)
	require.NoError(t, second.Err)
	assert.Equal(t, Uploaded, second.Outcome)
	assert.Equal(t, 2, up.countCalls("upload:"))
	assert.Zero(t, up.countCalls("update:"))
}

func TestRun_GetFailureIsNotAnUpload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "a")

	l := newTestLedger(t)
	require.NoError(t, l.Record(ctx, ledger.Entry{Path: path, FolderID: testFolderID, ObjectID: "obj-x"}))

	up := newFakeUploader()
	r := NewRunner(&failingGet{fakeUploader: up}, l, RunnerConfig{}, nil)

	res := r.BackupFile(ctx, path)
	require.Error(t, res.Err)
	assert.Equal(t, Failed, res.Outcome)
	assert.Zero(t, up.countCalls("upload:"))
}

type failingGet struct {
	*fakeUploader
}

func (f *failingGet) Get(context.Context, string) (*remote.Object, error) {
	return nil, errors.New("server exploded")
}

func TestRun_RecordsFailuresAndContinues(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "good.txt"), "g")
	writeFile(t, filepath.Join(dir, "bad.txt"), "b")

	up := newFakeUploader()
	up.fail["bad.txt"] = errors.New("quota exceeded")

	r := NewRunner(up, newTestLedger(t), RunnerConfig{}, nil)

	missing := filepath.Join(dir, "missing.txt")

	report, err := r.Run(ctx, []string{dir, missing})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 2, report.Failed)

	runErr := report.Err()
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "quota exceeded")
	assert.ErrorIs(t, runErr, backup.ErrFileNotFound)
}

func TestRun_FolderUnavailable(t *testing.T) {
	up := newFakeUploader()
	up.waitErr = backup.ErrFolderUnresolved

	r := NewRunner(up, newTestLedger(t), RunnerConfig{}, nil)

	_, err := r.Run(context.Background(), []string{t.TempDir()})
	require.ErrorIs(t, err, backup.ErrFolderUnresolved)

	res := r.BackupFile(context.Background(), "/nope")
	assert.Equal(t, Failed, res.Outcome)
	assert.ErrorIs(t, res.Err, backup.ErrFolderUnresolved)
}

func TestRun_CancelledContextInterrupts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(newFakeUploader(), newTestLedger(t), RunnerConfig{Workers: 1}, nil)

	_, err := r.Run(ctx, []string{dir})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_DuplicatePathsBackedUpOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "a")

	up := newFakeUploader()
	r := NewRunner(up, newTestLedger(t), RunnerConfig{}, nil)

	report, err := r.Run(context.Background(), []string{dir, path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, up.countCalls("upload:"))
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", false},
		{"notes.txt", false},
		{"photos.db", false},
		{"movie.mkv.partial", true},
		{"download.CRDOWNLOAD", true},
		{".notes.txt.swp", true},
		{"scratch.tmp", true},
		{"~$report.docx", true},
		{".~lock.report.odt#", true},
		{"state.db-wal", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Excluded(tt.name))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "uploaded", Uploaded.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
