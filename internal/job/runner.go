// Package job drives backups of local files into the backup folder: a
// bounded parallel runner that consults the upload ledger, a filesystem
// watcher that re-runs it on change, and a cron scheduler for unattended
// runs.
package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/ledger"
	"github.com/tonimelisma/drivebackup/internal/remote"
)

// DefaultWorkers is the upload concurrency when RunnerConfig.Workers is unset.
const DefaultWorkers = 4

// Uploader is the part of backup.Session the runner drives.
type Uploader interface {
	WaitUntilReady(ctx context.Context) (backup.FolderHandle, error)
	Get(ctx context.Context, objectID string) (*remote.Object, error)
	Upload(ctx context.Context, localPath string, opts backup.UploadOptions) (*remote.Object, error)
	Update(ctx context.Context, localPath, objectID string, opts backup.UploadOptions) (*remote.Object, error)
}

// Ledger remembers which object holds each backed-up file.
type Ledger interface {
	Lookup(ctx context.Context, path, folderID string) (*ledger.Entry, error)
	Record(ctx context.Context, e ledger.Entry) error
}

// Outcome is what happened to one file.
type Outcome int

// Outcomes of BackupFile.
const (
	Uploaded Outcome = iota
	Updated
	Unchanged
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Uploaded:
		return "uploaded"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes one file of a run.
type Result struct {
	Path     string
	Outcome  Outcome
	ObjectID string
	Bytes    int64
	Err      error
}

// Report summarizes a run.
type Report struct {
	FolderID      string
	Uploaded      int
	Updated       int
	Unchanged     int
	Failed        int
	BytesUploaded int64
	Results       []Result
}

// Err joins the errors of every failed file, or returns nil.
func (r *Report) Err() error {
	var errs []error

	for i := range r.Results {
		if r.Results[i].Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Results[i].Path, r.Results[i].Err))
		}
	}

	return errors.Join(errs...)
}

func (r *Report) add(res Result) {
	switch res.Outcome {
	case Uploaded:
		r.Uploaded++
		r.BytesUploaded += res.Bytes
	case Updated:
		r.Updated++
		r.BytesUploaded += res.Bytes
	case Unchanged:
		r.Unchanged++
	case Failed:
		r.Failed++
	}

	r.Results = append(r.Results, res)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Workers     int
	Description string
	NewRevision bool
}

// Runner backs up files through an Uploader, using the ledger to update
// objects in place and to skip files that have not changed.
type Runner struct {
	up     Uploader
	ledger Ledger
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(up Uploader, l Ledger, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &Runner{up: up, ledger: l, cfg: cfg, logger: logger}
}

// Run backs up every regular file under paths. Directories are walked
// recursively. Per-file failures are recorded in the report; only an
// unresolved backup folder or a cancelled context fails the run.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	folder, err := r.up.WaitUntilReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("job: backup folder unavailable: %w", err)
	}

	report := &Report{FolderID: folder.ID}

	files, missing := expandPaths(paths, r.logger)
	for _, res := range missing {
		report.add(res)
	}

	r.logger.Info("backup run starting",
		slog.String("folder_id", folder.ID),
		slog.Int("files", len(files)),
		slog.Int("workers", r.cfg.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	var mu sync.Mutex

	for _, path := range files {
		g.Go(func() error {
			res := r.backupFile(gctx, folder.ID, path)

			if res.Err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			report.add(res)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("job: backup run interrupted: %w", err)
	}

	r.logger.Info("backup run finished",
		slog.Int("uploaded", report.Uploaded),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// BackupFile backs up a single file. The caller must pass an absolute path.
func (r *Runner) BackupFile(ctx context.Context, path string) Result {
	folder, err := r.up.WaitUntilReady(ctx)
	if err != nil {
		return Result{Path: path, Outcome: Failed, Err: fmt.Errorf("job: backup folder unavailable: %w", err)}
	}

	return r.backupFile(ctx, folder.ID, path)
}

func (r *Runner) backupFile(ctx context.Context, folderID, path string) Result {
	res := Result{Path: path, Outcome: Failed}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = backup.ErrFileNotFound
		}

		res.Err = err

		return res
	}

	entry, err := r.ledger.Lookup(ctx, path, folderID)
	if err != nil {
		res.Err = err
		return res
	}

	if entry != nil && entry.Unchanged(info.Size(), info.ModTime()) {
		res.Outcome = Unchanged
		res.ObjectID = entry.ObjectID

		return res
	}

	opts := backup.UploadOptions{
		Description: r.cfg.Description,
		NewRevision: backup.Bool(r.cfg.NewRevision),
	}

	var obj *remote.Object

	res.Outcome = Uploaded

	if entry != nil && r.objectAlive(ctx, entry.ObjectID, &res) {
		res.Outcome = Updated
		obj, err = r.up.Update(ctx, path, entry.ObjectID, opts)
	} else if res.Err == nil {
		obj, err = r.up.Upload(ctx, path, opts)
	}

	if res.Err != nil {
		res.Outcome = Failed
		return res
	}

	if err != nil {
		res.Outcome = Failed
		res.Err = err

		return res
	}

	res.ObjectID = obj.ID
	res.Bytes = info.Size()

	if err := r.ledger.Record(ctx, ledger.Entry{
		Path:     path,
		FolderID: folderID,
		ObjectID: obj.ID,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Revision: obj.Revision,
	}); err != nil {
		// The upload succeeded; the next run uploads a duplicate.
		r.logger.Warn("could not record upload",
			slog.String("path", path),
			slog.String("object_id", obj.ID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Debug("file backed up",
		slog.String("path", path),
		slog.String("outcome", res.Outcome.String()),
		slog.String("object_id", obj.ID),
	)

	return res
}

// objectAlive reports whether the remembered object can still be updated.
// A missing or trashed object is replaced by a fresh upload; any other
// failure is stored in res.
func (r *Runner) objectAlive(ctx context.Context, objectID string, res *Result) bool {
	obj, err := r.up.Get(ctx, objectID)

	switch {
	case errors.Is(err, remote.ErrNotFound):
		r.logger.Info("remembered object is gone, uploading again",
			slog.String("path", res.Path),
			slog.String("object_id", objectID),
		)

		return false
	case err != nil:
		res.Err = err
		return false
	case obj.Trashed:
		r.logger.Info("remembered object is trashed, uploading again",
			slog.String("path", res.Path),
			slog.String("object_id", objectID),
		)

		return false
	}

	return true
}

// expandPaths resolves paths to absolute regular files, walking directories.
// Paths that cannot be read come back as failed results.
func expandPaths(paths []string, logger *slog.Logger) ([]string, []Result) {
	var (
		files  []string
		failed []Result
		seen   = make(map[string]bool)
	)

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			failed = append(failed, Result{Path: p, Outcome: Failed, Err: err})
			continue
		}

		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = backup.ErrFileNotFound
			}

			failed = append(failed, Result{Path: abs, Outcome: Failed, Err: err})

			continue
		}

		if !info.IsDir() {
			add(abs)
			continue
		}

		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				failed = append(failed, Result{Path: path, Outcome: Failed, Err: err})

				if d != nil && d.IsDir() {
					return fs.SkipDir
				}

				return nil
			}

			if d.Type().IsRegular() && !Excluded(d.Name()) {
				add(path)
			} else if !d.IsDir() {
				logger.Debug("skipping file", slog.String("path", path))
			}

			return nil
		})
		if walkErr != nil {
			failed = append(failed, Result{Path: abs, Outcome: Failed, Err: walkErr})
		}
	}

	return files, failed
}

// Excluded reports whether a file name is never backed up: partial
// downloads, editor temporaries and SQLite journals.
func Excluded(name string) bool {
	if strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~") {
		return true
	}

	lower := strings.ToLower(name)

	for _, ext := range excludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

var excludedSuffixes = []string{
	".partial", ".tmp", ".swp", ".crdownload",
	".db-wal", ".db-shm", ".db-journal",
}
