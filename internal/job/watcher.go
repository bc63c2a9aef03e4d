package job

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch loop timing.
const (
	DefaultDebounce     = 2 * time.Second
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// FsWatcher abstracts fsnotify.Watcher for testability.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher, whose channels are fields, to
// the FsWatcher interface.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWrapper{w: w}, nil
}

func (f *fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWrapper) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f *fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

// Watcher re-runs backups for files that change under a set of roots.
// Events for the same path are coalesced until it has been quiet for the
// debounce interval.
type Watcher struct {
	runner     *Runner
	logger     *slog.Logger
	debounce   time.Duration
	newWatcher func() (FsWatcher, error)
	sleepFunc  func(ctx context.Context, d time.Duration) error

	// files holds roots that are single files; their parent directory is
	// watched and every other name in it is ignored. trees holds the
	// directories watched as part of a directory root.
	files   map[string]bool
	trees   map[string]bool
	watched map[string]bool
}

// NewWatcher creates a Watcher backed by fsnotify.
func NewWatcher(r *Runner, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		runner:     r,
		logger:     logger,
		debounce:   DefaultDebounce,
		newWatcher: newFsnotifyWatcher,
		sleepFunc:  sleepCtx,
	}
}

// Watch blocks until ctx is cancelled, backing up each file created or
// written under roots. onResult, if non-nil, receives every result.
func (w *Watcher) Watch(ctx context.Context, roots []string, onResult func(Result)) error {
	fw, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("job: creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	w.files = make(map[string]bool)
	w.trees = make(map[string]bool)
	w.watched = make(map[string]bool)

	for _, root := range roots {
		if err := w.addRoot(fw, root); err != nil {
			return err
		}
	}

	w.logger.Info("watching for changes",
		slog.Int("directories", len(w.watched)),
		slog.Duration("debounce", w.debounce),
	)

	return w.loop(ctx, fw, onResult)
}

func (w *Watcher) addRoot(fw FsWatcher, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("job: resolving %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("job: watching %s: %w", abs, err)
	}

	if !info.IsDir() {
		w.files[abs] = true
		return w.watchDir(fw, filepath.Dir(abs))
	}

	return w.watchTree(fw, abs)
}

// watchTree adds a watch for dir and every directory below it; fsnotify
// is not recursive.
func (w *Watcher) watchTree(fw FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("cannot watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			if d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		w.trees[path] = true

		return w.watchDir(fw, path)
	})
}

func (w *Watcher) watchDir(fw FsWatcher, dir string) error {
	if w.watched[dir] {
		return nil
	}

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("job: watching %s: %w", dir, err)
	}

	w.watched[dir] = true

	return nil
}

func (w *Watcher) loop(ctx context.Context, fw FsWatcher, onResult func(Result)) error {
	flush := time.NewTicker(w.debounce)
	defer flush.Stop()

	pending := make(map[string]time.Time)
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			if path, ok := w.relevant(fw, ev); ok {
				pending[path] = time.Now()
			}

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := w.sleepFunc(ctx, errBackoff); err != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)

		case now := <-flush.C:
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}

				delete(pending, path)
				w.backup(ctx, path, onResult)
			}
		}
	}
}

// relevant filters an event down to a path worth backing up.
func (w *Watcher) relevant(fw FsWatcher, ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		// Chmod, remove and rename leave the remote copy alone.
		return "", false
	}

	if Excluded(filepath.Base(ev.Name)) {
		return "", false
	}

	if w.files[ev.Name] {
		return ev.Name, true
	}

	// Siblings of a single-file root are not backed up.
	if !w.trees[filepath.Dir(ev.Name)] {
		return "", false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(fw, ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return ev.Name, true
}

func (w *Watcher) backup(ctx context.Context, path string, onResult func(Result)) {
	info, err := os.Stat(path)
	if err != nil {
		// Gone again before the debounce expired.
		return
	}

	var results []Result

	if info.IsDir() {
		report, err := w.runner.Run(ctx, []string{path})
		if err != nil {
			w.logger.Warn("backup of new directory failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}

		if report != nil {
			results = report.Results
		}
	} else if info.Mode().IsRegular() {
		results = []Result{w.runner.BackupFile(ctx, path)}
	}

	for _, res := range results {
		if res.Err != nil {
			w.logger.Warn("backup failed",
				slog.String("path", res.Path),
				slog.String("error", res.Err.Error()),
			)
		}

		if onResult != nil {
			onResult(res)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
