// Package ledger remembers which local files were backed up to which remote
// objects, so later runs update an object in place instead of uploading a
// duplicate and skip files that have not changed.
//
// The ledger is a single SQLite database (pure-Go driver, no CGO) with its
// schema managed by goose migrations. It is the sole writer to its file.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlLookup = `SELECT path, folder_id, object_id, size, mtime, revision, uploaded_at
		FROM uploads WHERE path = ? AND folder_id = ?`

	sqlListFolder = `SELECT path, folder_id, object_id, size, mtime, revision, uploaded_at
		FROM uploads WHERE folder_id = ? ORDER BY path`

	sqlUpsert = `INSERT INTO uploads
		(path, folder_id, object_id, size, mtime, revision, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, folder_id) DO UPDATE SET
		 object_id = excluded.object_id,
		 size = excluded.size,
		 mtime = excluded.mtime,
		 revision = excluded.revision,
		 uploaded_at = excluded.uploaded_at`

	sqlForgetObject = `DELETE FROM uploads WHERE object_id = ?`
)

// Entry is one remembered upload, keyed by (Path, FolderID).
type Entry struct {
	Path       string
	FolderID   string
	ObjectID   string
	Size       int64
	ModTime    time.Time
	Revision   string
	UploadedAt time.Time
}

// Unchanged reports whether a file with the given size and modification time
// matches what was uploaded.
func (e *Entry) Unchanged(size int64, modTime time.Time) bool {
	return e.Size == size && e.ModTime.Equal(modTime)
}

// Ledger is the upload database.
type Ledger struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger at dbPath and applies pending
// migrations. The database runs in WAL mode with synchronous=FULL.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("ledger: creating directory for %s: %w", dbPath, err)
	}

	// DSN pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	// Parallel uploads record through one connection.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger opened", slog.String("db_path", dbPath))

	return &Ledger{db: db, logger: logger, nowFunc: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledger: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("ledger: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("ledger: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Lookup returns the entry for path in folderID, or (nil, nil) when none is
// recorded.
func (l *Ledger) Lookup(ctx context.Context, path, folderID string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, sqlLookup, path, folderID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not recorded"
	}

	if err != nil {
		return nil, fmt.Errorf("ledger: looking up %s: %w", path, err)
	}

	return e, nil
}

// Record stores e, replacing any entry for the same path and folder.
// UploadedAt is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	now := l.nowFunc()

	_, err := l.db.ExecContext(ctx, sqlUpsert,
		e.Path, e.FolderID, e.ObjectID, e.Size, toNanos(e.ModTime), e.Revision, toNanos(now))
	if err != nil {
		return fmt.Errorf("ledger: recording %s: %w", e.Path, err)
	}

	l.logger.Debug("recorded upload",
		slog.String("path", e.Path),
		slog.String("object_id", e.ObjectID),
	)

	return nil
}

// ForgetObject drops every entry pointing at objectID and returns how many
// were removed. Used after an object is trashed or deleted remotely.
func (l *Ledger) ForgetObject(ctx context.Context, objectID string) (int64, error) {
	res, err := l.db.ExecContext(ctx, sqlForgetObject, objectID)
	if err != nil {
		return 0, fmt.Errorf("ledger: forgetting object %s: %w", objectID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: forgetting object %s: %w", objectID, err)
	}

	return n, nil
}

// List returns every entry recorded for folderID, ordered by path.
func (l *Ledger) List(ctx context.Context, folderID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, sqlListFolder, folderID)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing folder %s: %w", folderID, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: listing folder %s: %w", folderID, err)
		}

		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: listing folder %s: %w", folderID, err)
	}

	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                 Entry
		mtime, uploadedAt int64
	)

	if err := s.Scan(&e.Path, &e.FolderID, &e.ObjectID, &e.Size, &mtime, &e.Revision, &uploadedAt); err != nil {
		return nil, err
	}

	e.ModTime = fromNanos(mtime)
	e.UploadedAt = fromNanos(uploadedAt)

	return &e, nil
}

// toNanos stores the zero time as 0; UnixNano is undefined for it.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n)
}
