package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// DefaultDescription is attached to uploads that do not carry their own.
const DefaultDescription = "uploaded by sync"

// ErrFileTooLarge is returned when a local file exceeds the configured limit.
var ErrFileTooLarge = errors.New("backup: local file exceeds size limit")

// UploadOptions configures Upload and Update.
type UploadOptions struct {
	// Description defaults to DefaultDescription.
	Description string
	// Content, when non-nil, is sent instead of the file's bytes. The local
	// path then only names the object and need not exist.
	Content []byte
	// NewRevision asks the store to keep the previous content as a revision.
	// Nil means true.
	NewRevision *bool
}

func (o UploadOptions) description() string {
	if o.Description == "" {
		return DefaultDescription
	}

	return o.Description
}

func (o UploadOptions) newRevision() bool {
	return o.NewRevision == nil || *o.NewRevision
}

// Bool returns a pointer to b, for UploadOptions.NewRevision.
func Bool(b bool) *bool {
	return &b
}

// Overlay is caller-supplied metadata for Replace and InsertWithMetadata.
type Overlay struct {
	Title       string
	Description string
	ContentType string
}

// ReconcilerConfig holds the optional collaborators of a Reconciler.
type ReconcilerConfig struct {
	Mime        *MimeResolver
	MaxFileSize int64 // 0 disables the limit
	Report      FailureHook
}

// Reconciler builds insert and update metadata from local files and
// executes the matching store call. Remote failures are caught at the call,
// logged, reported and returned as *RemoteOperationError; no partial object
// is ever returned next to an error.
type Reconciler struct {
	store   Store
	mime    *MimeResolver
	maxSize int64
	logger  *slog.Logger
	report  FailureHook
}

// NewReconciler returns a Reconciler over store.
func NewReconciler(store Store, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mime == nil {
		cfg.Mime = NewMimeResolver(SystemTable{})
	}

	return &Reconciler{
		store:   store,
		mime:    cfg.Mime,
		maxSize: cfg.MaxFileSize,
		logger:  logger,
		report:  cfg.Report,
	}
}

// Upload inserts localPath as a new object under parentID. An empty
// parentID leaves the object unparented.
func (r *Reconciler) Upload(ctx context.Context, localPath, parentID string, opts UploadOptions) (*remote.Object, error) {
	data, err := r.loadContent(localPath, opts.Content)
	if err != nil {
		return nil, err
	}

	meta := r.fileMetadata(localPath, parentID, opts.description())

	obj, err := r.store.Insert(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return nil, r.fail(OpInsert, localPath, err)
	}

	r.logger.Info("uploaded file",
		slog.String("path", localPath),
		slog.String("object_id", obj.ID),
		slog.String("content_type", meta.ContentType),
		slog.Int("bytes", len(data)),
	)

	return obj, nil
}

// Update overwrites objectID with the content of localPath, deriving all
// metadata from the local file name as Upload does.
func (r *Reconciler) Update(
	ctx context.Context, localPath, parentID, objectID string, opts UploadOptions,
) (*remote.Object, error) {
	data, err := r.loadContent(localPath, opts.Content)
	if err != nil {
		return nil, err
	}

	meta := r.fileMetadata(localPath, parentID, opts.description())

	obj, err := r.store.Update(ctx, objectID, meta, bytes.NewReader(data), opts.newRevision())
	if err != nil {
		return nil, r.fail(OpUpdate, objectID, err)
	}

	r.logger.Info("updated file",
		slog.String("path", localPath),
		slog.String("object_id", obj.ID),
		slog.Bool("new_revision", opts.newRevision()),
		slog.Int("bytes", len(data)),
	)

	return obj, nil
}

// Replace fetches objectID, overlays the given title, description and
// content type on the fetched metadata (keeping its parents), and uploads
// the content of localPath. An empty overlay title keeps the fetched title;
// an empty content type is resolved from localPath.
func (r *Reconciler) Replace(
	ctx context.Context, objectID string, overlay Overlay, localPath string, newRevision bool,
) (*remote.Object, error) {
	data, err := r.loadContent(localPath, nil)
	if err != nil {
		return nil, err
	}

	current, err := r.store.Get(ctx, objectID)
	if err != nil {
		return nil, r.fail(OpGet, objectID, err)
	}

	meta := remote.Metadata{
		Title:       overlay.Title,
		Description: overlay.Description,
		ContentType: overlay.ContentType,
		Parents:     current.Parents,
	}

	if meta.Title == "" {
		meta.Title = current.Title
	}

	if meta.ContentType == "" {
		meta.ContentType = r.mime.Resolve(localPath)
	}

	obj, err := r.store.Update(ctx, objectID, meta, bytes.NewReader(data), newRevision)
	if err != nil {
		return nil, r.fail(OpUpdate, objectID, err)
	}

	r.logger.Info("replaced object content and metadata",
		slog.String("object_id", objectID),
		slog.String("title", meta.Title),
		slog.Bool("new_revision", newRevision),
	)

	return obj, nil
}

// InsertWithMetadata inserts localPath using caller-supplied metadata
// instead of deriving it from the file name. Empty title and content type
// fall back to the file's name and extension. The content is read in full
// before the call; parentID is attached when non-empty.
func (r *Reconciler) InsertWithMetadata(
	ctx context.Context, overlay Overlay, localPath, parentID string,
) (*remote.Object, error) {
	data, err := r.loadContent(localPath, nil)
	if err != nil {
		return nil, err
	}

	meta := remote.Metadata{
		Title:       overlay.Title,
		Description: overlay.Description,
		ContentType: overlay.ContentType,
	}

	if meta.Title == "" {
		meta.Title = norm.NFC.String(filepath.Base(localPath))
	}

	if meta.ContentType == "" {
		meta.ContentType = r.mime.Resolve(localPath)
	}

	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	obj, err := r.store.Insert(ctx, meta, bytes.NewReader(data))
	if err != nil {
		return nil, r.fail(OpInsert, meta.Title, err)
	}

	r.logger.Info("inserted object",
		slog.String("title", meta.Title),
		slog.String("object_id", obj.ID),
	)

	return obj, nil
}

// fileMetadata derives insert/update metadata from the local file name.
func (r *Reconciler) fileMetadata(localPath, parentID, description string) remote.Metadata {
	meta := remote.Metadata{
		Title:       norm.NFC.String(filepath.Base(localPath)),
		Description: description,
		ContentType: r.mime.Resolve(localPath),
	}

	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	return meta
}

// loadContent returns override when set, otherwise the full content of
// localPath. A missing file yields ErrFileNotFound.
func (r *Reconciler) loadContent(localPath string, override []byte) ([]byte, error) {
	if override != nil {
		if localPath == "" {
			return nil, errors.New("backup: a file name is required to name the uploaded content")
		}

		return override, nil
	}

	fi, err := os.Stat(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("file does not exist", slog.String("path", localPath))

		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, localPath)
	}

	if err != nil {
		return nil, fmt.Errorf("backup: stating %s: %w", localPath, err)
	}

	if fi.IsDir() {
		return nil, fmt.Errorf("backup: %s is a directory, not a file", localPath)
	}

	if r.maxSize > 0 && fi.Size() > r.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, localPath, fi.Size(), r.maxSize)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("backup: reading %s: %w", localPath, err)
	}

	return data, nil
}

func (r *Reconciler) fail(op, target string, err error) *RemoteOperationError {
	roe := &RemoteOperationError{Op: op, Target: target, Err: err}

	r.logger.Error("remote operation failed",
		slog.String("op", op),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)

	if r.report != nil {
		r.report(roe)
	}

	return roe
}
