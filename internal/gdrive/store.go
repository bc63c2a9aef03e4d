// Package gdrive implements the backup store on top of the Google Drive v2
// API. Drive v2 has the metadata model the backup core speaks natively:
// titles, descriptions, a parents list, a trash and head revisions.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// DefaultPageSize is the number of files requested per list page.
const DefaultPageSize = 100

// Config tunes the Drive service.
type Config struct {
	// Endpoint overrides the API base URL, e.g. for a local fake. It must
	// end in "/drive/v2/".
	Endpoint  string
	PageSize  int64
	UserAgent string
}

// Store is a backup.Store backed by Google Drive.
type Store struct {
	svc      *drive.Service
	pageSize int64
	logger   *slog.Logger
}

// New returns a Store whose requests go through httpClient, which must
// already attach credentials (see internal/auth).
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	if cfg.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(cfg.UserAgent))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating service: %w", err)
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}

	return &Store{svc: svc, pageSize: cfg.PageSize, logger: logger}, nil
}

// List returns one page of files matching q.
func (s *Store) List(ctx context.Context, q remote.Query, pageToken string) (remote.Page, error) {
	expr := buildQuery(q)

	call := s.svc.Files.List().MaxResults(s.pageSize).Context(ctx)
	if expr != "" {
		call = call.Q(expr)
	}

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return remote.Page{}, wrapErr("listing files", err)
	}

	page := remote.Page{
		Objects:       make([]remote.Object, 0, len(list.Items)),
		NextPageToken: list.NextPageToken,
	}

	for _, f := range list.Items {
		if f == nil {
			continue
		}

		page.Objects = append(page.Objects, *toObject(f))
	}

	s.logger.Debug("listed files",
		slog.String("query", expr),
		slog.Int("count", len(page.Objects)),
		slog.Bool("more", page.NextPageToken != ""),
	)

	return page, nil
}

// Get fetches the metadata of id.
func (s *Store) Get(ctx context.Context, id string) (*remote.Object, error) {
	f, err := s.svc.Files.Get(id).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("getting "+id, err)
	}

	return toObject(f), nil
}

// Insert creates a file from meta and content in a single request.
func (s *Store) Insert(ctx context.Context, meta remote.Metadata, content io.Reader) (*remote.Object, error) {
	call := s.svc.Files.Insert(toFile(meta)).Context(ctx)
	if content != nil {
		call = call.Media(localReader{content}, googleapi.ContentType(meta.ContentType))
	}

	f, err := call.Do()
	if err != nil {
		return nil, wrapErr("inserting "+meta.Title, err)
	}

	s.logger.Debug("inserted file", slog.String("id", f.Id), slog.String("title", f.Title))

	return toObject(f), nil
}

// Update replaces the metadata and, when content is non-nil, the content
// of id.
func (s *Store) Update(
	ctx context.Context, id string, meta remote.Metadata, content io.Reader, newRevision bool,
) (*remote.Object, error) {
	call := s.svc.Files.Update(id, toFile(meta)).NewRevision(newRevision).Context(ctx)
	if content != nil {
		call = call.Media(localReader{content}, googleapi.ContentType(meta.ContentType))
	}

	f, err := call.Do()
	if err != nil {
		return nil, wrapErr("updating "+id, err)
	}

	return toObject(f), nil
}

// Trash moves id to the trash.
func (s *Store) Trash(ctx context.Context, id string) (*remote.Object, error) {
	f, err := s.svc.Files.Trash(id).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("trashing "+id, err)
	}

	return toObject(f), nil
}

// Delete permanently removes id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return wrapErr("deleting "+id, err)
	}

	return nil
}

// buildQuery renders q in the Drive search syntax.
func buildQuery(q remote.Query) string {
	var clauses []string

	if q.Title != "" {
		clauses = append(clauses, fmt.Sprintf("title = '%s'", escapeQuery(q.Title)))
	}

	if q.FoldersOnly {
		clauses = append(clauses, fmt.Sprintf("mimeType = '%s'", remote.FolderContentType))
	}

	if q.ParentID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escapeQuery(q.ParentID)))
	}

	if !q.IncludeTrashed {
		clauses = append(clauses, "trashed = false")
	}

	return strings.Join(clauses, " and ")
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

func toFile(meta remote.Metadata) *drive.File {
	f := &drive.File{
		Title:       meta.Title,
		Description: meta.Description,
		MimeType:    meta.ContentType,
	}

	for _, p := range meta.Parents {
		f.Parents = append(f.Parents, &drive.ParentReference{Id: p})
	}

	return f
}

func toObject(f *drive.File) *remote.Object {
	obj := &remote.Object{
		ID:          f.Id,
		Title:       f.Title,
		Description: f.Description,
		ContentType: f.MimeType,
		Revision:    f.HeadRevisionId,
		Size:        f.FileSize,
	}

	// Folders and native documents have no head revision.
	if obj.Revision == "" {
		obj.Revision = f.Etag
	}

	for _, p := range f.Parents {
		if p == nil {
			continue
		}

		if p.IsRoot {
			obj.Parents = append(obj.Parents, remote.RootID)
		} else {
			obj.Parents = append(obj.Parents, p.Id)
		}
	}

	if f.ModifiedDate != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedDate); err == nil {
			obj.ModifiedAt = t
		}
	}

	if f.Labels != nil {
		obj.Trashed = f.Labels.Trashed
	}

	return obj
}

// localReader tags read failures of the upload source as local I/O.
type localReader struct {
	r io.Reader
}

func (l localReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: reading upload content: %w", remote.ErrLocalIO, err)
	}

	return n, err //nolint:wrapcheck // io.EOF must pass through unwrapped
}
