package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// Store is a backup.Store backed by one OneDrive drive.
//
// OneDrive differs from the Drive model in a few ways the store absorbs:
// an item has one parent, content types are inferred by the service, every
// content change creates a version, and the trash is the recycle bin, which
// listings cannot see.
type Store struct {
	client  *Client
	driveID string
	logger  *slog.Logger
}

// NewStore binds client to driveID. An empty driveID resolves the
// signed-in user's default drive.
func NewStore(ctx context.Context, client *Client, driveID string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if driveID == "" {
		id, err := client.DefaultDriveID(ctx)
		if err != nil {
			return nil, fmt.Errorf("graph: resolving default drive: %w", err)
		}

		driveID = id
	}

	return &Store{client: client, driveID: driveID, logger: logger}, nil
}

// List maps q onto the closest Graph collection: children for a parent,
// search for a title, delta for everything. Each page is then filtered with
// q.Matches, so a page may come back empty with a continuation token.
func (s *Store) List(ctx context.Context, q remote.Query, pageToken string) (remote.Page, error) {
	var first string

	filter := q

	switch {
	case q.ParentID != "":
		first = ChildrenPath(s.driveID, q.ParentID)
		// The children endpoint already scopes by parent, and it may report
		// the root under its real ID rather than the alias.
		filter.ParentID = ""
	case q.Title != "":
		first = SearchPath(s.driveID, q.Title)
	default:
		first = DeltaPath(s.driveID)
		// Delta reports removals as tombstones, not as recycle bin entries,
		// and Graph has no listing for the recycle bin.
		filter.IncludeTrashed = false
	}

	page, err := s.client.ListPage(ctx, first, pageToken)
	if err != nil {
		return remote.Page{}, err
	}

	kept := page.Objects[:0]

	for i := range page.Objects {
		if filter.Matches(&page.Objects[i]) {
			kept = append(kept, page.Objects[i])
		}
	}

	page.Objects = kept

	return page, nil
}

// Get fetches id.
func (s *Store) Get(ctx context.Context, id string) (*remote.Object, error) {
	return s.client.GetItem(ctx, s.driveID, id)
}

// Insert creates a folder (folder content type, nil content) or uploads a
// file. Name collisions keep both items.
func (s *Store) Insert(ctx context.Context, meta remote.Metadata, content io.Reader) (*remote.Object, error) {
	parent := s.parentOf(meta)

	if content == nil && meta.ContentType == remote.FolderContentType {
		return s.client.CreateFolder(ctx, s.driveID, parent, meta.Title, meta.Description)
	}

	data, err := readContent(content)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.UploadNew(ctx, s.driveID, parent, meta.Title, meta.Description, ConflictRename, data)
	if err != nil {
		return nil, err
	}

	s.noteContentType(obj, meta.ContentType)

	if meta.Description == "" || obj.Description == meta.Description {
		return obj, nil
	}

	// Only empty files get here: the simple upload cannot carry metadata.
	patched, err := s.client.PatchItem(ctx, s.driveID, obj.ID, "", meta.Description, "")
	if err != nil {
		s.discard(ctx, obj.ID)

		return nil, err
	}

	return patched, nil
}

// discard removes a half-created item, falling back to the recycle bin
// where permanentDelete is refused.
func (s *Store) discard(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)

	err := s.client.PermanentDeleteItem(ctx, s.driveID, id)
	if err != nil {
		err = s.client.RecycleItem(ctx, s.driveID, id)
	}

	if err != nil {
		s.logger.Warn("could not remove incomplete upload",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Update uploads new content (when non-nil) and then applies the title,
// description and first parent of meta. OneDrive versions every content
// change, so newRevision=false cannot be honoured.
func (s *Store) Update(
	ctx context.Context, id string, meta remote.Metadata, content io.Reader, newRevision bool,
) (*remote.Object, error) {
	if !newRevision {
		s.logger.Debug("onedrive keeps a version for every update, ignoring new_revision=false",
			slog.String("item_id", id),
		)
	}

	if content != nil {
		data, err := readContent(content)
		if err != nil {
			return nil, err
		}

		obj, err := s.client.UploadReplace(ctx, s.driveID, id, data)
		if err != nil {
			return nil, err
		}

		s.noteContentType(obj, meta.ContentType)
	}

	parent := ""
	if len(meta.Parents) > 0 {
		parent = s.parentOf(meta)
	}

	return s.client.PatchItem(ctx, s.driveID, id, meta.Title, meta.Description, parent)
}

// Trash moves id to the recycle bin and returns its last known state.
func (s *Store) Trash(ctx context.Context, id string) (*remote.Object, error) {
	obj, err := s.client.GetItem(ctx, s.driveID, id)
	if err != nil {
		return nil, err
	}

	if err := s.client.RecycleItem(ctx, s.driveID, id); err != nil {
		return nil, err
	}

	obj.Trashed = true

	return obj, nil
}

// Delete removes id permanently. Personal accounts may reject this with
// ErrForbidden or ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.PermanentDeleteItem(ctx, s.driveID, id)
}

func (s *Store) parentOf(meta remote.Metadata) string {
	if len(meta.Parents) == 0 {
		return remote.RootID
	}

	if len(meta.Parents) > 1 {
		s.logger.Warn("onedrive items have a single parent, using the first",
			slog.String("title", meta.Title),
			slog.Int("parents", len(meta.Parents)),
		)
	}

	return meta.Parents[0]
}

func (s *Store) noteContentType(obj *remote.Object, requested string) {
	if requested != "" && obj.ContentType != "" && obj.ContentType != requested {
		s.logger.Debug("onedrive inferred a different content type",
			slog.String("item_id", obj.ID),
			slog.String("requested", requested),
			slog.String("inferred", obj.ContentType),
		)
	}
}

func readContent(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload content: %w", remote.ErrLocalIO, err)
	}

	return data, nil
}
