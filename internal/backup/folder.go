package backup

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// DefaultFolderDescription is used when a folder is created without one.
const DefaultFolderDescription = "Backup of files"

// FolderHandle identifies the resolved backup folder.
type FolderHandle struct {
	ID    string
	Title string
}

// FolderResolver finds a container by title, creating it under the root
// when none exists.
type FolderResolver struct {
	store  Store
	logger *slog.Logger
	report FailureHook
}

// NewFolderResolver returns a resolver over store. report may be nil.
func NewFolderResolver(store Store, logger *slog.Logger, report FailureHook) *FolderResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &FolderResolver{store: store, logger: logger, report: report}
}

// ResolveOrCreate returns the first non-trashed container titled name. If
// several share the name the store's own ordering decides. When none exists
// a new one is inserted under the root with description (or
// DefaultFolderDescription when empty).
func (r *FolderResolver) ResolveOrCreate(ctx context.Context, name, description string) (FolderHandle, error) {
	if description == "" {
		description = DefaultFolderDescription
	}

	r.logger.Info("resolving backup folder", slog.String("folder", name))

	existing, err := r.find(ctx, name)
	if err != nil {
		return FolderHandle{}, err
	}

	if existing != nil {
		r.logger.Info("found backup folder",
			slog.String("folder", name),
			slog.String("folder_id", existing.ID),
		)

		return FolderHandle{ID: existing.ID, Title: existing.Title}, nil
	}

	meta := remote.Metadata{
		Title:       name,
		Description: description,
		ContentType: remote.FolderContentType,
		Parents:     []string{remote.RootID},
	}

	created, err := r.store.Insert(ctx, meta, nil)
	if err != nil {
		return FolderHandle{}, r.fail(OpInsert, name, err)
	}

	r.logger.Info("created backup folder",
		slog.String("folder", name),
		slog.String("folder_id", created.ID),
	)

	return FolderHandle{ID: created.ID, Title: created.Title}, nil
}

// find pages through the title query until the first match. Pages may be
// empty while still carrying a continuation token.
func (r *FolderResolver) find(ctx context.Context, name string) (*remote.Object, error) {
	q := remote.Query{Title: name, FoldersOnly: true}
	token := ""

	for {
		page, err := r.store.List(ctx, q, token)
		if err != nil {
			return nil, r.fail(OpList, name, err)
		}

		for i := range page.Objects {
			if q.Matches(&page.Objects[i]) {
				return page.Objects[i].Clone(), nil
			}
		}

		if page.NextPageToken == "" {
			return nil, nil //nolint:nilnil // no match is not an error
		}

		token = page.NextPageToken
	}
}

func (r *FolderResolver) fail(op, target string, err error) *RemoteOperationError {
	roe := &RemoteOperationError{Op: op, Target: target, Err: err}

	r.logger.Error("folder resolution failed",
		slog.String("op", op),
		slog.String("folder", target),
		slog.String("error", err.Error()),
	)

	if r.report != nil {
		r.report(roe)
	}

	return roe
}
