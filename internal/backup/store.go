// Package backup is the backup-folder core: it resolves or creates the
// remote backup folder, builds insert and update metadata from local files,
// drives paginated enumeration, and binds those pieces into a Session.
//
// The remote service is reached only through the Store interface, defined
// here at the consumer. internal/gdrive and internal/graph satisfy it.
package backup

import (
	"context"
	"io"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// Store is an authenticated client of a remote object store. All calls are
// synchronous; any error is a remote operation failure.
type Store interface {
	// List returns one page of objects matching q. pageToken is empty for
	// the first page.
	List(ctx context.Context, q remote.Query, pageToken string) (remote.Page, error)
	Get(ctx context.Context, id string) (*remote.Object, error)
	// Insert creates an object from meta and content in one logical call.
	// A nil content creates a metadata-only object (folders).
	Insert(ctx context.Context, meta remote.Metadata, content io.Reader) (*remote.Object, error)
	// Update replaces metadata and, when content is non-nil, content of id.
	// newRevision asks the store to keep the previous content as a revision.
	Update(ctx context.Context, id string, meta remote.Metadata, content io.Reader, newRevision bool) (*remote.Object, error)
	Trash(ctx context.Context, id string) (*remote.Object, error)
	Delete(ctx context.Context, id string) error
}
