// Package remote holds the provider-neutral shapes exchanged with a remote
// object store: object snapshots, write metadata, list queries and pages.
// It is a leaf package imported by the backup core and by every store
// implementation so neither side depends on the other.
package remote

import (
	"slices"
	"time"
)

// FolderContentType is the canonical content type of a container object.
// Stores that model folders differently (OneDrive's folder facet) map to it.
const FolderContentType = "application/vnd.google-apps.folder"

// RootID addresses the root container. Both Drive and Graph accept the alias.
const RootID = "root"

// Object is a read-only snapshot of a remote object as returned by a store
// call. Callers receive copies; nothing mutates an Object after the call
// that produced it returns.
type Object struct {
	ID          string
	Title       string
	Description string
	ContentType string
	Parents     []string // ordered parent container IDs
	Revision    string   // opaque; head revision, cTag or etag depending on provider
	Size        int64
	ModifiedAt  time.Time
	Trashed     bool
}

// IsFolder reports whether the object is a container.
func (o *Object) IsFolder() bool {
	return o.ContentType == FolderContentType
}

// Clone returns a deep copy so the parent slice is never shared.
func (o *Object) Clone() *Object {
	c := *o
	c.Parents = slices.Clone(o.Parents)

	return &c
}

// Metadata is the writable part of an object, sent with insert and update.
// An empty Parents slice means "no parent specified": the store decides
// placement (root on both supported providers).
type Metadata struct {
	Title       string
	Description string
	ContentType string
	Parents     []string
}

// Query narrows a list call. The zero Query lists every non-trashed object
// visible to the caller.
type Query struct {
	Title          string // exact title match when non-empty
	FoldersOnly    bool
	ParentID       string // direct children of this container when non-empty
	IncludeTrashed bool
}

// Matches reports whether obj satisfies q. Stores that cannot express a
// query server-side filter each page with it.
func (q Query) Matches(obj *Object) bool {
	if q.Title != "" && obj.Title != q.Title {
		return false
	}

	if q.FoldersOnly && !obj.IsFolder() {
		return false
	}

	if q.ParentID != "" && !slices.Contains(obj.Parents, q.ParentID) {
		return false
	}

	if !q.IncludeTrashed && obj.Trashed {
		return false
	}

	return true
}

// Page is one page of a list call. An empty NextPageToken means the last
// page has been reached.
type Page struct {
	Objects       []Object
	NextPageToken string
}
