package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// deltaPreferHeader asks Graph to include shared items under stable alias
// IDs in delta responses.
var deltaPreferHeader = http.Header{
	"Prefer": {"deltashowremoteitemsaliasid"},
}

// ChildrenPath returns the first-page path listing the children of parentID.
func ChildrenPath(driveID, parentID string) string {
	return fmt.Sprintf("%s/children?$top=%d", itemPath(driveID, parentID), listPageSize)
}

// SearchPath returns the first-page path of a drive-wide name search.
func SearchPath(driveID, term string) string {
	q := strings.ReplaceAll(term, "'", "''")

	return fmt.Sprintf("/drives/%s/root/search(q='%s')?$top=%d",
		url.PathEscape(driveID), url.PathEscape(q), listPageSize)
}

// DeltaPath returns the first-page path enumerating the whole drive.
func DeltaPath(driveID string) string {
	return fmt.Sprintf("/drives/%s/root/delta?$top=%d", url.PathEscape(driveID), listPageSize)
}

// ListPage fetches one page of a collection. token is empty for the first
// page (firstPath is requested) or an @odata.nextLink from a previous page.
// The returned page's token is the next nextLink; a deltaLink ends paging.
// The drive root item and OneNote packages are dropped.
func (c *Client) ListPage(ctx context.Context, firstPath, token string) (remote.Page, error) {
	path := firstPath

	if token != "" {
		var err error

		path, err = c.stripBaseURL(token)
		if err != nil {
			return remote.Page{}, err
		}
	}

	var headers http.Header
	if strings.Contains(path, "/delta") {
		headers = deltaPreferHeader
	}

	resp, err := c.DoWithHeaders(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return remote.Page{}, err
	}
	defer resp.Body.Close()

	var cr collectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return remote.Page{}, fmt.Errorf("graph: decoding collection response: %w", err)
	}

	objects := make([]remote.Object, 0, len(cr.Value))

	for i := range cr.Value {
		d := &cr.Value[i]
		if d.Root != nil || d.Package != nil {
			continue
		}

		obj := d.toObject()
		obj.Title = decodeName(obj.Title)
		objects = append(objects, obj)
	}

	c.logger.Debug("fetched collection page",
		slog.Int("raw_count", len(cr.Value)),
		slog.Int("count", len(objects)),
		slog.Bool("has_next_link", cr.NextLink != ""),
		slog.Bool("has_delta_link", cr.DeltaLink != ""),
	)

	return remote.Page{Objects: dedupeObjects(objects), NextPageToken: cr.NextLink}, nil
}

// decodeName undoes the percent-encoding Graph sometimes applies to names
// in delta responses.
func decodeName(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}

	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return name
	}

	return unescaped
}

// dedupeObjects keeps the last occurrence of each ID, in first-seen order.
// Delta pages can repeat an item that changed mid-enumeration.
func dedupeObjects(objects []remote.Object) []remote.Object {
	last := make(map[string]int, len(objects))
	for i := range objects {
		last[objects[i].ID] = i
	}

	if len(last) == len(objects) {
		return objects
	}

	kept := make([]remote.Object, 0, len(last))
	emitted := make(map[string]bool, len(last))

	for i := range objects {
		id := objects[i].ID
		if emitted[id] {
			continue
		}

		emitted[id] = true
		kept = append(kept, objects[last[id]])
	}

	return kept
}
