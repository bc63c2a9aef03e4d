package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// listPageSize is the $top value for collection requests. 200 is the Graph
// maximum for drive item collections.
const listPageSize = 200

// driveItemResponse mirrors the Graph driveItem JSON.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Description          string           `json:"description"`
	Size                 int64            `json:"size"`
	ETag                 string           `json:"eTag"`
	CTag                 string           `json:"cTag"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *folderFacet     `json:"folder"`
	Root                 *json.RawMessage `json:"root"`
	Deleted              *json.RawMessage `json:"deleted"`
	Package              *json.RawMessage `json:"package"`
}

type parentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type collectionResponse struct {
	Value     []driveItemResponse `json:"value"`
	NextLink  string              `json:"@odata.nextLink"`  //nolint:tagliatelle // OData annotation key
	DeltaLink string              `json:"@odata.deltaLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type patchItemRequest struct {
	Name            string     `json:"name,omitempty"`
	Description     string     `json:"description,omitempty"`
	ParentReference *parentRef `json:"parentReference,omitempty"`
}

// isRootParent reports whether a parent reference points at the drive root.
func isRootParent(p *parentRef) bool {
	return strings.HasSuffix(p.Path, "/root:") || strings.HasSuffix(p.Path, "/root")
}

// toObject maps a driveItem onto the provider-neutral object. Folders get
// the canonical folder content type; items parented at the root report
// remote.RootID; a deleted facet marks the object trashed.
func (d *driveItemResponse) toObject() remote.Object {
	obj := remote.Object{
		ID:          d.ID,
		Title:       d.Name,
		Description: d.Description,
		Size:        d.Size,
		Revision:    d.CTag,
		Trashed:     d.Deleted != nil,
	}

	if obj.Revision == "" {
		obj.Revision = d.ETag
	}

	switch {
	case d.Folder != nil:
		obj.ContentType = remote.FolderContentType
	case d.File != nil:
		obj.ContentType = d.File.MimeType
	}

	if d.ParentReference != nil && d.ParentReference.ID != "" {
		if isRootParent(d.ParentReference) {
			obj.Parents = []string{remote.RootID}
		} else {
			obj.Parents = []string{d.ParentReference.ID}
		}
	}

	if d.LastModifiedDateTime != "" {
		if t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime); err == nil {
			obj.ModifiedAt = t
		}
	}

	return obj
}

func decodeItem(resp *http.Response, what string) (*remote.Object, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	obj := dir.toObject()

	return &obj, nil
}

func jsonBody(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding request: %w", err)
	}

	return bytes.NewReader(data), nil
}

func itemPath(driveID, itemID string) string {
	return fmt.Sprintf("/drives/%s/items/%s", url.PathEscape(driveID), url.PathEscape(itemID))
}

// GetItem fetches a single drive item.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*remote.Object, error) {
	c.logger.Debug("getting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemPath(driveID, itemID), nil)
	if err != nil {
		return nil, err
	}

	return decodeItem(resp, "item")
}

// CreateFolder creates a folder under parentID. A name collision fails with
// ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentID, name, description string) (*remote.Object, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	body, err := jsonBody(createFolderRequest{
		Name:             name,
		Description:      description,
		ConflictBehavior: "fail",
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, itemPath(driveID, parentID)+"/children", body)
	if err != nil {
		return nil, err
	}

	return decodeItem(resp, "create folder")
}

// PatchItem renames, re-describes and/or moves an item. Empty fields are
// left unchanged.
func (c *Client) PatchItem(ctx context.Context, driveID, itemID, name, description, parentID string) (*remote.Object, error) {
	req := patchItemRequest{Name: name, Description: description}
	if parentID != "" {
		req.ParentReference = &parentRef{ID: parentID}
	}

	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPatch, itemPath(driveID, itemID), body)
	if err != nil {
		return nil, err
	}

	return decodeItem(resp, "patch item")
}

// RecycleItem moves an item to the recycle bin.
func (c *Client) RecycleItem(ctx context.Context, driveID, itemID string) error {
	c.logger.Info("recycling item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodDelete, itemPath(driveID, itemID), nil)
	if err != nil {
		return err
	}

	return drain(resp, "recycle")
}

// PermanentDeleteItem deletes an item without going through the recycle bin.
func (c *Client) PermanentDeleteItem(ctx context.Context, driveID, itemID string) error {
	c.logger.Info("permanently deleting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodPost, itemPath(driveID, itemID)+"/permanentDelete", nil)
	if err != nil {
		return err
	}

	return drain(resp, "permanent delete")
}

// drain consumes and closes a body so the connection can be reused. A
// failure here happened after the server answered and is local I/O.
func drain(resp *http.Response, what string) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("%w: draining %s response body: %w", remote.ErrLocalIO, what, err)
	}

	return nil
}
