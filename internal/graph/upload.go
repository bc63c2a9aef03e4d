package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// chunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const chunkAlignment = 320 * 1024

// ChunkSize is the upload session chunk size (10 MiB, 32 alignments).
const ChunkSize = 32 * chunkAlignment

// SimpleUploadMaxSize is the largest payload sent with a single PUT (4 MB).
// Larger content goes through an upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// ErrUploadIncomplete is returned when the final chunk is accepted without
// the server returning the finished item.
var ErrUploadIncomplete = errors.New("graph: upload session ended without an item")

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	Description      string `json:"description,omitempty"`
}

type uploadSessionResponse struct {
	UploadURL string `json:"uploadUrl"`
}

// ConflictRename keeps both items on a name collision; ConflictReplace
// overwrites the existing one.
const (
	ConflictRename  = "rename"
	ConflictReplace = "replace"
)

// UploadNew uploads data as a new file named name under parentID.
func (c *Client) UploadNew(
	ctx context.Context, driveID, parentID, name, description, conflict string, data []byte,
) (*remote.Object, error) {
	base := fmt.Sprintf("%s:/%s:", itemPath(driveID, parentID), url.PathEscape(name))

	return c.upload(ctx, base, description, conflict, data)
}

// UploadReplace overwrites the content of an existing item.
func (c *Client) UploadReplace(ctx context.Context, driveID, itemID string, data []byte) (*remote.Object, error) {
	return c.upload(ctx, itemPath(driveID, itemID), "", ConflictReplace, data)
}

// upload sends data with a single PUT when it is small and carries no
// metadata. Anything else goes through an upload session, whose create
// request sets the description together with the content. Sessions cannot
// carry zero bytes, so an empty file always takes the simple path.
func (c *Client) upload(ctx context.Context, base, description, conflict string, data []byte) (*remote.Object, error) {
	size := int64(len(data))
	simple := size == 0 || (size <= SimpleUploadMaxSize && description == "")

	c.logger.Info("uploading content",
		slog.String("target", base),
		slog.Int64("size", size),
		slog.Bool("session", !simple),
	)

	if simple {
		path := base + "/content"
		if conflict != "" && conflict != ConflictReplace {
			path += "?@microsoft.graph.conflictBehavior=" + conflict
		}

		resp, err := c.doRaw(ctx, http.MethodPut, path, "application/octet-stream", bytes.NewReader(data), size)
		if err != nil {
			return nil, err
		}

		return decodeItem(resp, "simple upload")
	}

	uploadURL, err := c.createUploadSession(ctx, base, description, conflict)
	if err != nil {
		return nil, err
	}

	for offset := int64(0); offset < size; offset += ChunkSize {
		end := min(offset+ChunkSize, size)

		done, err := c.uploadChunk(ctx, uploadURL, data[offset:end], offset, size)
		if err != nil {
			c.cancelUploadSession(uploadURL)

			return nil, err
		}

		if done != nil {
			return done, nil
		}
	}

	return nil, ErrUploadIncomplete
}

func (c *Client) createUploadSession(ctx context.Context, base, description, conflict string) (string, error) {
	body, err := jsonBody(createUploadSessionRequest{Item: uploadSessionItem{
		ConflictBehavior: conflict,
		Description:      description,
	}})
	if err != nil {
		return "", err
	}

	resp, err := c.Do(ctx, http.MethodPost, base+"/createUploadSession", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&usr); err != nil {
		return "", fmt.Errorf("graph: decoding upload session response: %w", err)
	}

	if usr.UploadURL == "" {
		return "", errors.New("graph: upload session response has no uploadUrl")
	}

	return usr.UploadURL, nil
}

// uploadChunk PUTs one range to the pre-authenticated session URL. It
// returns the item on the final chunk and nil for intermediate ones.
func (c *Client) uploadChunk(ctx context.Context, uploadURL string, chunk []byte, offset, total int64) (*remote.Object, error) {
	length := int64(len(chunk))

	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(chunk))
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: chunk upload request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil, drain(resp, "chunk")
	case http.StatusOK, http.StatusCreated:
		return decodeItem(resp, "final chunk")
	default:
		return nil, errorFromResponse(resp)
	}
}

// cancelUploadSession is best effort; the session expires on its own.
func (c *Client) cancelUploadSession(uploadURL string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, uploadURL, http.NoBody)
	if err != nil {
		return
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("cancel upload session failed", slog.String("error", err.Error()))

		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
