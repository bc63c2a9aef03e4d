package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// User is the signed-in account.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	// UPN is a fallback when mail is empty (common on Personal accounts).
	UPN string `json:"userPrincipalName"`
}

type driveResponse struct {
	ID        string `json:"id"`
	DriveType string `json:"driveType"`
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("graph: decoding user response: %w", err)
	}

	email := ur.Mail
	if email == "" {
		email = ur.UPN
	}

	return &User{ID: ur.ID, DisplayName: ur.DisplayName, Email: email}, nil
}

// DefaultDriveID returns the ID of the signed-in user's OneDrive.
func (c *Client) DefaultDriveID(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/me/drive", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var dr driveResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("graph: decoding drive response: %w", err)
	}

	c.logger.Debug("resolved default drive",
		slog.String("drive_id", dr.ID),
		slog.String("drive_type", dr.DriveType),
	)

	return dr.ID, nil
}
