package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/drivebackup/internal/auth"
	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/config"
	"github.com/tonimelisma/drivebackup/internal/gdrive"
	"github.com/tonimelisma/drivebackup/internal/graph"
	"github.com/tonimelisma/drivebackup/internal/ledger"
)

// storeFactory builds the remote store for the configured provider.
// Replaced in tests.
var storeFactory = newStore

// newStore authenticates with the saved login and returns the provider's
// store.
func newStore(ctx context.Context, cc *CLIContext) (backup.Store, error) {
	cfg := cc.Cfg
	provider := auth.Provider(cfg.Provider)

	src, err := auth.TokenSource(ctx, provider, credentials(cfg), config.TokenPath(cfg.Provider), cc.Logger)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return nil, fmt.Errorf("not logged in to %s; run 'drivebackup login' first", cfg.Provider)
		}

		return nil, err
	}

	base := transportClient(cfg.Timeouts)

	switch cfg.Provider {
	case config.ProviderOneDrive:
		endpoint := cfg.OneDrive.Endpoint
		if endpoint == "" {
			endpoint = graph.DefaultBaseURL
		}

		client := graph.NewClient(endpoint, base, auth.AccessTokens(src, cc.Logger), graph.ClientConfig{
			MaxRetries: cfg.MaxRetries,
			UserAgent:  cfg.UserAgent,
		}, cc.Logger)

		return graph.NewStore(ctx, client, cfg.OneDrive.DriveID, cc.Logger)
	default:
		authed := auth.HTTPClient(context.WithValue(ctx, oauth2.HTTPClient, base), src)

		return gdrive.New(ctx, authed, gdrive.Config{
			Endpoint:  cfg.GDrive.Endpoint,
			UserAgent: cfg.UserAgent,
		}, cc.Logger)
	}
}

// credentials picks the OAuth client for the configured provider.
func credentials(cfg *config.Resolved) auth.Credentials {
	if cfg.Provider == config.ProviderOneDrive {
		return auth.Credentials{ClientID: cfg.OneDrive.ClientID}
	}

	return auth.Credentials{ClientID: cfg.GDrive.ClientID, ClientSecret: cfg.GDrive.ClientSecret}
}

// transportClient bounds connection setup and the wait for response headers
// but not the whole request, so large uploads are not cut off.
func transportClient(t config.Timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect, KeepAlive: 30 * time.Second}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   t.Connect,
			ResponseHeaderTimeout: t.Data,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// openSession builds the store and starts resolving the backup folder.
func openSession(ctx context.Context, cc *CLIContext) (*backup.Session, error) {
	store, err := storeFactory(ctx, cc)
	if err != nil {
		return nil, err
	}

	cfg := cc.Cfg

	mime := backup.NewMimeResolver(backup.ChainTable{
		backup.MapTable(cfg.Mime),
		backup.SystemTable{},
	})

	return backup.NewSession(ctx, store, backup.SessionConfig{
		FolderName:        cfg.Folder,
		FolderDescription: cfg.FolderDescription,
		RequireReady:      cfg.RequireReady,
		Mime:              mime,
		MaxFileSize:       cfg.MaxFileBytes,
		Report:            failureLogger(cc.Logger),
	}, cc.Logger), nil
}

// failureLogger reports every remote failure the core sees, including the
// ones it swallows (trash).
func failureLogger(logger *slog.Logger) backup.FailureHook {
	return func(err *backup.RemoteOperationError) {
		logger.Warn("remote operation failed",
			slog.String("op", err.Op),
			slog.String("target", err.Target),
			slog.String("error", err.Err.Error()),
		)
	}
}

// openLedger opens the upload ledger in the data directory.
func openLedger(ctx context.Context, cc *CLIContext) (*ledger.Ledger, error) {
	path := config.LedgerPath()
	if path == "" {
		return nil, fmt.Errorf("cannot determine data directory for the upload ledger")
	}

	return ledger.Open(ctx, path, cc.Logger)
}
