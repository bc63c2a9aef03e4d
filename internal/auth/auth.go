// Package auth signs the user in to a storage provider with the OAuth2
// device code flow and hands out token sources that keep the saved login
// current as tokens refresh.
//
// The caller computes token paths (via config.TokenPath); auth has no
// config import.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	drive "google.golang.org/api/drive/v2"

	"github.com/tonimelisma/drivebackup/internal/tokenfile"
)

// Provider names a storage service. The values match the config file's
// provider key.
type Provider string

const (
	Google    Provider = "gdrive"
	Microsoft Provider = "onedrive"
)

// Sentinel errors.
var (
	ErrNotLoggedIn       = errors.New("auth: not logged in")
	ErrUnknownProvider   = errors.New("auth: unknown provider")
	ErrProviderMismatch  = errors.New("auth: saved login belongs to another provider")
	ErrMissingClientID   = errors.New("auth: client id required")
	errNoDeviceAuthorize = errors.New("auth: provider endpoint has no device authorization URL")
)

// Public Azure AD client (multi-tenant and personal accounts).
const defaultMicrosoftClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

var microsoftScopes = []string{
	"offline_access",
	"Files.ReadWrite.All",
	"User.Read",
}

// Only files the app creates are visible to it.
var googleScopes = []string{drive.DriveFileScope}

// Credentials identify the OAuth2 client. Google has no shared public
// client, so its ClientID (and usually ClientSecret) come from config.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// DeviceAuth holds the device code fields the CLI displays to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// OAuthConfig returns the OAuth2 client configuration for p.
func OAuthConfig(p Provider, creds Credentials) (*oauth2.Config, error) {
	switch p {
	case Google:
		if creds.ClientID == "" {
			return nil, fmt.Errorf("%w: set gdrive.client_id", ErrMissingClientID)
		}

		return &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Scopes:       googleScopes,
			Endpoint:     google.Endpoint,
		}, nil
	case Microsoft:
		id := creds.ClientID
		if id == "" {
			id = defaultMicrosoftClientID
		}

		return &oauth2.Config{
			ClientID: id,
			Scopes:   microsoftScopes,
			Endpoint: microsoft.AzureADEndpoint("common"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
}

// Login performs the device code flow for p:
//  1. Requests a device code
//  2. Calls display so the CLI can show the user code and verification URL
//  3. Polls until the user authorizes (blocking, respects ctx cancellation)
//  4. Saves the login at tokenPath
//
// The returned source refreshes silently and rewrites tokenPath on every
// refresh. It binds ctx, so ctx must outlive it.
func Login(
	ctx context.Context,
	p Provider,
	creds Credentials,
	tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(p, creds)
	if err != nil {
		return nil, err
	}

	return doLogin(ctx, p, cfg, tokenPath, display, orDefault(logger))
}

func doLogin(
	ctx context.Context,
	p Provider,
	cfg *oauth2.Config,
	tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	if cfg.Endpoint.DeviceAuthURL == "" {
		return nil, errNoDeviceAuthorize
	}

	logger.Info("starting device code auth flow",
		slog.String("provider", string(p)),
		slog.String("path", tokenPath),
	)

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	logger.Info("device code received, waiting for user authorization")

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	if err := tokenfile.Save(tokenPath, &tokenfile.File{Provider: string(p), Token: tok}); err != nil {
		return nil, fmt.Errorf("auth: saving token: %w", err)
	}

	logger.Info("login successful",
		slog.String("provider", string(p)),
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tok), tokenPath, tok, logger), nil
}

// TokenSource loads the login saved at tokenPath for p. It returns
// ErrNotLoggedIn when there is none and ErrProviderMismatch when the file
// was written by a login to the other provider.
func TokenSource(
	ctx context.Context, p Provider, creds Credentials, tokenPath string, logger *slog.Logger,
) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(p, creds)
	if err != nil {
		return nil, err
	}

	return sourceFromFile(ctx, p, cfg, tokenPath, orDefault(logger))
}

func sourceFromFile(
	ctx context.Context, p Provider, cfg *oauth2.Config, tokenPath string, logger *slog.Logger,
) (oauth2.TokenSource, error) {
	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	if Provider(tf.Provider) != p {
		return nil, fmt.Errorf("%w: %s holds a %s login, want %s", ErrProviderMismatch, tokenPath, tf.Provider, p)
	}

	logger.Info("loaded saved token",
		slog.String("provider", tf.Provider),
		slog.String("path", tokenPath),
		slog.Time("expiry", tf.Token.Expiry),
		slog.Bool("expired", !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(time.Now())),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tf.Token), tokenPath, tf.Token, logger), nil
}

// Logout removes the saved login. A missing file is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	logger = orDefault(logger)

	removed, err := tokenfile.Remove(tokenPath)
	if err != nil {
		return err
	}

	if !removed {
		logger.Info("logout: no token file to remove (already logged out)", slog.String("path", tokenPath))

		return nil
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// HTTPClient returns a client that authorizes every request with src.
func HTTPClient(ctx context.Context, src oauth2.TokenSource) *http.Client {
	return oauth2.NewClient(ctx, src)
}

// persistingSource writes each newly issued token back to the saved login.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func newPersistingSource(src oauth2.TokenSource, path string, initial *oauth2.Token, logger *slog.Logger) *persistingSource {
	return &persistingSource{src: src, path: path, logger: logger, last: initial.AccessToken}
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken == s.last {
		return tok, nil
	}

	s.last = tok.AccessToken

	s.logger.Info("token refreshed by oauth2 library",
		slog.String("path", s.path),
		slog.Time("new_expiry", tok.Expiry),
	)

	// A failed write only costs a refresh on the next run.
	if err := tokenfile.ReplaceToken(s.path, tok); err != nil {
		s.logger.Warn("failed to persist refreshed token",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}

	return tok, nil
}

// Bridge adapts an oauth2.TokenSource to the bare access-token source the
// OneDrive client takes. It logs every acquisition so refresh activity is
// visible.
type Bridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

// AccessTokens wraps src.
func AccessTokens(src oauth2.TokenSource, logger *slog.Logger) *Bridge {
	return &Bridge{src: src, logger: orDefault(logger)}
}

// Token returns the current access token.
func (b *Bridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	return logger
}
