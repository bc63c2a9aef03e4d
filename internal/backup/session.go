package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// DefaultFolderName is the backup folder used when none is configured.
const DefaultFolderName = "DriveUploader Backup"

// SessionState tracks backup folder resolution.
type SessionState int32

// Session states. Ready and Failed are terminal.
const (
	StateCreated SessionState = iota
	StateResolving
	StateReady
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// SessionConfig configures a Session.
type SessionConfig struct {
	FolderName        string // defaults to DefaultFolderName
	FolderDescription string // defaults to DefaultFolderDescription

	// RequireReady makes folder-scoped operations wait for resolution and
	// fail with ErrFolderUnresolved when it did not succeed. When false,
	// operations issued early proceed without a parent.
	RequireReady bool

	Mime        *MimeResolver
	MaxFileSize int64
	Report      FailureHook
}

// Session binds a store to one backup folder. The folder is resolved once,
// in the background, starting at construction.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	resolver   *FolderResolver
	reconciler *Reconciler
	lister     *Lister

	state  atomic.Int32
	folder atomic.Pointer[FolderHandle]
	err    error // set before ready is closed
	ready  chan struct{}
	once   sync.Once
}

// NewSession starts resolving the backup folder and returns without
// waiting for it. ctx bounds the resolution calls.
func NewSession(ctx context.Context, store Store, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.FolderName == "" {
		cfg.FolderName = DefaultFolderName
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		resolver: NewFolderResolver(store, logger, cfg.Report),
		reconciler: NewReconciler(store, ReconcilerConfig{
			Mime:        cfg.Mime,
			MaxFileSize: cfg.MaxFileSize,
			Report:      cfg.Report,
		}, logger),
		lister: NewLister(store, logger, cfg.Report),
		ready:  make(chan struct{}),
	}

	s.state.Store(int32(StateResolving))

	go s.resolve(ctx)

	return s
}

func (s *Session) resolve(ctx context.Context) {
	h, err := s.resolver.ResolveOrCreate(ctx, s.cfg.FolderName, s.cfg.FolderDescription)
	s.publish(h, err)
}

func (s *Session) publish(h FolderHandle, err error) {
	s.once.Do(func() {
		if err != nil {
			s.err = err
			s.state.Store(int32(StateFailed))
			s.logger.Error("backup folder unavailable, session has no parent folder",
				slog.String("folder", s.cfg.FolderName),
				slog.String("error", err.Error()),
			)
		} else {
			s.folder.Store(&h)
			s.state.Store(int32(StateReady))
		}

		close(s.ready)
	})
}

// State reports the resolution state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Ready is closed once resolution has finished, successfully or not.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// FolderID returns the resolved folder id, or "" before resolution
// succeeds.
func (s *Session) FolderID() string {
	if h := s.folder.Load(); h != nil {
		return h.ID
	}

	return ""
}

// Folder returns the resolved handle and whether it is available.
func (s *Session) Folder() (FolderHandle, bool) {
	if h := s.folder.Load(); h != nil {
		return *h, true
	}

	return FolderHandle{}, false
}

// Err returns the resolution error once Ready is closed.
func (s *Session) Err() error {
	select {
	case <-s.ready:
		return s.err
	default:
		return nil
	}
}

// WaitUntilReady blocks until resolution finishes or ctx is done.
func (s *Session) WaitUntilReady(ctx context.Context) (FolderHandle, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return FolderHandle{}, ctx.Err()
	}

	if s.err != nil {
		return FolderHandle{}, fmt.Errorf("%w: %q: %w", ErrFolderUnresolved, s.cfg.FolderName, s.err)
	}

	return *s.folder.Load(), nil
}

// parent returns the folder id to attach to a new or updated object.
func (s *Session) parent(ctx context.Context, target string) (string, error) {
	if id := s.FolderID(); id != "" {
		return id, nil
	}

	if s.cfg.RequireReady {
		h, err := s.WaitUntilReady(ctx)
		if err != nil {
			return "", err
		}

		return h.ID, nil
	}

	s.logger.Warn("folder not resolved, object will be unparented",
		slog.String("folder", s.cfg.FolderName),
		slog.String("state", s.State().String()),
		slog.String("target", target),
	)

	return "", nil
}

// Upload inserts localPath into the backup folder.
func (s *Session) Upload(ctx context.Context, localPath string, opts UploadOptions) (*remote.Object, error) {
	parent, err := s.parent(ctx, localPath)
	if err != nil {
		return nil, err
	}

	return s.reconciler.Upload(ctx, localPath, parent, opts)
}

// Update overwrites objectID with localPath, keeping it in the backup folder.
func (s *Session) Update(ctx context.Context, localPath, objectID string, opts UploadOptions) (*remote.Object, error) {
	parent, err := s.parent(ctx, localPath)
	if err != nil {
		return nil, err
	}

	return s.reconciler.Update(ctx, localPath, parent, objectID, opts)
}

// Replace overlays metadata on objectID and uploads localPath as its
// content. The object keeps its current parents.
func (s *Session) Replace(
	ctx context.Context, objectID string, overlay Overlay, localPath string, newRevision bool,
) (*remote.Object, error) {
	return s.reconciler.Replace(ctx, objectID, overlay, localPath, newRevision)
}

// InsertWithMetadata inserts localPath into the backup folder under
// caller-supplied metadata.
func (s *Session) InsertWithMetadata(ctx context.Context, overlay Overlay, localPath string) (*remote.Object, error) {
	parent, err := s.parent(ctx, overlay.Title)
	if err != nil {
		return nil, err
	}

	return s.reconciler.InsertWithMetadata(ctx, overlay, localPath, parent)
}

// Get fetches objectID.
func (s *Session) Get(ctx context.Context, objectID string) (*remote.Object, error) {
	return s.reconciler.Get(ctx, objectID)
}

// ListAll enumerates every non-trashed object, not only the backup folder.
func (s *Session) ListAll(ctx context.Context) ([]remote.Object, error) {
	return s.lister.ListAll(ctx)
}

// ListFolder enumerates the backup folder. It always waits for resolution.
func (s *Session) ListFolder(ctx context.Context) ([]remote.Object, error) {
	h, err := s.WaitUntilReady(ctx)
	if err != nil {
		return nil, err
	}

	return s.lister.List(ctx, remote.Query{ParentID: h.ID})
}

// Trash moves objectID to the trash. See Reconciler.Trash.
func (s *Session) Trash(ctx context.Context, objectID string) *remote.Object {
	return s.reconciler.Trash(ctx, objectID)
}

// Delete permanently removes objectID. See Reconciler.Delete.
func (s *Session) Delete(ctx context.Context, objectID string) error {
	return s.reconciler.Delete(ctx, objectID)
}
