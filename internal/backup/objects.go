package backup

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// Get fetches a single object.
func (r *Reconciler) Get(ctx context.Context, objectID string) (*remote.Object, error) {
	obj, err := r.store.Get(ctx, objectID)
	if err != nil {
		return nil, r.fail(OpGet, objectID, err)
	}

	return obj, nil
}

// Trash moves objectID to the trash and returns the trashed object.
//
// Every remote failure is swallowed: it is logged and sent to the failure
// hook, and Trash returns nil. Delete follows a narrower policy.
func (r *Reconciler) Trash(ctx context.Context, objectID string) *remote.Object {
	obj, err := r.store.Trash(ctx, objectID)
	if err != nil {
		r.fail(OpTrash, objectID, err)

		return nil
	}

	r.logger.Info("trashed object", slog.String("object_id", objectID))

	return obj
}

// Delete permanently removes objectID, skipping the trash.
//
// Only local I/O failures (remote.IsLocalIO) are swallowed; they are still
// logged and reported. Every other failure is returned as a
// *RemoteOperationError.
func (r *Reconciler) Delete(ctx context.Context, objectID string) error {
	err := r.store.Delete(ctx, objectID)
	if err == nil {
		r.logger.Info("deleted object", slog.String("object_id", objectID))

		return nil
	}

	roe := r.fail(OpDelete, objectID, err)
	if remote.IsLocalIO(err) {
		r.logger.Warn("ignoring local I/O failure on delete", slog.String("object_id", objectID))

		return nil
	}

	return roe
}
