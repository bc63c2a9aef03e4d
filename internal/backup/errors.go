package backup

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned when the local input of an upload or update
// does not exist. It is detected before any remote call is issued.
var ErrFileNotFound = errors.New("backup: local file not found")

// ErrFolderUnresolved is returned by a RequireReady session whose folder
// resolution failed, and by WaitUntilReady in the same situation.
var ErrFolderUnresolved = errors.New("backup: backup folder is not resolved")

// Operation names carried by RemoteOperationError.
const (
	OpList    = "list"
	OpGet     = "get"
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpTrash   = "trash"
	OpDelete  = "delete"
	OpResolve = "resolve folder"
)

// RemoteOperationError wraps any failure surfaced by the remote store with
// the operation and the object it concerned (object ID, title or path).
type RemoteOperationError struct {
	Op     string
	Target string
	Err    error
}

func (e *RemoteOperationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("backup: %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("backup: %s %q failed: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// PartialEnumerationError reports a listing that stopped at a failed page.
// The objects returned next to it are valid; they are simply not all of them.
type PartialEnumerationError struct {
	Pages int // pages fetched successfully before the failure
	Items int // objects accumulated from those pages
	Err   error
}

func (e *PartialEnumerationError) Error() string {
	return fmt.Sprintf("backup: listing stopped after %d pages (%d objects): %v", e.Pages, e.Items, e.Err)
}

func (e *PartialEnumerationError) Unwrap() error {
	return e.Err
}

// FailureHook receives every remote failure, including the ones a
// suppression policy hides from the caller (Trash, Delete on local I/O).
type FailureHook func(err *RemoteOperationError)
