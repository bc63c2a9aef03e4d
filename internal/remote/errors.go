package remote

import (
	"errors"
	"io"
	"io/fs"
)

// ErrLocalIO marks a failure that happened while moving bytes on this side
// of the wire (reading a local stream, draining a response body) rather than
// a failure reported by the remote service. Stores wrap such failures with
// it so callers can apply IO-only suppression policies.
var ErrLocalIO = errors.New("remote: local I/O failure")

// IsLocalIO reports whether err belongs to the local I/O class.
func IsLocalIO(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrLocalIO) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pathErr *fs.PathError

	return errors.As(err, &pathErr)
}

// ErrNotFound is matched by every store's not-found errors, so callers that
// do not know the provider can still tell a missing object apart.
var ErrNotFound = errors.New("remote: object not found")

// Sentinel returns a sentinel error with message msg that also matches kind
// under errors.Is.
func Sentinel(msg string, kind error) error {
	return &sentinel{msg: msg, kind: kind}
}

type sentinel struct {
	msg  string
	kind error
}

func (s *sentinel) Error() string { return s.msg }

func (s *sentinel) Unwrap() error { return s.kind }
