package gdrive

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/tonimelisma/drivebackup/internal/remote"
)

// Sentinel errors for Drive API status classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = remote.Sentinel("gdrive: not found", remote.ErrNotFound)
	ErrThrottled    = errors.New("gdrive: rate limited")
	ErrServerError  = errors.New("gdrive: server error")
)

// DriveError carries the API status, the reason of the first error item and
// the classified sentinel.
type DriveError struct {
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *DriveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *DriveError) Unwrap() error {
	return e.Err
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// wrapErr converts a *googleapi.Error into a *DriveError. Other errors
// (transport, context) get the operation prefix only.
func wrapErr(op string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gdrive: %s: %w", op, err)
	}

	de := &DriveError{
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
		Err:        classifyStatus(apiErr.Code),
	}

	if len(apiErr.Errors) > 0 {
		de.Reason = apiErr.Errors[0].Reason
	}

	// Drive reports per-user rate limits as 403.
	if de.Reason == "rateLimitExceeded" || de.Reason == "userRateLimitExceeded" {
		de.Err = ErrThrottled
	}

	return de
}
