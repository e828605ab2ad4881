// Package apierr attaches an HTTP status and a stable code to errors that
// reach the API surface.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/yungbote/coverage-backend/internal/pkg/errors"
)

// Codes sent in the error envelope.
const (
	CodeInvalidScope        = "invalid_scope"
	CodeInvalidSubmissionID = "invalid_submission_id"
	CodeBodyTooLarge        = "body_too_large"
	CodeBodyUnreadable      = "body_unreadable"
	CodeStoreUnavailable    = "store_unavailable"
	CodeMergeTimeout        = "merge_timeout"
	CodeInternal            = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("api error (%d)", e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// InvalidScope is a 400 for a missing or half-specified organisation/commit.
func InvalidScope(msg string) *Error {
	return New(http.StatusBadRequest, CodeInvalidScope, fmt.Errorf("%s: %w", msg, pkgerrors.ErrInvalidArgument))
}

// InvalidSubmissionID is a 400 for a retry ID that is not a UUID.
func InvalidSubmissionID(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidSubmissionID, fmt.Errorf("%w: submission id: %v", pkgerrors.ErrInvalidArgument, err))
}

// BodyTooLarge is a 413 for a submission over the configured limit.
func BodyTooLarge(err error) *Error {
	return New(http.StatusRequestEntityTooLarge, CodeBodyTooLarge, fmt.Errorf("%w: %v", pkgerrors.ErrTooLarge, err))
}

// StoreFailure is a 503 for a store that could not complete a read or merge.
// Cancelled and expired contexts get their own code.
func StoreFailure(err error) *Error {
	if pkgerrors.IsTimeout(err) {
		return New(http.StatusServiceUnavailable, CodeMergeTimeout, err)
	}
	return New(http.StatusServiceUnavailable, CodeStoreUnavailable, fmt.Errorf("%w: %v", pkgerrors.ErrUnavailable, err))
}

// StatusOf returns the status and code of the first *Error in err's chain,
// or a 500 when there is none.
func StatusOf(err error) (int, string) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, CodeInternal
	}
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := apiErr.Code
	if code == "" {
		code = CodeInternal
	}
	return status, code
}
