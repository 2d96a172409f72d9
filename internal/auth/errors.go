package auth

import (
	"errors"
	"net/http"
)

// Error is a gateway failure carrying the HTTP status and the localized
// detail shown to the caller.
type Error struct {
	Status int
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Detail + ": " + e.Cause.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Cause }

func unauthorized(detail string, cause error) *Error {
	return &Error{Status: http.StatusUnauthorized, Detail: detail, Cause: cause}
}

func badRequest(detail string, cause error) *Error {
	return &Error{Status: http.StatusBadRequest, Detail: detail, Cause: cause}
}

func internal(detail string, cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Detail: detail, Cause: cause}
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
