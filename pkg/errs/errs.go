// Package errs defines the error kinds shared by every domain package.
//
// Domain packages declare their own sentinels with New so callers can match
// either the precise sentinel or its kind with errors.Is:
//
//	var ErrCounterNotFound = errs.New(errs.ErrNotFound, "counter_not_found")
//	errors.Is(err, errs.ErrNotFound) // true
package errs

import "errors"

var (
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrTemplate        = errors.New("template_error")
	ErrTransport       = errors.New("transport_error")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Error is a domain sentinel with a stable snake_case code.
type Error struct {
	kind error
	code string
}

func New(kind error, code string) *Error {
	return &Error{kind: kind, code: code}
}

func (e *Error) Error() string { return e.code }

func (e *Error) Unwrap() error { return e.kind }

// Code returns the stable machine-readable code.
func (e *Error) Code() string { return e.code }

// Kind returns the shared kind the error belongs to.
func (e *Error) Kind() error { return e.kind }

// CodeOf returns the most specific domain code in err's chain, or the kind name.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.code
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidArgument, ErrTemplate, ErrTransport, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal_error"
}
