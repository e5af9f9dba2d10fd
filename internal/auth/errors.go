// errors.go defines the error taxonomy returned by the lifecycle manager and the
// ownership guard. Every domain failure is an *Error carrying a stable Kind that
// HTTP handlers map onto a status code; anything else is an internal error.
package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-checkable category of a domain error.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindInvalidCredentials  Kind = "invalid_credentials"
	KindInvalidToken        Kind = "invalid_token"
	KindTokenExpired        Kind = "token_expired"
	KindAccountNotActivated Kind = "account_not_activated"
	KindNotAuthenticated    Kind = "not_authenticated"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal_error"
)

// invalidCredentialsMessage is shared by the unknown-email and wrong-password
// paths of Login.
const invalidCredentialsMessage = "Invalid credentials"

// Error is a domain error with a kind, a human-readable message and an
// optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, auth.ErrInvalidToken) matches any invalid-token error
// regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// StatusCode returns the HTTP status associated with the error kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindInvalidCredentials, KindInvalidToken,
		KindTokenExpired, KindAccountNotActivated:
		return http.StatusBadRequest
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "Validation failed"}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials, Message: invalidCredentialsMessage}
	ErrInvalidToken        = &Error{Kind: KindInvalidToken, Message: "Invalid token"}
	ErrTokenExpired        = &Error{Kind: KindTokenExpired, Message: "Token has expired"}
	ErrAccountNotActivated = &Error{Kind: KindAccountNotActivated, Message: "Account is not activated. A new activation email has been sent"}
	ErrNotAuthenticated    = &Error{Kind: KindNotAuthenticated, Message: "Not authenticated"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "Not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "Forbidden: you are not authorized to perform this action"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "Conflict"}
)

// ValidationError returns a validation error with the given message.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError returns a not-found error naming the missing resource.
func NotFoundError(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " does not exist"}
}

// ConflictError returns a conflict error with the given message.
func ConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InternalError wraps a store or infrastructure failure. The message is
// generic; the cause is kept for logging.
func InternalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of err, or KindInternal when err is not a domain
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
