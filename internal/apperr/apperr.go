package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable error code. Clients switch on it to
// decide how to react (re-login, upsell prompt, retry) instead of parsing
// messages.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindTokenExpired    Kind = "token_expired"
	KindTokenInvalid    Kind = "token_invalid"
	KindForbidden       Kind = "insufficient_permissions"
	KindCrossTenant     Kind = "cross_tenant_access"
	KindFeatureLocked   Kind = "feature_locked"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal_error"
)

// Error carries a kind, a suggested HTTP status and a caller-facing message.
// Inner components return these; only the route layer turns them into JSON.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two apperr values match when their kinds match, so callers can
// use errors.Is against sentinel constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: message}
}

func TokenExpired() *Error {
	return &Error{Kind: KindTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"}
}

func TokenInvalid(err error) *Error {
	return &Error{Kind: KindTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid token", Err: err}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: message}
}

func CrossTenant(message string) *Error {
	return &Error{Kind: KindCrossTenant, Status: http.StatusForbidden, Message: message}
}

// FeatureLocked is deliberately distinct from Forbidden: the client renders
// an upgrade prompt for this kind, not a permissions error.
func FeatureLocked(feature string) *Error {
	return &Error{
		Kind:    KindFeatureLocked,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("your plan does not include %s", feature),
	}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: entity + " not found"}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: message}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}

// From normalizes any error into an *Error. Unknown errors become internal
// so the original cause is logged server-side but never leaks to the client.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
