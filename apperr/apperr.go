package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindExternalProvider     Kind = "external_provider"
	KindStorageInconsistency Kind = "storage_inconsistency"
	KindUnauthorized         Kind = "unauthorized"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

// Error carries enough context for the HTTP boundary to pick a status code.
// Status is only set for provider errors, where it holds the upstream status.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test with errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrExternalProvider     = &Error{Kind: KindExternalProvider}
	ErrStorageInconsistency = &Error{Kind: KindStorageInconsistency}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrConflict             = &Error{Kind: KindConflict}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: "Could not validate credentials"}
}

// InvalidLogin is returned by login for an unknown email or a wrong password
// alike.
func InvalidLogin() *Error {
	return &Error{Kind: KindUnauthorized, Message: "Incorrect email or password"}
}

// ExternalProvider wraps an upstream failure. status is the provider's HTTP
// status when one was received, 0 otherwise.
func ExternalProvider(provider string, status int, message string, err error) *Error {
	return &Error{
		Kind:    KindExternalProvider,
		Message: fmt.Sprintf("%s API error: %s", provider, message),
		Status:  status,
		Err:     err,
	}
}

func StorageInconsistency(message string, err error) *Error {
	return &Error{Kind: KindStorageInconsistency, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to a client. Provider errors keep
// the upstream message; unknown errors never leak their internals.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return "Internal server error"
	}
	if e.Kind == KindStorageInconsistency {
		return e.Message
	}
	return e.Error()
}
