// Package apperr classifies failures into the small set of outcomes the
// console shows to users. Every error that crosses a service boundary is
// either an *Error or is treated as Internal.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	PermissionDenied
	NotFound
	DuplicateInvitation
	Conflict
	ProvisioningFailed
	Transport
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthenticated:
		return "unauthenticated"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case DuplicateInvitation:
		return "duplicate_invitation"
	case Conflict:
		return "conflict"
	case ProvisioningFailed:
		return "provisioning_failed"
	case Transport:
		return "transport"
	default:
		return "internal"
	}
}

// GenericMessage is shown for failures that have no user-facing sentence.
const GenericMessage = "Something went wrong. Please try again."

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the sentence to show the user. Raw storage or transport
// text is never returned.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal && e.Message != "" {
		return e.Message
	}
	return GenericMessage
}

// WithMessage rewrites the user sentence of a classified error while keeping
// its kind, so callers can give context-specific wording.
func WithMessage(err error, msg string) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: msg, Err: e.Err}
	}
	return err
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case DuplicateInvitation, Conflict:
		return http.StatusConflict
	case ProvisioningFailed, Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
