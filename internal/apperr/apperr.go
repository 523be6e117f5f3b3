// Package apperr defines the error taxonomy shared by services, handlers and
// the websocket transport.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindIntegrity     Kind = "integrity"
	KindDependency    Kind = "dependency"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeInvalidInput     Code = "INVALID_INPUT"
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeSelfReference    Code = "SELF_REFERENCE"
	CodeInvalidTarget    Code = "INVALID_TARGET"
	CodeDuplicateRequest Code = "DUPLICATE_REQUEST"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeEmptyMessage     Code = "EMPTY_MESSAGE"
	CodeMessageTooLong   Code = "MESSAGE_TOO_LONG"
	CodeInvalidTier      Code = "INVALID_TIER"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeInvalidPayload   Code = "INVALID_PAYLOAD"
	CodeUnknownOrder     Code = "UNKNOWN_ORDER"
	CodeDependency       Code = "DEPENDENCY_FAILURE"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    Code
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

// Is matches another *Error by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an error of the given kind and code.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation creates a validation error.
func Validation(code Code, message string) *Error {
	return New(KindValidation, code, message)
}

// Dependency wraps a storage or provider failure.
func Dependency(message string, err error) *Error {
	return &Error{Kind: KindDependency, Code: CodeDependency, Message: message, Err: err}
}

// Sentinels, compared by code.
var (
	ErrSelfReference    = New(KindValidation, CodeSelfReference, "cannot send connection request to yourself")
	ErrInvalidTarget    = New(KindNotFound, CodeInvalidTarget, "user not found")
	ErrDuplicateRequest = New(KindConflict, CodeDuplicateRequest, "connection request already exists")
	ErrNotFound         = New(KindNotFound, CodeNotFound, "connection request not found")
	ErrUnauthorized     = New(KindAuthorization, CodeUnauthorized, "you can only message users you are connected with")
	ErrInvalidToken     = New(KindAuthorization, CodeInvalidToken, "invalid or missing token")
	ErrEmptyMessage     = New(KindValidation, CodeEmptyMessage, "message text is required")
	ErrInvalidSignature = New(KindIntegrity, CodeInvalidSignature, "invalid webhook signature")
	ErrUnknownOrder     = New(KindNotFound, CodeUnknownOrder, "unknown order")
)

// KindOf returns the kind of err, or KindDependency for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// CodeOf returns the code of err, or CodeDependency for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeDependency
}

// PublicMessage returns a message safe to show to clients.
// Dependency errors never expose the wrapped cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindDependency {
		return e.Message
	}
	return "internal error"
}
