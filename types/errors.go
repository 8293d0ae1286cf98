package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an Error into the taxonomy used at the API boundary.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindForbidden
	KindConflict
	KindValidation
	KindInternal
)

// Symbolic error codes surfaced at the API boundary.
const (
	CodeNotFound  = "M_NOT_FOUND"
	CodeForbidden = "M_FORBIDDEN"
	CodeRoomInUse = "M_ROOM_IN_USE"
	CodeBadJSON   = "M_BAD_JSON"
	CodeTooLarge  = "M_TOO_LARGE"
	CodeUnknown   = "M_UNKNOWN"
)

// Error carries a numeric status and a symbolic code alongside the message, so the
// API boundary can translate it without inspecting the message text.
type Error struct {
	Kind   ErrorKind
	Status int
	Code   string
	Msg    string
}

func (e *Error) Error() string {
	return e.Msg
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: CodeNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Code: CodeForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Code: CodeRoomInUse, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Code: CodeBadJSON, Msg: fmt.Sprintf(format, args...)}
}

// MessageTooLarge is a Validation-kind error with its own status and code, matching
// the wire contract for oversized message bodies.
func MessageTooLarge(size int) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusRequestEntityTooLarge, Code: CodeTooLarge, Msg: fmt.Sprintf("message too large: %d bytes", size)}
}

func Internal(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Code: CodeUnknown, Msg: fmt.Sprintf(format, args...)}
}

// AsError returns the *Error inside err, or wraps err into an internal Error.
// Storage backends return opaque errors, only the orchestrator attaches the taxonomy.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("%s", err.Error())
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool   { return kindOf(err) == KindNotFound }
func IsForbidden(err error) bool  { return kindOf(err) == KindForbidden }
func IsConflict(err error) bool   { return kindOf(err) == KindConflict }
func IsValidation(err error) bool { return kindOf(err) == KindValidation }
