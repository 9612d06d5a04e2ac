// Package apperrors defines the coded errors the query pipeline surfaces to
// its callers and how each maps onto an HTTP status.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one entry of the error taxonomy.
type Code string

const (
	CodeInvalidRequest            Code = "INVALID_REQUEST"
	CodeMalformedIntent           Code = "MALFORMED_INTENT"
	CodeSchemaUnavailable         Code = "SCHEMA_UNAVAILABLE"
	CodeRetrievalFailure          Code = "RETRIEVAL_FAILURE"
	CodeConnectionTeardownFailure Code = "CONNECTION_TEARDOWN_FAILURE"
	CodeUpstreamFailure           Code = "UPSTREAM_FAILURE"
)

// Error is a coded application error. Details carries diagnostic material
// such as the raw classifier output; it is never used to build queries.
type Error struct {
	Code    Code
	Message string
	Details string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err,
// apperrors.MalformedIntent) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	InvalidRequest            = &Error{Code: CodeInvalidRequest}
	MalformedIntent           = &Error{Code: CodeMalformedIntent}
	SchemaUnavailable         = &Error{Code: CodeSchemaUnavailable}
	RetrievalFailure          = &Error{Code: CodeRetrievalFailure}
	ConnectionTeardownFailure = &Error{Code: CodeConnectionTeardownFailure}
	UpstreamFailure           = &Error{Code: CodeUpstreamFailure}
)

func NewInvalidRequest(message string) *Error {
	return &Error{
		Code:    CodeInvalidRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewMalformedIntent keeps the classifier's raw output for diagnosis.
func NewMalformedIntent(raw string, err error) *Error {
	return &Error{
		Code:    CodeMalformedIntent,
		Message: "classifier returned a malformed intent",
		Details: raw,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func NewSchemaUnavailable(err error) *Error {
	return &Error{
		Code:    CodeSchemaUnavailable,
		Message: "column catalog unavailable",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func NewRetrievalFailure(source string, err error) *Error {
	return &Error{
		Code:    CodeRetrievalFailure,
		Message: fmt.Sprintf("%s retrieval failed", source),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func NewConnectionTeardownFailure(err error) *Error {
	return &Error{
		Code:    CodeConnectionTeardownFailure,
		Message: "failed to release data-store connection",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func NewUpstreamFailure(service string, err error) *Error {
	return &Error{
		Code:    CodeUpstreamFailure,
		Message: fmt.Sprintf("%s call failed", service),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// CodeOf returns the code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
