package common

import (
	"errors"
	"net/http"
)

// Kind classifies an AppError for callers that branch on the failure category.
type Kind string

const (
	// KindValidation marks a request that cannot proceed because an input or precondition is missing.
	KindValidation Kind = "validation"
	// KindConflict marks a request that collides with the current session state.
	KindConflict Kind = "conflict"
	// KindNotFound marks a reference that matches nothing the caller can see.
	KindNotFound Kind = "not_found"
	// KindRemote marks a failed or inconsistent collaborator call.
	KindRemote Kind = "remote"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" && e.Message != e.Err.Error() {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Validation reports an unmet precondition identified by code.
func Validation(code string, err error) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: messageFor(code, err), HTTPStatus: http.StatusUnprocessableEntity, Err: err}
}

// Conflict reports a state collision identified by code.
func Conflict(code string, err error) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: messageFor(code, err), HTTPStatus: http.StatusConflict, Err: err}
}

// NotFound reports a missing reference identified by code.
func NotFound(code string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: messageFor(code, err), HTTPStatus: http.StatusNotFound, Err: err}
}

// Remote wraps a collaborator failure. The target names the collaborator.
func Remote(target string, err error) *AppError {
	return &AppError{Kind: KindRemote, Code: "remote_error", Message: target + " request failed", HTTPStatus: http.StatusBadGateway, Err: err, Details: map[string]string{"target": target}}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf returns the Kind of the first AppError in the chain, or an empty Kind.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// CodeOf returns the Code of the first AppError in the chain, or an empty string.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}

func messageFor(code string, err error) string {
	if err != nil {
		return err.Error()
	}
	return code
}
