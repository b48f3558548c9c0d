package core

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrBadRequest         ErrorCode = "OSLAB_BAD_REQUEST"
	ErrNotFound           ErrorCode = "OSLAB_NOT_FOUND"
	ErrConflict           ErrorCode = "OSLAB_CONFLICT"
	ErrPermissionDenied   ErrorCode = "OSLAB_PERMISSION_DENIED"
	ErrExpired            ErrorCode = "OSLAB_EXPIRED"
	ErrSandboxUnavailable ErrorCode = "OSLAB_SANDBOX_UNAVAILABLE"
	ErrPersistence        ErrorCode = "OSLAB_PERSISTENCE"
	ErrInternal           ErrorCode = "OSLAB_INTERNAL"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest:
		return 400
	case ErrPermissionDenied:
		return 403
	case ErrNotFound:
		return 404
	case ErrConflict:
		return 409
	case ErrExpired:
		return 410
	case ErrSandboxUnavailable:
		return 502
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// AsAppError unwraps err to an *AppError if one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
