package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

type ErrorKind string

const (
	ErrorKindNotFound        ErrorKind = "NOT_FOUND"
	ErrorKindAlreadyResolved ErrorKind = "ALREADY_RESOLVED"
	ErrorKindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	ErrorKindInvalidState    ErrorKind = "INVALID_STATE"
	ErrorKindStorage         ErrorKind = "STORAGE_ERROR"
)

// AppError is a caller-facing failure. Message is safe to show to an operator as-is.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

func NewNotFoundError(format string, args ...any) error {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...), Err: ErrorRecordNotFound}
}

func NewAlreadyResolvedError(format string, args ...any) error {
	return &AppError{Kind: ErrorKindAlreadyResolved, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidArgumentError(format string, args ...any) error {
	return &AppError{Kind: ErrorKindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidStateError(format string, args ...any) error {
	return &AppError{Kind: ErrorKindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewStorageError marks err as a persistence failure. The cause stays reachable through
// errors.Is / errors.As; an error that is already an AppError is returned unchanged.
func NewStorageError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return &AppError{Kind: ErrorKindStorage, Err: err}
}

// ErrorKindOf reports the kind of err, treating anything untyped as a storage failure.
func ErrorKindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrorKindStorage
}

func IsErrorKind(err error, kind ErrorKind) bool {
	return err != nil && ErrorKindOf(err) == kind
}
