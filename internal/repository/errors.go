package repository

import (
	"errors"
	"fmt"
)

// ErrorCode classifies repository failures for retry and mapping decisions.
type ErrorCode string

const (
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeOptimisticLock ErrorCode = "OPTIMISTIC_LOCK"
	ErrCodeInvalidQuery   ErrorCode = "INVALID_QUERY"
	ErrCodeUnavailable    ErrorCode = "UNAVAILABLE"
	ErrCodeInternal       ErrorCode = "INTERNAL"
)

// RepositoryError carries a classification code alongside the message so
// services can branch on the failure class without string matching.
type RepositoryError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a repository error with the given code.
func NewRepositoryError(code ErrorCode, message string, err error) error {
	return &RepositoryError{Code: code, Message: message, Err: err}
}

// NewNotFoundError creates a not-found error for a resource.
func NewNotFoundError(resource, id string) error {
	return &RepositoryError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// NewConflictError creates a conflict error for a lineage whose current
// pointer moved underneath a writer.
func NewConflictError(lineageID string) error {
	return &RepositoryError{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("lineage %s: current entity changed concurrently", lineageID),
	}
}

// NewInvalidQuery creates an invalid-query error for a bad parameter.
func NewInvalidQuery(field, reason string) error {
	return &RepositoryError{
		Code:    ErrCodeInvalidQuery,
		Message: fmt.Sprintf("invalid query parameter %s: %s", field, reason),
	}
}

// NewUnavailableError wraps a store-level outage; these are fatal to the
// caller and surfaced unmodified.
func NewUnavailableError(message string, err error) error {
	return &RepositoryError{Code: ErrCodeUnavailable, Message: message, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.Code == code
	}
	return false
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a conflict or optimistic-lock error.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict) || hasCode(err, ErrCodeOptimisticLock)
}

// IsUnavailable checks if an error signals store-level unavailability.
func IsUnavailable(err error) bool {
	return hasCode(err, ErrCodeUnavailable)
}
