package services

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-checkable category of a service error. Handlers
// map kinds to HTTP statuses.
type ErrorKind string

const (
	KindForbidden        ErrorKind = "forbidden"
	KindAlreadyCompleted ErrorKind = "already_completed"
	KindNotAssigned      ErrorKind = "not_assigned"
	KindInvalidReference ErrorKind = "invalid_reference"
	KindUngradable       ErrorKind = "ungradable"
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation_error"
)

// ServiceError carries a kind alongside the human-readable detail.
type ServiceError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, or empty string for untyped errors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Sentinel errors for the common fixed cases.
var (
	ErrExamNotFound    = &ServiceError{Kind: KindNotFound, Detail: "exam not found"}
	ErrAttemptNotFound = &ServiceError{Kind: KindNotFound, Detail: "attempt not found"}
	ErrNoActiveAttempt = &ServiceError{Kind: KindNotFound, Detail: "no attempt in progress for this exam"}

	ErrExamNotActive          = &ServiceError{Kind: KindForbidden, Detail: "exam is not active"}
	ErrAttemptAlreadyComplete = &ServiceError{Kind: KindAlreadyCompleted, Detail: "attempt has already been completed"}
	ErrAttemptNotCompleted    = &ServiceError{Kind: KindValidation, Detail: "attempt has not been completed yet"}
	ErrExamAlreadyTaken       = &ServiceError{Kind: KindAlreadyCompleted, Detail: "exam has already been completed by this student"}
	ErrQuestionNotAssigned    = &ServiceError{Kind: KindNotAssigned, Detail: "question is not part of this attempt"}
	ErrQuestionNotGradable    = &ServiceError{Kind: KindUngradable, Detail: "question has no correct choices configured"}
)

// NewPermissionError builds a Forbidden error describing who was refused what.
func NewPermissionError(userID string, resource string, id uint, action string) *ServiceError {
	return &ServiceError{
		Kind:   KindForbidden,
		Detail: fmt.Sprintf("user %s may not %s %s %d", userID, action, resource, id),
	}
}

// NewInvalidReferenceError marks a request that names an entity outside the
// scope it was submitted against.
func NewInvalidReferenceError(detail string) *ServiceError {
	return &ServiceError{Kind: KindInvalidReference, Detail: detail}
}

// NewValidationError wraps a validation failure with its detail.
func NewValidationError(detail string, err error) *ServiceError {
	return &ServiceError{Kind: KindValidation, Detail: detail, Err: err}
}
