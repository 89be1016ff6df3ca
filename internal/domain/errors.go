package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingTenantID      = NewDomainError(ErrCodeValidation, "tenantId is required")
	ErrMissingTitle         = NewDomainError(ErrCodeValidation, "title is required")
	ErrMissingText          = NewDomainError(ErrCodeValidation, "text is required")
	ErrMissingID            = NewDomainError(ErrCodeValidation, "id is required")
	ErrInvalidMeta          = NewDomainError(ErrCodeValidation, "meta must be a JSON object")
	ErrParentNotFound       = NewDomainError(ErrCodeValidation, "parent knowledge text not found")
	ErrParentTenantMismatch = NewDomainError(ErrCodeValidation, "parent belongs to a different tenant")
	ErrChildParentMismatch  = NewDomainError(ErrCodeValidation, "child parentId does not match its parent")
)

// Not found errors
var (
	ErrKnowledgeTextNotFound = NewDomainError(ErrCodeNotFound, "knowledge text not found")
)

// Already exists errors
var (
	ErrKnowledgeTextAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "knowledge text already exists")
)

// Operation errors
var (
	ErrHierarchyCycle       = NewDomainError(ErrCodeInvalidOperation, "parent assignment would create a cycle")
	ErrKnowledgeTextDeleted = NewDomainError(ErrCodeInvalidOperation, "knowledge text is deleted")
	ErrParentDeleted        = NewDomainError(ErrCodeInvalidOperation, "parent knowledge text is deleted")
	ErrNotDeleted           = NewDomainError(ErrCodeInvalidOperation, "knowledge text is not deleted")
)

// Infrastructure errors
var (
	ErrStorageNotConfigured = NewDomainError(ErrCodeUnavailable, "object storage is not configured")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
