// Package errors provides a structured error system for the cache subsystem
// with error codes, categories, and context.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeInvalidWeights   ErrorCode = "INVALID_WEIGHTS"

	// Serialization errors
	ErrCodeSerialization   ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION_FAILED"

	// Storage errors
	ErrCodeStorageWrite  ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead   ErrorCode = "STORAGE_READ"
	ErrCodeCorruptBlob   ErrorCode = "CORRUPT_BLOB"
	ErrCodeIndexCorrupt  ErrorCode = "INDEX_CORRUPT"
	ErrCodeChecksumError ErrorCode = "CHECKSUM_MISMATCH"

	// Capacity errors
	ErrCodeCapacityExhausted ErrorCode = "CAPACITY_EXHAUSTED"
	ErrCodeEntryTooLarge     ErrorCode = "ENTRY_TOO_LARGE"

	// Usage errors
	ErrCodeNotObservable ErrorCode = "NOT_OBSERVABLE"
	ErrCodeClosed        ErrorCode = "CACHE_CLOSED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySerialization ErrorCategory = "serialization"
	CategoryStorage       ErrorCategory = "storage"
	CategoryCapacity      ErrorCategory = "capacity"
	CategoryUsage         ErrorCategory = "usage"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Component string        `json:"component,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Key       string        `json:"key,omitempty"`
	Cause     error         `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so errors.Is works across wrapped instances.
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// New creates a new cache error.
func New(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a new cache error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new cache error wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *CacheError {
	err := New(code, message)
	err.Cause = cause
	return err
}

// WithComponent attaches the originating component name.
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation attaches the operation that produced the error.
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithKey attaches the cache key involved.
func (e *CacheError) WithKey(key string) *CacheError {
	e.Key = key
	return e
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_") ||
		strings.HasPrefix(codeStr, "INVALID_WEIGHTS"):
		return CategoryConfiguration
	case strings.HasSuffix(codeStr, "SERIALIZATION_FAILED"):
		return CategorySerialization
	case strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "CORRUPT_") ||
		strings.HasPrefix(codeStr, "INDEX_") || strings.HasPrefix(codeStr, "CHECKSUM_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "CAPACITY_") || strings.HasPrefix(codeStr, "ENTRY_"):
		return CategoryCapacity
	default:
		return CategoryUsage
	}
}

// IsCode reports whether err carries the given cache error code anywhere in
// its chain.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if cacheErr, ok := err.(*CacheError); ok && cacheErr.Code == code {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
