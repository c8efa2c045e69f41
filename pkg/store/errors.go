package store

import (
	"errors"
	"fmt"
	"time"
)

// Stable application error codes surfaced to MCP clients in error data.
const (
	CodeDocumentNotFound = "DOCUMENT_NOT_FOUND"
	CodeStorageError     = "STORAGE_ERROR"
	CodeInvalidQuery     = "INVALID_QUERY"
)

// ErrNotFound reports a document that is not in the store.
var ErrNotFound = errors.New("document not found")

type StoreError struct {
	Op        string
	Code      string
	Message   string
	Path      string
	Err       error
	Timestamp time.Time
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		if e.Path != "" {
			return fmt.Sprintf("[store:%s] %s (path: %s): %v", e.Op, e.Message, e.Path, e.Err)
		}
		return fmt.Sprintf("[store:%s] %s: %v", e.Op, e.Message, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("[store:%s] %s (path: %s)", e.Op, e.Message, e.Path)
	}
	return fmt.Sprintf("[store:%s] %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AppCode returns the stable application error code for protocol mapping.
func (e *StoreError) AppCode() string {
	return e.Code
}

func NewStoreError(op, code, message, path string, err error) *StoreError {
	return &StoreError{
		Op:        op,
		Code:      code,
		Message:   message,
		Path:      path,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func notFoundError(op, path string) *StoreError {
	return NewStoreError(op, CodeDocumentNotFound, "document not found", path, ErrNotFound)
}

func storageError(op, message string, err error) *StoreError {
	return NewStoreError(op, CodeStorageError, message, "", err)
}

func invalidQueryError(message string) *StoreError {
	return NewStoreError("search", CodeInvalidQuery, message, "", nil)
}
