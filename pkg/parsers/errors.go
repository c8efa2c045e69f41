package parsers

import (
	"fmt"
	"time"
)

const (
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeParseError      = "PARSE_ERROR"
)

// ParserError carries structured context about a failed parse.
type ParserError struct {
	Op        string
	Code      string
	Message   string
	Path      string
	Err       error
	Timestamp time.Time
}

func (e *ParserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsers.%s: %s (path: %s): %v", e.Op, e.Message, e.Path, e.Err)
	}
	return fmt.Sprintf("parsers.%s: %s (path: %s)", e.Op, e.Message, e.Path)
}

func (e *ParserError) Unwrap() error {
	return e.Err
}

// AppCode reports the stable application error code for protocol responses.
func (e *ParserError) AppCode() string {
	return e.Code
}

// NewParserError creates a ParserError with the current timestamp.
func NewParserError(op, code, message, path string, err error) *ParserError {
	return &ParserError{
		Op:        op,
		Code:      code,
		Message:   message,
		Path:      path,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func unsupportedTypeError(path, ext string) *ParserError {
	return NewParserError("parse", CodeUnsupportedType,
		fmt.Sprintf("no parser registered for extension %q", ext), path, nil)
}

func parseError(op, path, message string, err error) *ParserError {
	return NewParserError(op, CodeParseError, message, path, err)
}
