package pipeline

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for reporting and recovery.
type ErrorClass string

const (
	// ErrorClassResolution indicates an importer or processor could not be
	// found. It is per-asset and never aborts an operation.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassCommand indicates an edit command failed to execute or undo.
	// The command is not recorded in history.
	ErrorClassCommand ErrorClass = "command"

	// ErrorClassBuild indicates the build finished unsuccessfully.
	ErrorClassBuild ErrorClass = "build"

	// ErrorClassProcess indicates the build process could not be started,
	// crashed, was terminated, or was cancelled.
	ErrorClassProcess ErrorClass = "process"

	// ErrorClassValidation indicates invalid input (manifests, config, paths).
	ErrorClassValidation ErrorClass = "validation"
)

// Error is a classified error with context.
type Error struct {
	Class     ErrorClass `json:"class"`
	Message   string     `json:"message"`
	Code      string     `json:"code,omitempty"`
	Item      string     `json:"item,omitempty"`
	Operation string     `json:"operation,omitempty"`
	Err       error      `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Item != "" && e.Operation != "":
		msg += fmt.Sprintf(" (item=%s, operation=%s)", e.Item, e.Operation)
	case e.Item != "":
		msg += fmt.Sprintf(" (item=%s)", e.Item)
	case e.Operation != "":
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on class and code so sentinels can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewError creates a classified error.
func NewError(class ErrorClass, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// WithItem adds item context to an error.
func (e *Error) WithItem(item string) *Error {
	e.Item = item
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// ClassOf returns the class of the first classified error in the chain.
func ClassOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsClass reports whether err carries the given class.
func IsClass(err error, class ErrorClass) bool {
	c, ok := ClassOf(err)
	return ok && c == class
}

// Error codes.
const (
	ErrCodeBuildInProgress = "BUILD_IN_PROGRESS"
	ErrCodeNotRunning      = "NOT_RUNNING"
	ErrCodeItemNotFound    = "ITEM_NOT_FOUND"
	ErrCodeDuplicateItem   = "DUPLICATE_ITEM"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
)

// Sentinels for errors.Is comparisons.
var (
	ErrBuildInProgress = &Error{Class: ErrorClassProcess, Code: ErrCodeBuildInProgress, Message: "a build is already running"}
	ErrNotRunning      = &Error{Class: ErrorClassProcess, Code: ErrCodeNotRunning, Message: "no build is running"}
	ErrItemNotFound    = &Error{Class: ErrorClassCommand, Code: ErrCodeItemNotFound, Message: "content item not found"}
	ErrDuplicateItem   = &Error{Class: ErrorClassCommand, Code: ErrCodeDuplicateItem, Message: "content item already in project"}
)
