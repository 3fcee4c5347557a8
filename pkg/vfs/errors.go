package vfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code tags the kind of failure behind an Error, per the error taxonomy.
type Code string

const (
	CodeNotFound              Code = "not_found"
	CodeAlreadyExists         Code = "already_exists"
	CodeNotADirectory         Code = "not_a_directory"
	CodeNotAFile              Code = "not_a_file"
	CodeNotEmptyDirectory     Code = "not_empty_directory"
	CodeRecursiveNotSpecified Code = "recursive_not_specified"
	CodePermissionDenied      Code = "permission_denied"
	CodeNotImplemented        Code = "not_implemented"
	CodeIOError               Code = "io_error"
	CodeCancelled             Code = "cancelled"
	CodeUnsupportedEntity     Code = "unsupported_entity"
)

// Error is the structured exception every FileSystem operation raises.
type Error struct {
	Code    Code
	Path    *Path
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Path != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Path)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds a new tagged error, attaching a stack trace.
func NewError(code Code, path *Path, message string) error {
	return errors.WithStack(&Error{Code: code, Path: path, Message: message})
}

// WrapError tags an underlying error (e.g. an OS error) with a Code,
// attaching a stack trace at the call site.
func WrapError(code Code, path *Path, cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Code: code, Path: path, Cause: cause})
}

// CodeOf extracts the Code from err, walking the cause chain. Returns
// CodeIOError for unrecognized errors and "" if err is nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Code
	}
	return CodeIOError
}

// Is reports whether err (or a wrapped cause) carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func pathPtr(p Path) *Path {
	return &p
}
