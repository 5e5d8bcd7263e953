package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown        ErrorCode = "UNKNOWN"
	ErrInternal       ErrorCode = "INTERNAL"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrPermission     ErrorCode = "PERMISSION"
	ErrCancelled      ErrorCode = "CANCELLED"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Provisioning errors
	ErrPreflight         ErrorCode = "PREFLIGHT"
	ErrResolution        ErrorCode = "RESOLUTION"
	ErrDownload          ErrorCode = "DOWNLOAD"
	ErrExtract           ErrorCode = "EXTRACT"
	ErrAssembly          ErrorCode = "ASSEMBLY"
	ErrDependencyInstall ErrorCode = "DEPENDENCY_INSTALL"
	ErrConfigStore       ErrorCode = "CONFIG"
	ErrPackageManager    ErrorCode = "PACKAGE_MANAGER"
	ErrGuestInstall      ErrorCode = "GUEST_INSTALL"
	ErrStageInconsistent ErrorCode = "STAGE_INCONSISTENT"
	ErrSnapshot          ErrorCode = "SNAPSHOT"
	ErrState             ErrorCode = "STATE"
	ErrCommand           ErrorCode = "COMMAND"

	// FileSystem errors
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileWrite     ErrorCode = "FILE_WRITE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate     ErrorCode = "DIR_CREATE"
)

// WrapupError represents a structured error with code and details
type WrapupError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *WrapupError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *WrapupError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *WrapupError) Is(target error) bool {
	var targetErr *WrapupError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new WrapupError with the given code and message
func New(code ErrorCode, message string) *WrapupError {
	return &WrapupError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new WrapupError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *WrapupError {
	return &WrapupError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a WrapupError
func Wrap(err error, code ErrorCode, message string) *WrapupError {
	if err == nil {
		return nil
	}
	return &WrapupError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *WrapupError {
	if err == nil {
		return nil
	}
	return &WrapupError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *WrapupError) WithDetail(key string, value interface{}) *WrapupError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *WrapupError) WithDetails(details map[string]interface{}) *WrapupError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var wrapErr *WrapupError
	if errors.As(err, &wrapErr) {
		return wrapErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a WrapupError
func GetErrorCode(err error) ErrorCode {
	var wrapErr *WrapupError
	if errors.As(err, &wrapErr) {
		return wrapErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a WrapupError
func GetErrorDetails(err error) map[string]interface{} {
	var wrapErr *WrapupError
	if errors.As(err, &wrapErr) {
		return wrapErr.Details
	}
	return nil
}

// InStage tags err with the name of the stage it aborted. Errors without a
// code are wrapped as ErrInternal so the stage detail has somewhere to live.
func InStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var wrapErr *WrapupError
	if errors.As(err, &wrapErr) {
		if _, ok := wrapErr.Details["stage"]; !ok {
			wrapErr.WithDetail("stage", stage)
		}
		return err
	}
	return Wrapf(err, ErrInternal, "stage %s failed", stage).WithDetail("stage", stage)
}

// StageOf returns the stage recorded by InStage, or "" if none
func StageOf(err error) string {
	var wrapErr *WrapupError
	if errors.As(err, &wrapErr) {
		if s, ok := wrapErr.Details["stage"].(string); ok {
			return s
		}
	}
	return ""
}

// Description is the serializable form of an error
type Description struct {
	Code    ErrorCode              `json:"code" yaml:"code"`
	Stage   string                 `json:"stage,omitempty" yaml:"stage,omitempty"`
	Message string                 `json:"message" yaml:"message"`
	Details map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Describe flattens err for JSON or YAML output
func Describe(err error) Description {
	d := Description{Code: GetErrorCode(err), Stage: StageOf(err), Message: err.Error()}
	for k, v := range GetErrorDetails(err) {
		if k == "stage" {
			continue
		}
		if d.Details == nil {
			d.Details = map[string]interface{}{}
		}
		d.Details[k] = v
	}
	return d
}
