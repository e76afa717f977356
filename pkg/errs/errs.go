// Package errs defines the error taxonomy shared by the remote data-access
// layer and the messaging-platform bridge. All typed errors wrap a sentinel
// so callers can branch with errors.Is or the Is* helpers without depending
// on concrete types.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrRemote        = errors.New("remote backend error")
	ErrConfiguration = errors.New("configuration error")
	ErrUpload        = errors.New("upload failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// NotFoundError reports that an id-scoped read or update matched zero rows.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError for the given resource and id.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ConflictError reports a uniqueness violation on an insert or upsert.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

// NewConflictError creates a ConflictError.
func NewConflictError(resource, key, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key, Reason: reason}
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %q conflicts", e.Resource, e.Key)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// RemoteError carries a failure reported by a remote backend unchanged.
type RemoteError struct {
	Status  int    // HTTP status or platform error code
	Code    string // backend-specific error code, if any
	Message string
}

// NewRemoteError creates a RemoteError.
func NewRemoteError(status int, code, message string) *RemoteError {
	return &RemoteError{Status: status, Code: code, Message: message}
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error: status %d", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// IsRemote reports whether err is a backend-reported failure.
func IsRemote(err error) bool { return errors.Is(err, ErrRemote) }

// ConfigurationError reports a missing or malformed credential or setting
// detected at construction time.
type ConfigurationError struct {
	Setting string
	Reason  string
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(setting, reason string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: is required", e.Setting)
	}
	return fmt.Sprintf("%s: %s", e.Setting, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// IsConfiguration reports whether err is a configuration problem.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// UploadError reports a failed object-storage write.
type UploadError struct {
	Bucket string
	Path   string
	Err    error
}

// NewUploadError creates an UploadError wrapping the underlying cause.
func NewUploadError(bucket, path string, err error) *UploadError {
	return &UploadError{Bucket: bucket, Path: path, Err: err}
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return ErrUpload }

// Cause returns the underlying storage failure.
func (e *UploadError) Cause() error { return e.Err }

// IsUpload reports whether err is a storage upload failure.
func IsUpload(err error) bool { return errors.Is(err, ErrUpload) }

// RequiredError creates a validation error for a missing required field.
func RequiredError(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// ValidationError reports invalid caller-supplied input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// IsValidation reports whether err is a caller input problem.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }
