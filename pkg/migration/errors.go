package migration

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Standard migration errors
var (
	// ErrProviderNotFound is returned when the requested provider has no
	// registered plugin.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrConnectionNotConfigured is returned when the resolver found no
	// usable connection descriptor.
	ErrConnectionNotConfigured = errors.New("connection not configured")

	// ErrPluginLoadFailure marks a plugin that failed to load. Load failures
	// are non-fatal: the plugin is excluded and the rest register normally.
	ErrPluginLoadFailure = errors.New("plugin load failure")

	// ErrTransient classifies failures worth retrying (timeouts, transient
	// connectivity).
	ErrTransient = errors.New("transient operation failure")

	// ErrPermanent classifies failures that retrying cannot fix (malformed
	// requests, validation errors).
	ErrPermanent = errors.New("permanent operation failure")

	// ErrBackupFailed aborts a migration attempt before any migration runs.
	ErrBackupFailed = errors.New("backup failed")

	// ErrDuplicateMigrationID is returned when a plugin allocates an id that
	// collides with an existing migration.
	ErrDuplicateMigrationID = errors.New("duplicate migration id")
)

// OperationError wraps provider-specific errors with uniform context.
type OperationError struct {
	Provider  providertypes.ProviderType
	Operation string
	Cause     error
	Transient bool
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Provider, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Is matches the transient/permanent class sentinels as well as the cause.
func (e *OperationError) Is(target error) bool {
	if errors.Is(target, ErrTransient) {
		return e.Transient
	}
	if errors.Is(target, ErrPermanent) {
		return !e.Transient
	}
	return errors.Is(e.Cause, target)
}

// NewTransientError wraps a retryable failure.
func NewTransientError(provider providertypes.ProviderType, operation string, cause error) *OperationError {
	return &OperationError{Provider: provider, Operation: operation, Cause: cause, Transient: true}
}

// NewPermanentError wraps a failure that retrying cannot fix.
func NewPermanentError(provider providertypes.ProviderType, operation string, cause error) *OperationError {
	return &OperationError{Provider: provider, Operation: operation, Cause: cause, Transient: false}
}

// WrapError wraps an error with provider context, classifying it on the way.
// Already-wrapped errors are returned as-is.
func WrapError(provider providertypes.ProviderType, operation string, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}

	return &OperationError{
		Provider:  provider,
		Operation: operation,
		Cause:     err,
		Transient: IsTransient(err),
	}
}

// ErrorClass is the retry classification of a failure.
type ErrorClass int

const (
	// Permanent failures are deterministic; retrying is wasted work.
	Permanent ErrorClass = iota
	// Transient failures may succeed on a later attempt.
	Transient
)

// Classify buckets an error for the retry policy.
func Classify(err error) ErrorClass {
	if IsTransient(err) {
		return Transient
	}
	return Permanent
}

// IsTransient reports whether an error is worth retrying. Timeouts and
// transient connectivity faults qualify; validation and contract violations
// do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrDuplicateMigrationID) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// PluginLoadError records why a single plugin module was excluded from the
// registry.
type PluginLoadError struct {
	Path   string
	Reason error
}

// Error implements the error interface.
func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *PluginLoadError) Unwrap() error {
	return e.Reason
}

// Is matches ErrPluginLoadFailure.
func (e *PluginLoadError) Is(target error) bool {
	return errors.Is(target, ErrPluginLoadFailure)
}

// NewPluginLoadError creates a new PluginLoadError.
func NewPluginLoadError(path string, reason error) *PluginLoadError {
	return &PluginLoadError{Path: path, Reason: reason}
}
