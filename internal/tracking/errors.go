package tracking

import (
	"errors"
	"fmt"

	"github.com/medmentor/backend/internal/models"
)

// ErrUnknownCourse is returned when an operation needs the course structure
// and the catalog does not have it.
var ErrUnknownCourse = errors.New("unknown course")

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransientSyncError is a remote failure absorbed by the offline queue. It is
// logged, never returned to the caller of a write.
type TransientSyncError struct {
	Key string
	Err error
}

func (e *TransientSyncError) Error() string {
	return fmt.Sprintf("sync %s deferred: %v", e.Key, e.Err)
}

func (e *TransientSyncError) Unwrap() error { return e.Err }

// PermanentSyncError reports a queued operation dropped after reaching the
// retry ceiling.
type PermanentSyncError struct {
	Op  models.OfflineOperation
	Err error
}

func (e *PermanentSyncError) Error() string {
	return fmt.Sprintf("sync %s (%s) dropped after %d attempts: %v", e.Op.ID, e.Op.Key, e.Op.RetryCount, e.Err)
}

func (e *PermanentSyncError) Unwrap() error { return e.Err }

// LocalStorageError is a failed local read or write. The write path logs it
// and carries on.
type LocalStorageError struct {
	Op  string
	Key string
	Err error
}

func (e *LocalStorageError) Error() string {
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *LocalStorageError) Unwrap() error { return e.Err }

func required(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field}
	}
	return nil
}
