package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when an upload carries no bytes.
	ErrEmpty = errors.New("empty file")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrExists is returned when a write targets a key that is already taken.
	ErrExists = errors.New("key already exists")
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("not found")
	// ErrBackend is returned for any failure talking to the object store.
	ErrBackend = errors.New("storage backend error")
	// ErrAbortFailed marks a multipart session that could not be cleaned up.
	ErrAbortFailed = errors.New("multipart abort failed")
	// ErrIO is returned for local filesystem failures.
	ErrIO = errors.New("filesystem error")
)

// TooLargeError reports the rejected size together with the limit.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes, limit %d bytes", e.Size, e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }

// BackendError wraps a failed object store call.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// AbortError is returned when a multipart upload failed and the session
// could not be aborted afterwards. It matches both the root cause and
// ErrAbortFailed.
type AbortError struct {
	Key      string
	UploadID string
	Cause    error
	AbortErr error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%v (abort upload %s of %q: %v)", e.Cause, e.UploadID, e.Key, e.AbortErr)
}

func (e *AbortError) Unwrap() []error { return []error{e.Cause, e.AbortErr} }

func (e *AbortError) Is(target error) bool { return target == ErrAbortFailed }

// IOError wraps a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }
