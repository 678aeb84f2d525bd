package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent modification detected on save.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrLocked indicates another writer holds the resource lock.
	ErrLocked = errors.New("resource locked by another writer")
)
