package queue

import "errors"

var (
	// ErrAlreadyQueued indicates a non-done job already exists for the item.
	ErrAlreadyQueued = errors.New("item already queued")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAccountExists indicates an account with the same identifier exists.
	ErrAccountExists = errors.New("account already exists")
)
