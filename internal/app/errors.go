package app

import "errors"

var (
	// ErrInvalidRequest rejects a malformed join/send payload. Not retryable.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrForbidden rejects a creator-only action from a non-creator.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound targets a room that no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrJoinFailed wraps a join that could not complete as a whole.
	ErrJoinFailed = errors.New("join failed")
	// ErrRateLimited terminates a connection that exceeded its quota.
	ErrRateLimited = errors.New("rate limited")
)
