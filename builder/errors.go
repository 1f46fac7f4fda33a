package builder

import "errors"

var (
	// ErrBusy indicates the worker already holds a pending build.
	ErrBusy = errors.New("builder: build already queued")
	// ErrClosed indicates the worker no longer accepts builds.
	ErrClosed = errors.New("builder: worker closed")
)
