package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidJob indicates a stored job row that cannot be decoded.
	ErrInvalidJob = errors.New("store: invalid job")
	// ErrUnsupportedDriver indicates a database driver without a known dialect.
	ErrUnsupportedDriver = errors.New("store: unsupported driver")
)
