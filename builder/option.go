package builder

import "time"

// Option configures a Builder.
type Option func(b *Builder)

// WithBatchSize sets how many records are persisted per store call.
func WithBatchSize(size int) Option {
	return func(b *Builder) { b.batchSize = size }
}

// WithTimeout fails builds that run longer than timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Builder) { b.timeout = timeout }
}

// WithLockPath overrides the cross-process build lock file.
func WithLockPath(path string) Option {
	return func(b *Builder) { b.lockPath = path }
}

// WithLogf sets a printf-style logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(b *Builder) { b.logf = logf }
}

// WithObserver registers a callback invoked after every build.
func WithObserver(fn func(outcome *Outcome)) Option {
	return func(b *Builder) { b.observe = fn }
}
