package index

import "github.com/viant/afs"

// Option configures an Index.
type Option func(i *Index)

// WithFS overrides the storage service used to read and write snapshots.
func WithFS(fs afs.Service) Option {
	return func(i *Index) { i.fs = fs }
}

// WithLogf sets a printf-style logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(i *Index) { i.logf = logf }
}
