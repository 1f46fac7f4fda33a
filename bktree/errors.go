package bktree

import "errors"

// ErrCorrupt indicates an encoded tree is malformed or inconsistent.
var ErrCorrupt = errors.New("bktree: encoded tree corrupt")
