package index

import "errors"

var (
	// ErrCorrupt indicates a snapshot file is malformed.
	ErrCorrupt = errors.New("index: snapshot corrupt")
	// ErrChecksum indicates the snapshot checksum does not match its content.
	ErrChecksum = errors.New("index: snapshot checksum mismatch")
	// ErrUnsupportedVersion indicates a snapshot written by an unknown format version.
	ErrUnsupportedVersion = errors.New("index: unsupported snapshot version")
	// ErrInvalidName indicates a snapshot name that would escape the index directory.
	ErrInvalidName = errors.New("index: invalid snapshot name")
)
