package fasta

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("fasta: malformed input")

// ParseError reports the line at which input stopped being valid FASTA.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fasta: line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}
