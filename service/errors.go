package service

import "errors"

var (
	// ErrInvalidQuery indicates a client error in a query request.
	ErrInvalidQuery = errors.New("service: invalid query")
	// ErrInvalidUpload indicates an upload without content.
	ErrInvalidUpload = errors.New("service: invalid upload")
)
