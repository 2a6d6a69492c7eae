package base

import (
	"errors"
)

// Configuration errors, fatal at sink construction
var (
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrMalformedEndpoint    = errors.New("malformed endpoint")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ErrNotFlushed is returned when flushing or closing could not finish in time
var ErrNotFlushed = errors.New("not fully flushed")
