package cnst

import "errors"

var (
	// ErrUnsupportedRelay is returned for an unknown relay type
	ErrUnsupportedRelay = errors.New("unsupported relay type")
	// ErrUnsupportedDatabase is returned for an unknown database type
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)
