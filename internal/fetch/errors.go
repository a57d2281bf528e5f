package fetch

import "errors"

// Sentinel kinds for fetch errors.
var (
	ErrEmptyURL = errors.New("source URL is empty")
	ErrStatus   = errors.New("unexpected response status")
)
