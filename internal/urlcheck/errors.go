package urlcheck

import "errors"

var (
	ErrUnsafeURL     = errors.New("url flagged as unsafe")
	ErrQuotaExceeded = errors.New("url scanner query budget exhausted")
	ErrNoKey         = errors.New("url scanner key is empty")
	ErrLookupFailed  = errors.New("url scanner lookup failed")
)
