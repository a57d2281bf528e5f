package config

import "errors"

// Sentinel kinds for configuration errors. Callers receive them wrapped in
// an apperr.Error of kind config.
var (
	ErrEmptyPath         = errors.New("path is empty")
	ErrMissingField      = errors.New("missing required field")
	ErrMissingCategory   = errors.New("missing required category")
	ErrDuplicateCategory = errors.New("duplicate category")
	ErrInvalidStart      = errors.New("invalid start date")
	ErrInvalidSlug       = errors.New("invalid slug")
	ErrInvalidCategories = errors.New("categories must be a list of strings")
	ErrUnknownCategory   = errors.New("unknown category")
)
