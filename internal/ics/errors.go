package ics

import "errors"

// Sentinel kinds for calendar errors.
var (
	ErrEmptyRule    = errors.New("empty recurrence rule")
	ErrInvalidRule  = errors.New("invalid recurrence rule")
	ErrMissingStart = errors.New("event has no usable DTSTART")
	ErrInvalidEnd   = errors.New("event has no usable DTEND")
	ErrEmptyExDate  = errors.New("empty exception date")
	ErrEmptyBody    = errors.New("empty calendar body")
)
