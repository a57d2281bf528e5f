package sheet

import "errors"

var (
	ErrShortRow        = errors.New("row has fewer than 10 columns")
	ErrInvalidDate     = errors.New("invalid date, expected MM/DD/YYYY HH:MM:SS")
	ErrUnknownTimezone = errors.New("unknown timezone")
)
