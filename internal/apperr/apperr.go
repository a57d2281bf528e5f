// Package apperr carries the run-level error taxonomy. Helpers return these
// wrapped errors; only the command layer decides what a failed run means.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies why a run failed.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindConfig      Kind = "config"
	KindNetwork     Kind = "network"
	KindParse       Kind = "parse"
	KindDataQuality Kind = "data_quality"
)

// Error is a failure of one operation, tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Config(op string, err error) error      { return wrap(KindConfig, op, err) }
func Network(op string, err error) error     { return wrap(KindNetwork, op, err) }
func Parse(op string, err error) error       { return wrap(KindParse, op, err) }
func DataQuality(op string, err error) error { return wrap(KindDataQuality, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
