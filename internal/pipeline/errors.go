package pipeline

import "errors"

var ErrNoOutputDir = errors.New("output directory does not exist")
