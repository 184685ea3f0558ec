package dataset

import (
	"errors"
	"fmt"
)

// ErrMissingColumn indicates a required key column is absent from a source.
var ErrMissingColumn = errors.New("missing required column")

// LoadError wraps any failure to read or parse a dataset source. Load errors
// are fatal at startup.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "load error"
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
