package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDataIntegrity marks violations of a reshape precondition.
var ErrDataIntegrity = errors.New("data integrity violation")

// UnknownColumnError is returned when an operation names a column the table lacks.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// AmbiguousPivotError reports more than one source row for a single
// (index, pivot) cell.
type AmbiguousPivotError struct {
	Index []Value
	Pivot Value
}

func (e *AmbiguousPivotError) Error() string {
	parts := make([]string, len(e.Index))
	for i, v := range e.Index {
		parts[i] = v.String()
	}
	return fmt.Sprintf("ambiguous pivot: multiple rows for index (%s) and column %q", strings.Join(parts, ", "), e.Pivot.String())
}

// Is lets errors.Is(err, ErrDataIntegrity) match.
func (e *AmbiguousPivotError) Is(target error) bool { return target == ErrDataIntegrity }
