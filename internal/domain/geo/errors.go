package geo

import (
	"errors"
	"fmt"
)

// Sentinel kinds for coordinate errors.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// InvalidCoordinateError names the component that failed to parse and the
// literal that was rejected.
type InvalidCoordinateError struct {
	Field string // "latitude" or "longitude"
	Value string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: %s %q is not a finite number", e.Field, e.Value)
}

// Is reports ErrInvalidCoordinate so callers can match on the sentinel.
func (e *InvalidCoordinateError) Is(target error) bool {
	return target == ErrInvalidCoordinate
}
