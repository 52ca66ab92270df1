package hybrid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConstraintViolation is matched by every uniqueness violation.
var ErrConstraintViolation = errors.New("uniqueness constraint violated")

// ConstraintViolationError reports a value held by more than one live path
// of a unique index.
type ConstraintViolationError struct {
	IndexPath string
	Property  string
	Value     string
	Paths     []string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("uniqueness constraint violated at path [%s] for one of the property in %s having value %s: %s",
		e.IndexPath, e.Property, e.Value, strings.Join(e.Paths, ", "))
}

// Is makes errors.Is(err, ErrConstraintViolation) match.
func (e *ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraintViolation
}
