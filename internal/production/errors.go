package production

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

// Validation kinds. Every rejected mutation wraps exactly one of these.
var (
	// ErrOutOfRange indicates a quantity outside its allowed bounds.
	ErrOutOfRange = errors.New("quantity out of range")
	// ErrInsufficientQuantity indicates a transfer or shift asking for more units than available.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrQualityOverflow indicates grade counters exceeding the completed quantity.
	ErrQualityOverflow = errors.New("quality grades exceed completed quantity")
	// ErrShiftMismatch indicates grade shift destinations not summing to the source amount.
	ErrShiftMismatch = errors.New("grade shift mismatch")
	// ErrIllegalFloorOperation indicates an operation not permitted on the floor.
	ErrIllegalFloorOperation = errors.New("illegal floor operation")
)

// ErrInvalidInput indicates request fields failing validation.
var ErrInvalidInput = errors.New("invalid input")

// ConstraintError names the constraint a rejected mutation violated.
type ConstraintError struct {
	Kind   error
	Floor  floors.Floor
	Field  string
	Detail string
}

func (e *ConstraintError) Error() string {
	if e.Floor != "" {
		return fmt.Sprintf("%s: %s at %s: %s", e.Kind, e.Field, e.Floor, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
}

// Unwrap exposes the kind for errors.Is.
func (e *ConstraintError) Unwrap() error {
	return e.Kind
}

func violation(kind error, floor floors.Floor, field, format string, args ...any) error {
	return &ConstraintError{Kind: kind, Floor: floor, Field: field, Detail: fmt.Sprintf(format, args...)}
}
