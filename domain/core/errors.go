package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Invalid input errors: the request or the raw records cannot be honored
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmptyConditionSet  = fmt.Errorf("%w: empty condition set", ErrInvalidInput)
	ErrUnknownCondition   = fmt.Errorf("%w: unknown condition", ErrInvalidInput)
	ErrDuplicateCondition = fmt.Errorf("%w: duplicate condition", ErrInvalidInput)
	ErrConflictingRecord  = fmt.Errorf("%w: conflicting duplicate record", ErrInvalidInput)
	ErrMalformedRecord    = fmt.Errorf("%w: malformed record", ErrInvalidInput)
	ErrNegativeMetric     = fmt.Errorf("%w: negative metric", ErrInvalidInput)

	// Domain errors: well-formed data on which the computation is undefined
	ErrDomain           = errors.New("domain error")
	ErrZeroNormProfile  = fmt.Errorf("%w: zero-norm profile", ErrDomain)
	ErrNonFiniteMetric  = fmt.Errorf("%w: non-finite metric", ErrDomain)
	ErrLogOfNonPositive = fmt.Errorf("%w: logarithm of non-positive similarity", ErrDomain)

	// Configuration errors: rejected before any data is touched
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnknownMethod      = fmt.Errorf("%w: unknown dissimilarity method", ErrInvalidConfig)
	ErrExponentOutOfRange = fmt.Errorf("%w: exponent out of range", ErrInvalidConfig)

	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
)

// Error constructors with context
func NewUnknownConditionError(condition string) error {
	return fmt.Errorf("%w: %q is not present in the observation table", ErrUnknownCondition, condition)
}

func NewDuplicateConditionError(condition string) error {
	return fmt.Errorf("%w: %q requested more than once", ErrDuplicateCondition, condition)
}

func NewConflictingRecordError(condition string, site int, a, b float64) error {
	return fmt.Errorf("%w: (%s, site %d) has values %g and %g", ErrConflictingRecord, condition, site, a, b)
}

func NewMalformedRecordError(row int, reason string) error {
	return fmt.Errorf("%w: row %d: %s", ErrMalformedRecord, row, reason)
}

func NewZeroNormError(condition string) error {
	return fmt.Errorf("%w: condition %q has no nonzero escape", ErrZeroNormProfile, condition)
}

func NewNonFiniteMetricError(condition string, site int) error {
	return fmt.Errorf("%w: (%s, site %d)", ErrNonFiniteMetric, condition, site)
}

func NewLogDomainError(a, b string, similarity float64) error {
	return fmt.Errorf("%w: similarity(%s, %s) = %g", ErrLogOfNonPositive, a, b, similarity)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

// Error checking helpers
func IsInvalidInputError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsDomainError(err error) bool {
	return errors.Is(err, ErrDomain)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
