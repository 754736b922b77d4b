package domain

import (
	"context"
	"errors"
	"fmt"
)

// FetchErrorKind classifies holdings fetch failures
type FetchErrorKind string

const (
	// FetchUnauthorized means credentials were rejected; retrying on schedule will not help
	FetchUnauthorized FetchErrorKind = "unauthorized"
	// FetchUnavailable covers network failures, timeouts and broker-side errors
	FetchUnavailable FetchErrorKind = "unavailable"
	// FetchMalformed means the broker answered with something that is not a valid holdings list
	FetchMalformed FetchErrorKind = "malformed"
)

// FetchError is returned by every HoldingsFetcher
type FetchError struct {
	Kind FetchErrorKind
	Op   string
	Err  error
}

// NewFetchError creates a FetchError
func NewFetchError(kind FetchErrorKind, op string, err error) *FetchError {
	return &FetchError{Kind: kind, Op: op, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies narrative generation failures
type GenerationErrorKind string

const (
	GenerationThrottled   GenerationErrorKind = "throttled"
	GenerationUnavailable GenerationErrorKind = "unavailable"
	GenerationMalformed   GenerationErrorKind = "malformed"
)

// GenerationError is returned by the insight generator and explainers
type GenerationError struct {
	Kind GenerationErrorKind
	Op   string
	Err  error
}

// NewGenerationError creates a GenerationError
func NewGenerationError(kind GenerationErrorKind, op string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Op: op, Err: err}
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generate %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("generate %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// StoreErrorKind classifies persistence failures
type StoreErrorKind string

const (
	StoreCorrupt StoreErrorKind = "corrupt"
	StoreIO      StoreErrorKind = "io"
	// StoreConflict is returned when a snapshot is not newer than the latest stored one
	StoreConflict StoreErrorKind = "conflict"
)

// StoreError is returned by repositories
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

// NewStoreError creates a StoreError
func NewStoreError(kind StoreErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err carries an unauthorized fetch failure
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchUnauthorized
}

// IsThrottled reports whether err carries a throttled generation failure
func IsThrottled(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == GenerationThrottled
}

// ErrorKind returns a short classification of err for cycle records.
// Unknown errors are reported as "internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var fe *FetchError
	var ge *GenerationError
	var se *StoreError
	switch {
	case errors.As(err, &fe):
		return string(fe.Kind)
	case errors.As(err, &ge):
		return string(ge.Kind)
	case errors.As(err, &se):
		return string(se.Kind)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "internal"
}
