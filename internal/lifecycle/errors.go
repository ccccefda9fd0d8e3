package lifecycle

import (
	"errors"
	"fmt"
)

// errNilHandle is the cause recorded when an engine returns neither a handle
// nor an error.
var errNilHandle = errors.New("engine returned nil handle")

// loadFailureError signals that a native load returned an invalid handle or a
// required component file is missing. Fatal for the request; never retried
// automatically.
type loadFailureError struct {
	identity ModelIdentity
	cause    error
}

func (e loadFailureError) Error() string {
	return fmt.Sprintf("load failed for %s: %v", e.identity, e.cause)
}

func (e loadFailureError) Unwrap() error { return e.cause }

// ErrLoadFailure constructs a load failure for the given identity.
func ErrLoadFailure(id ModelIdentity, cause error) error {
	return loadFailureError{identity: id, cause: cause}
}

// IsLoadFailure reports whether err is a fatal native load failure.
func IsLoadFailure(err error) bool {
	_, ok := err.(loadFailureError)
	return ok
}

// unsupportedOperationError signals a generation request dispatched against a
// handle of the wrong family. Caller error, detected before native dispatch.
type unsupportedOperationError struct {
	requested, have string
}

func (e unsupportedOperationError) Error() string {
	return fmt.Sprintf("operation for family %q not supported by loaded %q model", e.requested, e.have)
}

// ErrUnsupportedOperation constructs an unsupported-operation error.
func ErrUnsupportedOperation(requested, have string) error {
	return unsupportedOperationError{requested: requested, have: have}
}

// IsUnsupportedOperation reports whether err indicates a family mismatch.
func IsUnsupportedOperation(err error) bool {
	_, ok := err.(unsupportedOperationError)
	return ok
}

// generationFailureError carries the engine's diagnostic for a failed native
// call that was not a cancellation.
type generationFailureError struct{ msg string }

func (e generationFailureError) Error() string { return "generation failed: " + e.msg }

// ErrGenerationFailure constructs a generation failure with the engine's
// diagnostic text.
func ErrGenerationFailure(msg string) error { return generationFailureError{msg: msg} }

// IsGenerationFailure reports whether err is a non-cancellation engine failure.
func IsGenerationFailure(err error) bool {
	_, ok := err.(generationFailureError)
	return ok
}

// cancelledError is the distinguished cancellation outcome, never merged with
// generation failures so callers can tell "user aborted" from "engine broke".
type cancelledError struct{ family string }

func (e cancelledError) Error() string { return "generation cancelled: " + e.family }

// ErrCancelled constructs a cancellation outcome for a family.
func ErrCancelled(family string) error { return cancelledError{family: family} }

// IsCancelled reports whether err is the cancellation outcome.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledError)
	return ok
}

// validationError names the violated constraint and the offending value.
// Raised before any native call; never retried.
type validationError struct {
	field      string
	value      any
	constraint string
}

func (e validationError) Error() string {
	return fmt.Sprintf("%s %v %s", e.field, e.value, e.constraint)
}

// ErrValidation constructs a parameter validation error.
func ErrValidation(field string, value any, constraint string) error {
	return validationError{field: field, value: value, constraint: constraint}
}

// IsValidation reports whether err is a parameter validation error.
func IsValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// modelNotFoundError signals a model id absent from the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a missing-model error.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}
