package engine

import (
	"errors"
	"fmt"
)

// Kind classifies every error a generation request can surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindInputTooLong
	KindModelLoadFailed
	KindContextInitFailed
	KindEmptyOrInvalidInput
	KindSchemaValidationFailed
	KindInterrupted
	KindOutOfMemory
	KindBackendUnavailable
	KindDecodeFailed
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindInputTooLong:           "input_too_long",
	KindModelLoadFailed:        "model_load_failed",
	KindContextInitFailed:      "context_init_failed",
	KindEmptyOrInvalidInput:    "empty_or_invalid_input",
	KindSchemaValidationFailed: "schema_validation_failed",
	KindInterrupted:            "interrupted",
	KindOutOfMemory:            "out_of_memory",
	KindBackendUnavailable:     "backend_unavailable",
	KindDecodeFailed:           "decode_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned across the engine boundary.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// ErrInputTooLong builds an InputTooLong error for the given sizes.
func ErrInputTooLong(need, ceiling int) error {
	return newError(KindInputTooLong, fmt.Sprintf("text is too long for generation: needs %d tokens, ceiling is %d", need, ceiling), nil)
}

// ErrEmptyInput reports an empty prompt or grammar.
func ErrEmptyInput(what string) error {
	return newError(KindEmptyOrInvalidInput, what+" is empty or too short", nil)
}

// ErrInvalidInput reports a caller argument the engine cannot use.
func ErrInvalidInput(msg string, err error) error {
	return newError(KindEmptyOrInvalidInput, msg, err)
}

// ErrSchemaValidation wraps a decode failure against the step schema.
func ErrSchemaValidation(msg string, err error) error {
	return newError(KindSchemaValidationFailed, msg, err)
}

// ErrBackendUnavailable wraps a transport or availability failure.
func ErrBackendUnavailable(msg string, err error) error {
	return newError(KindBackendUnavailable, msg, err)
}

// ErrInterrupted wraps a context error that ended a request before or
// between generation steps.
func ErrInterrupted(err error) error {
	return newError(KindInterrupted, "generation interrupted", err)
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsInputTooLong reports whether err is an InputTooLong error.
func IsInputTooLong(err error) bool { return KindOf(err) == KindInputTooLong }

// IsInterrupted reports whether err is a cancellation by the caller.
func IsInterrupted(err error) bool { return KindOf(err) == KindInterrupted }

// IsOutOfMemory reports whether err is a memory-pressure cancellation.
func IsOutOfMemory(err error) bool { return KindOf(err) == KindOutOfMemory }

// IsSchemaValidation reports whether err is a schema decode failure.
func IsSchemaValidation(err error) bool { return KindOf(err) == KindSchemaValidationFailed }

// IsRetryable reports whether the orchestrator may recover from err by
// trying another prompt variant.
func IsRetryable(err error) bool { return KindOf(err) == KindSchemaValidationFailed }
