package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary conditions that may be retried.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration.
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that abort the affected
	// engine or instantiation.
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for the runtime's error taxonomy.
var (
	// Graph and engine lifecycle errors
	ErrGraphInvalid   = errors.New("graph definition invalid")
	ErrStartupFailed  = errors.New("engine startup failed")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrEngineStopped  = errors.New("engine stopped")

	// Addon registry errors
	ErrDuplicateRegistration = errors.New("addon already registered")
	ErrUnknownAddon          = errors.New("unknown addon")

	// Routing errors; these are recoverable and resolved locally by the
	// router, surfaced to senders as command results, never as panics.
	ErrNoRoute     = errors.New("no route for command")
	ErrStaleResult = errors.New("result for unknown or resolved command")
	ErrAborted     = errors.New("command aborted by engine teardown")

	// Process lifecycle errors
	ErrShutdownOrder = errors.New("deinit attempted with live apps or engines")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification and the component and
// operation that raised it.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	return false
}

// IsFatal checks if an error is fatal and should abort the affected engine
// or instantiation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrGraphInvalid) ||
		errors.Is(err, ErrStartupFailed) ||
		errors.Is(err, ErrShutdownOrder)
}

// IsInvalid checks if an error is due to invalid input or configuration.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrUnknownAddon)
}

// Classify returns the error class for an error. Routing-level sentinels
// classify as transient: they are handled in-band and never abort anything.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// newClassified creates a new classified error.
// Internal helper; use WrapTransient, WrapFatal, or WrapInvalid instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
