// Package laminarkerr defines the error taxonomy shared by every component:
// Transient, Malformed, Policy, and Fatal, per the error handling design.
package laminarkerr

import "errors"

// Class is one of the four error categories the rest of the system branches on.
type Class int

const (
	// Transient covers I/O errors, LLM timeouts, and database-lock backoff.
	// The caller should retry later; nothing is logged as a failure of the data.
	Transient Class = iota
	// Malformed covers schema violations in agent (LLM) output.
	Malformed
	// Policy covers admission rejection, quality-gate rejection, and self-reference drops.
	Policy
	// Fatal covers migration failure and store corruption. The server tears down.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	case Policy:
		return "policy"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Class and a component tag for logging.
type Error struct {
	Class     Class
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Component + ": " + e.Class.String()
	}
	return e.Component + ": " + e.Class.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(class Class, component string, err error) *Error {
	return &Error{Class: class, Component: component, Err: err}
}

// Is reports whether err carries the given Class.
func Is(err error, class Class) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// ClassOf returns the Class of err, defaulting to Fatal for unclassified errors
// reaching a boundary that must always err on the side of tearing down.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Fatal
}
