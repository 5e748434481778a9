// ABOUTME: Error taxonomy for registry, installer, and dispatcher failures.
// ABOUTME: Typed errors carry detail and match their sentinel via errors.Is.

package plugins

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks at call sites.
var (
	ErrValidation = errors.New("invalid plugin")
	ErrProtected  = errors.New("plugin is built-in")
	ErrNotFound   = errors.New("plugin not found")
	ErrParse      = errors.New("invalid package descriptor")
	ErrNoTemplate = errors.New("no template plugin available")
	ErrHandler    = errors.New("plugin handler failed")
)

// ValidationError reports a registration payload missing a required field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: missing %s", ErrValidation, e.Field)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ProtectedEntityError reports an attempt to remove a built-in plugin.
type ProtectedEntityError struct {
	ID string
}

func (e *ProtectedEntityError) Error() string {
	return fmt.Sprintf("%v: cannot unregister %q", ErrProtected, e.ID)
}

func (e *ProtectedEntityError) Is(target error) bool { return target == ErrProtected }

// NotFoundError reports an operation on an unknown plugin id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %q", ErrNotFound, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ParseError reports a malformed install descriptor or repository URL.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrParse, e.Input, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NoTemplateError reports an install attempted against an empty catalog.
type NoTemplateError struct{}

func (e *NoTemplateError) Error() string { return ErrNoTemplate.Error() + ": catalog is empty" }

func (e *NoTemplateError) Is(target error) bool { return target == ErrNoTemplate }

// HandlerError wraps a failure raised by a plugin handler during dispatch.
// It is logged and reported, never returned past the dispatcher.
type HandlerError struct {
	PluginID     string
	Capability   string
	InvocationID string
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%v: plugin %q capability %q invocation %q: %v",
		ErrHandler, e.PluginID, e.Capability, e.InvocationID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool { return target == ErrHandler }
