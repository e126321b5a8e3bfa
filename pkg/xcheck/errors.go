package xcheck

import (
	"errors"
	"fmt"
)

// Sentinel errors used for simple equality-style checks.
var (
	// ErrConfig is the root of every cross-check configuration failure. All
	// typed configuration errors unwrap to it so callers can detect them with
	// errors.Is(err, ErrConfig).
	ErrConfig = errors.New("invalid cross-check configuration")
)

// ConfigShapeError reports an argument whose variant does not match what a
// strict accessor expected, for example a flag where a string is required.
type ConfigShapeError struct {
	Key  string
	Want string
	Got  string
}

func (e *ConfigShapeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("argument expects %s value, got %s", e.Want, e.Got)
	}
	return fmt.Sprintf("argument %q expects %s value, got %s", e.Key, e.Want, e.Got)
}

func (e *ConfigShapeError) Unwrap() error { return ErrConfig }

// ConfigSyntaxError reports annotation text that is not one of the accepted
// item shapes, or a literal that is not a cooked string.
type ConfigSyntaxError struct {
	// Pos is the 1-based byte offset into the annotation, or 0 when the
	// error was raised on already-parsed items.
	Pos int
	Msg string
}

func (e *ConfigSyntaxError) Error() string {
	if e.Pos > 0 {
		return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
	}
	return e.Msg
}

func (e *ConfigSyntaxError) Unwrap() error { return ErrConfig }

// UnknownFunctionError reports a hasher, filter or hash function name that is
// not present in the registry used to compile a type.
type UnknownFunctionError struct {
	Kind string // "hasher", "filter", "field hash" or "aggregate hash"
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

func (e *UnknownFunctionError) Unwrap() error { return ErrConfig }

// TypeConfigError carries the type (and field, when known) whose
// configuration failed to resolve. A failure in one field invalidates the
// whole type.
type TypeConfigError struct {
	Type  string
	Field string
	Err   error
}

func (e *TypeConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("type %s field %s: %v", e.Type, e.Field, e.Err)
}

func (e *TypeConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a configuration failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}
