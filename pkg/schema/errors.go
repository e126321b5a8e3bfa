package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchema indicates a schema file fails validation.
	ErrInvalidSchema = errors.New("schema: invalid schema")

	// ErrUnknownType indicates a lookup for a type the catalog does not hold.
	ErrUnknownType = errors.New("schema: unknown type")

	// ErrUnknownFormat indicates an unsupported document format.
	ErrUnknownFormat = errors.New("schema: unknown format")
)

// SchemaError reports a validation failure for one type (and optionally one
// field) of a schema.
type SchemaError struct {
	Type  string
	Field string
	Msg   string
	Err   error
}

func (e *SchemaError) Error() string {
	where := e.Type
	if e.Field != "" {
		where = e.Type + "." + e.Field
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid schema: %s: %s: %v", where, e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid schema: %s: %s", where, e.Msg)
}

func (e *SchemaError) Is(target error) bool { return target == ErrInvalidSchema }

func (e *SchemaError) Unwrap() error { return e.Err }

// IsInvalidSchema reports whether err is (or wraps) a schema validation
// failure.
func IsInvalidSchema(err error) bool {
	return errors.Is(err, ErrInvalidSchema)
}
