package snapshot

import "fmt"

// TransportError means the query endpoint did not answer or answered with a non-success status.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error (%s, status %d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error (%s): %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError means a response is missing a field or nests data in an unexpected shape.
type SchemaError struct {
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %v", e.Err)
	}
	return fmt.Sprintf("schema error (%s): %v", e.Field, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// CoercionError means a numeric field could not be parsed.
type CoercionError struct {
	Field string
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }
