package results

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound returned when the query was executed but nothing matched
	ErrNotFound = errors.New("no matching data")
	// ErrMultipleGeometry returned when more than one column carries geometry values
	ErrMultipleGeometry = errors.New("more than one geometry column")
	// ErrBooleanResult returned on attempt to make a table from an ASK response
	ErrBooleanResult = errors.New("boolean result can't be converted to table")
	// ErrNotBoolean returned on attempt to read a boolean from a SELECT response
	ErrNotBoolean = errors.New("response has no boolean result")
)

// ExecutionError is an error reported by the endpoint itself instead of a result set
type ExecutionError struct {
	Message string
	Code    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s, triplestore error code: %s", e.Message, e.Code)
}

// UnsupportedTypeError returned for a binding with datatype not known to the normalizer
type UnsupportedTypeError struct {
	Variable string
	Datatype string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported datatype %q for variable %q", e.Datatype, e.Variable)
}

// ConversionError returned when a value can't be converted to its declared datatype
type ConversionError struct {
	Variable string
	Row      int
	Datatype string
	Value    string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("can't convert %q (%s) in row %d of %q: %v", e.Value, e.Datatype, e.Row, e.Variable, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
