package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no reader recognises a file.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrNoFieldsFound is returned when a file parses but yields no usable field.
	ErrNoFieldsFound = errors.New("no fields found")
	// ErrAliasCycle is returned when alias resolution loops.
	ErrAliasCycle = errors.New("alias cycle")
)

// LayerNotDefinedError is returned for an unknown layer or alias.
type LayerNotDefinedError struct {
	Name string
}

func (e *LayerNotDefinedError) Error() string {
	return fmt.Sprintf("unknown layer '%s'", e.Name)
}

// StyleNotDefinedError is returned for an unknown style.
type StyleNotDefinedError struct {
	Name string
}

func (e *StyleNotDefinedError) Error() string {
	return fmt.Sprintf("unknown style '%s'", e.Name)
}

// FieldNotFoundError is returned when no field matches the requested
// dimensions. Available lists every valid combination of the layer.
type FieldNotFoundError struct {
	Layer     string
	Requested FieldKey
	Available []FieldKey
}

func (e *FieldNotFoundError) Error() string {
	combos := make([]string, len(e.Available))
	for i, k := range e.Available {
		combos[i] = k.String()
	}
	return fmt.Sprintf("layer '%s' has no field for %s; available: %s",
		e.Layer, e.Requested, strings.Join(combos, ", "))
}

// InvalidDimensionError is returned when a dimension value cannot be parsed.
type InvalidDimensionError struct {
	Dimension string
	Value     string
	Err       error
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid %s value '%s': %v", e.Dimension, e.Value, e.Err)
}

func (e *InvalidDimensionError) Unwrap() error { return e.Err }

// TitleConflictError is returned when two fields of the same layer disagree on
// the layer title. It aborts the scan.
type TitleConflictError struct {
	Layer  string
	Stored string
	Got    string
}

func (e *TitleConflictError) Error() string {
	return fmt.Sprintf("layer '%s': title '%s' conflicts with '%s'", e.Layer, e.Got, e.Stored)
}
