// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// InputAllowAll seeds every supplied key.
	InputAllowAll InputKind = "allowAll"
	// InputSpecified seeds only declared keys, type-checked.
	InputSpecified InputKind = "specified"

	// OutputAll discloses any existing key.
	OutputAll OutputKind = "all"
	// OutputSpecified discloses only allow-listed keys.
	OutputSpecified OutputKind = "specified"
	// OutputNone discloses nothing.
	OutputNone OutputKind = "none"

	// TypeAny skips the type check.
	TypeAny ValueType = ""
	// TypeString matches JSON strings.
	TypeString ValueType = "string"
	// TypeNumber matches JSON numbers.
	TypeNumber ValueType = "number"
	// TypeBoolean matches true and false.
	TypeBoolean ValueType = "boolean"
	// TypeObject matches JSON objects (not arrays, not null).
	TypeObject ValueType = "object"
	// TypeArray matches JSON arrays.
	TypeArray ValueType = "array"
)

var (
	// ErrInvalidInputKind is the sentinel error wrapped by InvalidInputKindError.
	ErrInvalidInputKind = errors.New("invalid input policy")
	// ErrInvalidOutputKind is the sentinel error wrapped by InvalidOutputKindError.
	ErrInvalidOutputKind = errors.New("invalid output policy")
	// ErrInvalidValueType is the sentinel error wrapped by InvalidValueTypeError.
	ErrInvalidValueType = errors.New("invalid value type")
)

type (
	// InputKind is the globalInputs policy.
	InputKind string
	// OutputKind is the returnable_globals policy.
	OutputKind string
	// ValueType is the declared JSON type of an input key.
	ValueType string

	// InvalidInputKindError is returned when an InputKind is not recognized.
	InvalidInputKindError struct {
		Value string
	}

	// InvalidOutputKindError is returned when an OutputKind is not recognized.
	InvalidOutputKindError struct {
		Value string
	}

	// InvalidValueTypeError is returned when a ValueType is not recognized.
	InvalidValueTypeError struct {
		Key   string
		Value string
	}
)

// Error implements the error interface.
func (e *InvalidInputKindError) Error() string {
	return fmt.Sprintf("policy %q is not supported (supported: allowAll, specified)", e.Value)
}

// Unwrap returns ErrInvalidInputKind so callers can use errors.Is for programmatic detection.
func (e *InvalidInputKindError) Unwrap() error { return ErrInvalidInputKind }

// Error implements the error interface.
func (e *InvalidOutputKindError) Error() string {
	return fmt.Sprintf("policy %q is not supported (supported: all, specified, none)", e.Value)
}

// Unwrap returns ErrInvalidOutputKind so callers can use errors.Is for programmatic detection.
func (e *InvalidOutputKindError) Unwrap() error { return ErrInvalidOutputKind }

// Error implements the error interface.
func (e *InvalidValueTypeError) Error() string {
	return fmt.Sprintf("unknown type %q for input global %q (supported: string, number, boolean, object, array)", e.Value, e.Key)
}

// Unwrap returns ErrInvalidValueType so callers can use errors.Is for programmatic detection.
func (e *InvalidValueTypeError) Unwrap() error { return ErrInvalidValueType }

// ParseInputKind resolves a configured input policy, ignoring case.
// An empty value means allowAll.
func ParseInputKind(s string) (InputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allowall":
		return InputAllowAll, nil
	case "specified":
		return InputSpecified, nil
	default:
		return "", &InvalidInputKindError{Value: s}
	}
}

// IsValid returns whether the InputKind is one of the canonical kinds.
func (k InputKind) IsValid() (bool, []error) {
	switch k {
	case InputAllowAll, InputSpecified:
		return true, nil
	default:
		return false, []error{&InvalidInputKindError{Value: string(k)}}
	}
}

// ParseOutputKind resolves a configured output policy, ignoring case.
// An empty value means none. "any" is rejected along with every other
// unknown value.
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return OutputNone, nil
	case "all":
		return OutputAll, nil
	case "specified":
		return OutputSpecified, nil
	default:
		return "", &InvalidOutputKindError{Value: s}
	}
}

// IsValid returns whether the OutputKind is one of the canonical kinds.
func (k OutputKind) IsValid() (bool, []error) {
	switch k {
	case OutputAll, OutputSpecified, OutputNone:
		return true, nil
	default:
		return false, []error{&InvalidOutputKindError{Value: string(k)}}
	}
}

// ParseValueType resolves a declared input type, ignoring case. An empty
// value means the type is not checked.
func ParseValueType(key, s string) (ValueType, error) {
	t := ValueType(strings.ToLower(strings.TrimSpace(s)))
	if ok, _ := t.IsValid(); !ok {
		return "", &InvalidValueTypeError{Key: key, Value: s}
	}
	return t, nil
}

// IsValid returns whether the ValueType is one of the defined types.
func (t ValueType) IsValid() (bool, []error) {
	switch t {
	case TypeAny, TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true, nil
	default:
		return false, []error{&InvalidValueTypeError{Value: string(t)}}
	}
}

// Matches reports whether v, a decoded JSON value, has this type.
func (t ValueType) Matches(v any) bool {
	return t == TypeAny || TypeOf(v) == t
}

// TypeOf classifies a decoded JSON value for error messages. null and
// non-JSON Go values get the pseudo-types "null" and "unknown", which no
// declared type matches.
func TypeOf(v any) ValueType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	case nil:
		return nullType
	}
	if isNumber(v) {
		return TypeNumber
	}
	return unknownType
}

const (
	nullType    ValueType = "null"
	unknownType ValueType = "unknown"
)

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}
