package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface representing the value kinds an attribute may
// hold. Only String, Int, Float and Bool implement it.
type Value interface {
	value() // Sealed - only these types implement it

	// String renders the value the way GetString reports it.
	String() string
}

// String is a string attribute value.
type String string

func (String) value() {}

// String implements Value.
func (s String) String() string { return string(s) }

// Int is an integer attribute value.
type Int int64

func (Int) value() {}

// String implements Value.
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a floating point attribute value.
type Float float64

func (Float) value() {}

// String implements Value.
func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// String implements Value.
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// ValueOf converts a plain Go value into a Value.
//
// Accepts string, bool, all integer kinds, float32/float64, json.Number and
// existing Values. A nil input returns (nil, nil) so callers can treat it as
// "remove". Anything else is rejected.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported attribute type: %T", v)
	}
}

// MarshalValue marshals a Value to JSON bytes.
// Uses type-switch dispatch to keep Int and Float distinct on the wire.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes a single JSON scalar into a Value.
// Integers stay Int, numbers with a fraction or exponent become Float.
// JSON null decodes to a nil Value.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	switch raw.(type) {
	case []any, map[string]any:
		return nil, fmt.Errorf("attribute values must be scalars, got %s", string(data))
	}
	return ValueOf(raw)
}
