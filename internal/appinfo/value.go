package appinfo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the value types a property can carry.
// Only String and Int implement it.
type Value interface {
	propertyValue()
}

// String is a textual property value.
type String string

func (String) propertyValue() {}

// Int is an integer property value.
type Int int64

func (Int) propertyValue() {}

// ToInt converts a value to an integer. Numeric strings are parsed;
// anything else, including nil, converts to 0.
func ToInt(v Value) int64 {
	switch val := v.(type) {
	case Int:
		return int64(val)
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// ToString converts a value to its textual form. nil converts to "".
func ToString(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}

// FromAny converts a decoded YAML or JSON scalar into a Value.
// Booleans become 0/1 and integral floats become Int.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case bool:
		if val {
			return Int(1), nil
		}
		return Int(0), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("non-integral number %v", val)
		}
		return Int(int64(val)), nil
	case nil:
		return nil, fmt.Errorf("null property value")
	default:
		return nil, fmt.Errorf("unsupported property value type %T", v)
	}
}

// PropertyMapFromAny builds a PropertyMap from property-name keyed input,
// as decoded from YAML fixtures or CLI seed files.
func PropertyMapFromAny(in map[string]any) (PropertyMap, error) {
	out := make(PropertyMap, len(in))
	for name, raw := range in {
		p, err := ParseProperty(name)
		if err != nil {
			return nil, err
		}
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		out[p] = v
	}
	return out, nil
}
