package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	wireType = "type"
	wireLow  = "low"
	wireHigh = "high"

	wireArray  = "array"
	wireObject = "object"
)

// maxExactFloat is the largest integer every float64 below it represents exactly.
const maxExactFloat = 1 << 53

// Marshal converts v into its generic JSON form:
//
//	Undefined -> []          Null    -> null
//	Boolean   -> true/false  Number  -> number
//	String    -> "..."       Array / Object -> {"type": ..., "low": int64, "high": int64}
func Marshal(v Value) any {
	switch x := v.(type) {
	case Undefined:
		return []any{}
	case Null:
		return nil
	case Boolean:
		return bool(x)
	case Number:
		return float64(x)
	case String:
		return string(x)
	case ArrayDigest:
		return digestObject(wireArray, Digest(x))
	case ObjectDigest:
		return digestObject(wireObject, Digest(x))
	default:
		panic(fmt.Sprintf("value: unexpected value type %T", v))
	}
}

func digestObject(typ string, d Digest) map[string]any {
	return map[string]any{
		wireType: typ,
		wireLow:  int64(d.Low),
		wireHigh: int64(d.High),
	}
}

// Unmarshal is the inverse of Marshal. It accepts the generic JSON forms
// produced by encoding/json (with or without UseNumber) and rejects every
// other shape rather than guessing.
func Unmarshal(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	case []any:
		if len(x) != 0 {
			return nil, fmt.Errorf("array resume value must be empty (undefined), got %d elements", len(x))
		}
		return Undefined{}, nil
	case map[string]any:
		return unmarshalDigest(x)
	default:
		n, ok, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unsupported resume value of Go type %T", raw)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("non-finite number resume value")
		}
		return Number(n), nil
	}
}

func unmarshalDigest(m map[string]any) (Value, error) {
	typ, ok := m[wireType]
	if !ok {
		return nil, fmt.Errorf("object resume value is missing %q", wireType)
	}
	s, ok := typ.(string)
	if !ok {
		return nil, fmt.Errorf("object resume value field %q must be a string", wireType)
	}
	switch s {
	case wireArray, wireObject:
	case "binary", "guid":
		return nil, fmt.Errorf("unsupported resume value kind %q", s)
	default:
		return nil, fmt.Errorf("unknown resume value kind %q", s)
	}

	if len(m) != 3 {
		return nil, fmt.Errorf("%s resume value must have exactly the fields type, low, high; got %s", s, fieldList(m))
	}

	low, err := int64Field(m, wireLow)
	if err != nil {
		return nil, err
	}
	high, err := int64Field(m, wireHigh)
	if err != nil {
		return nil, err
	}

	d := Digest{Low: uint64(low), High: uint64(high)}
	if s == wireArray {
		return ArrayDigest(d), nil
	}
	return ObjectDigest(d), nil
}

func int64Field(m map[string]any, name string) (int64, error) {
	raw, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("digest resume value is missing %q", name)
	}
	switch x := raw.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("digest field %q is not an int64: %q", name, x.String())
		}
		return n, nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) >= maxExactFloat {
			return 0, fmt.Errorf("digest field %q is not an exactly representable int64: %v", name, x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("digest field %q must be an int64, got %T", name, raw)
	}
}

func fieldList(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}
