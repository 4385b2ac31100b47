package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
)

type DigestFunction int

/* Pre-defined digest functions */
const (
	DigestCity   = DigestFunction(0)
	DigestMurmur = DigestFunction(1)
)

const (
	arrayPrefix  = 'a'
	objectPrefix = 'o'
)

// DigestFunctionByName maps a configuration name to a DigestFunction.
func DigestFunctionByName(name string) (DigestFunction, error) {
	switch name {
	case "city", "":
		return DigestCity, nil
	case "murmur":
		return DigestMurmur, nil
	default:
		return 0, fmt.Errorf("unknown digest function: %s", name)
	}
}

func (f DigestFunction) String() string {
	switch f {
	case DigestCity:
		return "city"
	case DigestMurmur:
		return "murmur"
	}
	return ""
}

// Sum hashes b into a 128-bit digest.
func (f DigestFunction) Sum(b []byte) Digest {
	switch f {
	case DigestMurmur:
		h1, h2 := murmur3.Sum128(b)
		return Digest{Low: h1, High: h2}
	default:
		h := city.Hash128(b)
		return Digest{Low: h.Low, High: h.High}
	}
}

// FromAny converts a generic JSON value (as produced by encoding/json into
// an interface{}) into a Value. Arrays and objects are digested with f.
func FromAny(v any, f DigestFunction) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	case []any, map[string]any:
		return f.DigestOf(x)
	default:
		n, ok, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if ok {
			return Number(n), nil
		}
		return nil, fmt.Errorf("value: unsupported Go type %T", v)
	}
}

// DigestOf digests an array ([]any) or object (map[string]any) into the
// matching Value. The canonical encoding sorts object keys and normalizes
// numbers, so equal JSON documents always share a digest.
func (f DigestFunction) DigestOf(v any) (Value, error) {
	var buf bytes.Buffer
	switch v.(type) {
	case []any:
		buf.WriteByte(arrayPrefix)
	case map[string]any:
		buf.WriteByte(objectPrefix)
	default:
		return nil, fmt.Errorf("value: cannot digest %T", v)
	}
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}

	d := f.Sum(buf.Bytes())
	if _, ok := v.([]any); ok {
		return ArrayDigest(d), nil
	}
	return ObjectDigest(d), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		n, ok, err := toFloat(v)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("value: cannot encode %T", v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("value: non-finite number %v", n)
		}
		buf.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
	}
	return nil
}

func toFloat(v any) (float64, bool, error) {
	switch x := v.(type) {
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("value: bad number %q: %w", x.String(), err)
		}
		return f, true, nil
	}
	return 0, false, nil
}
