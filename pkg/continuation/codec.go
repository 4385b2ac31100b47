package continuation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pg-sharding/xorder/pkg/models/prange"
	"github.com/pg-sharding/xorder/pkg/models/value"
	"github.com/pg-sharding/xorder/pkg/models/xerror"
)

const (
	FieldCompositeToken = "compositeToken"
	FieldToken          = "token"
	FieldRange          = "range"
	FieldMin            = "min"
	FieldMax            = "max"
	FieldOrderByItems   = "orderByItems"
	FieldResumeValues   = "resumeValues"
	FieldRid            = "rid"
	FieldSkipCount      = "skipCount"
	FieldFilter         = "filter"
)

// Encode maps s to a generic JSON document.
func Encode(s State) (map[string]any, error) {
	if err := Validate(s); err != nil {
		return nil, xerror.Wrap(xerror.XORD_INVALID_STATE, err, "encode continuation")
	}

	doc := map[string]any{
		FieldCompositeToken: encodeTarget(s.TargetContinuation()),
		FieldRid:            s.ResumeRid(),
		FieldSkipCount:      int64(s.Skip()),
	}

	switch x := s.(type) {
	case CurrentState:
		doc[FieldResumeValues] = encodeValues(x.ResumeValues)
	case LegacyState:
		doc[FieldOrderByItems] = encodeValues(x.OrderByItems)
		if x.Filter != nil {
			doc[FieldFilter] = *x.Filter
		} else {
			doc[FieldFilter] = nil
		}
	default:
		panic(fmt.Sprintf("continuation: unexpected state type %T", s))
	}
	return doc, nil
}

func encodeTarget(c prange.Continuation) map[string]any {
	var token any
	if c.Token != "" {
		token = c.Token
	}
	return map[string]any{
		FieldToken: token,
		FieldRange: map[string]any{
			FieldMin: c.Range.Min,
			FieldMax: c.Range.Max,
		},
	}
}

func encodeValues(vs []value.Value) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = value.Marshal(v)
	}
	return out
}

// Marshal encodes s as JSON bytes.
func Marshal(s State) ([]byte, error) {
	doc, err := Encode(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Unmarshal decodes JSON bytes produced by Marshal. Every failure is a
// *xerror.MalformedTokenError.
func Unmarshal(b []byte) (State, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, xerror.NewMalformedToken("", "invalid JSON: %v", err)
	}
	if dec.More() {
		return nil, xerror.NewMalformedToken("", "trailing data after continuation token")
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, xerror.NewMalformedToken("", "continuation token must be a JSON object, got %s", typeName(raw))
	}
	return Decode(doc)
}

// Decode validates doc and rebuilds the state it describes. Every failure
// is a *xerror.MalformedTokenError naming the offending field.
func Decode(doc map[string]any) (State, error) {
	if doc == nil {
		return nil, xerror.NewMalformedToken("", "empty continuation token")
	}

	target, err := decodeTarget(doc)
	if err != nil {
		return nil, err
	}

	rawResume, hasResume := present(doc, FieldResumeValues)
	rawOrderBy, hasOrderBy := present(doc, FieldOrderByItems)
	switch {
	case hasResume && hasOrderBy:
		return nil, xerror.NewMalformedToken(FieldOrderByItems, "must not be present together with %s", FieldResumeValues)
	case !hasResume && !hasOrderBy:
		return nil, xerror.NewMalformedToken(FieldResumeValues, "either %s or %s is required", FieldResumeValues, FieldOrderByItems)
	}

	var keys []value.Value
	if hasResume {
		keys, err = decodeValues(FieldResumeValues, rawResume)
	} else {
		keys, err = decodeValues(FieldOrderByItems, rawOrderBy)
	}
	if err != nil {
		return nil, err
	}

	rid, err := decodeRid(doc)
	if err != nil {
		return nil, err
	}
	skip, err := decodeSkipCount(doc)
	if err != nil {
		return nil, err
	}

	if hasResume {
		return CurrentState{
			Target:       target,
			ResumeValues: keys,
			Rid:          rid,
			SkipCount:    skip,
		}, nil
	}

	filter, err := decodeFilter(doc)
	if err != nil {
		return nil, err
	}
	return LegacyState{
		Target:       target,
		OrderByItems: keys,
		Rid:          rid,
		SkipCount:    skip,
		Filter:       filter,
	}, nil
}

func present(doc map[string]any, field string) (any, bool) {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func decodeTarget(doc map[string]any) (prange.Continuation, error) {
	raw, ok := present(doc, FieldCompositeToken)
	if !ok {
		return prange.Continuation{}, xerror.NewMalformedToken(FieldCompositeToken, "missing")
	}
	ct, ok := raw.(map[string]any)
	if !ok {
		return prange.Continuation{}, xerror.NewMalformedToken(FieldCompositeToken, "must be an object, got %s", typeName(raw))
	}

	tokenField := FieldCompositeToken + "." + FieldToken
	rawToken, ok := ct[FieldToken]
	if !ok {
		return prange.Continuation{}, xerror.NewMalformedToken(tokenField, "missing")
	}
	var token string
	switch t := rawToken.(type) {
	case nil:
	case string:
		token = t
	default:
		return prange.Continuation{}, xerror.NewMalformedToken(tokenField, "must be a string or null, got %s", typeName(rawToken))
	}

	rangeField := FieldCompositeToken + "." + FieldRange
	rawRange, ok := present(ct, FieldRange)
	if !ok {
		return prange.Continuation{}, xerror.NewMalformedToken(rangeField, "missing")
	}
	rm, ok := rawRange.(map[string]any)
	if !ok {
		return prange.Continuation{}, xerror.NewMalformedToken(rangeField, "must be an object, got %s", typeName(rawRange))
	}
	lo, err := stringField(rm, rangeField+"."+FieldMin, FieldMin)
	if err != nil {
		return prange.Continuation{}, err
	}
	hi, err := stringField(rm, rangeField+"."+FieldMax, FieldMax)
	if err != nil {
		return prange.Continuation{}, err
	}

	r := prange.Range{Min: lo, Max: hi}
	if err := r.Validate(); err != nil {
		return prange.Continuation{}, xerror.NewMalformedToken(rangeField, "%v", err)
	}
	return prange.Continuation{Range: r, Token: token}, nil
}

func stringField(m map[string]any, path string, name string) (string, error) {
	raw, ok := m[name]
	if !ok {
		return "", xerror.NewMalformedToken(path, "missing")
	}
	s, ok := raw.(string)
	if !ok {
		return "", xerror.NewMalformedToken(path, "must be a string, got %s", typeName(raw))
	}
	return s, nil
}

func decodeValues(field string, raw any) ([]value.Value, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, xerror.NewMalformedToken(field, "must be an array, got %s", typeName(raw))
	}
	if len(arr) == 0 {
		return nil, xerror.NewMalformedToken(field, "must not be empty")
	}
	out := make([]value.Value, len(arr))
	for i, e := range arr {
		v, err := value.Unmarshal(e)
		if err != nil {
			return nil, xerror.NewMalformedToken(fmt.Sprintf("%s[%d]", field, i), "%v", err)
		}
		out[i] = v
	}
	return out, nil
}

func decodeRid(doc map[string]any) (string, error) {
	raw, ok := present(doc, FieldRid)
	if !ok {
		return "", xerror.NewMalformedToken(FieldRid, "missing")
	}
	rid, ok := raw.(string)
	if !ok {
		return "", xerror.NewMalformedToken(FieldRid, "must be a string, got %s", typeName(raw))
	}
	if rid == "" {
		return "", xerror.NewMalformedToken(FieldRid, "must not be empty")
	}
	return rid, nil
}

func decodeSkipCount(doc map[string]any) (int, error) {
	raw, ok := present(doc, FieldSkipCount)
	if !ok {
		return 0, xerror.NewMalformedToken(FieldSkipCount, "missing")
	}

	var n int64
	switch x := raw.(type) {
	case json.Number:
		v, err := x.Int64()
		if err != nil {
			return 0, xerror.NewMalformedToken(FieldSkipCount, "must be an integer, got %q", x.String())
		}
		n = v
	case int64:
		n = x
	case int:
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, xerror.NewMalformedToken(FieldSkipCount, "must be an integer, got %v", x)
		}
		n = int64(x)
	default:
		return 0, xerror.NewMalformedToken(FieldSkipCount, "must be a number, got %s", typeName(raw))
	}

	if n < 0 {
		return 0, xerror.NewMalformedToken(FieldSkipCount, "must not be negative, got %d", n)
	}
	if n > math.MaxInt32 {
		return 0, xerror.NewMalformedToken(FieldSkipCount, "out of range: %d", n)
	}
	return int(n), nil
}

func decodeFilter(doc map[string]any) (*string, error) {
	raw, ok := doc[FieldFilter]
	if !ok {
		return nil, xerror.NewMalformedToken(FieldFilter, "missing, required with %s", FieldOrderByItems)
	}
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &x, nil
	default:
		return nil, xerror.NewMalformedToken(FieldFilter, "must be a string or null, got %s", typeName(raw))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
