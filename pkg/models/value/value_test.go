package value_test

import (
	"testing"

	"github.com/pg-sharding/xorder/pkg/models/value"
	"github.com/stretchr/testify/assert"
)

func corpus(t *testing.T) []value.Value {
	arr1, err := value.FromAny([]any{1.0, "a"}, value.DigestCity)
	assert.NoError(t, err)
	arr2, err := value.FromAny([]any{2.0}, value.DigestCity)
	assert.NoError(t, err)
	obj1, err := value.FromAny(map[string]any{"a": 1.0}, value.DigestCity)
	assert.NoError(t, err)

	return []value.Value{
		value.Undefined{},
		value.Null{},
		value.Boolean(false),
		value.Boolean(true),
		value.Number(-1.5),
		value.Number(0),
		value.Number(3),
		value.String(""),
		value.String("a"),
		value.String("ab"),
		value.String("é"),
		arr1,
		arr2,
		obj1,
	}
}

func TestCrossKindOrder(t *testing.T) {
	assert := assert.New(t)

	ordered := []value.Value{
		value.Undefined{},
		value.Null{},
		value.Boolean(true),
		value.Number(-1e300),
		value.String(""),
		value.ArrayDigest{Low: 1},
		value.ObjectDigest{Low: 1},
	}
	for i := 0; i+1 < len(ordered); i++ {
		assert.Equal(-1, value.Compare(ordered[i], ordered[i+1]), "%v < %v", ordered[i], ordered[i+1])
		assert.Equal(1, value.Compare(ordered[i+1], ordered[i]))
	}
}

func TestScalarOrder(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(-1, value.Compare(value.Boolean(false), value.Boolean(true)))
	assert.Equal(0, value.Compare(value.Boolean(true), value.Boolean(true)))
	assert.Equal(-1, value.Compare(value.Number(2), value.Number(10)))
	assert.Equal(1, value.Compare(value.String("b"), value.String("abc")))
	/* code point order: U+00E9 sorts after every ASCII letter */
	assert.Equal(1, value.Compare(value.String("é"), value.String("z")))
}

func TestCompareIsTotalAndTransitive(t *testing.T) {
	vals := corpus(t)

	for _, a := range vals {
		for _, b := range vals {
			ab, ba := value.Compare(a, b), value.Compare(b, a)
			assert.Equal(t, ab, -ba, "antisymmetry %v %v", a, b)
			for _, c := range vals {
				if ab <= 0 && value.Compare(b, c) <= 0 {
					assert.LessOrEqual(t, value.Compare(a, c), 0, "transitivity %v %v %v", a, b, c)
				}
			}
		}
	}
}

func TestDigestValuesOrderEqualButNotEqual(t *testing.T) {
	assert := assert.New(t)

	a, _ := value.FromAny([]any{1.0}, value.DigestCity)
	b, _ := value.FromAny([]any{2.0}, value.DigestCity)
	a2, _ := value.FromAny([]any{1.0}, value.DigestCity)

	assert.Equal(0, value.Compare(a, b))
	assert.False(value.Equal(a, b))
	assert.True(value.Equal(a, a2))
}

func TestEqualTuple(t *testing.T) {
	assert := assert.New(t)

	assert.True(value.EqualTuple(
		[]value.Value{value.Number(1), value.String("x")},
		[]value.Value{value.Number(1), value.String("x")},
	))
	assert.False(value.EqualTuple(
		[]value.Value{value.Number(1)},
		[]value.Value{value.Number(1), value.String("x")},
	))
	assert.False(value.EqualTuple(
		[]value.Value{value.Null{}},
		[]value.Value{value.Undefined{}},
	))
}

func TestFormatTuple(t *testing.T) {
	assert.Equal(t, `(1, "x", null, undefined, true)`, value.FormatTuple([]value.Value{
		value.Number(1), value.String("x"), value.Null{}, value.Undefined{}, value.Boolean(true),
	}))
}
