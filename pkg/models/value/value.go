// Package value implements the typed order-by values the merge engine sorts
// on and ships inside continuation tokens.
//
// Value is a closed union. Scalars carry their literal payload. Arrays and
// objects are represented by a 128-bit digest of their canonical encoding:
// the digest supports equality only and never participates in ordering.
package value

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

// Kinds are declared in their cross-kind sort order.
const (
	KindUndefined = Kind(iota)
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one of Undefined, Null, Boolean, Number, String, ArrayDigest
// or ObjectDigest. No other implementations exist.
type Value interface {
	Kind() Kind
	String() string

	sealed()
}

// Digest is a 128-bit hash split into two halves.
type Digest struct {
	Low  uint64
	High uint64
}

func (d Digest) String() string {
	return fmt.Sprintf("%016x%016x", d.High, d.Low)
}

type (
	Undefined    struct{}
	Null         struct{}
	Boolean      bool
	Number       float64
	String       string
	ArrayDigest  Digest
	ObjectDigest Digest
)

var (
	_ Value = Undefined{}
	_ Value = Null{}
	_ Value = Boolean(false)
	_ Value = Number(0)
	_ Value = String("")
	_ Value = ArrayDigest{}
	_ Value = ObjectDigest{}
)

func (Undefined) Kind() Kind    { return KindUndefined }
func (Null) Kind() Kind         { return KindNull }
func (Boolean) Kind() Kind      { return KindBoolean }
func (Number) Kind() Kind       { return KindNumber }
func (String) Kind() Kind       { return KindString }
func (ArrayDigest) Kind() Kind  { return KindArray }
func (ObjectDigest) Kind() Kind { return KindObject }

func (Undefined) sealed()    {}
func (Null) sealed()         {}
func (Boolean) sealed()      {}
func (Number) sealed()       {}
func (String) sealed()       {}
func (ArrayDigest) sealed()  {}
func (ObjectDigest) sealed() {}

func (Undefined) String() string { return "undefined" }
func (Null) String() string      { return "null" }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (n Number) String() string  { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (s String) String() string  { return strconv.Quote(string(s)) }
func (a ArrayDigest) String() string {
	return "array#" + Digest(a).String()
}
func (o ObjectDigest) String() string {
	return "object#" + Digest(o).String()
}

// Compare returns -1, 0 or +1. Values of different kinds are ordered by
// kind. Two arrays (or two objects) always compare equal here; use Equal to
// tell them apart.
func Compare(a, b Value) int {
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}

	switch x := a.(type) {
	case Undefined, Null:
		return 0
	case Boolean:
		y := b.(Boolean)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case Number:
		return cmp.Compare(float64(x), float64(b.(Number)))
	case String:
		return strings.Compare(string(x), string(b.(String)))
	case ArrayDigest, ObjectDigest:
		return 0
	default:
		panic(fmt.Sprintf("value: unexpected value type %T", a))
	}
}

// Equal reports identity: same kind and same payload, digests included.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case Undefined, Null:
		return true
	case Boolean:
		return x == b.(Boolean)
	case Number:
		y := b.(Number)
		if math.IsNaN(float64(x)) {
			return math.IsNaN(float64(y))
		}
		return x == y
	case String:
		return x == b.(String)
	case ArrayDigest:
		return x == b.(ArrayDigest)
	case ObjectDigest:
		return x == b.(ObjectDigest)
	default:
		panic(fmt.Sprintf("value: unexpected value type %T", a))
	}
}

// EqualTuple reports whether two key tuples are element-wise Equal.
func EqualTuple(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FormatTuple renders a key tuple for logs and error messages.
func FormatTuple(t []Value) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
