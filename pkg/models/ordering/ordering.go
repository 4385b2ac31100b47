package ordering

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/xorder/pkg/models/value"
)

type Direction int

const (
	ASC = Direction(iota)
	DESC
)

func (d Direction) String() string {
	if d == DESC {
		return "DESC"
	}
	return "ASC"
}

// DirectionByName accepts asc/desc in any case; empty means ASC.
func DirectionByName(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "asc", "ascending", "":
		return ASC, nil
	case "desc", "descending":
		return DESC, nil
	default:
		return 0, fmt.Errorf("wrong sorting option (asc/desc): %q", name)
	}
}

// ParseDirections parses a comma separated list such as "asc,desc".
func ParseDirections(list string) ([]Direction, error) {
	parts := strings.Split(list, ",")
	out := make([]Direction, 0, len(parts))
	for _, p := range parts {
		d, err := DirectionByName(p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// CompareTuple compares two key tuples key by key in merge order: a
// negative result means a is emitted before b. Keys past len(dirs) are
// ascending.
func CompareTuple(a, b []value.Value, dirs []Direction) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		c := value.Compare(a[i], b[i])
		if i < len(dirs) && dirs[i] == DESC {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Bound is a resume point in merge order: tuples strictly after Values are
// admitted, and tuples equal to Values as well when Inclusive is set.
type Bound struct {
	Values    []value.Value
	Orders    []Direction
	Inclusive bool
}

func (b Bound) Admits(keys []value.Value) bool {
	c := CompareTuple(keys, b.Values, b.Orders)
	return c > 0 || (b.Inclusive && c == 0)
}

// Operator renders the bound as a comparison operator for the first key,
// as seen by a backend that does not know about merge order.
func (b Bound) Operator(key int) string {
	desc := key < len(b.Orders) && b.Orders[key] == DESC
	switch {
	case desc && b.Inclusive:
		return "<="
	case desc:
		return "<"
	case b.Inclusive:
		return ">="
	default:
		return ">"
	}
}

func (b Bound) String() string {
	op := ">"
	if b.Inclusive {
		op = ">="
	}
	return fmt.Sprintf("keys %s %s", op, value.FormatTuple(b.Values))
}
