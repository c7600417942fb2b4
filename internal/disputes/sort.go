package disputes

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Direction is the sort order of a column. The zero value means unsorted.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionAsc  Direction = "asc"
	DirectionDesc Direction = "desc"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionNone:
		return DirectionNone, nil
	case DirectionAsc:
		return DirectionAsc, nil
	case DirectionDesc:
		return DirectionDesc, nil
	default:
		return DirectionNone, fmt.Errorf("disputes: invalid sort direction %q", s)
	}
}

// SortState is the column sort currently applied to a view.
type SortState struct {
	Field     string    `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

func (s SortState) Active() bool {
	return s.Field != "" && s.Direction != DirectionNone
}

// NextState cycles a column through ascending, descending and unsorted.
// Selecting another column always starts it at ascending.
func NextState(field string, current SortState) SortState {
	if field == "" {
		return SortState{}
	}
	if current.Field != field {
		return SortState{Field: field, Direction: DirectionAsc}
	}
	switch current.Direction {
	case DirectionAsc:
		return SortState{Field: field, Direction: DirectionDesc}
	case DirectionDesc:
		return SortState{}
	default:
		return SortState{Field: field, Direction: DirectionAsc}
	}
}

// Sort returns a stably sorted copy of items ordered by the value at the
// dotted field path. Missing values always come last. An empty field or
// direction returns the items in their original order.
func Sort[T any](items []T, field string, dir Direction) []T {
	out := make([]T, len(items))
	copy(out, items)
	if field == "" || dir == DirectionNone {
		return out
	}

	keys := make([]any, len(out))
	for i := range out {
		keys[i] = FieldValue(out[i], field)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}

	coll := collate.New(language.English)
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		c := compareValues(coll, a, b)
		if dir == DirectionDesc {
			c = -c
		}
		return c < 0
	})

	sorted := make([]T, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

// FieldValue reads a dotted path such as "transaction.merchant_name" from v.
// Segments match json tag names (or field names) and embedded structs are
// searched like promoted fields. Any nil along the way yields nil.
func FieldValue(v any, path string) any {
	cur := reflect.ValueOf(v)
	for _, seg := range strings.Split(path, ".") {
		cur = indirect(cur)
		if !cur.IsValid() {
			return nil
		}
		switch cur.Kind() {
		case reflect.Struct:
			cur = structField(cur, seg)
		case reflect.Map:
			if cur.Type().Key().Kind() != reflect.String {
				return nil
			}
			cur = cur.MapIndex(reflect.ValueOf(seg).Convert(cur.Type().Key()))
		default:
			return nil
		}
	}
	return normalize(indirect(cur))
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func structField(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag == name || (tag == "" && strings.EqualFold(f.Name, name)) {
			return v.Field(i)
		}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		if inner := indirect(v.Field(i)); inner.IsValid() && inner.Kind() == reflect.Struct {
			if found := structField(inner, name); found.IsValid() {
				return found
			}
		}
	}
	return reflect.Value{}
}

// normalize reduces a value to one of string, float64, bool, time.Time or
// decimal.Decimal where possible.
func normalize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch v.Type() {
	case timeType:
		return v.Interface().(time.Time)
	case decimalType:
		return v.Interface().(decimal.Decimal)
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Slice, reflect.Map:
		if v.IsNil() {
			return nil
		}
	}
	if v.CanInterface() {
		return v.Interface()
	}
	return nil
}

func compareValues(coll *collate.Collator, a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return coll.CompareString(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return compareFloat(x, y)
		}
		if y, ok := b.(decimal.Decimal); ok {
			return decimal.NewFromFloat(x).Cmp(y)
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
		if y, ok := b.(float64); ok {
			return x.Cmp(decimal.NewFromFloat(y))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return coll.CompareString(fmt.Sprint(a), fmt.Sprint(b))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
