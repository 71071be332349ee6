package action

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// ValueKind discriminates the dynamic value union.
//
// Parameters are "open" data: the library must carry shapes it has
// never seen, yet remain exhaustively matchable at serialization time.
// A closed tagged union gives both.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a dynamic parameter value: null, bool, int64, float64,
// string, bytes, list, or string-keyed map. Values are trees; cycles
// cannot be constructed through this API.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string // string value, or byte payload for KindBytes
	list []Value
	m    map[string]Value
}

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value   { return Value{kind: KindBytes, s: string(b)} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Map copies m into a map value.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.s), true
}

// AsList returns the list elements. The slice must not be mutated.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map entries. The map must not be mutated.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Keys returns the map keys in sorted order, or nil for non-maps.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality. Ints and floats never compare equal to
// each other even when numerically identical: they canonicalize to
// different bytes, and equality must agree with canonicalization.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == w.b
	case KindInt:
		return v.i == w.i
	case KindFloat:
		if math.IsNaN(v.f) && math.IsNaN(w.f) {
			return true
		}
		return v.f == w.f
	case KindString, KindBytes:
		return v.s == w.s
	case KindList:
		if len(v.list) != len(w.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(w.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(w.m) {
			return false
		}
		for k, vv := range v.m {
			ww, ok := w.m[k]
			if !ok || !vv.Equal(ww) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts a plain Go value into a Value. Supported inputs:
// nil, bool, all int/uint sizes, float32/64, string, []byte, []any,
// map[string]any, and any nesting of those (plus Value itself).
//
// Self-referential maps or slices are rejected rather than recursed
// into forever.
func FromGo(in any) (Value, error) {
	return fromGo(in, make(map[uintptr]struct{}))
}

func fromGo(in any, seen map[uintptr]struct{}) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("action: uint64 value %d overflows int64", x)
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		ptr := reflect.ValueOf(x).Pointer()
		if _, ok := seen[ptr]; ok {
			return Value{}, fmt.Errorf("action: cycle detected in slice")
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		out := make([]Value, len(x))
		for i, e := range x {
			v, err := fromGo(e, seen)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Value{kind: KindList, list: out}, nil
	case map[string]any:
		ptr := reflect.ValueOf(x).Pointer()
		if _, ok := seen[ptr]; ok {
			return Value{}, fmt.Errorf("action: cycle detected in map")
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		out := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := fromGo(e, seen)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Value{kind: KindMap, m: out}, nil
	default:
		return Value{}, fmt.Errorf("action: unsupported parameter type %T", in)
	}
}

// ParamsFromGo converts a map of plain Go values into Params.
func ParamsFromGo(in map[string]any) (Params, error) {
	out := make(Params, len(in))
	for k, e := range in {
		v, err := FromGo(e)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ToGo converts a Value back to plain Go data (the inverse of FromGo,
// up to int width normalization).
func (v Value) ToGo() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return []byte(v.s)
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToGo()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToGo()
		}
		return out
	default:
		return nil
	}
}
