package action

import (
	"math"
	"testing"
)

func TestValueKinds(t *testing.T) {
	cases := []struct {
		v    Value
		kind ValueKind
	}{
		{Null(), KindNull},
		{Bool(true), KindBool},
		{Int(-7), KindInt},
		{Float(1.5), KindFloat},
		{String("x"), KindString},
		{Bytes([]byte{0, 1}), KindBytes},
		{List(Int(1)), KindList},
		{Map(map[string]Value{"k": Null()}), KindMap},
	}
	for _, tc := range cases {
		if tc.v.Kind() != tc.kind {
			t.Errorf("Kind() = %v, want %v", tc.v.Kind(), tc.kind)
		}
	}
}

func TestValueAccessors(t *testing.T) {
	if i, ok := Int(42).AsInt(); !ok || i != 42 {
		t.Errorf("AsInt = %d, %v", i, ok)
	}
	if _, ok := Int(42).AsFloat(); ok {
		t.Error("AsFloat on an int should report false")
	}
	if s, ok := String("hi").AsString(); !ok || s != "hi" {
		t.Errorf("AsString = %q, %v", s, ok)
	}
	if b, ok := Bytes([]byte("raw")).AsBytes(); !ok || string(b) != "raw" {
		t.Errorf("AsBytes = %q, %v", b, ok)
	}
	if _, ok := String("hi").AsBytes(); ok {
		t.Error("AsBytes on a string should report false")
	}
}

func TestValueEqualIntFloatDistinct(t *testing.T) {
	// 1 and 1.0 canonicalize to different bytes; equality must agree.
	if Int(1).Equal(Float(1)) {
		t.Fatal("Int(1) must not equal Float(1)")
	}
	if !Float(math.NaN()).Equal(Float(math.NaN())) {
		t.Fatal("NaN params should compare equal to themselves")
	}
	if !String("a").Equal(String("a")) {
		t.Fatal("equal strings")
	}
	if String("a").Equal(Bytes([]byte("a"))) {
		t.Fatal("string and bytes with same payload must differ")
	}
}

func TestValueEqualNested(t *testing.T) {
	mk := func() Value {
		return Map(map[string]Value{
			"list": List(Int(1), String("two"), Null()),
			"map":  Map(map[string]Value{"inner": Bool(true)}),
		})
	}
	if !mk().Equal(mk()) {
		t.Fatal("identical nested values should be equal")
	}

	other := Map(map[string]Value{
		"list": List(Int(1), String("two"), Null()),
		"map":  Map(map[string]Value{"inner": Bool(false)}),
	})
	if mk().Equal(other) {
		t.Fatal("nested difference should break equality")
	}
}

func TestKeysSorted(t *testing.T) {
	v := Map(map[string]Value{"z": Null(), "a": Null(), "m": Null()})
	keys := v.Keys()
	want := []string{"a", "m", "z"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
	if Int(1).Keys() != nil {
		t.Fatal("Keys on a non-map should be nil")
	}
}

func TestFromGoRoundTrip(t *testing.T) {
	in := map[string]any{
		"null":  nil,
		"bool":  true,
		"int":   int64(-12),
		"float": 2.75,
		"str":   "text",
		"bytes": []byte{9, 8},
		"list":  []any{int64(1), "two"},
		"map":   map[string]any{"k": int64(5)},
	}
	params, err := ParamsFromGo(in)
	if err != nil {
		t.Fatalf("ParamsFromGo: %v", err)
	}

	for k, want := range in {
		got := params[k].ToGo()
		v, err := FromGo(want)
		if err != nil {
			t.Fatalf("FromGo(%q): %v", k, err)
		}
		back, err := FromGo(got)
		if err != nil {
			t.Fatalf("FromGo(ToGo(%q)): %v", k, err)
		}
		if !v.Equal(back) {
			t.Errorf("round trip of %q: got %#v", k, got)
		}
	}
}

func TestFromGoIntWidths(t *testing.T) {
	for _, in := range []any{int(3), int8(3), int16(3), int32(3), int64(3), uint(3), uint8(3), uint16(3), uint32(3), uint64(3)} {
		v, err := FromGo(in)
		if err != nil {
			t.Fatalf("FromGo(%T): %v", in, err)
		}
		if i, ok := v.AsInt(); !ok || i != 3 {
			t.Errorf("FromGo(%T) = %v", in, v)
		}
	}
	if _, err := FromGo(uint64(math.MaxUint64)); err == nil {
		t.Fatal("uint64 above MaxInt64 should be rejected")
	}
}

func TestFromGoRejectsUnsupported(t *testing.T) {
	if _, err := FromGo(struct{}{}); err == nil {
		t.Fatal("struct input should be rejected")
	}
	if _, err := FromGo(make(chan int)); err == nil {
		t.Fatal("channel input should be rejected")
	}
}

func TestFromGoRejectsCycles(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	if _, err := FromGo(m); err == nil {
		t.Fatal("self-referential map should be rejected")
	}

	s := make([]any, 1)
	s[0] = s
	if _, err := FromGo(s); err == nil {
		t.Fatal("self-referential slice should be rejected")
	}

	// Sharing without a cycle is fine.
	shared := []any{int64(1)}
	if _, err := FromGo([]any{shared, shared}); err != nil {
		t.Fatalf("shared subtree should be accepted: %v", err)
	}
}
