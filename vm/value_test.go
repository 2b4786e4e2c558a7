package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// NaN-boxing
// ---------------------------------------------------------------------------

func TestNumberValues(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.5, 1e300, -1e-300, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(1), math.Inf(-1)} {
		v := NumberValue(f)
		if !v.IsNumber() {
			t.Errorf("NumberValue(%v) is not a number", f)
			continue
		}
		if v.IsCell() || v.IsBool() || v.IsNullish() {
			t.Errorf("NumberValue(%v) matches another kind", f)
		}
		if got := v.Number(); got != f {
			t.Errorf("NumberValue(%v).Number() = %v", f, got)
		}
		if v.Kind() != KindNumber {
			t.Errorf("NumberValue(%v).Kind() = %s", f, v.Kind())
		}
	}
}

func TestNegativeZeroKeepsSign(t *testing.T) {
	v := NumberValue(math.Copysign(0, -1))
	if !math.Signbit(v.Number()) {
		t.Error("-0 lost its sign bit")
	}
	if v == NumberValue(0) {
		t.Error("-0 and +0 should have distinct encodings")
	}
}

func TestNaNIsCanonical(t *testing.T) {
	weird := math.Float64frombits(0x7FF8000000000001 | tagCell)
	if weird == weird {
		t.Fatal("test value is not a NaN")
	}
	v := NumberValue(weird)
	if v != canonicalNaN {
		t.Errorf("NaN payload leaked into value: %#x", uint64(v))
	}
	if !v.IsNumber() || v.IsCell() {
		t.Error("canonical NaN must be a number")
	}
	if !math.IsNaN(v.Number()) {
		t.Error("canonical NaN must read back as NaN")
	}
}

func TestSpecialValues(t *testing.T) {
	tests := []struct {
		v    Value
		kind Kind
		str  string
	}{
		{Undefined, KindUndefined, "undefined"},
		{Null, KindNull, "null"},
		{True, KindBoolean, "true"},
		{False, KindBoolean, "false"},
	}
	for _, tt := range tests {
		if tt.v.Kind() != tt.kind {
			t.Errorf("%s.Kind() = %s, want %s", tt.str, tt.v.Kind(), tt.kind)
		}
		if tt.v.String() != tt.str {
			t.Errorf("String() = %q, want %q", tt.v.String(), tt.str)
		}
		if tt.v.IsNumber() || tt.v.IsCell() {
			t.Errorf("%s misclassified", tt.str)
		}
	}
	if !Undefined.IsNullish() || !Null.IsNullish() || False.IsNullish() {
		t.Error("IsNullish")
	}
	if BoolValue(true) != True || BoolValue(false) != False {
		t.Error("BoolValue")
	}
	if !True.Bool() || False.Bool() {
		t.Error("Bool")
	}
}

func TestCellValues(t *testing.T) {
	ref := makeRef(12345, 7)
	v := CellValue(ref)
	if !v.IsCell() || v.IsNumber() {
		t.Fatal("cell value misclassified")
	}
	if v.Ref() != ref {
		t.Errorf("Ref() = %s, want %s", v.Ref(), ref)
	}
	if ref.Index() != 12345 || ref.Generation() != 7 {
		t.Errorf("handle fields = %d.%d", ref.Index(), ref.Generation())
	}
	if ref.Value() != v {
		t.Error("CellRef.Value and CellValue disagree")
	}
	if !noCell.IsNil() || ref.IsNil() {
		t.Error("IsNil")
	}
	if ref.String() != "#12345.7" {
		t.Errorf("String() = %q", ref.String())
	}
}

func TestValueAccessorsPanicOnWrongKind(t *testing.T) {
	for name, fn := range map[string]func(){
		"Number": func() { _ = True.Number() },
		"Bool":   func() { _ = IntValue(1).Bool() },
		"Ref":    func() { _ = Null.Ref() },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", name)
				}
			}()
			fn()
		}()
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

func TestStrictEquality(t *testing.T) {
	r := newTestRealm(t)
	nan := NumberValue(math.NaN())
	negZero := NumberValue(math.Copysign(0, -1))

	if r.StrictEquals(nan, nan) {
		t.Error("NaN === NaN")
	}
	if !r.StrictEquals(negZero, IntValue(0)) {
		t.Error("-0 !== +0")
	}
	if r.StrictEquals(r.NewString("1"), IntValue(1)) {
		t.Error(`"1" === 1`)
	}
	if !r.StrictEquals(r.NewString("abc"), r.NewString("abc")) {
		t.Error("distinct string cells with equal contents must be ===")
	}
	a, b := r.NewObject(), r.NewObject()
	if r.StrictEquals(a.Value(), b.Value()) || !r.StrictEquals(a.Value(), a.Value()) {
		t.Error("object identity")
	}
	if r.StrictEquals(Null, Undefined) {
		t.Error("null === undefined")
	}
}

func TestLooseEquality(t *testing.T) {
	r := newTestRealm(t)
	tests := []struct {
		a, b Value
		want bool
	}{
		{r.NewString("1"), IntValue(1), true},
		{r.NewString(" 12 "), IntValue(12), true},
		{r.NewString(""), IntValue(0), true},
		{True, IntValue(1), true},
		{False, r.NewString("0"), true},
		{Null, Undefined, true},
		{Null, IntValue(0), false},
		{Undefined, False, false},
		{NumberValue(math.NaN()), NumberValue(math.NaN()), false},
		{r.NewString("abc"), IntValue(0), false},
	}
	for i, tt := range tests {
		if got := r.LooseEquals(tt.a, tt.b); got != tt.want {
			t.Errorf("case %d: %s == %s = %v, want %v", i, r.Inspect(tt.a), r.Inspect(tt.b), got, tt.want)
		}
		if got := r.LooseEquals(tt.b, tt.a); got != tt.want {
			t.Errorf("case %d: equality not symmetric", i)
		}
	}
}

func TestSameValue(t *testing.T) {
	r := newTestRealm(t)
	nan := NumberValue(math.NaN())
	if !r.SameValue(nan, nan) {
		t.Error("SameValue(NaN, NaN) should hold")
	}
	if r.SameValue(NumberValue(math.Copysign(0, -1)), IntValue(0)) {
		t.Error("SameValue(-0, +0) should not hold")
	}
}

func TestEqualityInScript(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var n = 0 / 0;
		[n === n, n == n, 0 === -0, "1" == 1, "1" === 1, null == undefined, null === undefined].join(",");
	`)
	want := "false,false,true,true,false,true,false"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func TestNumberToString(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{0.1, "0.1"},
		{1.5e-7, "1.5e-7"},
		{123456789012345680000, "123456789012345680000"},
		{1e21, "1e+21"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := numberToString(tt.f); got != tt.want {
			t.Errorf("numberToString(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		s    string
		want float64
	}{
		{"", 0},
		{"  42  ", 42},
		{"0x1F", 31},
		{"-1.5e2", -150},
		{"Infinity", math.Inf(1)},
		{".5", 0.5},
	}
	for _, tt := range tests {
		if got := stringToNumber(tt.s); got != tt.want {
			t.Errorf("stringToNumber(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
	for _, s := range []string{"abc", "1x", "0x", "--1"} {
		if got := stringToNumber(s); !math.IsNaN(got) {
			t.Errorf("stringToNumber(%q) = %v, want NaN", s, got)
		}
	}
}

func TestTypeOf(t *testing.T) {
	r := newTestRealm(t)
	fn := mustRun(t, r, "(function () {})")
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{IntValue(3), "number"},
		{r.NewString("s"), "string"},
		{r.NewObject().Value(), "object"},
		{fn, "function"},
	}
	for _, tt := range tests {
		if got := r.TypeOf(tt.v); got != tt.want {
			t.Errorf("TypeOf(%s) = %q, want %q", r.Inspect(tt.v), got, tt.want)
		}
	}
}

func TestToBoolean(t *testing.T) {
	r := newTestRealm(t)
	falsy := []Value{Undefined, Null, False, IntValue(0), NumberValue(math.Copysign(0, -1)), NumberValue(math.NaN()), r.NewString("")}
	for _, v := range falsy {
		if r.ToBoolean(v) {
			t.Errorf("%s should be falsy", r.Inspect(v))
		}
	}
	truthy := []Value{True, IntValue(-1), r.NewString("0"), r.NewObject().Value(), r.NewArray(nil).Value()}
	for _, v := range truthy {
		if !r.ToBoolean(v) {
			t.Errorf("%s should be truthy", r.Inspect(v))
		}
	}
}
