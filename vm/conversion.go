package vm

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Number formatting and parsing
// ---------------------------------------------------------------------------

// numberToString formats f the way Number.prototype.toString() does with
// radix 10: the shortest round-tripping digits, switching to exponent
// notation below 1e-6 and from 1e21.
func numberToString(f float64) string {
	switch {
	case f != f:
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f < 0:
		return "-" + numberToString(-f)
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(e, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expStr)
	k := len(digits)
	n := exp + 1

	switch {
	case k <= n && n <= 21:
		return digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		return digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		return "0." + strings.Repeat("0", -n) + digits
	}
	sign := "+"
	if n-1 < 0 {
		sign = "-"
	}
	exponent := strconv.Itoa(abs(n - 1))
	if k == 1 {
		return digits + "e" + sign + exponent
	}
	return digits[:1] + "." + digits[1:] + "e" + sign + exponent
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// isJSSpace reports whether r is white space or a line terminator for the
// purposes of string-to-number conversion and trim.
func isJSSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0x00a0, 0x1680, 0x2028, 0x2029,
		0x202f, 0x205f, 0x3000, 0xfeff:
		return true
	}
	return r >= 0x2000 && r <= 0x200a
}

// stringToNumber implements ToNumber applied to a string.
func stringToNumber(s string) float64 {
	s = strings.TrimFunc(s, isJSSpace)
	if s == "" {
		return 0
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return parseRadixInt(s[2:], 16)
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if decimalPrefix(s) != len(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

// decimalPrefix returns the length of the longest prefix of s that is a
// StrDecimalLiteral without the Infinity forms: [+-] digits [. digits]
// [e [+-] digits].
func decimalPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intDigits := i - intStart
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracDigits = j - i - 1
		if intDigits > 0 || fracDigits > 0 {
			i = j
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// digitValue returns the value of an alphanumeric digit, or 99.
func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// parseRadixInt parses all of s as an unsigned integer in radix, returning
// NaN if any character is not a digit.
func parseRadixInt(s string, radix int) float64 {
	if s == "" {
		return math.NaN()
	}
	v := 0.0
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d >= radix {
			return math.NaN()
		}
		v = v*float64(radix) + float64(d)
	}
	return v
}

// toInt32 and toUint32 implement the modular ES integer conversions.
func toInt32(f float64) int32 {
	return int32(toUint32(f))
}

func toUint32(f float64) uint32 {
	if f != f || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}

// toIntegerOrInf implements ToInteger.
func toIntegerOrInf(f float64) float64 {
	if f != f {
		return 0
	}
	return math.Trunc(f)
}

// ---------------------------------------------------------------------------
// Realm-level conversions (may call into script for objects)
// ---------------------------------------------------------------------------

// toBoolean implements ToBoolean.
func (r *Realm) toBoolean(v Value) bool {
	switch v {
	case Undefined, Null, False:
		return false
	case True:
		return true
	}
	if v.IsNumber() {
		f := v.Number()
		return f == f && f != 0
	}
	if r.heap.isString(v) {
		return r.stringOf(v).s != ""
	}
	return true
}

// ToBoolean is the exported form of toBoolean.
func (r *Realm) ToBoolean(v Value) bool { return r.toBoolean(v) }

// toNumber implements ToNumber.
func (r *Realm) toNumber(v Value) float64 {
	switch v {
	case Undefined:
		return math.NaN()
	case Null, False:
		return 0
	case True:
		return 1
	}
	if v.IsNumber() {
		return v.Number()
	}
	if r.heap.isString(v) {
		return stringToNumber(r.stringOf(v).s)
	}
	return r.toNumber(r.toPrimitive(v, hintNumber))
}

// toString implements ToString, returning a Go string.
func (r *Realm) toString(v Value) string {
	switch v {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case True:
		return "true"
	case False:
		return "false"
	}
	if v.IsNumber() {
		return numberToString(v.Number())
	}
	if r.heap.isString(v) {
		return r.stringOf(v).s
	}
	return r.toString(r.toPrimitive(v, hintString))
}

// toStringValue is ToString producing a string Value, reusing v when it is
// already a string.
func (r *Realm) toStringValue(v Value) Value {
	if r.heap.isString(v) {
		return v
	}
	return r.NewString(r.toString(v))
}

// ToString converts v with script-visible semantics, reporting a thrown
// exception as an error.
func (r *Realm) ToString(v Value) (s string, err error) {
	err = r.protect(func() { s = r.toString(v) })
	return s, err
}

type primitiveHint uint8

const (
	hintDefault primitiveHint = iota
	hintNumber
	hintString
)

// toPrimitive implements ToPrimitive through valueOf and toString.
func (r *Realm) toPrimitive(v Value, hint primitiveHint) Value {
	if !r.heap.isObject(v) {
		return v
	}
	order := [2]string{"valueOf", "toString"}
	if hint == hintString {
		order = [2]string{"toString", "valueOf"}
	}
	ref := v.Ref()
	for _, name := range order {
		m, _ := r.GetProperty(ref, name)
		if r.isCallable(m) {
			res := r.call(m, v, nil)
			if !r.heap.isObject(res) {
				return res
			}
		}
	}
	r.throwTypeError("Cannot convert object to primitive value")
	return Undefined
}

// toObject implements ToObject, wrapping primitives.
func (r *Realm) toObject(v Value) CellRef {
	switch {
	case v.IsNullish():
		r.throwTypeError("Cannot convert undefined or null to object")
	case r.heap.isObject(v):
		return v.Ref()
	}
	var proto CellRef
	switch {
	case v.IsNumber():
		proto = r.intrinsics.NumberPrototype
	case v.IsBool():
		proto = r.intrinsics.BooleanPrototype
	default:
		proto = r.intrinsics.StringPrototype
	}
	ref, o := r.newObjectWith(ClassPrimitive, proto)
	o.primitive = v
	return ref
}

// propertyKey converts a computed member key to a property name.
func (r *Realm) propertyKey(v Value) string {
	if v.IsNumber() {
		f := v.Number()
		if f >= 0 && f < 1<<31 && f == math.Trunc(f) {
			return strconv.Itoa(int(f))
		}
	}
	return r.toString(v)
}

// typeOf implements the typeof operator.
func (r *Realm) typeOf(v Value) string {
	switch v.Kind() {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	}
	if r.heap.isString(v) {
		return "string"
	}
	if r.isCallable(v) {
		return "function"
	}
	return "object"
}

// TypeOf returns the typeof string of v.
func (r *Realm) TypeOf(v Value) string { return r.typeOf(v) }

// ---------------------------------------------------------------------------
// Equality and comparison
// ---------------------------------------------------------------------------

// StrictEquals implements ===. It never coerces: NaN is unequal to itself
// and +0 equals -0.
func (r *Realm) StrictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Number() == b.Number()
	}
	if a.IsCell() && b.IsCell() {
		if a == b {
			return true
		}
		if r.heap.isString(a) && r.heap.isString(b) {
			return r.stringOf(a).s == r.stringOf(b).s
		}
		return false
	}
	return a == b
}

// SameValue is StrictEquals except that NaN equals NaN and +0 differs
// from -0.
func (r *Realm) SameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.Number(), b.Number()
		if x != x && y != y {
			return true
		}
		return x == y && math.Signbit(x) == math.Signbit(y)
	}
	return r.StrictEquals(a, b)
}

// LooseEquals implements the abstract equality comparison (==).
func (r *Realm) LooseEquals(a, b Value) bool {
	for {
		switch {
		case a.IsNumber() && b.IsNumber():
			return a.Number() == b.Number()
		case a.IsNullish() && b.IsNullish():
			return true
		case a.IsNullish() || b.IsNullish():
			return false
		case a.IsBool() && b.IsBool():
			return a == b
		}

		aStr, bStr := r.heap.isString(a), r.heap.isString(b)
		aObj, bObj := r.heap.isObject(a), r.heap.isObject(b)
		switch {
		case aStr && bStr:
			return r.stringOf(a).s == r.stringOf(b).s
		case aObj && bObj:
			return a == b
		case a.IsNumber() && bStr:
			return a.Number() == stringToNumber(r.stringOf(b).s)
		case aStr && b.IsNumber():
			return stringToNumber(r.stringOf(a).s) == b.Number()
		case a.IsBool():
			a = NumberValue(r.toNumber(a))
		case b.IsBool():
			b = NumberValue(r.toNumber(b))
		case bObj && (aStr || a.IsNumber()):
			b = r.toPrimitive(b, hintDefault)
		case aObj && (bStr || b.IsNumber()):
			a = r.toPrimitive(a, hintDefault)
		default:
			return false
		}
	}
}

// lessThan implements the abstract relational comparison a < b. The
// second result is true when either operand is NaN (the "undefined"
// outcome). leftFirst controls ToPrimitive evaluation order.
func (r *Realm) lessThan(a, b Value, leftFirst bool) (less bool, undef bool) {
	var pa, pb Value
	if leftFirst {
		pa = r.toPrimitive(a, hintNumber)
		mark := r.keep(pa)
		pb = r.toPrimitive(b, hintNumber)
		r.release(mark)
	} else {
		pb = r.toPrimitive(b, hintNumber)
		mark := r.keep(pb)
		pa = r.toPrimitive(a, hintNumber)
		r.release(mark)
	}
	if r.heap.isString(pa) && r.heap.isString(pb) {
		return compareUnits(r.stringOf(pa), r.stringOf(pb)) < 0, false
	}
	x, y := r.toNumber(pa), r.toNumber(pb)
	if x != x || y != y {
		return false, true
	}
	return x < y, false
}

// compareUnits orders strings by UTF-16 code units.
func compareUnits(a, b *jsString) int {
	if a.ascii && b.ascii {
		return strings.Compare(a.s, b.s)
	}
	ua, ub := a.codeUnits(), b.codeUnits()
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}
