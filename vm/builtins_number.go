package vm

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Number
// ---------------------------------------------------------------------------

func (r *Realm) initNumber() {
	proto := r.intrinsics.NumberPrototype
	ctor := r.newNativeConstructor("Number", 1, func(r *Realm, c *NativeCall) Value {
		n := IntValue(0)
		if len(c.Args) > 0 {
			n = NumberValue(r.toNumber(c.Args[0]))
		}
		if c.Constructing {
			return r.newPrimitiveObject(n, proto).Value()
		}
		return n
	}, proto)
	r.intrinsics.Number = ctor
	r.hidden(r.global, "Number", ctor.Value())

	r.constant(ctor, "MAX_VALUE", NumberValue(math.MaxFloat64))
	r.constant(ctor, "MIN_VALUE", NumberValue(math.SmallestNonzeroFloat64))
	r.constant(ctor, "NaN", NumberValue(math.NaN()))
	r.constant(ctor, "POSITIVE_INFINITY", NumberValue(math.Inf(1)))
	r.constant(ctor, "NEGATIVE_INFINITY", NumberValue(math.Inf(-1)))

	r.method(proto, "valueOf", 0, func(r *Realm, c *NativeCall) Value {
		return NumberValue(r.thisNumber(c, "valueOf"))
	})
	r.method(proto, "toString", 1, func(r *Realm, c *NativeCall) Value {
		f := r.thisNumber(c, "toString")
		radix := 10
		if v := c.Arg(0); !v.IsUndefined() {
			radix = int(toIntegerOrInf(r.toNumber(v)))
			if radix < 2 || radix > 36 {
				r.throwRangeError("toString() radix must be between 2 and 36")
			}
		}
		if radix == 10 {
			return r.NewString(numberToString(f))
		}
		return r.NewString(formatRadix(f, radix))
	})
	r.method(proto, "toLocaleString", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(numberToString(r.thisNumber(c, "toLocaleString")))
	})
	r.method(proto, "toFixed", 1, func(r *Realm, c *NativeCall) Value {
		f := r.thisNumber(c, "toFixed")
		digits := toIntegerOrInf(r.toNumber(c.Arg(0)))
		if digits < 0 || digits > 20 {
			r.throwRangeError("toFixed() digits argument must be between 0 and 20")
		}
		if f != f || math.Abs(f) >= 1e21 {
			return r.NewString(numberToString(f))
		}
		return r.NewString(strconv.FormatFloat(f, 'f', int(digits), 64))
	})
	r.method(proto, "toExponential", 1, func(r *Realm, c *NativeCall) Value {
		f := r.thisNumber(c, "toExponential")
		if f != f || math.IsInf(f, 0) {
			return r.NewString(numberToString(f))
		}
		prec := -1
		if v := c.Arg(0); !v.IsUndefined() {
			d := toIntegerOrInf(r.toNumber(v))
			if d < 0 || d > 20 {
				r.throwRangeError("toExponential() argument must be between 0 and 20")
			}
			prec = int(d)
		}
		return r.NewString(jsExponent(strconv.FormatFloat(f, 'e', prec, 64)))
	})
	r.method(proto, "toPrecision", 1, func(r *Realm, c *NativeCall) Value {
		f := r.thisNumber(c, "toPrecision")
		v := c.Arg(0)
		if v.IsUndefined() || f != f || math.IsInf(f, 0) {
			return r.NewString(numberToString(f))
		}
		p := toIntegerOrInf(r.toNumber(v))
		if p < 1 || p > 21 {
			r.throwRangeError("toPrecision() argument must be between 1 and 21")
		}
		return r.NewString(formatPrecision(f, int(p)))
	})
}

// thisNumber unwraps the receiver of a Number.prototype method.
func (r *Realm) thisNumber(c *NativeCall, name string) float64 {
	if c.This.IsNumber() {
		return c.This.Number()
	}
	if r.heap.isObject(c.This) {
		if o := r.heap.object(c.This.Ref()); o.class == ClassPrimitive && o.primitive.IsNumber() {
			return o.primitive.Number()
		}
	}
	r.throwTypeError("Number.prototype." + name + " requires that 'this' be a Number")
	return 0
}

// formatRadix renders f in a non-decimal radix. Fractions are emitted
// digit by digit until the value is exhausted or 52 digits were written.
func formatRadix(f float64, radix int) string {
	switch {
	case f != f:
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	neg := f < 0
	f = math.Abs(f)
	ip, fp := math.Modf(f)

	var s string
	if ip < 1<<53 {
		s = strconv.FormatInt(int64(ip), radix)
	} else {
		var digits []byte
		for ip >= 1 {
			d := math.Mod(ip, float64(radix))
			digits = append(digits, strconv.FormatInt(int64(d), radix)[0])
			ip = math.Floor(ip / float64(radix))
		}
		for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
			digits[i], digits[j] = digits[j], digits[i]
		}
		s = string(digits)
	}
	if fp > 0 {
		var sb strings.Builder
		sb.WriteString(s)
		sb.WriteByte('.')
		for i := 0; i < 52 && fp > 0; i++ {
			fp *= float64(radix)
			d := int64(fp)
			fp -= float64(d)
			sb.WriteString(strconv.FormatInt(d, radix))
		}
		s = sb.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// jsExponent rewrites Go's "1.5e+02" exponent form as "1.5e+2".
func jsExponent(s string) string {
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

// formatPrecision implements toPrecision for finite f.
func formatPrecision(f float64, p int) string {
	if f == 0 {
		s := "0"
		if p > 1 {
			s += "." + strings.Repeat("0", p-1)
		}
		return s
	}
	// The exponent is taken after rounding, which may carry into the next decade.
	exp := strconv.FormatFloat(f, 'e', p-1, 64)
	_, es, _ := strings.Cut(exp, "e")
	e, _ := strconv.Atoi(es)
	if e < -6 || e >= p {
		return jsExponent(exp)
	}
	return strconv.FormatFloat(f, 'f', max(p-1-e, 0), 64)
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func (r *Realm) initMath() {
	m := r.NewObject()
	r.intrinsics.Math = m
	r.hidden(r.global, "Math", m.Value())

	for _, k := range []struct {
		name string
		v    float64
	}{
		{"E", math.E},
		{"LN2", math.Ln2},
		{"LN10", math.Ln10},
		{"LOG2E", math.Log2E},
		{"LOG10E", math.Log10E},
		{"PI", math.Pi},
		{"SQRT1_2", math.Sqrt2 / 2},
		{"SQRT2", math.Sqrt2},
	} {
		r.constant(m, k.name, NumberValue(k.v))
	}

	unary := func(name string, fn func(float64) float64) {
		r.method(m, name, 1, func(r *Realm, c *NativeCall) Value {
			return NumberValue(fn(r.toNumber(c.Arg(0))))
		})
	}
	unary("abs", math.Abs)
	unary("acos", math.Acos)
	unary("asin", math.Asin)
	unary("atan", math.Atan)
	unary("ceil", math.Ceil)
	unary("cos", math.Cos)
	unary("exp", math.Exp)
	unary("floor", math.Floor)
	unary("log", math.Log)
	unary("sin", math.Sin)
	unary("sqrt", math.Sqrt)
	unary("tan", math.Tan)
	unary("round", jsRound)

	r.method(m, "atan2", 2, func(r *Realm, c *NativeCall) Value {
		y := r.toNumber(c.Arg(0))
		return NumberValue(math.Atan2(y, r.toNumber(c.Arg(1))))
	})
	r.method(m, "pow", 2, func(r *Realm, c *NativeCall) Value {
		x := r.toNumber(c.Arg(0))
		return NumberValue(jsPow(x, r.toNumber(c.Arg(1))))
	})
	r.method(m, "max", 2, func(r *Realm, c *NativeCall) Value {
		res := math.Inf(-1)
		for _, a := range c.Args {
			f := r.toNumber(a)
			switch {
			case f != f || res != res:
				res = math.NaN()
			case f > res || (f == 0 && res == 0 && !math.Signbit(f)):
				res = f
			}
		}
		return NumberValue(res)
	})
	r.method(m, "min", 2, func(r *Realm, c *NativeCall) Value {
		res := math.Inf(1)
		for _, a := range c.Args {
			f := r.toNumber(a)
			switch {
			case f != f || res != res:
				res = math.NaN()
			case f < res || (f == 0 && res == 0 && math.Signbit(f)):
				res = f
			}
		}
		return NumberValue(res)
	})
	r.method(m, "random", 0, func(r *Realm, c *NativeCall) Value {
		return NumberValue(rand.Float64())
	})
}

// jsRound rounds half up, keeping -0 for inputs in [-0.5, -0].
func jsRound(f float64) float64 {
	if f != f || math.IsInf(f, 0) {
		return f
	}
	if f < 0 && f >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(f + 0.5)
}

// jsPow differs from math.Pow where ECMAScript gives NaN for a base of
// magnitude one raised to an infinite power.
func jsPow(x, y float64) float64 {
	if y != y {
		return math.NaN()
	}
	if math.IsInf(y, 0) && math.Abs(x) == 1 {
		return math.NaN()
	}
	return math.Pow(x, y)
}
