package vm

import (
	"math"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// thisString returns the receiver of a String.prototype method as a
// string payload.
func (r *Realm) thisString(c *NativeCall, name string) *jsString {
	v := c.This
	if r.heap.isObject(v) {
		if o := r.heap.object(v.Ref()); o.class == ClassPrimitive && r.heap.isString(o.primitive) {
			return r.stringOf(o.primitive)
		}
	}
	if v.IsNullish() {
		r.throwTypeError("String.prototype." + name + " called on null or undefined")
	}
	if r.heap.isString(v) {
		return r.stringOf(v)
	}
	return newJSString(r.toString(v))
}

// collator returns the realm's root-locale collator, built on first use.
func (r *Realm) localeCollator() *collate.Collator {
	if r.collator == nil {
		r.collator = collate.New(language.Und)
	}
	return r.collator
}

func (r *Realm) initString() {
	proto := r.intrinsics.StringPrototype
	ctor := r.newNativeConstructor("String", 1, func(r *Realm, c *NativeCall) Value {
		s := r.internString("")
		if len(c.Args) > 0 {
			s = r.toStringValue(c.Args[0])
		}
		if c.Constructing {
			return r.newPrimitiveObject(s, proto).Value()
		}
		return s
	}, proto)
	r.intrinsics.String = ctor
	r.hidden(r.global, "String", ctor.Value())

	r.method(ctor, "fromCharCode", 1, func(r *Realm, c *NativeCall) Value {
		units := make([]uint16, len(c.Args))
		for i, a := range c.Args {
			units[i] = uint16(toUint32(r.toNumber(a)))
		}
		return r.NewString(unitsToString(units))
	})

	thisValue := func(r *Realm, c *NativeCall) Value {
		if r.heap.isString(c.This) {
			return c.This
		}
		if r.heap.isObject(c.This) {
			if o := r.heap.object(c.This.Ref()); o.class == ClassPrimitive && r.heap.isString(o.primitive) {
				return o.primitive
			}
		}
		r.throwTypeError("String.prototype.valueOf requires that 'this' be a String")
		return Undefined
	}
	r.method(proto, "toString", 0, thisValue)
	r.method(proto, "valueOf", 0, thisValue)

	r.method(proto, "charAt", 1, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "charAt")
		i := toIntegerOrInf(r.toNumber(c.Arg(0)))
		if i < 0 || i >= float64(s.Length()) {
			return r.internString("")
		}
		return r.NewString(s.Substring(int(i), int(i)+1))
	})
	r.method(proto, "charCodeAt", 1, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "charCodeAt")
		i := toIntegerOrInf(r.toNumber(c.Arg(0)))
		if i < 0 || i >= float64(s.Length()) {
			return NumberValue(math.NaN())
		}
		return IntValue(int(s.CharCodeAt(int(i))))
	})
	r.method(proto, "indexOf", 1, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "indexOf")
		sub := r.toString(c.Arg(0))
		from := int(math.Min(math.Max(toIntegerOrInf(r.toNumber(c.Arg(1))), 0), float64(s.Length())))
		return IntValue(s.IndexOf(sub, from))
	})
	r.method(proto, "lastIndexOf", 1, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "lastIndexOf")
		sub := r.toString(c.Arg(0))
		from := s.Length()
		if pos := r.toNumber(c.Arg(1)); pos == pos {
			from = int(math.Min(math.Max(toIntegerOrInf(pos), 0), float64(s.Length())))
		}
		return IntValue(s.LastIndexOf(sub, from))
	})
	r.method(proto, "slice", 2, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "slice")
		n := s.Length()
		start := r.relativeIndex(c.Arg(0), n, 0)
		end := r.relativeIndex(c.Arg(1), n, n)
		if start >= end {
			return r.internString("")
		}
		return r.NewString(s.Substring(start, end))
	})
	r.method(proto, "substring", 2, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "substring")
		n := float64(s.Length())
		clamp := func(v Value, def float64) int {
			if v.IsUndefined() {
				return int(def)
			}
			return int(math.Min(math.Max(toIntegerOrInf(r.toNumber(v)), 0), n))
		}
		start, end := clamp(c.Arg(0), 0), clamp(c.Arg(1), n)
		if start > end {
			start, end = end, start
		}
		return r.NewString(s.Substring(start, end))
	})
	r.method(proto, "substr", 2, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "substr")
		n := s.Length()
		start := r.relativeIndex(c.Arg(0), n, 0)
		length := float64(n - start)
		if v := c.Arg(1); !v.IsUndefined() {
			length = math.Min(math.Max(toIntegerOrInf(r.toNumber(v)), 0), length)
		}
		if length <= 0 {
			return r.internString("")
		}
		return r.NewString(s.Substring(start, start+int(length)))
	})
	r.method(proto, "toUpperCase", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(strings.ToUpper(r.thisString(c, "toUpperCase").s))
	})
	r.method(proto, "toLowerCase", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(strings.ToLower(r.thisString(c, "toLowerCase").s))
	})
	r.method(proto, "toLocaleUpperCase", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(strings.ToUpper(r.thisString(c, "toLocaleUpperCase").s))
	})
	r.method(proto, "toLocaleLowerCase", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(strings.ToLower(r.thisString(c, "toLocaleLowerCase").s))
	})
	r.method(proto, "trim", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString(strings.TrimFunc(r.thisString(c, "trim").s, isJSSpace))
	})
	r.method(proto, "concat", 1, func(r *Realm, c *NativeCall) Value {
		var sb strings.Builder
		sb.WriteString(r.thisString(c, "concat").s)
		for _, a := range c.Args {
			sb.WriteString(r.toString(a))
		}
		return r.NewString(sb.String())
	})
	r.method(proto, "split", 2, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "split")
		limit := uint32(math.MaxUint32)
		if v := c.Arg(1); !v.IsUndefined() {
			limit = toUint32(r.toNumber(v))
		}
		var parts []string
		switch sepV := c.Arg(0); {
		case limit == 0:
		case sepV.IsUndefined():
			parts = []string{s.s}
		default:
			sep := r.toString(sepV)
			parts = splitUnits(s, sep, int(min(limit, maxDenseLength)))
		}
		return r.stringArray(parts)
	})
	r.method(proto, "replace", 2, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "replace")
		c.Keep(c.This)
		pattern := r.toString(c.Arg(0))
		pos := s.IndexOf(pattern, 0)
		if pos < 0 {
			return r.NewString(s.s)
		}
		end := pos + len(utf16.Encode([]rune(pattern)))
		var replacement string
		if fn := c.Arg(1); r.isCallable(fn) {
			res := r.call(fn, Undefined, []Value{r.NewString(pattern), IntValue(pos), r.NewString(s.s)})
			replacement = r.toString(res)
		} else {
			replacement = expandReplacement(r.toString(fn), s, pattern, pos, end)
		}
		return r.NewString(s.Substring(0, pos) + replacement + s.Substring(end, s.Length()))
	})
	r.method(proto, "localeCompare", 1, func(r *Realm, c *NativeCall) Value {
		s := r.thisString(c, "localeCompare")
		that := r.toString(c.Arg(0))
		return IntValue(r.localeCollator().CompareString(s.s, that))
	})
}

// splitUnits splits s on sep by code units, returning at most limit parts.
// An empty separator splits into single code units.
func splitUnits(s *jsString, sep string, limit int) []string {
	var parts []string
	n := s.Length()
	if sep == "" {
		for i := 0; i < n && len(parts) < limit; i++ {
			parts = append(parts, s.Substring(i, i+1))
		}
		return parts
	}
	sepLen := len(utf16.Encode([]rune(sep)))
	start := 0
	for len(parts) < limit {
		i := s.IndexOf(sep, start)
		if i < 0 {
			parts = append(parts, s.Substring(start, n))
			break
		}
		parts = append(parts, s.Substring(start, i))
		start = i + sepLen
	}
	return parts
}

// expandReplacement substitutes $$, $&, $` and $' in a replace template.
func expandReplacement(tmpl string, s *jsString, match string, pos, end int) string {
	if !strings.Contains(tmpl, "$") {
		return tmpl
	}
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '$' || i+1 == len(tmpl) {
			sb.WriteByte(tmpl[i])
			continue
		}
		switch tmpl[i+1] {
		case '$':
			sb.WriteByte('$')
		case '&':
			sb.WriteString(match)
		case '`':
			sb.WriteString(s.Substring(0, pos))
		case '\'':
			sb.WriteString(s.Substring(end, s.Length()))
		default:
			sb.WriteByte('$')
			continue
		}
		i++
	}
	return sb.String()
}
