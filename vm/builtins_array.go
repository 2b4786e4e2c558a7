package vm

import (
	"math"
	"slices"
	"strings"
)

// arrayLike is a live view over the receiver of an Array.prototype method.
// Dense arrays are read directly; other objects through their properties.
type arrayLike struct {
	ref CellRef
	arr *Object
	n   int
}

func (r *Realm) arrayLikeOf(v Value) arrayLike {
	ref := r.toObject(v)
	r.keep(ref.Value())
	a := arrayLike{ref: ref, n: r.lengthOf(ref)}
	if o := r.heap.object(ref); o.class == ClassArray {
		a.arr = o
	}
	return a
}

// get reads index i; ok is false for holes and missing properties.
func (r *Realm) arrayLikeGet(a arrayLike, i int) (Value, bool) {
	if a.arr != nil {
		if i < len(a.arr.elements) && a.arr.elements[i] != hole {
			return a.arr.elements[i], true
		}
		return Undefined, false
	}
	return r.GetProperty(a.ref, indexKey(i))
}

// thisArray returns the receiver as an array, for the mutating methods.
func (r *Realm) thisArray(c *NativeCall, name string) *Object {
	o, ok := r.arrayObject(c.This)
	if !ok {
		r.throwTypeError("Array.prototype." + name + " called on non-array " + r.describe(c.This))
	}
	return o
}

func (r *Realm) checkMutable(o *Object, name string) {
	if o.frozenElements || !o.extensible {
		r.throwTypeError("Cannot " + name + " on a non-extensible array")
	}
}

func (r *Realm) initArray() {
	proto := r.intrinsics.ArrayPrototype
	ctor := r.newNativeConstructor("Array", 1, func(r *Realm, c *NativeCall) Value {
		if len(c.Args) == 1 && c.Args[0].IsNumber() {
			f := c.Args[0].Number()
			n := uint32(f)
			if f < 0 || float64(n) != f || n >= maxDenseLength {
				r.throwRangeError("Invalid array length")
			}
			arr := r.NewArray(nil)
			o := r.heap.object(arr)
			o.elements = make([]Value, n)
			for i := range o.elements {
				o.elements[i] = hole
			}
			return arr.Value()
		}
		return r.NewArray(c.Args).Value()
	}, proto)
	r.intrinsics.Array = ctor
	r.hidden(r.global, "Array", ctor.Value())

	r.method(ctor, "isArray", 1, func(r *Realm, c *NativeCall) Value {
		_, ok := r.arrayObject(c.Arg(0))
		return BoolValue(ok)
	})

	// --- Mutators ---
	r.method(proto, "push", 1, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "push")
		r.checkMutable(o, "push")
		for _, v := range c.Args {
			r.arrayPush(o, v)
		}
		return IntValue(len(o.elements))
	})
	r.method(proto, "pop", 0, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "pop")
		if len(o.elements) == 0 {
			return Undefined
		}
		r.checkMutable(o, "pop")
		n := len(o.elements) - 1
		v := o.elements[n]
		o.elements[n] = Undefined
		o.elements = o.elements[:n]
		if v == hole {
			return Undefined
		}
		return v
	})
	r.method(proto, "shift", 0, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "shift")
		if len(o.elements) == 0 {
			return Undefined
		}
		r.checkMutable(o, "shift")
		v := o.elements[0]
		copy(o.elements, o.elements[1:])
		o.elements[len(o.elements)-1] = Undefined
		o.elements = o.elements[:len(o.elements)-1]
		if v == hole {
			return Undefined
		}
		return v
	})
	r.method(proto, "unshift", 1, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "unshift")
		r.checkMutable(o, "unshift")
		if len(o.elements)+len(c.Args) >= maxDenseLength {
			r.throwRangeError("Invalid array length")
		}
		o.elements = slices.Insert(o.elements, 0, c.Args...)
		return IntValue(len(o.elements))
	})
	r.method(proto, "splice", 2, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "splice")
		n := len(o.elements)
		start := r.relativeIndex(c.Arg(0), n, 0)
		del := n - start
		if len(c.Args) == 0 {
			del = 0
		} else if len(c.Args) > 1 {
			del = int(math.Min(math.Max(toIntegerOrInf(r.toNumber(c.Args[1])), 0), float64(n-start)))
		}
		var items []Value
		if len(c.Args) > 2 {
			items = c.Args[2:]
		}
		if del > 0 || len(items) > 0 {
			r.checkMutable(o, "splice")
		}
		removed := r.NewArray(o.elements[start : start+del])
		o.elements = slices.Replace(o.elements, start, start+del, items...)
		return removed.Value()
	})
	r.method(proto, "reverse", 0, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "reverse")
		if len(o.elements) > 1 {
			r.checkMutable(o, "reverse")
		}
		slices.Reverse(o.elements)
		return c.This
	})
	r.method(proto, "sort", 1, func(r *Realm, c *NativeCall) Value {
		o := r.thisArray(c, "sort")
		cmp := c.Arg(0)
		if !cmp.IsUndefined() && !r.isCallable(cmp) {
			r.throwTypeError("The comparison function must be either a function or undefined")
		}
		var vals []Value
		undefs, holes := 0, 0
		for _, e := range o.elements {
			switch {
			case e == hole:
				holes++
			case e.IsUndefined():
				undefs++
			default:
				vals = append(vals, e)
				c.Keep(e)
			}
		}
		if len(o.elements) > 1 {
			r.checkMutable(o, "sort")
		}
		slices.SortStableFunc(vals, func(a, b Value) int {
			if cmp.IsUndefined() {
				return strings.Compare(r.toString(a), r.toString(b))
			}
			f := r.toNumber(r.call(cmp, Undefined, []Value{a, b}))
			switch {
			case f < 0:
				return -1
			case f > 0:
				return 1
			}
			return 0
		})
		out := vals
		for ; undefs > 0; undefs-- {
			out = append(out, Undefined)
		}
		for ; holes > 0; holes-- {
			out = append(out, hole)
		}
		// The comparator may have resized the array meanwhile.
		o.elements = append(o.elements[:0], out...)
		return c.This
	})

	// --- Accessors ---
	r.method(proto, "slice", 2, func(r *Realm, c *NativeCall) Value {
		a := r.arrayLikeOf(c.This)
		start := r.relativeIndex(c.Arg(0), a.n, 0)
		end := r.relativeIndex(c.Arg(1), a.n, a.n)
		arr := r.NewArray(nil)
		c.Keep(arr.Value())
		out := r.heap.object(arr)
		for i := start; i < end; i++ {
			v, ok := r.arrayLikeGet(a, i)
			if !ok {
				v = hole
			}
			out.elements = append(out.elements, v)
		}
		return arr.Value()
	})
	r.method(proto, "concat", 1, func(r *Realm, c *NativeCall) Value {
		arr := r.NewArray(nil)
		out := r.heap.object(arr)
		for _, v := range append([]Value{c.This}, c.Args...) {
			if src, ok := r.arrayObject(v); ok {
				if len(out.elements)+len(src.elements) >= maxDenseLength {
					r.throwRangeError("Invalid array length")
				}
				out.elements = append(out.elements, src.elements...)
				continue
			}
			r.arrayPush(out, v)
		}
		return arr.Value()
	})
	join := func(r *Realm, c *NativeCall, sep string) Value {
		a := r.arrayLikeOf(c.This)
		parts := make([]string, a.n)
		for i := range parts {
			v, _ := r.arrayLikeGet(a, i)
			if !v.IsNullish() {
				parts[i] = r.toString(v)
			}
		}
		return r.NewString(strings.Join(parts, sep))
	}
	r.method(proto, "join", 1, func(r *Realm, c *NativeCall) Value {
		sep := ","
		if s := c.Arg(0); !s.IsUndefined() {
			sep = r.toString(s)
		}
		return join(r, c, sep)
	})
	r.method(proto, "toString", 0, func(r *Realm, c *NativeCall) Value {
		if _, ok := r.arrayObject(c.This); !ok {
			return r.NewString("[object " + r.builtinTag(c.This) + "]")
		}
		return join(r, c, ",")
	})
	r.method(proto, "indexOf", 1, func(r *Realm, c *NativeCall) Value {
		a := r.arrayLikeOf(c.This)
		start := r.relativeIndex(c.Arg(1), a.n, 0)
		for i := start; i < a.n; i++ {
			if v, ok := r.arrayLikeGet(a, i); ok && r.StrictEquals(v, c.Arg(0)) {
				return IntValue(i)
			}
		}
		return IntValue(-1)
	})
	r.method(proto, "lastIndexOf", 1, func(r *Realm, c *NativeCall) Value {
		a := r.arrayLikeOf(c.This)
		start := a.n - 1
		if len(c.Args) > 1 {
			f := toIntegerOrInf(r.toNumber(c.Args[1]))
			if f < 0 {
				f += float64(a.n)
			}
			start = int(math.Min(f, float64(a.n-1)))
		}
		for i := start; i >= 0; i-- {
			if v, ok := r.arrayLikeGet(a, i); ok && r.StrictEquals(v, c.Arg(0)) {
				return IntValue(i)
			}
		}
		return IntValue(-1)
	})

	// --- Iteration ---
	// each calls fn(value, index) for present elements until it returns
	// false. The length is fixed at the start; elements are read live.
	each := func(r *Realm, c *NativeCall, fn func(v Value, i int, res Value) bool) {
		a := r.arrayLikeOf(c.This)
		cb := r.callableArg(c, 0)
		thisArg := c.Arg(1)
		self := a.ref.Value()
		for i := 0; i < a.n; i++ {
			v, ok := r.arrayLikeGet(a, i)
			if !ok {
				continue
			}
			res := r.call(cb, thisArg, []Value{v, IntValue(i), self})
			if !fn(v, i, res) {
				return
			}
		}
	}
	r.method(proto, "forEach", 1, func(r *Realm, c *NativeCall) Value {
		each(r, c, func(Value, int, Value) bool { return true })
		return Undefined
	})
	r.method(proto, "map", 1, func(r *Realm, c *NativeCall) Value {
		n := r.arrayLikeOf(c.This).n
		arr := r.NewArray(nil)
		c.Keep(arr.Value())
		out := r.heap.object(arr)
		out.elements = make([]Value, n)
		for i := range out.elements {
			out.elements[i] = hole
		}
		each(r, c, func(_ Value, i int, res Value) bool {
			if i < len(out.elements) {
				out.elements[i] = res
			}
			return true
		})
		return arr.Value()
	})
	r.method(proto, "filter", 1, func(r *Realm, c *NativeCall) Value {
		arr := r.NewArray(nil)
		c.Keep(arr.Value())
		out := r.heap.object(arr)
		each(r, c, func(v Value, _ int, res Value) bool {
			if r.toBoolean(res) {
				r.arrayPush(out, v)
			}
			return true
		})
		return arr.Value()
	})
	r.method(proto, "some", 1, func(r *Realm, c *NativeCall) Value {
		found := false
		each(r, c, func(_ Value, _ int, res Value) bool {
			found = r.toBoolean(res)
			return !found
		})
		return BoolValue(found)
	})
	r.method(proto, "every", 1, func(r *Realm, c *NativeCall) Value {
		all := true
		each(r, c, func(_ Value, _ int, res Value) bool {
			all = r.toBoolean(res)
			return all
		})
		return BoolValue(all)
	})
	reduce := func(r *Realm, c *NativeCall, right bool) Value {
		a := r.arrayLikeOf(c.This)
		cb := r.callableArg(c, 0)
		self := a.ref.Value()
		i, step, stop := 0, 1, a.n
		if right {
			i, step, stop = a.n-1, -1, -1
		}
		var acc Value
		if len(c.Args) > 1 {
			acc = c.Args[1]
		} else {
			found := false
			for ; i != stop && !found; i += step {
				acc, found = r.arrayLikeGet(a, i)
			}
			if !found {
				r.throwTypeError("Reduce of empty array with no initial value")
			}
		}
		mark := r.keep(acc)
		for ; i != stop; i += step {
			v, ok := r.arrayLikeGet(a, i)
			if !ok {
				continue
			}
			acc = r.call(cb, Undefined, []Value{acc, v, IntValue(i), self})
			r.temps[mark] = acc
		}
		return acc
	}
	r.method(proto, "reduce", 1, func(r *Realm, c *NativeCall) Value {
		return reduce(r, c, false)
	})
	r.method(proto, "reduceRight", 1, func(r *Realm, c *NativeCall) Value {
		return reduce(r, c, true)
	})
}
