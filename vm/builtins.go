package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

// initBuiltins creates the intrinsic prototypes, the constructors and the
// global object. Prototypes are allocated first so every later object can
// link to them.
func (r *Realm) initBuiltins() {
	in := &r.intrinsics

	in.ObjectPrototype, _ = r.newObjectWith(ClassOrdinary, noCell)

	fp, fo := r.newObjectWith(ClassFunction, in.ObjectPrototype)
	fo.fn = &FunctionData{Native: func(*Realm, *NativeCall) Value { return Undefined }}
	fo.addOwn("length", IntValue(0), AttrNone)
	fo.addOwn("name", r.internString(""), AttrNone)
	in.FunctionPrototype = fp

	in.ArrayPrototype, _ = r.newObjectWith(ClassArray, in.ObjectPrototype)
	in.StringPrototype = r.newPrimitiveObject(r.internString(""), in.ObjectPrototype)
	in.NumberPrototype = r.newPrimitiveObject(IntValue(0), in.ObjectPrototype)
	in.BooleanPrototype = r.newPrimitiveObject(False, in.ObjectPrototype)

	r.global = r.NewObject()

	r.initObject()
	r.initFunction()
	r.initArray()
	r.initString()
	r.initNumber()
	r.initBoolean()
	r.initMath()
	r.initErrors()
	r.initWeakRef()
	r.initGlobals()
}

func (r *Realm) newPrimitiveObject(v Value, proto CellRef) CellRef {
	ref, o := r.newObjectWith(ClassPrimitive, proto)
	o.primitive = v
	return ref
}

// method installs a native method as a hidden property of obj.
func (r *Realm) method(obj CellRef, name string, length int, fn NativeFunction) {
	f := r.NewNativeFunction(name, length, fn)
	r.heap.object(obj).addOwn(name, f.Value(), AttrHidden)
}

// constant installs a read-only, hidden, non-configurable value.
func (r *Realm) constant(obj CellRef, name string, v Value) {
	r.heap.object(obj).addOwn(name, v, AttrNone)
}

// hidden installs a writable, configurable, non-enumerable value.
func (r *Realm) hidden(obj CellRef, name string, v Value) {
	r.heap.object(obj).addOwn(name, v, AttrHidden)
}

// DefineFunction installs a native function as a global, the way
// embedders expose host capabilities to scripts.
func (r *Realm) DefineFunction(name string, length int, fn NativeFunction) CellRef {
	f := r.NewNativeFunction(name, length, fn)
	r.hidden(r.global, name, f.Value())
	return f
}

// DefineGlobal sets a global property.
func (r *Realm) DefineGlobal(name string, v Value) error {
	if err := r.owned(v); err != nil {
		return err
	}
	return r.protect(func() { r.put(r.global, name, v, false) })
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// objectArg returns argument i as an object, throwing a TypeError naming
// the calling function otherwise.
func (r *Realm) objectArg(c *NativeCall, i int, fn string) CellRef {
	v := c.Arg(i)
	if !r.heap.isObject(v) {
		r.throwTypeError(fn + " called on non-object")
	}
	return v.Ref()
}

// callableArg returns argument i if it is callable.
func (r *Realm) callableArg(c *NativeCall, i int) Value {
	v := c.Arg(i)
	if !r.isCallable(v) {
		r.throwTypeError(r.describe(v) + " is not a function")
	}
	return v
}

// relativeIndex clamps a relative start/end argument against length.
func (r *Realm) relativeIndex(v Value, length, def int) int {
	if v.IsUndefined() {
		return def
	}
	f := toIntegerOrInf(r.toNumber(v))
	if f < 0 {
		f = math.Max(float64(length)+f, 0)
	} else {
		f = math.Min(f, float64(length))
	}
	return int(f)
}

// listFromArrayLike reads the elements of an array-like value.
func (r *Realm) listFromArrayLike(v Value) []Value {
	if v.IsNullish() {
		return nil
	}
	if !r.heap.isObject(v) {
		r.throwTypeError("CreateListFromArrayLike called on non-object")
	}
	if o, ok := r.arrayObject(v); ok {
		out := make([]Value, len(o.elements))
		for i, e := range o.elements {
			if e == hole {
				e = Undefined
			}
			out[i] = e
		}
		return out
	}
	n := r.lengthOf(v.Ref())
	out := make([]Value, n)
	for i := range out {
		out[i], _ = r.GetProperty(v.Ref(), indexKey(i))
	}
	return out
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

func (r *Realm) initObject() {
	proto := r.intrinsics.ObjectPrototype
	ctor := r.newNativeConstructor("Object", 1, func(r *Realm, c *NativeCall) Value {
		v := c.Arg(0)
		if v.IsNullish() {
			return r.NewObject().Value()
		}
		return r.toObject(v).Value()
	}, proto)
	r.intrinsics.Object = ctor
	r.hidden(r.global, "Object", ctor.Value())

	r.method(ctor, "create", 2, func(r *Realm, c *NativeCall) Value {
		p := c.Arg(0)
		if !p.IsNull() && !r.heap.isObject(p) {
			r.throwTypeError("Object prototype may only be an Object or null: " + r.Inspect(p))
		}
		var pref CellRef
		if !p.IsNull() {
			pref = p.Ref()
		}
		obj := r.NewObjectWithProto(pref)
		c.Keep(obj.Value())
		if props := c.Arg(1); !props.IsUndefined() {
			r.defineProperties(obj, props)
		}
		return obj.Value()
	})
	r.method(ctor, "keys", 1, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.keys")
		return r.stringArray(r.OwnKeys(ref, true))
	})
	r.method(ctor, "getOwnPropertyNames", 1, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.getOwnPropertyNames")
		return r.stringArray(r.OwnKeys(ref, false))
	})
	r.method(ctor, "getPrototypeOf", 1, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.getPrototypeOf")
		if p := r.GetPrototype(ref); p != noCell {
			return p.Value()
		}
		return Null
	})
	r.method(ctor, "setPrototypeOf", 2, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.setPrototypeOf")
		p := c.Arg(1)
		var pref CellRef
		switch {
		case p.IsNull():
		case r.heap.isObject(p):
			pref = p.Ref()
		default:
			r.throwTypeError("Object prototype may only be an Object or null: " + r.Inspect(p))
		}
		if err := r.SetPrototype(ref, pref); err != nil {
			r.throwTypeError(strings.TrimPrefix(err.Error(), "vm: "))
		}
		return ref.Value()
	})
	r.method(ctor, "defineProperty", 3, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.defineProperty")
		key := r.propertyKey(c.Arg(1))
		r.definePropertyFromDescriptor(ref, key, c.Arg(2))
		return ref.Value()
	})
	r.method(ctor, "defineProperties", 2, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.defineProperties")
		r.defineProperties(ref, c.Arg(1))
		return ref.Value()
	})
	r.method(ctor, "getOwnPropertyDescriptor", 2, func(r *Realm, c *NativeCall) Value {
		ref := r.objectArg(c, 0, "Object.getOwnPropertyDescriptor")
		key := r.propertyKey(c.Arg(1))
		attrs, ok := r.ownAttrs(ref, key)
		if !ok {
			return Undefined
		}
		v, _ := r.getOwn(ref, key)
		c.Keep(v)
		desc := r.NewObject()
		o := r.heap.object(desc)
		o.addOwn("value", v, AttrDefault)
		o.addOwn("writable", BoolValue(attrs.Writable()), AttrDefault)
		o.addOwn("enumerable", BoolValue(attrs.Enumerable()), AttrDefault)
		o.addOwn("configurable", BoolValue(attrs.Configurable()), AttrDefault)
		return desc.Value()
	})
	r.method(ctor, "freeze", 1, func(r *Realm, c *NativeCall) Value {
		if v := c.Arg(0); r.heap.isObject(v) {
			r.Freeze(v.Ref())
		}
		return c.Arg(0)
	})
	r.method(ctor, "isFrozen", 1, func(r *Realm, c *NativeCall) Value {
		v := c.Arg(0)
		return BoolValue(!r.heap.isObject(v) || r.IsFrozen(v.Ref()))
	})
	r.method(ctor, "preventExtensions", 1, func(r *Realm, c *NativeCall) Value {
		if v := c.Arg(0); r.heap.isObject(v) {
			r.PreventExtensions(v.Ref())
		}
		return c.Arg(0)
	})
	r.method(ctor, "isExtensible", 1, func(r *Realm, c *NativeCall) Value {
		v := c.Arg(0)
		return BoolValue(r.heap.isObject(v) && r.IsExtensible(v.Ref()))
	})

	r.method(proto, "hasOwnProperty", 1, func(r *Realm, c *NativeCall) Value {
		key := r.propertyKey(c.Arg(0))
		return BoolValue(r.HasOwnProperty(r.toObject(c.This), key))
	})
	r.method(proto, "isPrototypeOf", 1, func(r *Realm, c *NativeCall) Value {
		v := c.Arg(0)
		if !r.heap.isObject(v) {
			return False
		}
		self := r.toObject(c.This)
		limit := r.maxProtoChain()
		for p, n := r.GetPrototype(v.Ref()), 0; p != noCell; p, n = r.GetPrototype(p), n+1 {
			if p == self {
				return True
			}
			if n > limit {
				r.throwTypeError("cyclic prototype chain")
			}
		}
		return False
	})
	r.method(proto, "propertyIsEnumerable", 1, func(r *Realm, c *NativeCall) Value {
		key := r.propertyKey(c.Arg(0))
		attrs, ok := r.ownAttrs(r.toObject(c.This), key)
		return BoolValue(ok && attrs.Enumerable())
	})
	r.method(proto, "toString", 0, func(r *Realm, c *NativeCall) Value {
		return r.NewString("[object " + r.builtinTag(c.This) + "]")
	})
	r.method(proto, "toLocaleString", 0, func(r *Realm, c *NativeCall) Value {
		m := r.getV(c.This, "toString")
		if !r.isCallable(m) {
			r.throwTypeError("toString is not a function")
		}
		return r.call(m, c.This, nil)
	})
	r.method(proto, "valueOf", 0, func(r *Realm, c *NativeCall) Value {
		return r.toObject(c.This).Value()
	})
}

// builtinTag is the class name reported by Object.prototype.toString.
func (r *Realm) builtinTag(v Value) string {
	switch {
	case v.IsUndefined():
		return "Undefined"
	case v.IsNull():
		return "Null"
	case v.IsNumber():
		return "Number"
	case v.IsBool():
		return "Boolean"
	case r.heap.isString(v):
		return "String"
	}
	o := r.heap.object(v.Ref())
	switch o.class {
	case ClassArray:
		return "Array"
	case ClassFunction:
		return "Function"
	case ClassError:
		return "Error"
	case ClassPrimitive:
		return r.typeName(o.primitive)
	case ClassWeakRef:
		return "WeakRef"
	case ClassArguments:
		return "Arguments"
	}
	if v.Ref() == r.intrinsics.Math {
		return "Math"
	}
	return "Object"
}

// stringArray builds an array of strings.
func (r *Realm) stringArray(keys []string) Value {
	arr := r.NewArray(nil)
	o := r.heap.object(arr)
	for _, k := range keys {
		r.arrayPush(o, r.NewString(k))
	}
	return arr.Value()
}

// definePropertyFromDescriptor implements Object.defineProperty for data
// descriptors. Missing fields default to false, or keep the current
// attribute when redefining.
func (r *Realm) definePropertyFromDescriptor(ref CellRef, key string, desc Value) {
	if !r.heap.isObject(desc) {
		r.throwTypeError("Property description must be an object: " + r.Inspect(desc))
	}
	d := desc.Ref()
	if r.hasProperty(d, "get") || r.hasProperty(d, "set") {
		r.throwTypeError("accessor properties are not supported")
	}
	current, exists := r.ownAttrs(ref, key)
	flag := func(name string, bit PropertyAttrs) PropertyAttrs {
		if v, ok := r.GetProperty(d, name); ok {
			if r.toBoolean(v) {
				return bit
			}
			return 0
		}
		if exists {
			return current & bit
		}
		return 0
	}
	attrs := flag("writable", AttrWritable) | flag("enumerable", AttrEnumerable) | flag("configurable", AttrConfigurable)
	v, hasValue := r.GetProperty(d, "value")
	if !hasValue && exists {
		v, _ = r.getOwn(ref, key)
	}
	if !r.DefineOwnProperty(ref, key, v, attrs) {
		r.throwTypeError("Cannot redefine property: " + key)
	}
}

func (r *Realm) defineProperties(ref CellRef, props Value) {
	pref := r.toObject(props)
	for _, k := range r.OwnKeys(pref, true) {
		desc, _ := r.getOwn(pref, k)
		r.definePropertyFromDescriptor(ref, k, desc)
	}
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

func (r *Realm) initFunction() {
	proto := r.intrinsics.FunctionPrototype
	ctor := r.newNativeConstructor("Function", 1, func(r *Realm, c *NativeCall) Value {
		r.throwTypeError("Function constructor is not supported")
		return Undefined
	}, proto)
	r.intrinsics.Function = ctor
	r.hidden(r.global, "Function", ctor.Value())

	r.method(proto, "call", 1, func(r *Realm, c *NativeCall) Value {
		if !r.isCallable(c.This) {
			r.throwTypeError("Function.prototype.call called on " + r.describe(c.This))
		}
		var args []Value
		if len(c.Args) > 1 {
			args = c.Args[1:]
		}
		return r.call(c.This, c.Arg(0), args)
	})
	r.method(proto, "apply", 2, func(r *Realm, c *NativeCall) Value {
		if !r.isCallable(c.This) {
			r.throwTypeError("Function.prototype.apply called on " + r.describe(c.This))
		}
		return r.call(c.This, c.Arg(0), r.listFromArrayLike(c.Arg(1)))
	})
	r.method(proto, "bind", 1, func(r *Realm, c *NativeCall) Value {
		if !r.isCallable(c.This) {
			r.throwTypeError("Bind must be called on a function")
		}
		var args []Value
		if len(c.Args) > 1 {
			args = c.Args[1:]
		}
		return r.bindFunction(c.This.Ref(), c.Arg(0), args).Value()
	})
	r.method(proto, "toString", 0, func(r *Realm, c *NativeCall) Value {
		fd := r.functionData(c.This)
		if fd == nil {
			r.throwTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		if fd.Code != nil {
			return r.NewString("function " + fd.Name + "() { [bytecode] }")
		}
		return r.NewString("function " + fd.Name + "() { [native code] }")
	})
}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

func (r *Realm) initBoolean() {
	proto := r.intrinsics.BooleanPrototype
	ctor := r.newNativeConstructor("Boolean", 1, func(r *Realm, c *NativeCall) Value {
		b := BoolValue(r.toBoolean(c.Arg(0)))
		if c.Constructing {
			return r.newPrimitiveObject(b, proto).Value()
		}
		return b
	}, proto)
	r.intrinsics.Boolean = ctor
	r.hidden(r.global, "Boolean", ctor.Value())

	thisBool := func(r *Realm, c *NativeCall) Value {
		if c.This.IsBool() {
			return c.This
		}
		if r.heap.isObject(c.This) {
			if o := r.heap.object(c.This.Ref()); o.class == ClassPrimitive && o.primitive.IsBool() {
				return o.primitive
			}
		}
		r.throwTypeError("Boolean.prototype method called on incompatible receiver")
		return Undefined
	}
	r.method(proto, "toString", 0, func(r *Realm, c *NativeCall) Value {
		return r.internString(thisBool(r, c).String())
	})
	r.method(proto, "valueOf", 0, thisBool)
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

func (r *Realm) initGlobals() {
	g := r.global
	r.constant(g, "NaN", NumberValue(math.NaN()))
	r.constant(g, "Infinity", NumberValue(math.Inf(1)))
	r.constant(g, "undefined", Undefined)

	r.method(g, "isNaN", 1, func(r *Realm, c *NativeCall) Value {
		return BoolValue(math.IsNaN(r.toNumber(c.Arg(0))))
	})
	r.method(g, "isFinite", 1, func(r *Realm, c *NativeCall) Value {
		f := r.toNumber(c.Arg(0))
		return BoolValue(!math.IsNaN(f) && !math.IsInf(f, 0))
	})
	r.method(g, "parseInt", 2, func(r *Realm, c *NativeCall) Value {
		return NumberValue(parseInt(r.toString(c.Arg(0)), int(toInt32(r.toNumber(c.Arg(1))))))
	})
	r.method(g, "parseFloat", 1, func(r *Realm, c *NativeCall) Value {
		return NumberValue(parseFloat(r.toString(c.Arg(0))))
	})
	r.method(g, "print", 0, func(r *Realm, c *NativeCall) Value {
		parts := make([]string, len(c.Args))
		for i, a := range c.Args {
			parts[i] = r.ToDisplayString(a)
		}
		if r.out != nil {
			_, _ = r.out.Write([]byte(strings.Join(parts, " ") + "\n"))
		}
		return Undefined
	})
	if r.cfg.GC.ExposeGC {
		r.method(g, "gc", 0, func(r *Realm, c *NativeCall) Value {
			return IntValue(r.heap.Collect())
		})
	}
	r.hidden(g, "globalThis", g.Value())
}

// parseInt implements the global parseInt on an already converted string.
func parseInt(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, isJSSpace)
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return math.NaN()
		}
		stripPrefix = radix == 16
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	return sign * parseRadixInt(s[:end], radix)
}

// parseFloat implements the global parseFloat on an already converted
// string.
func parseFloat(s string) float64 {
	s = strings.TrimLeftFunc(s, isJSSpace)
	rest := s
	sign := 1.0
	if rest != "" && (rest[0] == '+' || rest[0] == '-') {
		if rest[0] == '-' {
			sign = -1
		}
		rest = rest[1:]
	}
	if strings.HasPrefix(rest, "Infinity") {
		return sign * math.Inf(1)
	}
	n := decimalPrefix(s)
	if n == 0 {
		return math.NaN()
	}
	return stringToNumber(s[:n])
}
