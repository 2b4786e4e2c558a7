package vm

import (
	"github.com/chazu/jsrt/pkg/bytecode"
)

// NativeFunction implements a built-in or embedder-supplied function. It
// returns the call result, or throws by calling one of the Realm's throw
// helpers (which do not return).
type NativeFunction func(r *Realm, c *NativeCall) Value

// NativeCall carries the arguments of a native invocation. Args aliases
// the interpreter stack and is only valid for the duration of the call.
type NativeCall struct {
	Callee       CellRef
	This         Value
	Args         []Value
	Constructing bool

	realm *Realm
}

// Arg returns argument i, or undefined when fewer were passed.
func (c *NativeCall) Arg(i int) Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return Undefined
}

// Keep roots v until the native call returns. A native that allocates and
// then calls back into script must keep what it allocated, since the
// callback may reach a collection safepoint.
func (c *NativeCall) Keep(v Value) Value {
	c.realm.keep(v)
	return v
}

// FunctionData is the payload of a function object: either compiled code
// with its captured boxes, a native implementation, or a bound function.
type FunctionData struct {
	Name   string
	Length int

	Code     *Code
	Captures []CellRef // box cells, one per CaptureDescriptor

	Native NativeFunction
	IsCtor bool

	BoundTarget CellRef
	BoundThis   Value
	BoundArgs   []Value
}

// IsNative reports whether the function is implemented in Go.
func (fd *FunctionData) IsNative() bool { return fd.Native != nil }

// IsBound reports whether the function was made by bind.
func (fd *FunctionData) IsBound() bool { return fd.BoundTarget != noCell }

func (fd *FunctionData) strict() bool {
	return fd.Code != nil && fd.Code.Proto.Strict
}

// Code is the realm-side view of a compiled FunctionCode: constants are
// realized as Values and each property access site gets an inline cache.
// Closures created from the same FunctionCode share one Code.
type Code struct {
	Proto    *bytecode.FunctionCode
	File     string
	Consts   []Value
	Names    []string // string constants as Go strings, for property names
	Children []*Code
	Caches   []PropertyCache

	epoch uint64 // last mark phase that reached this Code
}

// trace marks the realized constants of c and of its nested functions.
// Code is reachable only through frames and function objects, so a script
// that has finished and left no closures behind releases its constants.
func (c *Code) trace(t *Tracer) {
	if t.visit == nil {
		if c.epoch == t.epoch {
			return
		}
		c.epoch = t.epoch
	}
	t.MarkValues(c.Consts)
	for _, child := range c.Children {
		child.trace(t)
	}
}

// codeFor returns the memoized Code for fc, realizing it on first use.
// The memo is weak: sweepCodes drops entries the last collection did not
// reach.
func (r *Realm) codeFor(fc *bytecode.FunctionCode, file string) *Code {
	if c, ok := r.codes[fc]; ok {
		return c
	}
	c := &Code{
		Proto:  fc,
		File:   file,
		Consts: make([]Value, len(fc.Constants)),
		Names:  make([]string, len(fc.Constants)),
		Caches: make([]PropertyCache, fc.CacheCount),
	}
	for i, k := range fc.Constants {
		switch k.Kind {
		case bytecode.ConstNumber:
			c.Consts[i] = NumberValue(k.Number)
		case bytecode.ConstString:
			c.Consts[i] = r.constString(k.String)
			c.Names[i] = k.String
		}
	}
	r.codes[fc] = c
	c.Children = make([]*Code, len(fc.Functions))
	for i, child := range fc.Functions {
		c.Children[i] = r.codeFor(child, file)
	}
	return c
}

// ---------------------------------------------------------------------------
// Function objects
// ---------------------------------------------------------------------------

// newArguments builds the unmapped arguments object of a call: an
// array-like copy of args whose elements do not alias the parameters.
// Sloppy code also gets callee.
func (r *Realm) newArguments(callee Value, args []Value, strict bool) CellRef {
	ref, o := r.newObjectWith(ClassArguments, r.intrinsics.ObjectPrototype)
	for i, a := range args {
		o.addOwn(indexKey(i), a, AttrDefault)
	}
	o.addOwn("length", IntValue(len(args)), AttrHidden)
	if !strict {
		o.addOwn("callee", callee, AttrHidden)
	}
	return ref
}

func (r *Realm) newFunctionObject(fd *FunctionData) CellRef {
	ref, o := r.newObjectWith(ClassFunction, r.intrinsics.FunctionPrototype)
	o.fn = fd
	o.addOwn("length", IntValue(fd.Length), AttrNone)
	o.addOwn("name", r.constString(fd.Name), AttrNone)
	return ref
}

// newClosure creates a function object for compiled code. Every script
// function gets a fresh prototype object whose constructor points back.
func (r *Realm) newClosure(code *Code, captures []CellRef) CellRef {
	fd := &FunctionData{
		Name:     code.Proto.Name,
		Length:   int(code.Proto.ParamCount),
		Code:     code,
		Captures: captures,
		IsCtor:   true,
	}
	ref := r.newFunctionObject(fd)
	protoRef := r.NewObject()
	r.heap.object(protoRef).addOwn("constructor", ref.Value(), AttrHidden)
	r.heap.object(ref).addOwn("prototype", protoRef.Value(), AttrWritable)
	return ref
}

// NewNativeFunction wraps fn as a callable function object.
func (r *Realm) NewNativeFunction(name string, length int, fn NativeFunction) CellRef {
	return r.newFunctionObject(&FunctionData{Name: name, Length: length, Native: fn})
}

// newNativeConstructor wraps fn as a function usable with new, linking
// proto.constructor and ctor.prototype.
func (r *Realm) newNativeConstructor(name string, length int, fn NativeFunction, proto CellRef) CellRef {
	ref := r.newFunctionObject(&FunctionData{Name: name, Length: length, Native: fn, IsCtor: true})
	r.heap.object(ref).addOwn("prototype", proto.Value(), AttrNone)
	r.heap.object(proto).addOwn("constructor", ref.Value(), AttrHidden)
	return ref
}

// bindFunction implements Function.prototype.bind.
func (r *Realm) bindFunction(target CellRef, this Value, args []Value) CellRef {
	tfd := r.functionData(target.Value())
	name := "bound "
	length := 0
	if tfd != nil {
		name += tfd.Name
		length = max(tfd.Length-len(args), 0)
	}
	return r.newFunctionObject(&FunctionData{
		Name:        name,
		Length:      length,
		BoundTarget: target,
		BoundThis:   this,
		BoundArgs:   append([]Value(nil), args...),
		IsCtor:      tfd == nil || tfd.IsCtor,
	})
}

// functionData returns the payload of a function object, or nil.
func (r *Realm) functionData(v Value) *FunctionData {
	if !r.heap.isObject(v) {
		return nil
	}
	return r.heap.object(v.Ref()).fn
}

// functionName returns a printable name for a callee in traces.
func (r *Realm) functionName(fd *FunctionData) string {
	if fd == nil || fd.Name == "" {
		return "<anonymous>"
	}
	return fd.Name
}
