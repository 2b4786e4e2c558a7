package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/chazu/jsrt/compiler"
	"github.com/chazu/jsrt/manifest"
	"github.com/chazu/jsrt/pkg/bytecode"
	"github.com/google/uuid"
	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/parser"
	"github.com/tliron/commonlog"
	"golang.org/x/text/collate"
)

var log = commonlog.GetLogger("jsrt.vm")

// Intrinsics holds the built-in objects every realm creates at startup.
// All of them are GC roots.
type Intrinsics struct {
	ObjectPrototype   CellRef
	FunctionPrototype CellRef
	ArrayPrototype    CellRef
	StringPrototype   CellRef
	NumberPrototype   CellRef
	BooleanPrototype  CellRef
	WeakRefPrototype  CellRef

	ErrorPrototype          CellRef
	TypeErrorPrototype      CellRef
	RangeErrorPrototype     CellRef
	ReferenceErrorPrototype CellRef
	SyntaxErrorPrototype    CellRef

	Object   CellRef
	Function CellRef
	Array    CellRef
	String   CellRef
	Number   CellRef
	Boolean  CellRef
	Error    CellRef
	Math     CellRef
}

func (in *Intrinsics) trace(t *Tracer) {
	for _, ref := range []CellRef{
		in.ObjectPrototype, in.FunctionPrototype, in.ArrayPrototype,
		in.StringPrototype, in.NumberPrototype, in.BooleanPrototype,
		in.WeakRefPrototype, in.ErrorPrototype, in.TypeErrorPrototype,
		in.RangeErrorPrototype, in.ReferenceErrorPrototype,
		in.SyntaxErrorPrototype, in.Object, in.Function, in.Array,
		in.String, in.Number, in.Boolean, in.Error, in.Math,
	} {
		t.MarkRef(ref)
	}
}

// Realm is one isolated ECMAScript execution environment: a heap, its
// global object and built-ins, and an interpreter. A Realm is not safe for
// concurrent use; Interrupt is the only method callable from another
// goroutine.
type Realm struct {
	interpreter

	id     string
	cfg    manifest.Engine
	heap   *Heap
	shapes *ShapeTable

	intrinsics Intrinsics
	global     CellRef
	interned   map[string]CellRef
	constants  map[string]CellRef
	codes      map[*bytecode.FunctionCode]*Code

	// protoEpoch invalidates cached add transitions whenever a prototype
	// or a read-only property changes anywhere in the realm.
	protoEpoch uint64

	errorStacks map[CellRef][]string
	interrupts  interruptState

	// lastResult and lastThrown stay reachable until the next run so the
	// embedder can inspect them without pinning.
	lastResult Value
	lastThrown Value

	collator *collate.Collator

	out        io.Writer
	terminated bool
}

// NewRealm creates a realm with its own heap, global object and built-ins.
func NewRealm(cfg manifest.Engine) *Realm {
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = manifest.DefaultMaxCallDepth
	}
	id := uuid.New()
	r := &Realm{
		id:          id.String(),
		cfg:         cfg,
		heap:        NewHeap(cfg.GC.ThresholdBytes, cfg.MaxCells),
		shapes:      NewShapeTable(),
		interned:    make(map[string]CellRef),
		constants:   make(map[string]CellRef),
		codes:       make(map[*bytecode.FunctionCode]*Code),
		errorStacks: make(map[CellRef][]string),
		lastResult:  Undefined,
		lastThrown:  Undefined,
		out:         os.Stdout,
	}
	r.stack = make([]Value, 256)
	r.maxDepth = cfg.MaxCallDepth
	r.heap.strongPrototypes = cfg.GC.StrongPrototypeLinks
	r.heap.genSeed = binary.LittleEndian.Uint16(id[:2])
	r.heap.AddRootSource(r.traceRoots)
	r.heap.addWeakSweep(r.sweepErrorStacks)
	r.heap.addWeakSweep(r.sweepCodes)

	r.initBuiltins()
	log.Debugf("realm %s: created (max call depth %d, %d cells)", r.id, r.maxDepth, r.heap.liveCells)
	return r
}

// ID returns the realm's unique identity.
func (r *Realm) ID() string { return r.id }

// Global returns the global object.
func (r *Realm) Global() CellRef { return r.global }

// Heap exposes the realm's heap for debugging tools.
func (r *Realm) Heap() *Heap { return r.heap }

// Shapes returns the realm's shape table.
func (r *Realm) Shapes() *ShapeTable { return r.shapes }

// SetOutput redirects print.
func (r *Realm) SetOutput(w io.Writer) { r.out = w }

// Terminated reports whether the realm has been closed or aborted.
func (r *Realm) Terminated() bool { return r.terminated }

// traceRoots marks everything the realm itself keeps alive.
func (r *Realm) traceRoots(t *Tracer) {
	t.MarkValues(r.stack[:r.sp])
	t.MarkValues(r.temps)
	for _, f := range r.frames {
		t.MarkValue(f.this)
		t.MarkValue(f.arguments)
		if f.code != nil {
			f.code.trace(t)
		}
	}
	t.MarkRef(r.global)
	r.intrinsics.trace(t)
	for _, ref := range r.interned {
		t.MarkRef(ref)
	}
	t.MarkValue(r.lastResult)
	t.MarkValue(r.lastThrown)
}

// sweepCodes forgets constant strings and realized code that the mark
// phase just finished did not reach.
func (r *Realm) sweepCodes() {
	for s, ref := range r.constants {
		if !r.heap.marked(ref) {
			delete(r.constants, s)
		}
	}
	for fc, c := range r.codes {
		if c.epoch != r.heap.epoch {
			delete(r.codes, fc)
		}
	}
}

// ---------------------------------------------------------------------------
// Protection: converting panics at the API boundary
// ---------------------------------------------------------------------------

// protect runs fn and converts the signals it may raise into errors,
// restoring the interpreter to the state it had on entry.
func (r *Realm) protect(fn func()) (err error) {
	if r.terminated {
		return ErrRealmTerminated
	}
	sp, depth, natives, temps := r.sp, len(r.frames), r.nativeDepth, len(r.temps)
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if fe, ok := rec.(*FatalError); ok {
			r.terminated = true
			log.Criticalf("realm %s: %s", r.id, fe)
			panic(fe)
		}
		for len(r.frames) > depth {
			r.frames[len(r.frames)-1].state = FrameThrown
			r.popFrame()
		}
		if r.sp > sp {
			clear(r.stack[sp:r.sp])
		}
		r.sp = sp
		r.nativeDepth = natives
		r.release(temps)

		switch sig := rec.(type) {
		case *ThrowSignal:
			r.lastThrown = sig.Value
			err = r.thrownError(sig.Value, r.throwSite)
			r.throwSite = nil
		case interruptSignal:
			if depth > 0 {
				// Nested entry from a native: keep the outer run interrupted.
				r.Interrupt(sig.cause)
			}
			err = &InterruptedError{Cause: sig.cause}
		default:
			panic(rec)
		}
	}()
	fn()
	r.release(temps)
	return nil
}

// owned checks that v refers to a live cell of this realm.
func (r *Realm) owned(v Value) error {
	if v.IsCell() && !r.heap.Alive(v.Ref()) {
		return &ForeignValueError{Realm: r.id, Ref: v.Ref()}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Running code
// ---------------------------------------------------------------------------

// Compile compiles a parsed program for this realm.
func (r *Realm) Compile(prog *ast.Program) (*bytecode.Program, error) {
	name := ""
	if prog.File != nil {
		name = prog.File.Name()
	}
	return compiler.Compile(prog, compiler.Options{Filename: name})
}

// Run compiles and executes a parsed program. A script that throws
// without catching returns a *ThrownValue carrying the thrown value.
func (r *Realm) Run(prog *ast.Program) (Value, error) {
	if r.terminated {
		return Undefined, ErrRealmTerminated
	}
	p, err := r.Compile(prog)
	if err != nil {
		return Undefined, err
	}
	return r.RunCompiled(p)
}

// RunScript parses and runs source text.
func (r *Realm) RunScript(filename, src string) (Value, error) {
	prog, err := parser.ParseFile(nil, filename, src, 0)
	if err != nil {
		return Undefined, fmt.Errorf("vm: parse %s: %w", filename, err)
	}
	return r.Run(prog)
}

// RunCompiled executes a compiled program in the global scope and returns
// its completion value.
func (r *Realm) RunCompiled(p *bytecode.Program) (res Value, err error) {
	if p == nil || p.Main == nil {
		return Undefined, fmt.Errorf("vm: run: empty program")
	}
	if !p.Main.IsProgram {
		return Undefined, fmt.Errorf("vm: run: %q is not a program body", p.Main.Name)
	}
	res = Undefined
	err = r.protect(func() {
		r.lastResult, r.lastThrown = Undefined, Undefined
		code := r.codeFor(p.Main, p.Filename)
		base := len(r.frames)
		r.push(Undefined)
		r.push(r.global.Value())
		r.pushFrame(nil, code, r.sp-2, 0, false)
		res = r.execute(base)
		r.lastResult = res
	})
	return res, err
}

// Call invokes fn with the given this and arguments.
func (r *Realm) Call(fn, this Value, args ...Value) (res Value, err error) {
	for _, v := range append([]Value{fn, this}, args...) {
		if err := r.owned(v); err != nil {
			return Undefined, err
		}
	}
	res = Undefined
	err = r.protect(func() {
		res = r.call(fn, this, args)
		r.lastResult = res
	})
	return res, err
}

// Construct invokes ctor as with new.
func (r *Realm) Construct(ctor Value, args ...Value) (res Value, err error) {
	res = Undefined
	err = r.protect(func() {
		res = r.construct(ctor, args)
		r.lastResult = res
	})
	return res, err
}

// ---------------------------------------------------------------------------
// Heap management
// ---------------------------------------------------------------------------

// Collect runs a full collection and returns the number of cells freed.
func (r *Realm) Collect() int {
	if r.terminated {
		return 0
	}
	return r.heap.Collect()
}

// Pin keeps the cell behind v alive until Unpin. Non-cell values are
// ignored.
func (r *Realm) Pin(v Value) error {
	if err := r.owned(v); err != nil {
		return err
	}
	if v.IsCell() {
		r.heap.Pin(v.Ref())
	}
	return nil
}

// Unpin releases one Pin of v.
func (r *Realm) Unpin(v Value) {
	if v.IsCell() {
		r.heap.Unpin(v.Ref())
	}
}

// HeapStats reports heap occupancy and collector counters.
func (r *Realm) HeapStats() HeapStats {
	return r.heap.Stats()
}

// Close releases every cell, running host finalizers. The realm cannot be
// used afterwards.
func (r *Realm) Close() {
	if r.heap == nil {
		return
	}
	r.terminated = true
	r.frames = nil
	r.framePool = nil
	r.stack = nil
	r.sp = 0
	r.temps = nil
	r.heap.releaseAll()
	clear(r.interned)
	clear(r.constants)
	clear(r.codes)
	clear(r.errorStacks)
	log.Debugf("realm %s: closed", r.id)
	r.heap = nil
}

// ---------------------------------------------------------------------------
// Values across the boundary
// ---------------------------------------------------------------------------

// ToGo converts v to a Go value: nil, bool, float64, string, []any for
// arrays and map[string]any for other objects (own enumerable
// properties). Functions become their CellRef. Cycles are cut with nil.
func (r *Realm) ToGo(v Value) (any, error) {
	if err := r.owned(v); err != nil {
		return nil, err
	}
	return r.toGo(v, make(map[CellRef]bool)), nil
}

func (r *Realm) toGo(v Value, seen map[CellRef]bool) any {
	switch {
	case v.IsNullish():
		return nil
	case v.IsBool():
		return v.Bool()
	case v.IsNumber():
		return v.Number()
	case r.heap.isString(v):
		return r.stringOf(v).s
	}
	ref := v.Ref()
	if seen[ref] {
		return nil
	}
	seen[ref] = true
	defer delete(seen, ref)

	o := r.heap.object(ref)
	switch o.class {
	case ClassArray:
		out := make([]any, len(o.elements))
		for i, e := range o.elements {
			if e != hole {
				out[i] = r.toGo(e, seen)
			}
		}
		return out
	case ClassFunction:
		return ref
	case ClassPrimitive:
		return r.toGo(o.primitive, seen)
	}
	out := make(map[string]any)
	for _, k := range r.OwnKeys(ref, true) {
		if pv, ok := r.getOwn(ref, k); ok {
			out[k] = r.toGo(pv, seen)
		}
	}
	return out
}

// CopyValue copies v from one realm into another. Primitives, strings,
// arrays and plain objects are copied structurally with their own
// enumerable data properties; functions and host objects cannot cross.
func CopyValue(from, to *Realm, v Value) (res Value, err error) {
	if err := from.owned(v); err != nil {
		return Undefined, err
	}
	if to.terminated {
		return Undefined, ErrRealmTerminated
	}
	res = Undefined
	err = to.protect(func() {
		res = copyValue(from, to, v, make(map[CellRef]Value))
	})
	return res, err
}

func copyValue(from, to *Realm, v Value, done map[CellRef]Value) Value {
	if !v.IsCell() {
		return v
	}
	if from.heap.isString(v) {
		return to.NewString(from.stringOf(v).s)
	}
	ref := v.Ref()
	if c, ok := done[ref]; ok {
		return c
	}
	o := from.heap.object(ref)
	switch o.class {
	case ClassArray:
		arr := to.NewArray(nil)
		to.keep(arr.Value())
		done[ref] = arr.Value()
		dst := to.heap.object(arr)
		for _, e := range o.elements {
			if e == hole {
				dst.elements = append(dst.elements, hole)
				continue
			}
			to.arrayPush(dst, copyValue(from, to, e, done))
		}
		return arr.Value()
	case ClassOrdinary, ClassError, ClassArguments:
		proto := to.intrinsics.ObjectPrototype
		if o.class == ClassError {
			proto = to.intrinsics.ErrorPrototype
		}
		obj := to.NewObjectWithProto(proto)
		to.keep(obj.Value())
		done[ref] = obj.Value()
		for _, k := range from.OwnKeys(ref, o.class != ClassError) {
			pv, _ := from.getOwn(ref, k)
			attrs, _ := from.ownAttrs(ref, k)
			to.DefineOwnProperty(obj, k, copyValue(from, to, pv, done), attrs|AttrWritable|AttrConfigurable)
		}
		return obj.Value()
	case ClassPrimitive:
		return to.toObject(copyValue(from, to, o.primitive, done)).Value()
	}
	to.throwTypeError("cannot copy " + from.describe(v) + " between realms")
	return Undefined
}
