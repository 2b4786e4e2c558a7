package vm

import (
	"math"

	"github.com/chazu/jsrt/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Frame: execution state for one activation
// ---------------------------------------------------------------------------

// FrameState tracks an activation through a call.
type FrameState uint8

const (
	FrameRunning  FrameState = iota // executing its own instructions
	FrameCalling                    // waiting on a nested script call
	FrameReturned                   // completed normally
	FrameThrown                     // unwound by an exception
)

func (s FrameState) String() string {
	switch s {
	case FrameRunning:
		return "running"
	case FrameCalling:
		return "calling"
	case FrameReturned:
		return "returned"
	default:
		return "thrown"
	}
}

// Frame is the activation record of one script call. Its locals occupy
// stack[bp : bp+LocalCount] and its operand stack sits above them; the
// callee and this slots sit just below bp.
type Frame struct {
	fn        *FunctionData // nil for the program frame
	code      *Code
	ip        int
	opStart   int // offset of the instruction being executed
	bp        int
	retSP     int
	this      Value
	state     FrameState
	construct bool
	tempBase  int

	// arguments is the frame's arguments object, built at entry when the
	// code refers to it.
	arguments Value
}

// State returns the frame's current state.
func (f *Frame) State() FrameState { return f.state }

// interpreter holds the per-realm execution stacks.
type interpreter struct {
	stack       []Value
	sp          int
	frames      []*Frame
	framePool   []*Frame
	nativeDepth int
	maxDepth    int

	// temps roots intermediate values held by Go code across a possible
	// safepoint (a call back into script).
	temps []Value

	// throwSite is the script stack at the last OpThrow of a non-Error
	// value.
	throwSite []string
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (r *Realm) push(v Value) {
	if r.sp == len(r.stack) {
		grown := make([]Value, 2*len(r.stack)+64)
		copy(grown, r.stack[:r.sp])
		r.stack = grown
	}
	r.stack[r.sp] = v
	r.sp++
}

func (r *Realm) pop() Value {
	r.sp--
	return r.stack[r.sp]
}

func (r *Realm) top() Value {
	return r.stack[r.sp-1]
}

// keep roots v in the temp area and returns the mark to release to.
func (r *Realm) keep(v Value) int {
	mark := len(r.temps)
	r.temps = append(r.temps, v)
	return mark
}

func (r *Realm) release(mark int) {
	if mark < len(r.temps) {
		clear(r.temps[mark:])
		r.temps = r.temps[:mark]
	}
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// checkDepth enforces MaxCallDepth across script frames and native calls.
func (r *Realm) checkDepth() {
	if len(r.frames)+r.nativeDepth >= r.maxDepth {
		r.throwStackOverflow()
	}
}

// pushFrame activates code with the callee at stack[calleeIdx], this at
// calleeIdx+1 and argc arguments above. Missing parameters and the rest
// of the locals read as undefined. Surplus arguments are dropped from the
// stack; code that uses arguments sees them through its arguments object.
func (r *Realm) pushFrame(fd *FunctionData, code *Code, calleeIdx, argc int, construct bool) {
	r.checkDepth()
	r.pollInterrupt()

	proto := code.Proto
	bp := calleeIdx + 2
	arguments := Undefined
	if proto.UsesArguments {
		arguments = r.newArguments(r.stack[calleeIdx], r.stack[bp:r.sp], proto.Strict).Value()
	}
	if params := int(proto.ParamCount); argc > params {
		clear(r.stack[bp+params : r.sp])
		r.sp = bp + params
	}
	for r.sp < bp+int(proto.LocalCount) {
		r.push(Undefined)
	}

	this := r.stack[calleeIdx+1]
	if !proto.Strict && !construct {
		switch {
		case this.IsNullish():
			this = r.global.Value()
		case !r.heap.isObject(this):
			this = r.toObject(this).Value()
		}
	}

	var f *Frame
	if n := len(r.framePool); n > 0 {
		f = r.framePool[n-1]
		r.framePool = r.framePool[:n-1]
	} else {
		f = &Frame{}
	}
	*f = Frame{
		fn:        fd,
		code:      code,
		bp:        bp,
		retSP:     calleeIdx,
		this:      this,
		construct: construct,
		tempBase:  len(r.temps),
		arguments: arguments,
	}
	if n := len(r.frames); n > 0 {
		r.frames[n-1].state = FrameCalling
	}
	r.frames = append(r.frames, f)
}

func (r *Realm) popFrame() {
	n := len(r.frames) - 1
	f := r.frames[n]
	r.frames[n] = nil
	r.frames = r.frames[:n]
	r.release(f.tempBase)
	r.framePool = append(r.framePool, f)
	if n > 0 {
		r.frames[n-1].state = FrameRunning
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// invoke starts a call laid out at stack[sp-argc-2:]. A native callee runs
// to completion and leaves its result in the callee slot; a script callee
// gets a new frame and invoke reports true.
func (r *Realm) invoke(argc int, construct bool) bool {
	calleeIdx := r.sp - argc - 2
	for {
		callee := r.stack[calleeIdx]
		if !r.isCallable(callee) {
			if construct {
				r.throwTypeError(r.describe(callee) + " is not a constructor")
			}
			r.throwTypeError(r.describe(callee) + " is not a function")
		}
		o := r.heap.object(callee.Ref())
		if o.class == ClassHost {
			if construct {
				r.throwTypeError(r.describe(callee) + " is not a constructor")
			}
			r.callNative(o.host.Call, callee.Ref(), calleeIdx, argc, false)
			return false
		}

		fd := o.fn
		if fd.IsBound() {
			n := len(fd.BoundArgs)
			for i := 0; i < n; i++ {
				r.push(Undefined)
			}
			args := r.stack[calleeIdx+2 : r.sp]
			copy(args[n:], args[:argc])
			copy(args, fd.BoundArgs)
			argc += n
			r.stack[calleeIdx] = fd.BoundTarget.Value()
			if !construct {
				r.stack[calleeIdx+1] = fd.BoundThis
			}
			continue
		}

		if construct {
			if !fd.IsCtor {
				r.throwTypeError(r.describe(callee) + " is not a constructor")
			}
			proto := r.intrinsics.ObjectPrototype
			if p, ok := r.getOwn(callee.Ref(), "prototype"); ok && r.heap.isObject(p) {
				proto = p.Ref()
			}
			this, _ := r.newObjectWith(ClassOrdinary, proto)
			r.stack[calleeIdx+1] = this.Value()
		}

		if fd.Native != nil {
			r.callNative(fd.Native, callee.Ref(), calleeIdx, argc, construct)
			return false
		}
		r.pushFrame(fd, fd.Code, calleeIdx, argc, construct)
		return true
	}
}

// callNative runs a Go function in place of a frame.
func (r *Realm) callNative(fn NativeFunction, callee CellRef, calleeIdx, argc int, construct bool) {
	r.checkDepth()
	r.nativeDepth++
	mark := len(r.temps)
	defer func() {
		r.nativeDepth--
		r.release(mark)
	}()

	this := r.stack[calleeIdx+1]
	c := &NativeCall{
		Callee:       callee,
		This:         this,
		Args:         r.stack[calleeIdx+2 : calleeIdx+2+argc],
		Constructing: construct,
		realm:        r,
	}
	res := fn(r, c)
	if construct && !r.heap.isObject(res) {
		res = this
	}
	clear(r.stack[calleeIdx:r.sp])
	r.sp = calleeIdx
	r.push(res)
}

// call invokes fn with this and args from Go and returns its result.
func (r *Realm) call(fn, this Value, args []Value) Value {
	r.push(fn)
	r.push(this)
	for _, a := range args {
		r.push(a)
	}
	if r.invoke(len(args), false) {
		return r.execute(len(r.frames) - 1)
	}
	return r.pop()
}

// construct implements new from Go.
func (r *Realm) construct(ctor Value, args []Value) Value {
	r.push(ctor)
	r.push(Undefined)
	for _, a := range args {
		r.push(a)
	}
	if r.invoke(len(args), true) {
		return r.execute(len(r.frames) - 1)
	}
	return r.pop()
}

// ---------------------------------------------------------------------------
// Execution and unwinding
// ---------------------------------------------------------------------------

// execute runs the frame at index base (and everything it calls) until
// it returns. A throw that no frame at or above base handles propagates
// to the Go caller as a *ThrowSignal panic, with those frames popped.
func (r *Realm) execute(base int) Value {
	for {
		v, sig := r.runProtected(base)
		if sig == nil {
			return v
		}
		if !r.unwind(base, sig.Value) {
			panic(sig)
		}
	}
}

func (r *Realm) runProtected(base int) (v Value, sig *ThrowSignal) {
	defer func() {
		if rec := recover(); rec != nil {
			s, ok := rec.(*ThrowSignal)
			if !ok {
				panic(rec)
			}
			sig = s
		}
	}()
	return r.dispatch(base), nil
}

// unwind searches frames from the top down to base for a handler covering
// the faulting instruction. On success the operand stack is cut back to
// the handler's depth, the thrown value pushed, and execution resumes at
// the handler.
func (r *Realm) unwind(base int, thrown Value) bool {
	for len(r.frames) > base {
		f := r.frames[len(r.frames)-1]
		if h, ok := f.code.Proto.HandlerFor(f.opStart); ok {
			depth := f.bp + int(f.code.Proto.LocalCount) + int(h.StackDepth)
			clear(r.stack[depth:r.sp])
			r.sp = depth
			r.release(f.tempBase)
			r.push(thrown)
			f.ip = int(h.Target)
			f.state = FrameRunning
			return true
		}
		f.state = FrameThrown
		clear(r.stack[f.retSP:r.sp])
		r.sp = f.retSP
		r.popFrame()
	}
	return false
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func readU16(bc []byte, ip int) int {
	return int(bc[ip]) | int(bc[ip+1])<<8
}

func readI16(bc []byte, ip int) int {
	return int(int16(uint16(bc[ip]) | uint16(bc[ip+1])<<8))
}

// dispatch is the interpreter loop. Script calls push frames and continue
// in the same loop; it returns when the frame at index base returns.
func (r *Realm) dispatch(base int) Value {
	f := r.frames[len(r.frames)-1]
	code := f.code
	bc := code.Proto.Code
	strict := code.Proto.Strict

	reload := func() {
		f = r.frames[len(r.frames)-1]
		code = f.code
		bc = code.Proto.Code
		strict = code.Proto.Strict
	}

	for {
		// Safepoint: cancellation and collection happen only here.
		if r.interrupted() {
			r.raiseInterrupt()
		}
		if r.heap.gcRequested {
			r.heap.Collect()
		}

		f.opStart = f.ip
		op := bytecode.Opcode(bc[f.ip])
		f.ip++
		s := r.stack

		switch op {
		// --- Stack operations ---
		case bytecode.OpNop:

		case bytecode.OpPop:
			r.sp--
			s[r.sp] = Undefined

		case bytecode.OpDup:
			r.push(s[r.sp-1])

		case bytecode.OpDup2:
			a, b := s[r.sp-2], s[r.sp-1]
			r.push(a)
			r.push(b)

		case bytecode.OpSwap:
			s[r.sp-1], s[r.sp-2] = s[r.sp-2], s[r.sp-1]

		case bytecode.OpRot3:
			c := s[r.sp-1]
			s[r.sp-1] = s[r.sp-2]
			s[r.sp-2] = s[r.sp-3]
			s[r.sp-3] = c

		case bytecode.OpRot4:
			d := s[r.sp-1]
			s[r.sp-1] = s[r.sp-2]
			s[r.sp-2] = s[r.sp-3]
			s[r.sp-3] = s[r.sp-4]
			s[r.sp-4] = d

		// --- Constants ---
		case bytecode.OpUndefined:
			r.push(Undefined)

		case bytecode.OpNull:
			r.push(Null)

		case bytecode.OpTrue:
			r.push(True)

		case bytecode.OpFalse:
			r.push(False)

		case bytecode.OpConst:
			idx := readU16(bc, f.ip)
			f.ip += 2
			r.push(code.Consts[idx])

		case bytecode.OpPushInt8:
			v := int8(bc[f.ip])
			f.ip++
			r.push(IntValue(int(v)))

		case bytecode.OpHole:
			r.push(hole)

		// --- Variables ---
		case bytecode.OpGetLocal:
			slot := readU16(bc, f.ip)
			f.ip += 2
			r.push(s[f.bp+slot])

		case bytecode.OpSetLocal:
			slot := readU16(bc, f.ip)
			f.ip += 2
			s[f.bp+slot] = s[r.sp-1]

		case bytecode.OpGetBoxed:
			slot := readU16(bc, f.ip)
			f.ip += 2
			r.push(r.heap.boxGet(s[f.bp+slot].Ref()))

		case bytecode.OpSetBoxed:
			slot := readU16(bc, f.ip)
			f.ip += 2
			r.heap.boxSet(s[f.bp+slot].Ref(), s[r.sp-1])

		case bytecode.OpGetCapture:
			idx := readU16(bc, f.ip)
			f.ip += 2
			r.push(r.heap.boxGet(f.fn.Captures[idx]))

		case bytecode.OpSetCapture:
			idx := readU16(bc, f.ip)
			f.ip += 2
			r.heap.boxSet(f.fn.Captures[idx], s[r.sp-1])

		case bytecode.OpMakeBox:
			slot := readU16(bc, f.ip)
			f.ip += 2
			s[f.bp+slot] = r.heap.allocBox(Undefined).Value()

		case bytecode.OpBoxParam:
			slot := readU16(bc, f.ip)
			f.ip += 2
			s[f.bp+slot] = r.heap.allocBox(s[f.bp+slot]).Value()

		case bytecode.OpGetGlobal:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			v, ok := r.GetProperty(r.global, name)
			if !ok {
				r.throwReferenceError(name + " is not defined")
			}
			r.push(v)

		case bytecode.OpSetGlobal:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			if strict && !r.hasProperty(r.global, name) {
				r.throwReferenceError(name + " is not defined")
			}
			r.put(r.global, name, s[r.sp-1], strict)

		case bytecode.OpTypeofGlobal:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			v, ok := r.GetProperty(r.global, name)
			if !ok {
				r.push(r.internString("undefined"))
			} else {
				r.push(r.internString(r.typeOf(v)))
			}

		case bytecode.OpDeclareGlobal:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			if !r.HasOwnProperty(r.global, name) {
				r.DefineOwnProperty(r.global, name, Undefined, AttrWritable|AttrEnumerable)
			}

		case bytecode.OpDeleteGlobal:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			r.push(BoolValue(r.deleteProperty(r.global, name)))

		// --- Properties ---
		case bytecode.OpGetProp:
			name := code.Names[readU16(bc, f.ip)]
			pc := &code.Caches[readU16(bc, f.ip+2)]
			f.ip += 4
			obj := s[r.sp-1]
			var v Value
			if r.heap.isObject(obj) {
				v = r.getNamedCached(obj.Ref(), name, pc)
			} else {
				v = r.getV(obj, name)
			}
			r.stack[r.sp-1] = v

		case bytecode.OpSetProp:
			name := code.Names[readU16(bc, f.ip)]
			pc := &code.Caches[readU16(bc, f.ip+2)]
			f.ip += 4
			obj, val := s[r.sp-2], s[r.sp-1]
			if r.heap.isObject(obj) {
				r.putNamedCached(obj.Ref(), name, val, strict, pc)
			} else {
				r.putV(obj, name, val, strict)
			}
			r.stack[r.sp-2] = val
			r.sp--

		case bytecode.OpGetElem:
			obj, key := s[r.sp-2], s[r.sp-1]
			v := r.getElem(obj, key)
			r.stack[r.sp-2] = v
			r.sp--

		case bytecode.OpSetElem:
			obj, key, val := s[r.sp-3], s[r.sp-2], s[r.sp-1]
			r.setElem(obj, key, val, strict)
			r.stack[r.sp-3] = val
			r.sp -= 2

		case bytecode.OpDeleteProp:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			ok := r.deleteV(s[r.sp-1], name, strict)
			r.stack[r.sp-1] = BoolValue(ok)

		case bytecode.OpDeleteElem:
			obj, key := s[r.sp-2], s[r.sp-1]
			ok := r.deleteV(obj, r.propertyKey(key), strict)
			r.stack[r.sp-2] = BoolValue(ok)
			r.sp--

		case bytecode.OpIn:
			key, obj := s[r.sp-2], s[r.sp-1]
			if !r.heap.isObject(obj) {
				r.throwTypeError("Cannot use 'in' operator to search for '" + r.toString(key) + "' in " + r.describe(obj))
			}
			ok := r.hasProperty(obj.Ref(), r.propertyKey(key))
			r.stack[r.sp-2] = BoolValue(ok)
			r.sp--

		case bytecode.OpInstanceOf:
			v, ctor := s[r.sp-2], s[r.sp-1]
			ok := r.instanceOf(v, ctor)
			r.stack[r.sp-2] = BoolValue(ok)
			r.sp--

		// --- Object creation ---
		case bytecode.OpNewObject:
			r.push(r.NewObject().Value())

		case bytecode.OpNewArray:
			n := readU16(bc, f.ip)
			f.ip += 2
			arr := r.NewArray(s[r.sp-n : r.sp])
			clear(s[r.sp-n : r.sp])
			r.sp -= n
			r.push(arr.Value())

		case bytecode.OpInitProp:
			name := code.Names[readU16(bc, f.ip)]
			f.ip += 2
			o := r.heap.object(s[r.sp-2].Ref())
			if info, ok := o.shape.Lookup(name); ok {
				o.slots[info.Slot] = s[r.sp-1]
			} else {
				o.addOwn(name, s[r.sp-1], AttrDefault)
			}
			r.sp--

		case bytecode.OpThis:
			r.push(f.this)

		case bytecode.OpCallee:
			r.push(s[f.bp-2])

		case bytecode.OpArguments:
			r.push(f.arguments)

		case bytecode.OpClosure:
			child := code.Children[readU16(bc, f.ip)]
			f.ip += 2
			descs := child.Proto.Captures
			captures := make([]CellRef, len(descs))
			for i, d := range descs {
				if d.FromParentLocal {
					captures[i] = s[f.bp+int(d.Index)].Ref()
				} else {
					captures[i] = f.fn.Captures[d.Index]
				}
			}
			r.push(r.newClosure(child, captures).Value())

		// --- Calls ---
		case bytecode.OpCall, bytecode.OpNew:
			argc := int(bc[f.ip])
			f.ip++
			if r.invoke(argc, op == bytecode.OpNew) {
				reload()
			}

		case bytecode.OpReturn, bytecode.OpReturnUndefined:
			v := Undefined
			if op == bytecode.OpReturn {
				v = r.pop()
			}
			if f.construct && !r.heap.isObject(v) {
				v = f.this
			}
			f.state = FrameReturned
			clear(r.stack[f.retSP:r.sp])
			r.sp = f.retSP
			r.popFrame()
			if len(r.frames) == base {
				return v
			}
			r.push(v)
			reload()

		case bytecode.OpThrow:
			v := r.pop()
			if !r.isErrorObject(v) {
				r.throwSite = r.stackTrace(maxTraceEntries)
			}
			r.Throw(v)

		// --- Control flow ---
		case bytecode.OpJump:
			f.ip += 2 + readI16(bc, f.ip)

		case bytecode.OpJumpIfTrue, bytecode.OpJumpIfFalse:
			want := op == bytecode.OpJumpIfTrue
			if r.toBoolean(r.pop()) == want {
				f.ip += 2 + readI16(bc, f.ip)
			} else {
				f.ip += 2
			}

		case bytecode.OpJumpIfTrueOr, bytecode.OpJumpIfFalseOr:
			want := op == bytecode.OpJumpIfTrueOr
			if r.toBoolean(s[r.sp-1]) == want {
				f.ip += 2 + readI16(bc, f.ip)
			} else {
				r.sp--
				f.ip += 2
			}

		case bytecode.OpForInPrepare:
			s[r.sp-1] = r.newPropertyIterator(s[r.sp-1]).Value()

		case bytecode.OpForInNext:
			it := r.heap.iterator(s[r.sp-1].Ref())
			if key, ok := r.nextKey(it); ok {
				f.ip += 2
				r.push(r.NewString(key))
			} else {
				r.sp--
				f.ip += 2 + readI16(bc, f.ip)
			}

		// --- Arithmetic ---
		case bytecode.OpAdd:
			a, b := s[r.sp-2], s[r.sp-1]
			var res Value
			if a.IsNumber() && b.IsNumber() {
				res = NumberValue(a.Number() + b.Number())
			} else {
				res = r.add(a, b)
			}
			r.stack[r.sp-2] = res
			r.sp--

		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			x := r.toNumber(s[r.sp-2])
			y := r.toNumber(r.stack[r.sp-1])
			var res float64
			switch op {
			case bytecode.OpSub:
				res = x - y
			case bytecode.OpMul:
				res = x * y
			case bytecode.OpDiv:
				res = x / y
			default:
				res = math.Mod(x, y)
			}
			r.stack[r.sp-2] = NumberValue(res)
			r.sp--

		case bytecode.OpNeg, bytecode.OpToNumber, bytecode.OpInc, bytecode.OpDec:
			x := r.toNumber(s[r.sp-1])
			switch op {
			case bytecode.OpNeg:
				x = -x
			case bytecode.OpInc:
				x++
			case bytecode.OpDec:
				x--
			}
			r.stack[r.sp-1] = NumberValue(x)

		case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor,
			bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr:
			x := r.toNumber(s[r.sp-2])
			y := r.toNumber(r.stack[r.sp-1])
			r.stack[r.sp-2] = NumberValue(bitwise(op, x, y))
			r.sp--

		case bytecode.OpBitNot:
			x := r.toNumber(s[r.sp-1])
			r.stack[r.sp-1] = IntValue(int(^toInt32(x)))

		// --- Comparison ---
		case bytecode.OpEq, bytecode.OpNe:
			eq := r.LooseEquals(s[r.sp-2], s[r.sp-1])
			r.stack[r.sp-2] = BoolValue(eq == (op == bytecode.OpEq))
			r.sp--

		case bytecode.OpStrictEq, bytecode.OpStrictNe:
			eq := r.StrictEquals(s[r.sp-2], s[r.sp-1])
			s[r.sp-2] = BoolValue(eq == (op == bytecode.OpStrictEq))
			r.sp--

		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			a, b := s[r.sp-2], s[r.sp-1]
			var res bool
			switch op {
			case bytecode.OpLt:
				lt, undef := r.lessThan(a, b, true)
				res = lt && !undef
			case bytecode.OpGt:
				lt, undef := r.lessThan(b, a, false)
				res = lt && !undef
			case bytecode.OpLe:
				lt, undef := r.lessThan(b, a, false)
				res = !lt && !undef
			default:
				lt, undef := r.lessThan(a, b, true)
				res = !lt && !undef
			}
			r.stack[r.sp-2] = BoolValue(res)
			r.sp--

		case bytecode.OpNot:
			s[r.sp-1] = BoolValue(!r.toBoolean(s[r.sp-1]))

		case bytecode.OpTypeof:
			s[r.sp-1] = r.internString(r.typeOf(s[r.sp-1]))

		default:
			panic(fatalf(FatalInvariant, "unknown opcode %s at %d in %s", op, f.opStart, code.Proto.Name))
		}
	}
}

func bitwise(op bytecode.Opcode, x, y float64) float64 {
	a := toInt32(x)
	shift := toUint32(y) & 31
	switch op {
	case bytecode.OpBitAnd:
		return float64(a & toInt32(y))
	case bytecode.OpBitOr:
		return float64(a | toInt32(y))
	case bytecode.OpBitXor:
		return float64(a ^ toInt32(y))
	case bytecode.OpShl:
		return float64(int32(uint32(a) << shift))
	case bytecode.OpShr:
		return float64(a >> shift)
	default:
		return float64(toUint32(x) >> shift)
	}
}

// add implements the + operator for non-number operands.
func (r *Realm) add(a, b Value) Value {
	if r.heap.isString(a) && r.heap.isString(b) {
		return r.concat(r.stringOf(a).s, r.stringOf(b).s)
	}
	pa := r.toPrimitive(a, hintDefault)
	mark := r.keep(pa)
	pb := r.toPrimitive(b, hintDefault)
	r.release(mark)
	if r.heap.isString(pa) || r.heap.isString(pb) {
		return r.concat(r.toString(pa), r.toString(pb))
	}
	return NumberValue(r.toNumber(pa) + r.toNumber(pb))
}

func (r *Realm) concat(a, b string) Value {
	if a == "" && len(b) > 1 {
		return r.heap.allocString(newJSString(b)).Value()
	}
	return r.NewString(a + b)
}

// isErrorObject reports whether v is an Error-class object.
func (r *Realm) isErrorObject(v Value) bool {
	return r.heap.isObject(v) && r.heap.object(v.Ref()).class == ClassError
}

// instanceOf implements the instanceof operator.
func (r *Realm) instanceOf(v, ctor Value) bool {
	if !r.isCallable(ctor) {
		r.throwTypeError("Right-hand side of 'instanceof' is not callable")
	}
	for {
		fd := r.functionData(ctor)
		if fd == nil || !fd.IsBound() {
			break
		}
		ctor = fd.BoundTarget.Value()
	}
	if !r.heap.isObject(v) {
		return false
	}
	protoV, _ := r.GetProperty(ctor.Ref(), "prototype")
	if !r.heap.isObject(protoV) {
		r.throwTypeError("Function has non-object prototype in instanceof check")
	}
	target := protoV.Ref()
	limit := r.maxProtoChain()
	for p, n := r.GetPrototype(v.Ref()), 0; p != noCell; p, n = r.GetPrototype(p), n+1 {
		if p == target {
			return true
		}
		if n > limit {
			r.throwTypeError("cyclic prototype chain")
		}
	}
	return false
}
