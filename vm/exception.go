package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Throw signaling (Go panic/recover, caught by the dispatch loop)
// ---------------------------------------------------------------------------

// ThrowSignal is panicked when script code or a native throws. The
// interpreter recovers it and unwinds to the nearest covering handler.
type ThrowSignal struct {
	Value Value
}

// maxTraceEntries caps captured stack traces.
const maxTraceEntries = 32

// Throw raises v as a script exception. It does not return.
func (r *Realm) Throw(v Value) {
	panic(&ThrowSignal{Value: v})
}

// ThrowTypeError raises a TypeError with a formatted message.
func (r *Realm) ThrowTypeError(format string, args ...any) {
	r.throwTypeError(fmt.Sprintf(format, args...))
}

// ThrowRangeError raises a RangeError with a formatted message.
func (r *Realm) ThrowRangeError(format string, args ...any) {
	r.throwRangeError(fmt.Sprintf(format, args...))
}

func (r *Realm) throwTypeError(msg string) {
	r.Throw(r.newError(r.intrinsics.TypeErrorPrototype, msg).Value())
}

func (r *Realm) throwRangeError(msg string) {
	r.Throw(r.newError(r.intrinsics.RangeErrorPrototype, msg).Value())
}

func (r *Realm) throwReferenceError(msg string) {
	r.Throw(r.newError(r.intrinsics.ReferenceErrorPrototype, msg).Value())
}

// throwStackOverflow raises the catchable call-depth RangeError.
func (r *Realm) throwStackOverflow() {
	ref := r.newError(r.intrinsics.RangeErrorPrototype, "Maximum call stack size exceeded")
	r.heap.object(ref).stackOverflow = true
	log.Debugf("realm %s: call depth limit %d reached", r.id, r.maxDepth)
	r.Throw(ref.Value())
}

// ---------------------------------------------------------------------------
// Error objects
// ---------------------------------------------------------------------------

// newError allocates an Error-class object with the given prototype and
// message, capturing the current script stack.
func (r *Realm) newError(proto CellRef, msg string) CellRef {
	ref, o := r.newObjectWith(ClassError, proto)
	if msg != "" {
		o.addOwn("message", r.NewString(msg), AttrHidden)
	}
	trace := r.stackTrace(maxTraceEntries)
	r.errorStacks[ref] = trace

	header := r.errorHeader(ref)
	var sb strings.Builder
	sb.WriteString(header)
	for _, entry := range trace {
		sb.WriteString("\n    at ")
		sb.WriteString(entry)
	}
	o.addOwn("stack", r.NewString(sb.String()), AttrHidden)
	return ref
}

// NewError allocates an error of the named kind ("Error", "TypeError",
// "RangeError", "ReferenceError" or "SyntaxError").
func (r *Realm) NewError(kind, msg string) CellRef {
	proto := r.intrinsics.ErrorPrototype
	switch kind {
	case "TypeError":
		proto = r.intrinsics.TypeErrorPrototype
	case "RangeError":
		proto = r.intrinsics.RangeErrorPrototype
	case "ReferenceError":
		proto = r.intrinsics.ReferenceErrorPrototype
	case "SyntaxError":
		proto = r.intrinsics.SyntaxErrorPrototype
	}
	return r.newError(proto, msg)
}

// errorHeader renders "Name: message" from data properties only, without
// calling into script.
func (r *Realm) errorHeader(ref CellRef) string {
	name := "Error"
	if v, ok := r.GetProperty(ref, "name"); ok && r.heap.isString(v) {
		name = r.stringOf(v).s
	}
	if v, ok := r.GetProperty(ref, "message"); ok && r.heap.isString(v) {
		if msg := r.stringOf(v).s; msg != "" {
			return name + ": " + msg
		}
	}
	return name
}

// stackTrace lists the active script frames, innermost first.
func (r *Realm) stackTrace(limit int) []string {
	var out []string
	for i := len(r.frames) - 1; i >= 0 && len(out) < limit; i-- {
		f := r.frames[i]
		name := "<program>"
		if !f.code.Proto.IsProgram {
			name = r.functionName(f.fn)
		}
		line, col := f.code.Proto.SourceLocationAt(f.opStart)
		out = append(out, fmt.Sprintf("%s (%s:%d:%d)", name, f.code.File, line, col))
	}
	return out
}

// sweepErrorStacks drops traces of reclaimed error objects.
func (r *Realm) sweepErrorStacks() {
	for ref := range r.errorStacks {
		if !r.heap.marked(ref) {
			delete(r.errorStacks, ref)
		}
	}
}

// ---------------------------------------------------------------------------
// Surfacing uncaught values
// ---------------------------------------------------------------------------

// thrownError packages an uncaught value for the embedder.
func (r *Realm) thrownError(v Value, site []string) *ThrownValue {
	tv := &ThrownValue{Value: v, Message: r.Inspect(v), Stack: site}
	if r.heap.isObject(v) {
		o := r.heap.object(v.Ref())
		if o.class == ClassError {
			tv.Message = r.errorHeader(v.Ref())
			tv.Stack = r.errorStacks[v.Ref()]
			tv.stackOverflow = o.stackOverflow
		}
	}
	return tv
}

// describe renders v for use inside an error message.
func (r *Realm) describe(v Value) string {
	switch {
	case r.heap.isString(v):
		return fmt.Sprintf("%q", r.stringOf(v).s)
	case r.heap.isObject(v):
		o := r.heap.object(v.Ref())
		if fd := o.fn; fd != nil {
			return "function " + r.functionName(fd)
		}
		return "#<" + r.className(v.Ref()) + ">"
	}
	return v.String()
}

// className returns the constructor name of ref, falling back to its
// object class.
func (r *Realm) className(ref CellRef) string {
	o := r.heap.object(ref)
	if o.class == ClassArray {
		return "Array"
	}
	if proto := r.GetPrototype(ref); proto != noCell {
		if ctor, ok := r.getOwn(proto, "constructor"); ok {
			if fd := r.functionData(ctor); fd != nil && fd.Name != "" {
				return fd.Name
			}
		}
	}
	return o.class.String()
}
