package vm

// ---------------------------------------------------------------------------
// WeakRef: a reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

// NewWeakRef creates a WeakRef object whose target is cleared by the
// collector once nothing else reaches it.
func (r *Realm) NewWeakRef(target CellRef) CellRef {
	ref, o := r.newObjectWith(ClassWeakRef, r.intrinsics.WeakRefPrototype)
	o.weakTarget = target
	return ref
}

// WeakRefTarget returns the target of a WeakRef, or false if v is not a
// WeakRef or its target has been collected.
func (r *Realm) WeakRefTarget(v Value) (CellRef, bool) {
	if !r.heap.isObject(v) {
		return noCell, false
	}
	o := r.heap.object(v.Ref())
	if o.class != ClassWeakRef || o.weakTarget == noCell || !r.heap.Alive(o.weakTarget) {
		return noCell, false
	}
	return o.weakTarget, true
}

func (r *Realm) initWeakRef() {
	proto := r.NewObject()
	r.intrinsics.WeakRefPrototype = proto

	ctor := r.newNativeConstructor("WeakRef", 1, func(r *Realm, c *NativeCall) Value {
		if !c.Constructing {
			r.throwTypeError("Constructor WeakRef requires 'new'")
		}
		target := c.Arg(0)
		if !r.heap.isObject(target) {
			r.throwTypeError("WeakRef: target must be an object")
		}
		return r.NewWeakRef(target.Ref()).Value()
	}, proto)
	r.hidden(r.global, "WeakRef", ctor.Value())

	r.method(proto, "deref", 0, func(r *Realm, c *NativeCall) Value {
		if !r.heap.isObject(c.This) || r.heap.object(c.This.Ref()).class != ClassWeakRef {
			r.throwTypeError("WeakRef.prototype.deref called on incompatible receiver")
		}
		if target, ok := r.WeakRefTarget(c.This); ok {
			return target.Value()
		}
		return Undefined
	})
}
