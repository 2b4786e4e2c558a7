package vm

// ---------------------------------------------------------------------------
// Error constructors
// ---------------------------------------------------------------------------

func (r *Realm) initErrors() {
	in := &r.intrinsics
	base, _ := r.newObjectWith(ClassOrdinary, in.ObjectPrototype)
	in.ErrorPrototype = base
	in.Error = r.errorConstructor("Error", base)

	r.method(base, "toString", 0, func(r *Realm, c *NativeCall) Value {
		if !r.heap.isObject(c.This) {
			r.throwTypeError("Error.prototype.toString called on non-object")
		}
		this := c.This.Ref()
		name := "Error"
		if v, _ := r.GetProperty(this, "name"); !v.IsUndefined() {
			name = r.toString(v)
		}
		msg := ""
		if v, _ := r.GetProperty(this, "message"); !v.IsUndefined() {
			msg = r.toString(v)
		}
		switch {
		case name == "":
			return r.NewString(msg)
		case msg == "":
			return r.NewString(name)
		}
		return r.NewString(name + ": " + msg)
	})

	for _, sub := range []struct {
		name  string
		proto *CellRef
	}{
		{"TypeError", &in.TypeErrorPrototype},
		{"RangeError", &in.RangeErrorPrototype},
		{"ReferenceError", &in.ReferenceErrorPrototype},
		{"SyntaxError", &in.SyntaxErrorPrototype},
	} {
		p, _ := r.newObjectWith(ClassOrdinary, base)
		*sub.proto = p
		r.errorConstructor(sub.name, p)
	}
}

// errorConstructor installs a native error constructor for proto. Called
// with or without new, it returns a fresh error object whose prototype is
// the constructor's current prototype property.
func (r *Realm) errorConstructor(name string, proto CellRef) CellRef {
	ctor := r.newNativeConstructor(name, 1, func(r *Realm, c *NativeCall) Value {
		p := proto
		if v, ok := r.getOwn(c.Callee, "prototype"); ok && r.heap.isObject(v) {
			p = v.Ref()
		}
		msg := ""
		if v := c.Arg(0); !v.IsUndefined() {
			msg = r.toString(v)
		}
		return r.newError(p, msg).Value()
	}, proto)
	r.hidden(proto, "name", r.internString(name))
	r.hidden(proto, "message", r.internString(""))
	r.hidden(r.global, name, ctor.Value())
	return ctor
}
