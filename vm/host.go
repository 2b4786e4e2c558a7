package vm

// HostBehavior is the capability table of a host object. Every field is
// optional; a nil capability falls back to ordinary shape-based behavior.
// Capabilities run inside the realm's execution stream and may throw
// through the realm's throw helpers.
type HostBehavior struct {
	// Get returns an exotic own property. ok=false defers to shape storage.
	Get func(r *Realm, self CellRef, key string) (v Value, ok bool)
	// Set handles an assignment; returning false defers to shape storage.
	Set func(r *Realm, self CellRef, key string, v Value) bool
	// Delete handles delete; handled=false defers to shape storage.
	Delete func(r *Realm, self CellRef, key string) (deleted, handled bool)
	// Keys lists exotic own keys, which precede shape keys.
	Keys func(r *Realm, self CellRef) []string
	// Call makes the object callable.
	Call NativeFunction
	// Trace marks Values the host object holds outside its slots.
	Trace func(t *Tracer)
	// Finalize runs when the object is reclaimed. It must not touch the
	// heap.
	Finalize func()

	// Data is opaque embedder state.
	Data any
}

// NewHostObject allocates a host object with the given behavior and
// prototype (noCell selects Object.prototype).
func (r *Realm) NewHostObject(b *HostBehavior, proto CellRef) CellRef {
	if b == nil {
		b = &HostBehavior{}
	}
	if proto == noCell {
		proto = r.intrinsics.ObjectPrototype
	}
	ref, _ := r.newObjectWith(ClassHost, proto)
	r.heap.object(ref).host = b
	if b.Finalize != nil {
		r.heap.SetFinalizer(ref, b.Finalize)
	}
	return ref
}

// HostData returns the Data of a host object, or nil for any other value.
func (r *Realm) HostData(v Value) any {
	if !r.heap.isObject(v) {
		return nil
	}
	if o := r.heap.object(v.Ref()); o.host != nil {
		return o.host.Data
	}
	return nil
}
