package vm

import (
	"fmt"
	"sort"
	"strconv"
)

// ObjectClass selects exotic behavior. Dispatch over it is an explicit
// switch rather than interface type assertions.
type ObjectClass uint8

const (
	ClassOrdinary ObjectClass = iota
	ClassArray
	ClassFunction
	ClassError
	ClassHost
	ClassWeakRef
	// ClassPrimitive wraps a number, string or boolean (new Number(1)).
	ClassPrimitive
	// ClassArguments is a function's unmapped arguments object. It stores
	// everything in shape slots like an ordinary object.
	ClassArguments
)

var classNames = [...]string{
	ClassOrdinary:  "Object",
	ClassArray:     "Array",
	ClassFunction:  "Function",
	ClassError:     "Error",
	ClassHost:      "Host",
	ClassWeakRef:   "WeakRef",
	ClassPrimitive: "Primitive",
	ClassArguments: "Arguments",
}

func (c ObjectClass) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("ObjectClass(%d)", c)
}

// Object is the payload of every object cell. Named properties live in
// slots laid out by shape; arrays additionally keep dense elements.
type Object struct {
	class      ObjectClass
	shape      *Shape
	slots      []Value
	proto      CellRef // weak unless the heap traces prototypes
	extensible bool

	elements       []Value // ClassArray; hole marks a missing index
	frozenElements bool

	fn         *FunctionData // ClassFunction
	host       *HostBehavior // ClassHost
	primitive  Value         // ClassPrimitive
	weakTarget CellRef       // ClassWeakRef

	// stackOverflow marks the RangeError raised on call-depth exhaustion.
	stackOverflow bool
}

// Class returns the exotic kind of the object.
func (o *Object) Class() ObjectClass { return o.class }

// Shape returns the object's current shape.
func (o *Object) Shape() *Shape { return o.shape }

// footprint estimates the bytes attributed to the object for the
// collection trigger.
func (o *Object) footprint() int {
	return 64 + 8*cap(o.slots) + 8*cap(o.elements)
}

// trace marks every strong edge of the object. The prototype link is
// traced only in strong-prototype mode; WeakRef targets never are.
func (o *Object) trace(t *Tracer, strongProtos bool) {
	t.MarkValues(o.slots)
	t.MarkValues(o.elements)
	if strongProtos {
		t.MarkRef(o.proto)
	}
	if o.class == ClassPrimitive {
		t.MarkValue(o.primitive)
	}
	if fd := o.fn; fd != nil {
		if fd.Code != nil {
			fd.Code.trace(t)
		}
		for _, c := range fd.Captures {
			t.MarkRef(c)
		}
		t.MarkRef(fd.BoundTarget)
		t.MarkValue(fd.BoundThis)
		t.MarkValues(fd.BoundArgs)
	}
	if o.host != nil && o.host.Trace != nil {
		o.host.Trace(t)
	}
}

func (o *Object) getSlot(info PropertyInfo) Value {
	return o.slots[info.Slot]
}

func (o *Object) setSlot(slot int, v Value) {
	o.slots[slot] = v
}

// addOwn appends a new named property, growing slot storage in powers of
// two.
func (o *Object) addOwn(name string, v Value, attrs PropertyAttrs) {
	next := o.shape.AddProperty(name, attrs)
	info, _ := next.Lookup(name)
	o.ensureSlots(next.SlotCount())
	o.shape = next
	o.slots[info.Slot] = v
}

func (o *Object) ensureSlots(n int) {
	if n <= len(o.slots) {
		return
	}
	if n <= cap(o.slots) {
		o.slots = o.slots[:n]
		return
	}
	grown := make([]Value, n, storageCapacity(n))
	copy(grown, o.slots)
	o.slots = grown
}

// deleteOwn removes a named property and clears its slot.
func (o *Object) deleteOwn(name string) bool {
	next, slot, ok := o.shape.DeleteProperty(name)
	if !ok {
		return false
	}
	o.shape = next
	o.slots[slot] = Undefined
	return true
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (r *Realm) newObjectWith(class ObjectClass, proto CellRef) (CellRef, *Object) {
	o := &Object{
		class:      class,
		shape:      r.shapes.Root(),
		proto:      proto,
		extensible: true,
	}
	return r.heap.allocObject(o), o
}

// NewObject allocates an ordinary object inheriting from Object.prototype.
func (r *Realm) NewObject() CellRef {
	ref, _ := r.newObjectWith(ClassOrdinary, r.intrinsics.ObjectPrototype)
	return ref
}

// NewObjectWithProto allocates an ordinary object with an explicit
// prototype; noCell gives a null prototype.
func (r *Realm) NewObjectWithProto(proto CellRef) CellRef {
	ref, _ := r.newObjectWith(ClassOrdinary, proto)
	return ref
}

// ---------------------------------------------------------------------------
// Own property access
// ---------------------------------------------------------------------------

// getOwn resolves key on the object itself, consulting exotic behavior
// before shape storage.
func (r *Realm) getOwn(ref CellRef, key string) (Value, bool) {
	o := r.heap.object(ref)
	switch o.class {
	case ClassArray:
		if idx, ok := arrayIndex(key); ok {
			if idx < uint32(len(o.elements)) && o.elements[idx] != hole {
				return o.elements[idx], true
			}
			return Undefined, false
		}
		if key == "length" {
			return IntValue(len(o.elements)), true
		}
	case ClassPrimitive:
		if r.heap.isString(o.primitive) {
			s := r.heap.str(o.primitive.Ref())
			if key == "length" {
				return IntValue(s.Length()), true
			}
			if idx, ok := arrayIndex(key); ok && int(idx) < s.Length() {
				return r.NewString(s.Substring(int(idx), int(idx)+1)), true
			}
		}
	case ClassHost:
		if o.host.Get != nil {
			if v, ok := o.host.Get(r, ref, key); ok {
				return v, true
			}
		}
	}
	if info, ok := o.shape.Lookup(key); ok {
		return o.getSlot(info), true
	}
	return Undefined, false
}

// ownAttrs reports the attributes of an own property.
func (r *Realm) ownAttrs(ref CellRef, key string) (PropertyAttrs, bool) {
	o := r.heap.object(ref)
	switch o.class {
	case ClassArray:
		if idx, ok := arrayIndex(key); ok {
			if idx < uint32(len(o.elements)) && o.elements[idx] != hole {
				if o.frozenElements {
					return AttrEnumerable, true
				}
				return AttrDefault, true
			}
			return 0, false
		}
		if key == "length" {
			if o.frozenElements {
				return AttrNone, true
			}
			return AttrWritable, true
		}
	case ClassPrimitive:
		if r.heap.isString(o.primitive) {
			s := r.heap.str(o.primitive.Ref())
			if key == "length" {
				return AttrNone, true
			}
			if idx, ok := arrayIndex(key); ok && int(idx) < s.Length() {
				return AttrEnumerable, true
			}
		}
	case ClassHost:
		if o.host.Get != nil {
			if _, ok := o.host.Get(r, ref, key); ok {
				return AttrWritable | AttrEnumerable, true
			}
		}
	}
	if info, ok := o.shape.Lookup(key); ok {
		return info.Attrs, true
	}
	return 0, false
}

// HasOwnProperty reports whether key is an own property of ref.
func (r *Realm) HasOwnProperty(ref CellRef, key string) bool {
	_, ok := r.ownAttrs(ref, key)
	return ok
}

// ---------------------------------------------------------------------------
// Prototype chain
// ---------------------------------------------------------------------------

// GetPrototype returns the prototype of ref, or noCell for null. A link to
// a reclaimed prototype reads as null.
func (r *Realm) GetPrototype(ref CellRef) CellRef {
	p := r.heap.object(ref).proto
	if p != noCell && !r.heap.Alive(p) {
		return noCell
	}
	return p
}

// SetPrototype replaces the prototype of ref, rejecting any link that would
// close a cycle and any change to a non-extensible object.
func (r *Realm) SetPrototype(ref, proto CellRef) error {
	o := r.heap.object(ref)
	if o.proto == proto {
		return nil
	}
	if !o.extensible {
		return fmt.Errorf("vm: object %s is not extensible", ref)
	}
	for p, n := proto, 0; p != noCell; p = r.GetPrototype(p) {
		if p == ref {
			return fmt.Errorf("vm: cyclic prototype chain")
		}
		if n++; n > r.maxProtoChain() {
			return fmt.Errorf("vm: cyclic prototype chain")
		}
	}
	o.proto = proto
	r.protoEpoch++
	return nil
}

// maxProtoChain bounds prototype walks. Any chain longer than the number
// of live cells must repeat a cell.
func (r *Realm) maxProtoChain() int {
	return r.heap.liveCells + 1
}

// lookup resolves key along the prototype chain starting at ref. A chain
// that revisits a cell raises a TypeError.
func (r *Realm) lookup(ref CellRef, key string) (Value, CellRef, bool) {
	var seen map[CellRef]struct{}
	for cur, depth := ref, 0; cur != noCell; depth++ {
		if v, ok := r.getOwn(cur, key); ok {
			return v, cur, true
		}
		// Short chains are the common case; track visits only once a
		// chain gets long enough to possibly loop.
		if depth >= 32 {
			if seen == nil {
				seen = make(map[CellRef]struct{})
			}
			if _, dup := seen[cur]; dup {
				r.throwTypeError("cyclic prototype chain")
			}
			seen[cur] = struct{}{}
		}
		cur = r.GetPrototype(cur)
	}
	return Undefined, noCell, false
}

// GetProperty reads key from ref or its prototype chain. The boolean is
// false when no object on the chain has the property.
func (r *Realm) GetProperty(ref CellRef, key string) (Value, bool) {
	v, _, ok := r.lookup(ref, key)
	return v, ok
}

// hasProperty implements the in operator.
func (r *Realm) hasProperty(ref CellRef, key string) bool {
	_, _, ok := r.lookup(ref, key)
	return ok
}

// ---------------------------------------------------------------------------
// Put
// ---------------------------------------------------------------------------

// put implements [[Put]]: it assigns an existing writable own property,
// refuses when the property or an inherited one is read-only, and
// otherwise adds a new own property if the object is extensible. Refusals
// throw in strict code and are silent otherwise.
func (r *Realm) put(ref CellRef, key string, v Value, strict bool) {
	if !r.tryPut(ref, key, v) && strict {
		r.throwTypeError(fmt.Sprintf("Cannot assign to read only property '%s' of %s", key, r.describe(ref.Value())))
	}
}

func (r *Realm) tryPut(ref CellRef, key string, v Value) bool {
	o := r.heap.object(ref)
	switch o.class {
	case ClassArray:
		if idx, ok := arrayIndex(key); ok {
			return r.arraySetIndex(o, idx, v)
		}
		if key == "length" {
			return r.arraySetLength(o, v)
		}
	case ClassPrimitive:
		if r.heap.isString(o.primitive) {
			if key == "length" {
				return false
			}
			if idx, ok := arrayIndex(key); ok && int(idx) < r.heap.str(o.primitive.Ref()).Length() {
				return false
			}
		}
	case ClassHost:
		if o.host.Set != nil && o.host.Set(r, ref, key, v) {
			return true
		}
	}

	if info, ok := o.shape.Lookup(key); ok {
		if !info.Attrs.Writable() {
			return false
		}
		o.setSlot(info.Slot, v)
		return true
	}
	if !r.inheritedWritable(o.proto, key) || !o.extensible {
		return false
	}
	o.addOwn(key, v, AttrDefault)
	return true
}

// inheritedWritable reports whether an assignment of key may create an own
// property, i.e. no prototype holds a read-only key.
func (r *Realm) inheritedWritable(proto CellRef, key string) bool {
	if proto == noCell || !r.heap.Alive(proto) {
		return true
	}
	_, holder, ok := r.lookup(proto, key)
	if !ok {
		return true
	}
	attrs, _ := r.ownAttrs(holder, key)
	return attrs.Writable()
}

// SetProperty assigns key on ref with non-strict semantics.
func (r *Realm) SetProperty(ref CellRef, key string, v Value) error {
	return r.protect(func() { r.put(ref, key, v, false) })
}

// ---------------------------------------------------------------------------
// Define / delete
// ---------------------------------------------------------------------------

// DefineOwnProperty creates or redefines a data property. Redefining a
// non-configurable property is refused unless nothing changes.
func (r *Realm) DefineOwnProperty(ref CellRef, key string, v Value, attrs PropertyAttrs) bool {
	o := r.heap.object(ref)
	if o.class == ClassArray {
		if idx, ok := arrayIndex(key); ok {
			if attrs != AttrDefault && !(o.frozenElements && attrs == AttrEnumerable) {
				r.throwTypeError("array elements support only default attributes")
			}
			if o.frozenElements {
				return false
			}
			if idx >= uint32(len(o.elements)) && !o.extensible {
				return false
			}
			return r.arraySetIndex(o, idx, v)
		}
		if key == "length" {
			return r.arraySetLength(o, v)
		}
	}

	info, exists := o.shape.Lookup(key)
	if !exists {
		if !o.extensible {
			return false
		}
		o.addOwn(key, v, attrs)
		if !attrs.Writable() {
			r.protoEpoch++
		}
		return true
	}
	if !info.Attrs.Configurable() {
		if attrs != info.Attrs && !(info.Attrs.Writable() && attrs == info.Attrs&^AttrWritable) {
			return false
		}
		if !info.Attrs.Writable() && !r.SameValue(o.getSlot(info), v) {
			return false
		}
	}
	o.setSlot(info.Slot, v)
	if attrs != info.Attrs {
		o.shape = o.shape.ChangeAttributes(key, attrs)
		r.protoEpoch++
	}
	return true
}

// deleteProperty implements the delete operator on an object. It returns
// false when the property exists and is non-configurable.
func (r *Realm) deleteProperty(ref CellRef, key string) bool {
	o := r.heap.object(ref)
	switch o.class {
	case ClassArray:
		if idx, ok := arrayIndex(key); ok {
			if idx < uint32(len(o.elements)) && o.elements[idx] != hole {
				if o.frozenElements {
					return false
				}
				o.elements[idx] = hole
			}
			return true
		}
		if key == "length" {
			return false
		}
	case ClassPrimitive:
		if r.heap.isString(o.primitive) {
			if key == "length" {
				return false
			}
			if idx, ok := arrayIndex(key); ok && int(idx) < r.heap.str(o.primitive.Ref()).Length() {
				return false
			}
		}
	case ClassHost:
		if o.host.Delete != nil {
			if deleted, handled := o.host.Delete(r, ref, key); handled {
				return deleted
			}
		}
	}
	info, ok := o.shape.Lookup(key)
	if !ok {
		return true
	}
	if !info.Attrs.Configurable() {
		return false
	}
	return o.deleteOwn(key)
}

// DeleteProperty removes an own property of ref. It reports false when
// the property is non-configurable.
func (r *Realm) DeleteProperty(ref CellRef, key string) bool {
	return r.deleteProperty(ref, key)
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// OwnKeys lists the own property names of ref: integer keys in ascending
// order, then named keys in insertion order. With enumerableOnly, hidden
// properties are skipped.
func (r *Realm) OwnKeys(ref CellRef, enumerableOnly bool) []string {
	o := r.heap.object(ref)
	var keys []string
	withLength := false
	switch o.class {
	case ClassArray:
		for i, e := range o.elements {
			if e != hole {
				keys = append(keys, strconv.Itoa(i))
			}
		}
		withLength = !enumerableOnly
	case ClassPrimitive:
		if r.heap.isString(o.primitive) {
			n := r.heap.str(o.primitive.Ref()).Length()
			for i := 0; i < n; i++ {
				keys = append(keys, strconv.Itoa(i))
			}
			withLength = !enumerableOnly
		}
	case ClassHost:
		if o.host.Keys != nil {
			keys = append(keys, o.host.Keys(r, ref)...)
		}
	}

	named := o.shape.Keys()
	var ints []string
	for _, k := range named {
		if enumerableOnly {
			if info, _ := o.shape.Lookup(k); !info.Attrs.Enumerable() {
				continue
			}
		}
		if _, ok := arrayIndex(k); ok {
			ints = append(ints, k)
		}
	}
	if len(ints) > 0 {
		sort.Slice(ints, func(i, j int) bool {
			a, _ := arrayIndex(ints[i])
			b, _ := arrayIndex(ints[j])
			return a < b
		})
		keys = append(keys, ints...)
	}
	for _, k := range named {
		if _, ok := arrayIndex(k); ok {
			continue
		}
		if enumerableOnly {
			if info, _ := o.shape.Lookup(k); !info.Attrs.Enumerable() {
				continue
			}
		}
		keys = append(keys, k)
	}
	if withLength {
		keys = append(keys, "length")
	}
	return keys
}

// ---------------------------------------------------------------------------
// Extensibility
// ---------------------------------------------------------------------------

// PreventExtensions makes ref non-extensible.
func (r *Realm) PreventExtensions(ref CellRef) {
	o := r.heap.object(ref)
	if o.extensible {
		o.extensible = false
		r.protoEpoch++
	}
}

// IsExtensible reports whether new properties may be added to ref.
func (r *Realm) IsExtensible(ref CellRef) bool {
	return r.heap.object(ref).extensible
}

// Freeze makes every own property read-only and non-configurable and
// prevents extensions.
func (r *Realm) Freeze(ref CellRef) {
	o := r.heap.object(ref)
	for _, k := range append([]string(nil), o.shape.Keys()...) {
		info, _ := o.shape.Lookup(k)
		o.shape = o.shape.ChangeAttributes(k, info.Attrs&^(AttrWritable|AttrConfigurable))
	}
	if o.class == ClassArray {
		o.frozenElements = true
	}
	o.extensible = false
	r.protoEpoch++
}

// IsFrozen reports whether Freeze semantics hold for ref.
func (r *Realm) IsFrozen(ref CellRef) bool {
	o := r.heap.object(ref)
	if o.extensible {
		return false
	}
	if o.class == ClassArray && !o.frozenElements {
		for _, e := range o.elements {
			if e != hole {
				return false
			}
		}
	}
	for _, k := range o.shape.Keys() {
		info, _ := o.shape.Lookup(k)
		if info.Attrs.Writable() || info.Attrs.Configurable() {
			return false
		}
	}
	return true
}

// isCallable reports whether v is an object that can be called.
func (r *Realm) isCallable(v Value) bool {
	if !r.heap.isObject(v) {
		return false
	}
	o := r.heap.object(v.Ref())
	switch o.class {
	case ClassFunction:
		return true
	case ClassHost:
		return o.host.Call != nil
	}
	return false
}
