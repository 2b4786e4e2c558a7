package vm

import (
	"math"
	"strconv"
)

// maxDenseLength bounds array storage. Arrays are always dense; an index
// or length past this bound raises a RangeError instead of allocating.
const maxDenseLength = 1 << 24

// arrayIndex parses a canonical array index ("0", "17", never "01" or
// "-1").
func arrayIndex(key string) (uint32, bool) {
	n := len(key)
	if n == 0 || n > 10 {
		return 0, false
	}
	if key[0] == '0' {
		return 0, n == 1
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := key[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v >= math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}

// NewArray allocates an array holding a copy of elems.
func (r *Realm) NewArray(elems []Value) CellRef {
	ref, o := r.newObjectWith(ClassArray, r.intrinsics.ArrayPrototype)
	if len(elems) > 0 {
		o.elements = append(make([]Value, 0, len(elems)), elems...)
	}
	return ref
}

// arrayObject returns the payload of v if it is an array.
func (r *Realm) arrayObject(v Value) (*Object, bool) {
	if !r.heap.isObject(v) {
		return nil, false
	}
	o := r.heap.object(v.Ref())
	return o, o.class == ClassArray
}

func (r *Realm) arraySetIndex(o *Object, idx uint32, v Value) bool {
	if o.frozenElements {
		return false
	}
	if idx < uint32(len(o.elements)) {
		o.elements[idx] = v
		return true
	}
	if !o.extensible {
		return false
	}
	if idx >= maxDenseLength {
		r.throwRangeError("Invalid array length")
	}
	for uint32(len(o.elements)) < idx {
		o.elements = append(o.elements, hole)
	}
	o.elements = append(o.elements, v)
	return true
}

func (r *Realm) arraySetLength(o *Object, v Value) bool {
	n := r.toNumber(v)
	length := uint32(n)
	if float64(length) != n {
		r.throwRangeError("Invalid array length")
	}
	if o.frozenElements {
		return int(length) == len(o.elements)
	}
	if length >= maxDenseLength {
		r.throwRangeError("Invalid array length")
	}
	switch {
	case int(length) < len(o.elements):
		clear(o.elements[length:])
		o.elements = o.elements[:length]
	default:
		for len(o.elements) < int(length) {
			o.elements = append(o.elements, hole)
		}
	}
	return true
}

// arrayPush appends v to an array.
func (r *Realm) arrayPush(o *Object, v Value) {
	if len(o.elements) >= maxDenseLength {
		r.throwRangeError("Invalid array length")
	}
	o.elements = append(o.elements, v)
}

// ArrayElements returns a copy of the elements of an array, holes read as
// undefined.
func (r *Realm) ArrayElements(ref CellRef) []Value {
	o := r.heap.object(ref)
	out := make([]Value, len(o.elements))
	for i, e := range o.elements {
		if e == hole {
			e = Undefined
		}
		out[i] = e
	}
	return out
}

// indexKey renders an element index as a property key.
func indexKey(i int) string {
	return strconv.Itoa(i)
}

// lengthOf reads the length property of an array-like object.
func (r *Realm) lengthOf(ref CellRef) int {
	if o := r.heap.object(ref); o.class == ClassArray {
		return len(o.elements)
	}
	v, _ := r.GetProperty(ref, "length")
	n := toUint32(r.toNumber(v))
	if n > maxDenseLength {
		r.throwRangeError("Invalid array length")
	}
	return int(n)
}
