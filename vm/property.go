package vm

import (
	"math"
)

// ---------------------------------------------------------------------------
// Property access on arbitrary values
// ---------------------------------------------------------------------------

// primitiveProto returns the prototype consulted for property reads on a
// primitive, throwing for undefined and null.
func (r *Realm) primitiveProto(v Value, key string) CellRef {
	switch {
	case v.IsNullish():
		r.throwTypeError("Cannot read property '" + key + "' of " + v.String())
	case v.IsNumber():
		return r.intrinsics.NumberPrototype
	case v.IsBool():
		return r.intrinsics.BooleanPrototype
	}
	return r.intrinsics.StringPrototype
}

// getV reads key from any value. Strings expose length and indices
// directly; other primitives read through their prototype.
func (r *Realm) getV(v Value, key string) Value {
	if r.heap.isObject(v) {
		res, _ := r.GetProperty(v.Ref(), key)
		return res
	}
	if r.heap.isString(v) {
		s := r.stringOf(v)
		if key == "length" {
			return IntValue(s.Length())
		}
		if idx, ok := arrayIndex(key); ok {
			if int(idx) < s.Length() {
				return r.NewString(s.Substring(int(idx), int(idx)+1))
			}
			return Undefined
		}
	}
	res, _ := r.GetProperty(r.primitiveProto(v, key), key)
	return res
}

// putV assigns key on any value. Assignments to primitives have no
// lasting effect; strict code gets a TypeError.
func (r *Realm) putV(v Value, key string, val Value, strict bool) {
	if r.heap.isObject(v) {
		r.put(v.Ref(), key, val, strict)
		return
	}
	if v.IsNullish() {
		r.throwTypeError("Cannot set property '" + key + "' of " + v.String())
	}
	if strict {
		r.throwTypeError("Cannot create property '" + key + "' on " + r.typeOf(v) + " " + r.describe(v))
	}
}

// deleteV implements delete on any value.
func (r *Realm) deleteV(v Value, key string, strict bool) bool {
	if v.IsNullish() {
		r.throwTypeError("Cannot convert undefined or null to object")
	}
	var ok bool
	switch {
	case r.heap.isObject(v):
		ok = r.deleteProperty(v.Ref(), key)
	case r.heap.isString(v):
		ok = true
		if key == "length" {
			ok = false
		} else if idx, isIdx := arrayIndex(key); isIdx && int(idx) < r.stringOf(v).Length() {
			ok = false
		}
	default:
		ok = true
	}
	if !ok && strict {
		r.throwTypeError("Cannot delete property '" + key + "' of " + r.describe(v))
	}
	return ok
}

// elementIndex returns key as a dense index when it is an integral number.
func elementIndex(key Value) (int, bool) {
	if !key.IsNumber() {
		return 0, false
	}
	f := key.Number()
	if f < 0 || f >= maxDenseLength || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// getElem implements obj[key].
func (r *Realm) getElem(obj, key Value) Value {
	if idx, ok := elementIndex(key); ok {
		if o, isArr := r.arrayObject(obj); isArr {
			if idx < len(o.elements) && o.elements[idx] != hole {
				return o.elements[idx]
			}
		} else if r.heap.isString(obj) {
			s := r.stringOf(obj)
			if idx < s.Length() {
				return r.NewString(s.Substring(idx, idx+1))
			}
			return Undefined
		}
	}
	if obj.IsNullish() {
		r.throwTypeError("Cannot read property '" + r.toString(key) + "' of " + obj.String())
	}
	return r.getV(obj, r.propertyKey(key))
}

// setElem implements obj[key] = val.
func (r *Realm) setElem(obj, key, val Value, strict bool) {
	if idx, ok := elementIndex(key); ok {
		if o, isArr := r.arrayObject(obj); isArr && idx < len(o.elements) && !o.frozenElements {
			o.elements[idx] = val
			return
		}
	}
	if obj.IsNullish() {
		r.throwTypeError("Cannot set property '" + r.toString(key) + "' of " + obj.String())
	}
	r.putV(obj, r.propertyKey(key), val, strict)
}

// Get reads key from v with script-visible semantics.
func (r *Realm) Get(v Value, key string) (res Value, err error) {
	err = r.protect(func() { res = r.getV(v, key) })
	return res, err
}

// Set assigns key on v with non-strict semantics.
func (r *Realm) Set(v Value, key string, val Value) error {
	return r.protect(func() { r.putV(v, key, val, false) })
}
