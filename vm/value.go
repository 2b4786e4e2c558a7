package vm

import (
	"fmt"
	"math"
)

// Value represents an ECMAScript value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-number values
// are encoded in the NaN space using the quiet NaN prefix and tag bits to
// distinguish types.
//
// Encoding scheme:
//   - Number: Native IEEE 754 double (NaN is canonicalized on construction)
//   - Cell: Quiet NaN + tagCell + 48-bit CellRef (generation << 32 | index)
//   - Special: Quiet NaN + tagSpecial + special id (undefined/null/true/false)
//
// Strings, objects, functions and arrays are all heap cells; the Value only
// holds a non-owning reference that the collector can see.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for cell references and special ids
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagCell    uint64 = 0x0001000000000000
	tagSpecial uint64 = 0x0003000000000000
)

// Special value payloads
const (
	specialUndefined uint64 = 0
	specialNull      uint64 = 1
	specialTrue      uint64 = 2
	specialFalse     uint64 = 3
	specialHole      uint64 = 4
)

// Pre-defined special values
const (
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)

	// hole marks a missing array element. It never reaches user code.
	hole Value = Value(nanBits | tagSpecial | specialHole)
)

// canonicalNaN is the only NaN bit pattern a Value may hold.
const canonicalNaN = Value(nanBits)

// Kind is the coarse variant of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindCell
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindCell:
		return "cell"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNumber returns true if v represents a float64 value.
// A value is a number if it is not one of our tagged NaN values.
func (v Value) IsNumber() bool {
	bits := uint64(v)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}
	// Infinity has mantissa == 0
	if bits&0x000FFFFFFFFFFFFF == 0 {
		return true
	}
	if (bits & nanBits) != nanBits {
		return true
	}
	return bits&tagMask == 0
}

// IsCell returns true if v references a heap cell.
func (v Value) IsCell() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagCell)
}

// IsUndefined returns true if v is undefined.
func (v Value) IsUndefined() bool {
	return v == Undefined
}

// IsNull returns true if v is null.
func (v Value) IsNull() bool {
	return v == Null
}

// IsNullish returns true if v is undefined or null.
func (v Value) IsNullish() bool {
	return v == Undefined || v == Null
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// Kind returns the variant of v.
func (v Value) Kind() Kind {
	switch {
	case v == Undefined:
		return KindUndefined
	case v == Null:
		return KindNull
	case v == True || v == False:
		return KindBoolean
	case v.IsCell():
		return KindCell
	case v.IsNumber():
		return KindNumber
	}
	panic(fatalf(FatalInvariant, "corrupt value bits %#016x", uint64(v)))
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// Number returns v as a float64.
// Panics if v is not a number.
func (v Value) Number() float64 {
	if !v.IsNumber() {
		panic("Value.Number: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// NumberValue creates a Value from a float64. Every NaN is folded into a
// single canonical pattern so no payload can alias a tag.
func NumberValue(f float64) Value {
	if f != f {
		return canonicalNaN
	}
	return Value(math.Float64bits(f))
}

// IntValue creates a number Value from an integer.
func IntValue(n int) Value {
	return NumberValue(float64(n))
}

// ---------------------------------------------------------------------------
// Booleans
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not a boolean.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// BoolValue creates a Value from a bool.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Cell references
// ---------------------------------------------------------------------------

// CellRef is a dense handle into the heap arena: the low 32 bits index the
// cell table and the next 16 bits carry the slot generation, so a handle to
// a reclaimed and reused slot is detected rather than silently aliased.
// The zero CellRef is never allocated and stands for "no cell".
type CellRef uint64

const noCell CellRef = 0

func makeRef(index uint32, gen uint16) CellRef {
	return CellRef(uint64(gen)<<32 | uint64(index))
}

// Index returns the arena index of the handle.
func (r CellRef) Index() uint32 {
	return uint32(r)
}

// Generation returns the slot generation the handle was issued for.
func (r CellRef) Generation() uint16 {
	return uint16(r >> 32)
}

// IsNil reports whether r is the empty handle.
func (r CellRef) IsNil() bool {
	return r == noCell
}

// Value wraps the handle as a Value.
func (r CellRef) Value() Value {
	return CellValue(r)
}

func (r CellRef) String() string {
	return fmt.Sprintf("#%d.%d", r.Index(), r.Generation())
}

// Ref returns the CellRef encoded in v.
// Panics if v is not a cell.
func (v Value) Ref() CellRef {
	if !v.IsCell() {
		panic("Value.Ref: not a cell")
	}
	return CellRef(uint64(v) & payloadMask)
}

// CellValue creates a Value referencing a heap cell.
func CellValue(r CellRef) Value {
	return Value(nanBits | tagCell | (uint64(r) & payloadMask))
}

// ---------------------------------------------------------------------------
// Debug formatting
// ---------------------------------------------------------------------------

// String renders v without consulting the heap. Use Realm.ToDisplayString
// for user-facing output.
func (v Value) String() string {
	if v == hole {
		return "<hole>"
	}
	switch v.Kind() {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		if v == True {
			return "true"
		}
		return "false"
	case KindNumber:
		return numberToString(v.Number())
	default:
		return "cell" + v.Ref().String()
	}
}
