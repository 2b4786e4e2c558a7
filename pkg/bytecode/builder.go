package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Builder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// Builder helps construct bytecode sequences. Multi-byte operands are
// little-endian; jump offsets are signed 16-bit and relative to the end of
// the jump instruction.
type Builder struct {
	bytes []byte
	err   error
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *Builder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Err returns the first encoding error, such as a jump that does not fit
// in 16 bits.
func (b *Builder) Err() error {
	return b.err
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *Builder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *Builder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *Builder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitUint16Pair appends an opcode with two 16-bit operands.
func (b *Builder) EmitUint16Pair(op Opcode, first, second uint16) {
	b.bytes = append(b.bytes, byte(op),
		byte(first), byte(first>>8),
		byte(second), byte(second>>8))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be known yet.
type Label struct {
	resolved bool
	position int   // target (if resolved)
	refs     []int // operand positions waiting for this label
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool {
	return l.resolved
}

// Position returns the resolved target offset.
func (l *Label) Position() int {
	return l.position
}

// Mark resolves a label to the current position and patches forward references.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("bytecode: label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	for _, ref := range label.refs {
		b.patch(ref, label.position-(ref+2))
	}
	label.refs = nil
}

// EmitJump emits a jump instruction targeting label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, 0, 0)
		b.patch(len(b.bytes)-2, offset)
	} else {
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0) // placeholder
	}
}

func (b *Builder) patch(pos int, offset int) {
	if offset < math.MinInt16 || offset > math.MaxInt16 {
		if b.err == nil {
			b.err = fmt.Errorf("bytecode: jump offset %d at %d exceeds 16 bits", offset, pos)
		}
		return
	}
	binary.LittleEndian.PutUint16(b.bytes[pos:], uint16(int16(offset)))
}

// ---------------------------------------------------------------------------
// Reader: sequential decoding for interpretation and disassembly
// ---------------------------------------------------------------------------

// Reader reads bytecode for validation or disassembly.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader positioned at offset 0.
func NewReader(bc []byte) *Reader {
	return &Reader{bytes: bc}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads an opcode.
func (r *Reader) ReadOpcode() Opcode {
	return Opcode(r.ReadU8())
}

// ReadU8 reads a single byte, returning 0 past the end.
func (r *Reader) ReadU8() byte {
	if r.pos >= len(r.bytes) {
		r.pos++
		return 0
	}
	v := r.bytes[r.pos]
	r.pos++
	return v
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() int8 {
	return int8(r.ReadU8())
}

// ReadUint16 reads a little-endian 16-bit value.
func (r *Reader) ReadUint16() uint16 {
	lo := r.ReadU8()
	hi := r.ReadU8()
	return uint16(lo) | uint16(hi)<<8
}

// ReadInt16 reads a little-endian signed 16-bit value.
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}
