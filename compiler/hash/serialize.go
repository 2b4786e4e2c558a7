package hash

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a cache key input.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (uint16=2B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Fields: tag byte then value, in tag order
// ---------------------------------------------------------------------------

// Serialize produces the byte serialization of in that Script hashes.
func Serialize(in Input, bytecodeVersion uint16) []byte {
	s := &serializer{buf: make([]byte, 0, 16+len(in.Filename)+len(in.Source))}
	s.writeByte(HashVersion)
	s.writeByte(TagBytecodeVersion)
	s.writeUint16(bytecodeVersion)
	s.writeByte(TagFilename)
	s.writeString(in.Filename)
	s.writeByte(TagSource)
	s.writeString(in.Source)
	s.writeByte(TagStrict)
	s.writeBool(in.Strict)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}
