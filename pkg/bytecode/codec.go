package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic bytes for serialized programs: "JSBC" (JavaScript ByteCode).
var Magic = []byte{'J', 'S', 'B', 'C'}

// ErrBadMagic is returned when decoding data that is not a serialized program.
var ErrBadMagic = errors.New("bytecode: bad magic")

// cborEncMode uses canonical encoding so identical programs serialize to
// identical bytes, which keeps code-cache files stable.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Program: magic, a little-endian version word, then
// the CBOR body.
func Marshal(p *Program) ([]byte, error) {
	if p == nil || p.Main == nil {
		return nil, errors.New("bytecode: marshal: empty program")
	}
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(Magic) + 2 + len(body))
	buf.Write(Magic)
	var ver [2]byte
	binary.LittleEndian.PutUint16(ver[:], BytecodeVersion)
	buf.Write(ver[:])
	buf.Write(body)
	return buf.Bytes(), nil
}

// Unmarshal deserializes and validates a Program produced by Marshal.
func Unmarshal(data []byte) (*Program, error) {
	if len(data) < len(Magic)+2 || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, ErrBadMagic
	}
	ver := binary.LittleEndian.Uint16(data[len(Magic):])
	if ver != BytecodeVersion {
		return nil, fmt.Errorf("bytecode: unsupported version %d (want %d)", ver, BytecodeVersion)
	}
	var p Program
	if err := cbor.Unmarshal(data[len(Magic)+2:], &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if p.Main == nil {
		return nil, errors.New("bytecode: unmarshal program: missing main function")
	}
	if err := p.Main.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
