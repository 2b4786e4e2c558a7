package bytecode

import (
	"strings"
	"testing"
)

// TestAllOpcodesHaveMetadata ensures every table entry has a real name and
// that names are unique.
func TestAllOpcodesHaveMetadata(t *testing.T) {
	seen := make(map[string]Opcode)
	for op, info := range opcodeTable {
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
		if prev, dup := seen[info.Name]; dup {
			t.Errorf("Opcodes 0x%02X and 0x%02X share name %s", byte(prev), byte(op), info.Name)
		}
		seen[info.Name] = op
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpConst, "CONST"},
		{OpGetProp, "GET_PROP"},
		{OpStrictEq, "STRICT_EQ"},
		{OpEq, "EQ"},
		{OpJump, "JUMP"},
		{OpCall, "CALL"},
		{OpReturn, "RETURN"},
		{OpClosure, "CLOSURE"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xFE)
	if op.Valid() {
		t.Fatal("0xFE should not be a valid opcode")
	}
	if got := op.String(); got != "UNKNOWN_FE" {
		t.Errorf("String() = %q, want UNKNOWN_FE", got)
	}
}

func TestJumpOpcodesHaveOffsets(t *testing.T) {
	for op := range opcodeTable {
		if op.IsJump() && op.OperandBytes() != 2 {
			t.Errorf("%s is a jump but has %d operand bytes", op, op.OperandBytes())
		}
	}
}
