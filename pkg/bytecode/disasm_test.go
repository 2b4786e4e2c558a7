package bytecode

import (
	"strings"
	"testing"
)

func buildSample(t *testing.T) *FunctionCode {
	t.Helper()
	f := NewFunctionCode("sample")
	f.ParamCount = 1
	f.LocalCount = 2
	f.VarNames = []string{"x", "y"}
	f.CacheCount = 1

	b := NewBuilder()
	name, err := f.AddString("length")
	if err != nil {
		t.Fatal(err)
	}
	num, err := f.AddNumber(2.5)
	if err != nil {
		t.Fatal(err)
	}
	b.EmitUint16(OpGetLocal, 0)
	b.EmitUint16Pair(OpGetProp, name, 0)
	b.EmitUint16(OpConst, num)
	b.Emit(OpAdd)
	b.Emit(OpReturn)
	f.Code = b.Bytes()
	return f
}

func TestDisassembleSimple(t *testing.T) {
	f := buildSample(t)
	output := f.Disassemble()

	for _, want := range []string{
		"== sample (params=1 locals=2",
		"Constants:",
		`"length"`,
		"GET_LOCAL 0 (x)",
		`GET_PROP "length" ic=0`,
		"CONST 1 (2.5)",
		"ADD",
		"RETURN",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleJumpTarget(t *testing.T) {
	f := NewFunctionCode("loop")
	b := NewBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpTrue)
	b.EmitJump(OpJumpIfTrue, top)
	b.Emit(OpReturnUndefined)
	f.Code = b.Bytes()

	output := f.Disassemble()
	if !strings.Contains(output, "JUMP_IF_TRUE -4 (-> 0000)") {
		t.Errorf("unexpected jump rendering:\n%s", output)
	}
}

func TestDisassembleNested(t *testing.T) {
	outer := NewFunctionCode("outer")
	inner := NewFunctionCode("inner")
	inner.Captures = []CaptureDescriptor{{Name: "n", FromParentLocal: true, Index: 0}}
	inner.Code = []byte{byte(OpReturnUndefined)}
	idx := outer.AddFunction(inner)

	b := NewBuilder()
	b.EmitUint16(OpClosure, idx)
	b.Emit(OpReturn)
	outer.Code = b.Bytes()

	output := outer.Disassemble()
	if !strings.Contains(output, "CLOSURE 0 inner") {
		t.Errorf("missing closure line:\n%s", output)
	}
	if !strings.Contains(output, "== outer/0:inner") {
		t.Errorf("missing nested header:\n%s", output)
	}
	if !strings.Contains(output, "n (local 0)") {
		t.Errorf("missing capture listing:\n%s", output)
	}
}
