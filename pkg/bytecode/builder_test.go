package bytecode

import (
	"bytes"
	"math"
	"testing"
)

func TestBuilderForwardJump(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.EmitJump(OpJump, end)
	b.Emit(OpNop)
	b.Emit(OpNop)
	b.Mark(end)
	b.Emit(OpReturnUndefined)

	r := NewReader(b.Bytes())
	if op := r.ReadOpcode(); op != OpJump {
		t.Fatalf("first op = %s, want JUMP", op)
	}
	offset := r.ReadInt16()
	if offset != 2 {
		t.Errorf("forward offset = %d, want 2", offset)
	}
	if target := r.Position() + int(offset); target != end.Position() {
		t.Errorf("jump lands at %d, label at %d", target, end.Position())
	}
}

func TestBuilderOperandEncoding(t *testing.T) {
	b := NewBuilder()
	b.EmitUint16(OpConst, 0x1234)
	b.EmitUint16Pair(OpGetProp, 0x0102, 0x0304)
	b.EmitInt8(OpPushInt8, -3)

	want := []byte{
		byte(OpConst), 0x34, 0x12,
		byte(OpGetProp), 0x02, 0x01, 0x04, 0x03,
		byte(OpPushInt8), 0xFD,
	}
	if !bytes.Equal(b.Bytes(), want) {
		t.Errorf("encoding = % x, want % x", b.Bytes(), want)
	}
}

func TestReaderDecodesOperands(t *testing.T) {
	b := NewBuilder()
	b.EmitByte(OpCall, 3)
	b.EmitInt8(OpPushInt8, -3)
	b.EmitUint16(OpGetLocal, 0x0102)

	r := NewReader(b.Bytes())
	if op := r.ReadOpcode(); op != OpCall {
		t.Fatalf("opcode = %s", op)
	}
	if argc := r.ReadU8(); argc != 3 {
		t.Errorf("argc = %d, want 3", argc)
	}
	r.ReadOpcode()
	if v := r.ReadInt8(); v != -3 {
		t.Errorf("int8 = %d, want -3", v)
	}
	r.ReadOpcode()
	if v := r.ReadUint16(); v != 0x0102 {
		t.Errorf("uint16 = %#x, want 0x0102", v)
	}
	if r.HasMore() {
		t.Error("reader did not reach the end")
	}
	if v := r.ReadU8(); v != 0 {
		t.Errorf("read past the end = %d, want 0", v)
	}
}

func TestBuilderJumpOverflow(t *testing.T) {
	b := NewBuilder()
	far := b.NewLabel()
	b.EmitJump(OpJump, far)
	for i := 0; i < math.MaxInt16+10; i++ {
		b.Emit(OpNop)
	}
	b.Mark(far)
	if b.Err() == nil {
		t.Fatal("expected an error for an out-of-range jump")
	}
}

func TestBuilderDoubleMarkPanics(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.Mark(l)
	defer func() {
		if recover() == nil {
			t.Error("marking a label twice should panic")
		}
	}()
	b.Mark(l)
}

func TestHandlerLookupInnermostFirst(t *testing.T) {
	f := NewFunctionCode("h")
	f.Code = make([]byte, 40)
	f.Handlers = []Handler{
		{Start: 10, End: 20, Target: 30},
		{Start: 0, End: 25, Target: 35},
	}
	h, ok := f.HandlerFor(12)
	if !ok || h.Target != 30 {
		t.Errorf("HandlerFor(12) = %+v, %v; want target 30", h, ok)
	}
	h, ok = f.HandlerFor(22)
	if !ok || h.Target != 35 {
		t.Errorf("HandlerFor(22) = %+v, %v; want target 35", h, ok)
	}
	if _, ok := f.HandlerFor(26); ok {
		t.Error("HandlerFor(26) should find nothing")
	}
}

func TestSourceLocationAt(t *testing.T) {
	f := NewFunctionCode("s")
	f.AddSourceLocation(0, 1, 1)
	f.AddSourceLocation(5, 2, 3)
	f.AddSourceLocation(9, 2, 3) // collapsed
	f.AddSourceLocation(12, 4, 1)

	if len(f.SourceMap) != 3 {
		t.Fatalf("source map has %d entries, want 3", len(f.SourceMap))
	}
	if line, col := f.SourceLocationAt(7); line != 2 || col != 3 {
		t.Errorf("SourceLocationAt(7) = %d:%d, want 2:3", line, col)
	}
	if line, _ := f.SourceLocationAt(20); line != 4 {
		t.Errorf("SourceLocationAt(20) line = %d, want 4", line)
	}
}

func TestConstantDeduplication(t *testing.T) {
	f := NewFunctionCode("c")
	a, _ := f.AddString("x")
	b, _ := f.AddString("x")
	n1, _ := f.AddNumber(math.Copysign(0, -1))
	n2, _ := f.AddNumber(0)
	if a != b {
		t.Errorf("identical strings got indices %d and %d", a, b)
	}
	if n1 == n2 {
		t.Error("-0 and +0 must be distinct constants")
	}
}
