package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of f and its nested functions.
func (f *FunctionCode) Disassemble() string {
	var sb strings.Builder
	f.disassembleTo(&sb, "")
	return sb.String()
}

func (f *FunctionCode) disassembleTo(sb *strings.Builder, path string) {
	name := f.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(sb, "== %s%s (params=%d locals=%d captures=%d", path, name, f.ParamCount, f.LocalCount, len(f.Captures))
	if f.Strict {
		sb.WriteString(" strict")
	}
	sb.WriteString(") ==\n")

	if len(f.Constants) > 0 {
		sb.WriteString("Constants:\n")
		for i, c := range f.Constants {
			fmt.Fprintf(sb, "  %3d: %s\n", i, formatConstant(c))
		}
	}
	if len(f.Captures) > 0 {
		sb.WriteString("Captures:\n")
		for i, c := range f.Captures {
			src := "capture"
			if c.FromParentLocal {
				src = "local"
			}
			fmt.Fprintf(sb, "  %3d: %s (%s %d)\n", i, c.Name, src, c.Index)
		}
	}
	if len(f.Handlers) > 0 {
		sb.WriteString("Handlers:\n")
		for _, h := range f.Handlers {
			fmt.Fprintf(sb, "  [%04d, %04d) -> %04d depth=%d\n", h.Start, h.End, h.Target, h.StackDepth)
		}
	}

	sb.WriteString("Code:\n")
	r := NewReader(f.Code)
	for r.HasMore() {
		sb.WriteString("  ")
		sb.WriteString(f.DisassembleInstruction(r))
		sb.WriteByte('\n')
	}

	for i, child := range f.Functions {
		sb.WriteByte('\n')
		child.disassembleTo(sb, fmt.Sprintf("%s%s/%d:", path, name, i))
	}
}

// DisassembleInstruction disassembles a single instruction at the reader's
// position and advances the reader.
func (f *FunctionCode) DisassembleInstruction(r *Reader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch op {
	case OpConst:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %d (%s)", pos, info.Name, idx, f.constantString(idx))

	case OpPushInt8:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt8())

	case OpGetLocal, OpSetLocal, OpGetBoxed, OpSetBoxed, OpMakeBox, OpBoxParam:
		slot := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %d%s", pos, info.Name, slot, f.varName(int(slot)))

	case OpGetCapture, OpSetCapture:
		idx := r.ReadUint16()
		name := ""
		if int(idx) < len(f.Captures) {
			name = " (" + f.Captures[idx].Name + ")"
		}
		return fmt.Sprintf("%04d  %s %d%s", pos, info.Name, idx, name)

	case OpGetGlobal, OpSetGlobal, OpTypeofGlobal, OpDeclareGlobal, OpDeleteGlobal,
		OpDeleteProp, OpInitProp:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, f.constantString(idx))

	case OpGetProp, OpSetProp:
		idx := r.ReadUint16()
		cache := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %s ic=%d", pos, info.Name, f.constantString(idx), cache)

	case OpNewArray:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint16())

	case OpClosure:
		idx := r.ReadUint16()
		name := ""
		if int(idx) < len(f.Functions) {
			name = " " + f.Functions[idx].Name
		}
		return fmt.Sprintf("%04d  %s %d%s", pos, info.Name, idx, name)

	case OpCall, OpNew:
		return fmt.Sprintf("%04d  %s argc=%d", pos, info.Name, r.ReadU8())

	default:
		if op.IsJump() {
			offset := r.ReadInt16()
			target := r.Position() + int(offset)
			return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)
		}
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

func (f *FunctionCode) constantString(idx uint16) string {
	if int(idx) >= len(f.Constants) {
		return fmt.Sprintf("<bad constant %d>", idx)
	}
	return formatConstant(f.Constants[idx])
}

func (f *FunctionCode) varName(slot int) string {
	if slot < len(f.VarNames) && f.VarNames[slot] != "" {
		return " (" + f.VarNames[slot] + ")"
	}
	return ""
}

func formatConstant(c Constant) string {
	if c.Kind == ConstString {
		return strconv.Quote(c.String)
	}
	return strconv.FormatFloat(c.Number, 'g', -1, 64)
}
