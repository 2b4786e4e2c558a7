package bytecode

import (
	"fmt"
	"math"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 2

// ConstantKind distinguishes entries of a constant pool.
type ConstantKind uint8

const (
	ConstNumber ConstantKind = 0
	ConstString ConstantKind = 1
)

// String returns a human-readable name for ConstantKind.
func (k ConstantKind) String() string {
	switch k {
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	default:
		return fmt.Sprintf("ConstantKind(%d)", k)
	}
}

// Constant is a single constant pool entry.
type Constant struct {
	Kind   ConstantKind
	Number float64 `cbor:",omitempty"`
	String string  `cbor:",omitempty"`
}

// CaptureDescriptor describes a captured binding of a closure.
// When FromParentLocal is set, Index is a local slot of the enclosing
// function that holds a box; otherwise Index selects one of the enclosing
// function's own captures.
type CaptureDescriptor struct {
	Name            string
	FromParentLocal bool
	Index           uint16
}

// Handler is one exception-table entry. An exception raised while the
// instruction pointer is within [Start, End) transfers control to Target
// after truncating the operand stack to StackDepth values above the locals.
type Handler struct {
	Start      uint32
	End        uint32
	Target     uint32
	StackDepth uint16
}

// Covers reports whether the handler protects the instruction at ip.
func (h Handler) Covers(ip int) bool {
	return ip >= int(h.Start) && ip < int(h.End)
}

// SourceLocation maps bytecode position to source location for debugging.
type SourceLocation struct {
	BytecodeOffset uint32 // Offset in code section
	Line           uint32 // Source line number (1-based)
	Column         uint16 // Source column number (1-based)
}

// FunctionCode is the compiled form of one function body, or of the
// top-level program. It is immutable once the compiler returns it and is
// shared by every closure created from it.
type FunctionCode struct {
	Name       string
	ParamCount uint16
	LocalCount uint16 // Includes parameters
	Strict     bool
	IsProgram  bool

	// UsesArguments asks the VM to build an arguments object at entry.
	UsesArguments bool `cbor:",omitempty"`

	Code      []byte
	Constants []Constant
	Functions []*FunctionCode // Nested function literals, indexed by OpClosure
	Captures  []CaptureDescriptor
	Handlers  []Handler

	// CacheCount is the number of property inline-cache sites in Code.
	CacheCount uint16

	SourceMap  []SourceLocation `cbor:",omitempty"`
	ParamNames []string         `cbor:",omitempty"`
	VarNames   []string         `cbor:",omitempty"` // Local slot names for debugging
}

// Program is a compiled script: the top-level FunctionCode plus metadata.
type Program struct {
	Version  uint16
	Filename string
	Main     *FunctionCode
}

// NewFunctionCode creates an empty function body.
func NewFunctionCode(name string) *FunctionCode {
	return &FunctionCode{
		Name:      name,
		Code:      make([]byte, 0, 64),
		Constants: make([]Constant, 0, 8),
	}
}

// AddNumber adds a numeric constant and returns its index.
// If an identical constant already exists, returns the existing index.
func (f *FunctionCode) AddNumber(n float64) (uint16, error) {
	bits := math.Float64bits(n)
	for i, c := range f.Constants {
		if c.Kind == ConstNumber && math.Float64bits(c.Number) == bits {
			return uint16(i), nil
		}
	}
	return f.appendConstant(Constant{Kind: ConstNumber, Number: n})
}

// AddString adds a string constant and returns its index.
// If the constant already exists, returns the existing index.
func (f *FunctionCode) AddString(s string) (uint16, error) {
	for i, c := range f.Constants {
		if c.Kind == ConstString && c.String == s {
			return uint16(i), nil
		}
	}
	return f.appendConstant(Constant{Kind: ConstString, String: s})
}

func (f *FunctionCode) appendConstant(c Constant) (uint16, error) {
	if len(f.Constants) >= math.MaxUint16 {
		return 0, fmt.Errorf("bytecode: constant pool of %q exceeds %d entries", f.Name, math.MaxUint16)
	}
	f.Constants = append(f.Constants, c)
	return uint16(len(f.Constants) - 1), nil
}

// AddFunction registers a nested function and returns its index.
func (f *FunctionCode) AddFunction(child *FunctionCode) uint16 {
	f.Functions = append(f.Functions, child)
	return uint16(len(f.Functions) - 1)
}

// AddSourceLocation records a source position for a bytecode offset.
// Consecutive entries for the same line and column are collapsed.
func (f *FunctionCode) AddSourceLocation(offset uint32, line uint32, column uint16) {
	if n := len(f.SourceMap); n > 0 {
		last := f.SourceMap[n-1]
		if last.Line == line && last.Column == column {
			return
		}
		if last.BytecodeOffset == offset {
			f.SourceMap[n-1] = SourceLocation{offset, line, column}
			return
		}
	}
	f.SourceMap = append(f.SourceMap, SourceLocation{
		BytecodeOffset: offset,
		Line:           line,
		Column:         column,
	})
}

// SourceLocationAt returns the source position for a bytecode offset,
// or zeros if no mapping exists.
func (f *FunctionCode) SourceLocationAt(offset int) (line uint32, column uint16) {
	for _, loc := range f.SourceMap {
		if int(loc.BytecodeOffset) > offset {
			break
		}
		line, column = loc.Line, loc.Column
	}
	return line, column
}

// HandlerFor returns the innermost handler covering ip. Handlers are
// recorded innermost-first by the compiler, so the first match wins.
func (f *FunctionCode) HandlerFor(ip int) (Handler, bool) {
	for _, h := range f.Handlers {
		if h.Covers(ip) {
			return h, true
		}
	}
	return Handler{}, false
}

// Walk calls fn for f and every nested function, depth first.
func (f *FunctionCode) Walk(fn func(*FunctionCode)) {
	fn(f)
	for _, child := range f.Functions {
		child.Walk(fn)
	}
}

// Validate performs structural checks on decoded or hand-built code:
// operand bounds, jump targets, handler ranges and constant indices.
func (f *FunctionCode) Validate() error {
	if f.LocalCount < f.ParamCount {
		return fmt.Errorf("bytecode: %s: local count %d below param count %d", f.Name, f.LocalCount, f.ParamCount)
	}
	r := NewReader(f.Code)
	for r.HasMore() {
		pos := r.Position()
		op := r.ReadOpcode()
		if !op.Valid() {
			return fmt.Errorf("bytecode: %s: unknown opcode 0x%02X at %d", f.Name, byte(op), pos)
		}
		n := op.OperandBytes()
		if pos+1+n > len(f.Code) {
			return fmt.Errorf("bytecode: %s: truncated operands for %s at %d", f.Name, op, pos)
		}
		switch {
		case op.IsJump():
			offset := r.ReadInt16()
			target := r.Position() + int(offset)
			if target < 0 || target > len(f.Code) {
				return fmt.Errorf("bytecode: %s: jump target %d out of range at %d", f.Name, target, pos)
			}
		case op == OpConst:
			if idx := r.ReadUint16(); int(idx) >= len(f.Constants) {
				return fmt.Errorf("bytecode: %s: constant %d out of range at %d", f.Name, idx, pos)
			}
		case op == OpClosure:
			if idx := r.ReadUint16(); int(idx) >= len(f.Functions) {
				return fmt.Errorf("bytecode: %s: function %d out of range at %d", f.Name, idx, pos)
			}
		case op.usesLocalSlot():
			if slot := r.ReadUint16(); slot >= f.LocalCount {
				return fmt.Errorf("bytecode: %s: %s slot %d out of range at %d", f.Name, op, slot, pos)
			}
		case op == OpGetCapture || op == OpSetCapture:
			if idx := r.ReadUint16(); int(idx) >= len(f.Captures) {
				return fmt.Errorf("bytecode: %s: capture %d out of range at %d", f.Name, idx, pos)
			}
		case op.usesNameConstant():
			if name := r.ReadUint16(); int(name) >= len(f.Constants) || f.Constants[name].Kind != ConstString {
				return fmt.Errorf("bytecode: %s: bad name %d for %s at %d", f.Name, name, op, pos)
			}
		case op == OpGetProp || op == OpSetProp:
			name := r.ReadUint16()
			cache := r.ReadUint16()
			if int(name) >= len(f.Constants) || f.Constants[name].Kind != ConstString {
				return fmt.Errorf("bytecode: %s: bad property name %d at %d", f.Name, name, pos)
			}
			if cache >= f.CacheCount {
				return fmt.Errorf("bytecode: %s: cache slot %d out of range at %d", f.Name, cache, pos)
			}
		default:
			r.Skip(n)
		}
	}
	for _, h := range f.Handlers {
		if h.Start > h.End || int(h.End) > len(f.Code) || int(h.Target) > len(f.Code) {
			return fmt.Errorf("bytecode: %s: handler [%d,%d)->%d out of range", f.Name, h.Start, h.End, h.Target)
		}
	}
	for _, child := range f.Functions {
		for _, d := range child.Captures {
			if (d.FromParentLocal && d.Index >= f.LocalCount) || (!d.FromParentLocal && int(d.Index) >= len(f.Captures)) {
				return fmt.Errorf("bytecode: %s: capture %q of %s out of range", f.Name, d.Name, child.Name)
			}
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// usesLocalSlot reports whether op's u16 operand is a local slot.
func (op Opcode) usesLocalSlot() bool {
	switch op {
	case OpGetLocal, OpSetLocal, OpGetBoxed, OpSetBoxed, OpMakeBox, OpBoxParam:
		return true
	}
	return false
}

// usesNameConstant reports whether op's u16 operand is a string constant
// naming a global or property.
func (op Opcode) usesNameConstant() bool {
	switch op {
	case OpGetGlobal, OpSetGlobal, OpTypeofGlobal, OpDeclareGlobal, OpDeleteGlobal, OpInitProp, OpDeleteProp:
		return true
	}
	return false
}
