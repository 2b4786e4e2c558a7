package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpDup2 Opcode = 0x03 // Duplicate top two: a b -> a b a b
	OpSwap Opcode = 0x04 // Swap top two stack elements
	OpRot3 Opcode = 0x05 // Move top below the next two: a b c -> c a b
	OpRot4 Opcode = 0x06 // Move top below the next three: a b c d -> d a b c

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpUndefined Opcode = 0x10 // Push undefined
	OpNull      Opcode = 0x11 // Push null
	OpTrue      Opcode = 0x12 // Push true
	OpFalse     Opcode = 0x13 // Push false
	OpConst     Opcode = 0x14 // Push constant from pool: OpConst <index:u16>
	OpPushInt8  Opcode = 0x15 // Push small integer: OpPushInt8 <value:i8>
	OpHole      Opcode = 0x16 // Push array elision marker (consumed by OpNewArray)

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpGetLocal      Opcode = 0x20 // Push local slot: OpGetLocal <slot:u16>
	OpSetLocal      Opcode = 0x21 // Store top into local slot, keep value
	OpGetBoxed      Opcode = 0x22 // Push value of the box held in a local slot
	OpSetBoxed      Opcode = 0x23 // Store top into the box held in a local slot
	OpGetCapture    Opcode = 0x24 // Push value of captured box: OpGetCapture <index:u16>
	OpSetCapture    Opcode = 0x25 // Store top into captured box
	OpMakeBox       Opcode = 0x26 // Initialize local slot with a fresh box holding undefined
	OpBoxParam      Opcode = 0x27 // Replace local slot value with a box holding it
	OpGetGlobal     Opcode = 0x28 // Push global binding: OpGetGlobal <name:u16>
	OpSetGlobal     Opcode = 0x29 // Store top into global binding, keep value
	OpTypeofGlobal  Opcode = 0x2A // typeof of a global that may be undeclared
	OpDeclareGlobal Opcode = 0x2B // Create global var binding if absent
	OpDeleteGlobal  Opcode = 0x2C // delete of an unqualified global name

	// ========================================================================
	// Properties (0x30-0x3F)
	// ========================================================================

	OpGetProp    Opcode = 0x30 // obj -> value: OpGetProp <name:u16> <cache:u16>
	OpSetProp    Opcode = 0x31 // obj value -> value: OpSetProp <name:u16> <cache:u16>
	OpGetElem    Opcode = 0x32 // obj key -> value
	OpSetElem    Opcode = 0x33 // obj key value -> value
	OpDeleteProp Opcode = 0x34 // obj -> bool: OpDeleteProp <name:u16>
	OpDeleteElem Opcode = 0x35 // obj key -> bool
	OpIn         Opcode = 0x36 // key obj -> bool
	OpInstanceOf Opcode = 0x37 // value ctor -> bool

	// ========================================================================
	// Object creation (0x40-0x4F)
	// ========================================================================

	OpNewObject Opcode = 0x40 // Push a fresh ordinary object
	OpNewArray  Opcode = 0x41 // Pop N elements, push array: OpNewArray <count:u16>
	OpInitProp  Opcode = 0x42 // obj value -> obj, defines own data property: OpInitProp <name:u16>
	OpThis      Opcode = 0x43 // Push this
	OpClosure   Opcode = 0x44 // Create closure: OpClosure <function:u16>
	OpCallee    Opcode = 0x45 // Push the running function (named function expressions)
	OpArguments Opcode = 0x46 // Push the frame's arguments object

	// ========================================================================
	// Calls (0x50-0x5F)
	// ========================================================================

	OpCall            Opcode = 0x50 // callee this args... -> result: OpCall <argc:u8>
	OpNew             Opcode = 0x51 // ctor placeholder args... -> object: OpNew <argc:u8>
	OpReturn          Opcode = 0x52 // Return top of stack
	OpReturnUndefined Opcode = 0x53 // Return undefined
	OpThrow           Opcode = 0x54 // Throw top of stack

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJump          Opcode = 0x60 // Unconditional relative jump: OpJump <offset:i16>
	OpJumpIfTrue    Opcode = 0x61 // Pop, jump if truthy
	OpJumpIfFalse   Opcode = 0x62 // Pop, jump if falsy
	OpJumpIfTrueOr  Opcode = 0x63 // Jump keeping value if truthy, else pop
	OpJumpIfFalseOr Opcode = 0x64 // Jump keeping value if falsy, else pop
	OpForInPrepare  Opcode = 0x65 // obj -> iterator
	OpForInNext     Opcode = 0x66 // iterator -> iterator key, or jump when done: OpForInNext <offset:i16>

	// ========================================================================
	// Arithmetic and bitwise (0x70-0x7F)
	// ========================================================================

	OpAdd      Opcode = 0x70 // a b -> a + b (numeric add or string concat)
	OpSub      Opcode = 0x71
	OpMul      Opcode = 0x72
	OpDiv      Opcode = 0x73
	OpMod      Opcode = 0x74
	OpNeg      Opcode = 0x75
	OpToNumber Opcode = 0x76 // Unary plus
	OpInc      Opcode = 0x77 // ToNumber(a) + 1
	OpDec      Opcode = 0x78 // ToNumber(a) - 1
	OpBitAnd   Opcode = 0x79
	OpBitOr    Opcode = 0x7A
	OpBitXor   Opcode = 0x7B
	OpShl      Opcode = 0x7C
	OpShr      Opcode = 0x7D
	OpUShr     Opcode = 0x7E
	OpBitNot   Opcode = 0x7F

	// ========================================================================
	// Comparison and logic (0x80-0x8F)
	// ========================================================================

	OpEq       Opcode = 0x80 // Abstract (coercing) equality
	OpNe       Opcode = 0x81
	OpStrictEq Opcode = 0x82 // Strict equality, never coerces
	OpStrictNe Opcode = 0x83
	OpLt       Opcode = 0x84
	OpLe       Opcode = 0x85
	OpGt       Opcode = 0x86
	OpGe       Opcode = 0x87
	OpNot      Opcode = 0x88
	OpTypeof   Opcode = 0x89
)

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int // Number of operand bytes following the opcode
	StackEffect  int // Net stack change (variable-arity opcodes report the fixed part)
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:  {"NOP", 0, 0},
	OpPop:  {"POP", 0, -1},
	OpDup:  {"DUP", 0, 1},
	OpDup2: {"DUP2", 0, 2},
	OpSwap: {"SWAP", 0, 0},
	OpRot3: {"ROT3", 0, 0},
	OpRot4: {"ROT4", 0, 0},

	OpUndefined: {"UNDEFINED", 0, 1},
	OpNull:      {"NULL", 0, 1},
	OpTrue:      {"TRUE", 0, 1},
	OpFalse:     {"FALSE", 0, 1},
	OpConst:     {"CONST", 2, 1},
	OpPushInt8:  {"PUSH_INT8", 1, 1},
	OpHole:      {"HOLE", 0, 1},

	OpGetLocal:      {"GET_LOCAL", 2, 1},
	OpSetLocal:      {"SET_LOCAL", 2, 0},
	OpGetBoxed:      {"GET_BOXED", 2, 1},
	OpSetBoxed:      {"SET_BOXED", 2, 0},
	OpGetCapture:    {"GET_CAPTURE", 2, 1},
	OpSetCapture:    {"SET_CAPTURE", 2, 0},
	OpMakeBox:       {"MAKE_BOX", 2, 0},
	OpBoxParam:      {"BOX_PARAM", 2, 0},
	OpGetGlobal:     {"GET_GLOBAL", 2, 1},
	OpSetGlobal:     {"SET_GLOBAL", 2, 0},
	OpTypeofGlobal:  {"TYPEOF_GLOBAL", 2, 1},
	OpDeclareGlobal: {"DECLARE_GLOBAL", 2, 0},
	OpDeleteGlobal:  {"DELETE_GLOBAL", 2, 1},

	OpGetProp:    {"GET_PROP", 4, 0},
	OpSetProp:    {"SET_PROP", 4, -1},
	OpGetElem:    {"GET_ELEM", 0, -1},
	OpSetElem:    {"SET_ELEM", 0, -2},
	OpDeleteProp: {"DELETE_PROP", 2, 0},
	OpDeleteElem: {"DELETE_ELEM", 0, -1},
	OpIn:         {"IN", 0, -1},
	OpInstanceOf: {"INSTANCEOF", 0, -1},

	OpNewObject: {"NEW_OBJECT", 0, 1},
	OpNewArray:  {"NEW_ARRAY", 2, 1},
	OpInitProp:  {"INIT_PROP", 2, -1},
	OpThis:      {"THIS", 0, 1},
	OpClosure:   {"CLOSURE", 2, 1},
	OpCallee:    {"CALLEE", 0, 1},
	OpArguments: {"ARGUMENTS", 0, 1},

	OpCall:            {"CALL", 1, -1},
	OpNew:             {"NEW", 1, -1},
	OpReturn:          {"RETURN", 0, -1},
	OpReturnUndefined: {"RETURN_UNDEFINED", 0, 0},
	OpThrow:           {"THROW", 0, -1},

	OpJump:          {"JUMP", 2, 0},
	OpJumpIfTrue:    {"JUMP_IF_TRUE", 2, -1},
	OpJumpIfFalse:   {"JUMP_IF_FALSE", 2, -1},
	OpJumpIfTrueOr:  {"JUMP_IF_TRUE_OR", 2, -1},
	OpJumpIfFalseOr: {"JUMP_IF_FALSE_OR", 2, -1},
	OpForInPrepare:  {"FORIN_PREPARE", 0, 0},
	OpForInNext:     {"FORIN_NEXT", 2, 1},

	OpAdd:      {"ADD", 0, -1},
	OpSub:      {"SUB", 0, -1},
	OpMul:      {"MUL", 0, -1},
	OpDiv:      {"DIV", 0, -1},
	OpMod:      {"MOD", 0, -1},
	OpNeg:      {"NEG", 0, 0},
	OpToNumber: {"TO_NUMBER", 0, 0},
	OpInc:      {"INC", 0, 0},
	OpDec:      {"DEC", 0, 0},
	OpBitAnd:   {"BIT_AND", 0, -1},
	OpBitOr:    {"BIT_OR", 0, -1},
	OpBitXor:   {"BIT_XOR", 0, -1},
	OpShl:      {"SHL", 0, -1},
	OpShr:      {"SHR", 0, -1},
	OpUShr:     {"USHR", 0, -1},
	OpBitNot:   {"BIT_NOT", 0, 0},

	OpEq:       {"EQ", 0, -1},
	OpNe:       {"NE", 0, -1},
	OpStrictEq: {"STRICT_EQ", 0, -1},
	OpStrictNe: {"STRICT_NE", 0, -1},
	OpLt:       {"LT", 0, -1},
	OpLe:       {"LE", 0, -1},
	OpGt:       {"GT", 0, -1},
	OpGe:       {"GE", 0, -1},
	OpNot:      {"NOT", 0, 0},
	OpTypeof:   {"TYPEOF", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether the opcode carries a relative 16-bit jump offset.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfTrue, OpJumpIfFalse, OpJumpIfTrueOr, OpJumpIfFalseOr, OpForInNext:
		return true
	}
	return false
}
