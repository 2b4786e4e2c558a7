// Package bytecode defines the instruction set executed by the jsrt
// interpreter and the containers the compiler emits.
//
// The format is designed for:
//   - Compact representation (1-5 bytes per instruction)
//   - Fast decoding (single-byte opcodes, little-endian fixed-width operands)
//   - Easy serialization (programs round-trip through CBOR for code caching)
//
// # Architecture Overview
//
//   - Opcodes: stack-effect instructions covering constants, variable and
//     property access, calls, jumps, arithmetic and comparison.
//
//   - FunctionCode: the compiled unit for one function body. It carries the
//     code, a constant pool, nested function literals, capture descriptors,
//     an exception handler table and an optional source map.
//
//   - Builder: emits instructions and resolves forward jumps through labels.
//
//   - Marshal/Unmarshal: the "JSBC" code-cache format.
//
// # Capture Semantics
//
// Closures capture bindings by reference. A local that an inner function
// closes over lives in a heap box; the enclosing frame reaches it with
// GET_BOXED/SET_BOXED and the closure with GET_CAPTURE/SET_CAPTURE.
// CLOSURE copies box references according to the function's
// CaptureDescriptors, so mutations are visible on both sides.
//
// # Exception Handlers
//
// try/catch regions are described by Handler entries rather than by
// instructions. On a throw the interpreter picks the innermost handler
// covering the faulting instruction, trims the operand stack to the
// recorded depth, pushes the thrown value and jumps to the handler target.
package bytecode
