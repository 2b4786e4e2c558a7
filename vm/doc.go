// Package vm implements the jsrt runtime: a Realm that executes compiled
// ES5 bytecode over its own garbage-collected heap.
//
// This package contains:
//   - NaN-boxed value representation
//   - Arena heap with generation-checked handles and mark-sweep collection
//   - Shapes, property caches and the object model
//   - Bytecode interpreter with exception unwinding and interrupts
//   - Builtin constructors and the host object interface
//
// A Realm is not safe for concurrent use. Separate realms share nothing
// and may run on separate goroutines; CopyValue moves data between them.
package vm
