// Package hash computes content keys for cached compilations. Two inputs
// share a key only when they compile to the same bytecode: same source,
// same filename (it is recorded in stack traces), same strictness, and the
// same bytecode format version.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/jsrt/pkg/bytecode"
)

// Input is everything that determines a compilation's output.
type Input struct {
	Filename string
	Source   string
	Strict   bool
}

// Key is the SHA-256 content key of an Input.
type Key [32]byte

// String returns the key in lowercase hex, suitable as a file name.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Script computes the cache key of in for the current bytecode version.
func Script(in Input) Key {
	return sha256.Sum256(Serialize(in, bytecode.BytecodeVersion))
}
