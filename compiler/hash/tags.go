package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the cache key serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones
// invalidates every cached compilation.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing cache keys.
const HashVersion byte = 1

// Field tags. Each field of the key input is written as its tag followed
// by the encoded value.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	TagBytecodeVersion byte = 0x01
	TagFilename        byte = 0x02
	TagSource          byte = 0x03
	TagStrict          byte = 0x04
)
