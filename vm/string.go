package vm

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// jsString is the payload of a string cell. Content is held as Go UTF-8;
// indexing follows UTF-16 code units, so non-ASCII strings lazily build a
// unit table. Lone surrogates cannot round-trip through UTF-8 and are
// stored as U+FFFD.
type jsString struct {
	s     string
	ascii bool
	units []uint16
}

func newJSString(s string) *jsString {
	js := &jsString{s: s, ascii: true}
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			js.ascii = false
			break
		}
	}
	return js
}

func (s *jsString) codeUnits() []uint16 {
	if s.units == nil {
		s.units = utf16.Encode([]rune(s.s))
	}
	return s.units
}

// Length returns the length in UTF-16 code units.
func (s *jsString) Length() int {
	if s.ascii {
		return len(s.s)
	}
	return len(s.codeUnits())
}

// CharCodeAt returns the code unit at i; i must be in range.
func (s *jsString) CharCodeAt(i int) uint16 {
	if s.ascii {
		return uint16(s.s[i])
	}
	return s.codeUnits()[i]
}

// Substring returns code units [from, to).
func (s *jsString) Substring(from, to int) string {
	if s.ascii {
		return s.s[from:to]
	}
	return unitsToString(s.codeUnits()[from:to])
}

// IndexOf finds sub at or after code unit from, returning -1 when absent.
func (s *jsString) IndexOf(sub string, from int) int {
	if s.ascii && isASCII(sub) {
		if from > len(s.s) {
			return -1
		}
		if i := strings.Index(s.s[from:], sub); i >= 0 {
			return i + from
		}
		return -1
	}
	hay := s.codeUnits()
	needle := utf16.Encode([]rune(sub))
	for i := from; i+len(needle) <= len(hay); i++ {
		if unitsEqual(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// LastIndexOf finds the last sub starting at or before code unit from.
func (s *jsString) LastIndexOf(sub string, from int) int {
	var hay []uint16
	if s.ascii {
		if !isASCII(sub) {
			return -1
		}
	} else {
		hay = s.codeUnits()
	}
	needle := utf16.Encode([]rune(sub))
	n := s.Length()
	if from > n-len(needle) {
		from = n - len(needle)
	}
	for i := from; i >= 0; i-- {
		if hay == nil {
			if s.s[i:i+len(sub)] == sub {
				return i
			}
			continue
		}
		if unitsEqual(hay[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func unitsToString(u []uint16) string {
	return string(utf16.Decode(u))
}

func unitsEqual(a, b []uint16) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Realm string helpers
// ---------------------------------------------------------------------------

// NewString allocates a string value. The empty string and single ASCII
// characters come from the intern table.
func (r *Realm) NewString(s string) Value {
	if len(s) <= 1 {
		return r.internString(s)
	}
	return r.heap.allocString(newJSString(s)).Value()
}

// internString returns the canonical rooted cell for s. Interned strings
// live as long as the realm; only built-in names and typeof results go
// here.
func (r *Realm) internString(s string) Value {
	if ref, ok := r.interned[s]; ok {
		return ref.Value()
	}
	ref := r.heap.allocString(newJSString(s))
	r.interned[s] = ref
	return ref.Value()
}

// constString returns the shared cell for a compile-time string constant.
// Unlike interned strings these are not roots: live Code traces them, and
// sweepCodes drops the entries of collected cells.
func (r *Realm) constString(s string) Value {
	if ref, ok := r.interned[s]; ok {
		return ref.Value()
	}
	if ref, ok := r.constants[s]; ok {
		return ref.Value()
	}
	ref := r.heap.allocString(newJSString(s))
	r.constants[s] = ref
	return ref.Value()
}

// stringOf returns the payload of a string value.
func (r *Realm) stringOf(v Value) *jsString {
	return r.heap.str(v.Ref())
}

// GoString returns the Go string of a string value; ok is false for any
// other kind of value.
func (r *Realm) GoString(v Value) (string, bool) {
	if !r.heap.isString(v) {
		return "", false
	}
	return r.heap.str(v.Ref()).s, true
}
