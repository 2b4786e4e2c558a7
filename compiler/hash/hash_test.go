package hash

import (
	"testing"
)

func TestScriptDeterministic(t *testing.T) {
	in := Input{Filename: "a.js", Source: "var x = 1;"}
	if Script(in) != Script(in) {
		t.Fatal("same input produced different keys")
	}
}

func TestScriptDistinguishesInputs(t *testing.T) {
	base := Input{Filename: "a.js", Source: "var x = 1;"}
	variants := []Input{
		{Filename: "b.js", Source: base.Source},
		{Filename: base.Filename, Source: "var x = 2;"},
		{Filename: base.Filename, Source: base.Source, Strict: true},
	}
	k := Script(base)
	for _, v := range variants {
		if Script(v) == k {
			t.Errorf("input %+v collides with %+v", v, base)
		}
	}
}

func TestSerializeFieldBoundaries(t *testing.T) {
	// Length prefixes keep "ab"+"c" apart from "a"+"bc".
	a := Serialize(Input{Filename: "ab", Source: "c"}, 1)
	b := Serialize(Input{Filename: "a", Source: "bc"}, 1)
	if string(a) == string(b) {
		t.Fatal("field boundaries are ambiguous")
	}
	if a[0] != HashVersion {
		t.Errorf("first byte = %d, want HashVersion", a[0])
	}
}

func TestKeyString(t *testing.T) {
	s := Script(Input{Source: ""}).String()
	if len(s) != 64 {
		t.Errorf("len(key) = %d, want 64", len(s))
	}
}
