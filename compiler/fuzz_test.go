package compiler

import (
	"testing"

	"github.com/robertkrimen/otto/parser"
)

// ---------------------------------------------------------------------------
// FuzzCompile: ensure the compiler never panics on any program the parser
// accepts, and that whatever it emits passes validation.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		// Literals and operators
		`42`, `-5`, `3.14`, `"hello"`, `null`, `true`, `[1,,2]`, `({a: 1})`,
		`a + b * c`, `a = b = c`, `x += 1`, `x++`, `--o.p`, `o[k] >>>= 2`,
		// Control flow
		`if (a) b; else c`, `while (a) { if (b) break; else continue }`,
		`for (;;) {}`, `for (var k in o) {}`, `do a(); while (b)`,
		`switch (x) { case 1: default: case 2: break }`,
		`l: for (;;) { m: while (1) { break l; continue m } }`,
		// Functions and closures
		`function f(a, a) { return a }`, `(function g() { return g })`,
		`function o() { var x; return function () { return function () { x = 1 } } }`,
		// Exceptions
		`try {} catch (e) {}`, `try {} finally {}`,
		`function h() { for (;;) { try { try { return 1 } finally { break } } finally { continue } } }`,
		`try { throw 1 } catch (e) { try { throw e } catch (e) { e } }`,
		// Rejected constructs
		`with (o) x`, `eval("")`, `/re/`, `({get a() {}})`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		prog, err := parser.ParseFile(nil, "fuzz.js", data, 0)
		if err != nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()
		p, err := Compile(prog, Options{})
		if err != nil {
			return
		}
		if err := p.Main.Validate(); err != nil {
			t.Fatalf("invalid bytecode for %q: %v", data, err)
		}
	})
}
