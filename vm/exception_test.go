package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Uncaught exceptions
// ---------------------------------------------------------------------------

func TestUncaughtThrowSurfacesUnmodified(t *testing.T) {
	r := newTestRealm(t)
	tv := mustThrow(t, r, `
		var payload = {code: 7};
		function level3() { throw payload; }
		function level2() { return level3() + 1; }
		function level1() { try { return level2(); } finally { payload.seen = true; } }
		level1();
	`)
	payload, err := r.Get(r.Global().Value(), "payload")
	if err != nil {
		t.Fatal(err)
	}
	if tv.Value != payload {
		t.Fatalf("thrown %s, want the original payload object", r.Inspect(tv.Value))
	}
	if code, _ := r.Get(tv.Value, "code"); code != IntValue(7) {
		t.Errorf("payload.code = %v", code)
	}
	if seen, _ := r.Get(tv.Value, "seen"); seen != True {
		t.Error("finally block did not run during unwinding")
	}
	if len(tv.Stack) == 0 || !strings.HasPrefix(tv.Stack[len(tv.Stack)-1], "<program> (test.js:") {
		t.Errorf("stack = %v", tv.Stack)
	}
}

func TestThrowSiteOfNonErrorValue(t *testing.T) {
	r := newTestRealm(t)
	tv := mustThrow(t, r, "function inner() {\n  throw 'plain';\n}\ninner();")
	want := []string{"inner (test.js:2:3)", "<program> (test.js:4:1)"}
	if len(tv.Stack) != len(want) {
		t.Fatalf("stack = %v, want %v", tv.Stack, want)
	}
	for i := range want {
		if tv.Stack[i] != want[i] {
			t.Errorf("stack[%d] = %q, want %q", i, tv.Stack[i], want[i])
		}
	}
}

func TestUncaughtPrimitives(t *testing.T) {
	r := newTestRealm(t)
	tests := []struct {
		src  string
		want string
	}{
		{`throw "boom"`, `uncaught "boom"`},
		{`throw 42`, "uncaught 42"},
		{`throw null`, "uncaught null"},
		{`throw undefined`, "uncaught undefined"},
	}
	for _, tt := range tests {
		tv := mustThrow(t, r, tt.src)
		if tv.Error() != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.src, tv.Error(), tt.want)
		}
	}
	tv := mustThrow(t, r, "throw 42")
	if tv.Value != IntValue(42) {
		t.Errorf("value = %v", tv.Value)
	}
}

func TestUncaughtErrorObjects(t *testing.T) {
	r := newTestRealm(t)
	tv := mustThrow(t, r, `
		function validate(x) {
			if (x < 0) throw new RangeError("negative: " + x);
		}
		validate(-1);
	`)
	if tv.Message != "RangeError: negative: -1" {
		t.Errorf("message = %q", tv.Message)
	}
	if tv.StackOverflow() {
		t.Error("ordinary RangeError flagged as stack overflow")
	}
	if len(tv.Stack) < 2 || !strings.HasPrefix(tv.Stack[0], "validate (test.js:3:") || !strings.HasPrefix(tv.Stack[1], "<program> (test.js:5:") {
		t.Errorf("stack = %v", tv.Stack)
	}
	stack, _ := r.Get(tv.Value, "stack")
	if s, _ := r.GoString(stack); !strings.HasPrefix(s, "RangeError: negative: -1\n    at validate") {
		t.Errorf("stack property = %q", s)
	}
}

func TestRuntimeErrors(t *testing.T) {
	r := newTestRealm(t)
	tests := []struct {
		src    string
		prefix string
	}{
		{"missing + 1", "ReferenceError: missing is not defined"},
		{"var u; u.field", "TypeError: Cannot read property 'field' of undefined"},
		{"null.x = 1", "TypeError: Cannot set property 'x' of null"},
		{"var n = 5; n()", "TypeError:"},
		{"new (function () {}.prototype)", "TypeError:"},
		{"({}) instanceof 3", "TypeError:"},
		{"'k' in 'string'", "TypeError:"},
		{"[].reduce(function () {})", "TypeError:"},
		{"new Array(-1)", "RangeError:"},
	}
	for _, tt := range tests {
		tv := mustThrow(t, r, tt.src)
		if !strings.HasPrefix(tv.Message, tt.prefix) {
			t.Errorf("%s: message %q, want prefix %q", tt.src, tv.Message, tt.prefix)
		}
	}
}

func TestStrictModeReferenceErrors(t *testing.T) {
	r := newTestRealm(t)
	tv := mustThrow(t, r, `"use strict"; undeclared = 1;`)
	if !strings.HasPrefix(tv.Message, "ReferenceError:") {
		t.Errorf("message = %q", tv.Message)
	}
	if got := display(t, r, "sloppyGlobal = 3; sloppyGlobal"); got != "3" {
		t.Errorf("sloppy implicit global: %s", got)
	}
}

// ---------------------------------------------------------------------------
// Catching
// ---------------------------------------------------------------------------

func TestTryCatchFinallyOrder(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var log = [];
		function f() {
			try {
				log.push("try");
				throw new Error("x");
			} catch (e) {
				log.push("catch " + e.message);
				return "from catch";
			} finally {
				log.push("finally");
			}
		}
		log.push(f());
		log.join(",");
	`)
	if want := "try,catch x,finally,from catch"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFinallyOverridesReturn(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		function f() { try { return 1; } finally { return 2; } }
		function g() { try { throw 1; } finally { return 3; } }
		f() + g();
	`)
	if got != "5" {
		t.Errorf("got %s", got)
	}
}

func TestBreakAndContinueThroughFinally(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var out = [];
		outer: for (var i = 0; i < 3; i++) {
			for (var j = 0; j < 3; j++) {
				try {
					if (j === 1) continue outer;
					if (i === 2) break outer;
					out.push(i + "" + j);
				} finally {
					out.push("f");
				}
			}
		}
		out.join(" ");
	`)
	if want := "00 f f 10 f f f"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNestedTryRethrow(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var trail = "";
		try {
			try {
				throw "inner";
			} catch (e) {
				trail += "c1:" + e + ";";
				throw e + "!";
			} finally {
				trail += "f1;";
			}
		} catch (e2) {
			trail += "c2:" + e2;
		}
		trail;
	`)
	if want := "c1:inner;f1;c2:inner!"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestThrowAcrossNativeFrames(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var caught;
		try {
			[1, 2, 3].forEach(function (x) { if (x === 2) throw "at " + x; });
		} catch (e) {
			caught = e;
		}
		caught;
	`)
	if got != "at 2" {
		t.Errorf("got %q", got)
	}
}

func TestCatchScopeIsBlockLocal(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var e = "outer";
		var fns = [];
		try { throw "inner"; } catch (e) { fns.push(function () { return e; }); }
		fns[0]() + "/" + e;
	`)
	if got != "inner/outer" {
		t.Errorf("got %q", got)
	}
}

func TestRealmUsableAfterUncaughtThrow(t *testing.T) {
	r := newTestRealm(t)
	mustThrow(t, r, "function deep(n) { if (n === 0) throw 'x'; return deep(n - 1); } deep(50)")
	if r.sp != 0 || len(r.frames) != 0 {
		t.Errorf("interpreter state leaked: sp=%d frames=%d", r.sp, len(r.frames))
	}
	if got := display(t, r, "deep.length + 1"); got != "2" {
		t.Errorf("got %s", got)
	}
}

func TestGoCallSeesThrow(t *testing.T) {
	r := newTestRealm(t)
	fn := mustRun(t, r, "(function (x) { if (x) throw new TypeError('bad ' + x); return 'ok'; })")
	if _, err := r.Call(fn, Undefined, r.NewString("arg")); err == nil {
		t.Fatal("expected an error")
	} else if tv, ok := IsThrown(err); !ok || tv.Message != "TypeError: bad arg" {
		t.Errorf("err = %v", err)
	}
	v, err := r.Call(fn, Undefined)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := r.GoString(v); s != "ok" {
		t.Errorf("got %q", s)
	}
}

func TestNewErrorFromGo(t *testing.T) {
	r := newTestRealm(t)
	e := r.NewError("SyntaxError", "unexpected thing")
	if err := r.DefineGlobal("prepared", e.Value()); err != nil {
		t.Fatal(err)
	}
	got := display(t, r, "[prepared instanceof SyntaxError, prepared instanceof Error, String(prepared)].join(',')")
	if got != "true,true,SyntaxError: unexpected thing" {
		t.Errorf("got %q", got)
	}
	if r.Inspect(e.Value()) != "SyntaxError: unexpected thing" {
		t.Errorf("Inspect = %q", r.Inspect(e.Value()))
	}
}
