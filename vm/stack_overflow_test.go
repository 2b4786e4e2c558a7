package vm

import (
	"testing"

	"github.com/chazu/jsrt/manifest"
)

func newDepthRealm(t *testing.T, depth int) *Realm {
	t.Helper()
	cfg := manifest.DefaultEngine()
	cfg.MaxCallDepth = depth
	r := NewRealm(cfg)
	t.Cleanup(r.Close)
	return r
}

func TestStackOverflowIsCatchable(t *testing.T) {
	r := newDepthRealm(t, 200)
	got := display(t, r, `
		var depth = 0;
		function recurse() { depth++; return recurse(); }
		var caught;
		try { recurse(); } catch (e) { caught = e; }
		[caught instanceof RangeError, caught.message, depth > 100, depth <= 200].join("|");
	`)
	if want := "true|Maximum call stack size exceeded|true|true"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStackOverflowUncaught(t *testing.T) {
	r := newDepthRealm(t, 100)
	tv := mustThrow(t, r, "function f(n) { return f(n + 1) + 1; } f(0)")
	if !tv.StackOverflow() {
		t.Errorf("StackOverflow() = false for %q", tv.Message)
	}
	if tv.Message != "RangeError: Maximum call stack size exceeded" {
		t.Errorf("message = %q", tv.Message)
	}
	if len(tv.Stack) != maxTraceEntries {
		t.Errorf("trace has %d entries, want the cap of %d", len(tv.Stack), maxTraceEntries)
	}
}

func TestExecutionContinuesAfterOverflow(t *testing.T) {
	r := newDepthRealm(t, 150)
	mustRun(t, r, `
		function down(n) { return n === 0 ? 0 : 1 + down(n - 1); }
		var overflowed = false;
		try { down(100000); } catch (e) { overflowed = true; }
	`)
	if got := display(t, r, "overflowed"); got != "true" {
		t.Fatalf("overflowed = %s", got)
	}
	// The same realm still runs recursion within the bound, repeatedly.
	for i := 0; i < 3; i++ {
		if got := display(t, r, "down(100)"); got != "100" {
			t.Errorf("run %d: down(100) = %s", i, got)
		}
		mustThrow(t, r, "down(100000)")
	}
	if r.sp != 0 || len(r.frames) != 0 || r.nativeDepth != 0 {
		t.Errorf("state leaked: sp=%d frames=%d natives=%d", r.sp, len(r.frames), r.nativeDepth)
	}
}

func TestOverflowThroughNativeCallbacks(t *testing.T) {
	r := newDepthRealm(t, 120)
	got := display(t, r, `
		function viaNative(n) { return [n].map(function (x) { return viaNative(x + 1); })[0]; }
		var result;
		try { viaNative(0); result = "no overflow"; } catch (e) { result = e.name; }
		result;
	`)
	if got != "RangeError" {
		t.Errorf("got %q", got)
	}
}

func TestOverflowInsideFinally(t *testing.T) {
	r := newDepthRealm(t, 80)
	got := display(t, r, `
		var cleanups = 0;
		function g() { try { return g(); } finally { cleanups++; } }
		var name;
		try { g(); } catch (e) { name = e.name; }
		name + ":" + (cleanups > 0);
	`)
	if got != "RangeError:true" {
		t.Errorf("got %q", got)
	}
}
