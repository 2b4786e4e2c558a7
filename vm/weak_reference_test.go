package vm

import (
	"strings"
	"testing"
)

func TestWeakRefFromGo(t *testing.T) {
	r := newTestRealm(t)
	target := r.NewObject()
	r.Pin(target.Value())
	w := r.NewWeakRef(target)
	r.Pin(w.Value())

	got, ok := r.WeakRefTarget(w.Value())
	if !ok || got != target {
		t.Fatalf("WeakRefTarget = %s, %v", got, ok)
	}

	// The weak link alone does not keep the target.
	r.Unpin(target.Value())
	r.Collect()
	if r.heap.Alive(target) {
		t.Fatal("target survived with only a weak reference")
	}
	if _, ok := r.WeakRefTarget(w.Value()); ok {
		t.Error("WeakRefTarget still reports a collected target")
	}
	if !r.heap.Alive(w) {
		t.Error("the pinned WeakRef itself was collected")
	}
}

func TestWeakRefTargetOfOtherValues(t *testing.T) {
	r := newTestRealm(t)
	for _, v := range []Value{Undefined, IntValue(3), r.NewString("s"), r.NewObject().Value()} {
		if _, ok := r.WeakRefTarget(v); ok {
			t.Errorf("WeakRefTarget(%s) reported a target", v)
		}
	}
}

func TestWeakRefDerefInScript(t *testing.T) {
	r := newGCRealm(t, false)
	got := display(t, r, `
		var strong = {name: "kept"};
		var keptRef = new WeakRef(strong);
		var lostRef = new WeakRef({name: "lost"});
		var before = lostRef.deref() !== undefined;
		gc();
		[before, keptRef.deref() === strong, keptRef.deref().name, lostRef.deref() === undefined].join(",");
	`)
	if want := "true,true,kept,true"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWeakRefTargetReleasedLater(t *testing.T) {
	r := newGCRealm(t, false)
	mustRun(t, r, "var holder = {v: {}}; var w = new WeakRef(holder.v);")
	r.Collect()
	if got := display(t, r, "w.deref() === holder.v"); got != "true" {
		t.Fatalf("target lost while reachable: %s", got)
	}
	mustRun(t, r, "holder.v = null;")
	r.Collect()
	if got := display(t, r, "w.deref()"); got != "undefined" {
		t.Errorf("deref after release = %s", got)
	}
}

func TestWeakRefErrors(t *testing.T) {
	r := newTestRealm(t)
	tests := []struct {
		src  string
		want string
	}{
		{"WeakRef({})", "TypeError: Constructor WeakRef requires 'new'"},
		{"new WeakRef(1)", "TypeError: WeakRef: target must be an object"},
		{"new WeakRef('str')", "TypeError: WeakRef: target must be an object"},
		{"WeakRef.prototype.deref.call({})", "TypeError: WeakRef.prototype.deref called on incompatible receiver"},
	}
	for _, tt := range tests {
		tv := mustThrow(t, r, tt.src)
		if tv.Message != tt.want {
			t.Errorf("%s: %q, want %q", tt.src, tv.Message, tt.want)
		}
	}
}

func TestWeakRefInspect(t *testing.T) {
	r := newTestRealm(t)
	v := mustRun(t, r, "var w = new WeakRef({}); w")
	if got := r.Inspect(v); !strings.HasPrefix(got, "WeakRef") {
		t.Errorf("Inspect = %q", got)
	}
	if got := display(t, r, "typeof w + ',' + (w instanceof WeakRef)"); got != "object,true" {
		t.Errorf("got %q", got)
	}
}
