package vm

import (
	"slices"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Prototype chain
// ---------------------------------------------------------------------------

func TestPrototypeLookup(t *testing.T) {
	r := newTestRealm(t)
	base := r.NewObject()
	if err := r.SetProperty(base, "greeting", r.NewString("hi")); err != nil {
		t.Fatal(err)
	}
	child := r.NewObjectWithProto(base)

	v, ok := r.GetProperty(child, "greeting")
	if !ok {
		t.Fatal("inherited property not found")
	}
	if s, _ := r.GoString(v); s != "hi" {
		t.Errorf("greeting = %q", s)
	}
	if r.HasOwnProperty(child, "greeting") {
		t.Error("inherited property reported as own")
	}
	if r.GetPrototype(child) != base {
		t.Error("GetPrototype")
	}
}

func TestPrototypeLookupEndsAtNull(t *testing.T) {
	r := newTestRealm(t)
	bare := r.NewObjectWithProto(noCell)
	if _, ok := r.GetProperty(bare, "toString"); ok {
		t.Error("null-prototype object should not inherit toString")
	}
	if !r.GetPrototype(bare).IsNil() {
		t.Error("prototype should be null")
	}

	obj := r.NewObject()
	if _, ok := r.GetProperty(obj, "definitelyMissing"); ok {
		t.Error("missing property found")
	}
	if _, ok := r.GetProperty(obj, "hasOwnProperty"); !ok {
		t.Error("Object.prototype methods should resolve")
	}
}

func TestSetPrototypeRejectsCycles(t *testing.T) {
	r := newTestRealm(t)
	a := r.NewObject()
	b := r.NewObjectWithProto(a)
	c := r.NewObjectWithProto(b)

	if err := r.SetPrototype(a, c); err == nil {
		t.Fatal("closing a prototype cycle should fail")
	}
	if err := r.SetPrototype(a, a); err == nil {
		t.Fatal("self prototype should fail")
	}
	if r.GetPrototype(a) != r.intrinsics.ObjectPrototype {
		t.Error("failed SetPrototype modified the object")
	}
	if err := r.SetPrototype(c, a); err != nil {
		t.Errorf("legal SetPrototype: %v", err)
	}
}

func TestSetPrototypeNonExtensible(t *testing.T) {
	r := newTestRealm(t)
	o := r.NewObject()
	r.PreventExtensions(o)
	if err := r.SetPrototype(o, noCell); err == nil {
		t.Error("non-extensible object accepted a new prototype")
	}
}

func TestPrototypeCycleDetectedDuringLookup(t *testing.T) {
	r := newTestRealm(t)
	// Build a chain longer than the fast path and close it behind the
	// checked API's back.
	first := r.NewObject()
	prev := first
	for i := 0; i < 40; i++ {
		next := r.NewObjectWithProto(prev)
		prev = next
	}
	r.heap.object(first).proto = prev

	err := r.protect(func() { r.GetProperty(prev, "missing") })
	tv, ok := IsThrown(err)
	if !ok {
		t.Fatalf("expected a thrown TypeError, got %v", err)
	}
	if tv.Message != "TypeError: cyclic prototype chain" {
		t.Errorf("message = %q", tv.Message)
	}
}

func TestPrototypeChainInScript(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var animal = { speak: function () { return this.name + " makes a sound"; } };
		var dog = Object.create(animal);
		dog.name = "Rex";
		var bare = Object.create(null);
		[dog.speak(), "speak" in dog, dog.hasOwnProperty("speak"), bare.anything, Object.getPrototypeOf(dog) === animal].join("|");
	`)
	want := "Rex makes a sound|true|false||true"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	tv := mustThrow(t, r, "var a = {}; var b = Object.create(a); Object.setPrototypeOf(a, b);")
	if tv.Message != "TypeError: cyclic prototype chain" {
		t.Errorf("message = %q", tv.Message)
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestDefineOwnPropertyAttributes(t *testing.T) {
	r := newTestRealm(t)
	o := r.NewObject()
	if !r.DefineOwnProperty(o, "fixed", IntValue(1), AttrEnumerable) {
		t.Fatal("define failed")
	}
	if err := r.SetProperty(o, "fixed", IntValue(2)); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.GetProperty(o, "fixed"); v != IntValue(1) {
		t.Errorf("read-only property changed to %v", v)
	}
	if r.DeleteProperty(o, "fixed") {
		t.Error("non-configurable property deleted")
	}
	if r.DefineOwnProperty(o, "fixed", IntValue(3), AttrDefault) {
		t.Error("redefining a non-configurable property should fail")
	}
}

func TestStrictAssignmentToReadOnlyThrows(t *testing.T) {
	r := newTestRealm(t)
	tv := mustThrow(t, r, `
		"use strict";
		var o = Object.freeze({x: 1});
		o.x = 2;
	`)
	if !strings.HasPrefix(tv.Message, "TypeError: Cannot assign to read only property") {
		t.Errorf("message = %q", tv.Message)
	}
	if got := display(t, r, "var p = Object.freeze({x: 1}); p.x = 2; p.x"); got != "1" {
		t.Errorf("sloppy write to frozen property: p.x = %s", got)
	}
}

func TestOwnKeysOrder(t *testing.T) {
	r := newTestRealm(t)
	v := mustRun(t, r, "var o = {b: 1, 2: 'two', a: 2, 1: 'one'}; o")
	keys := r.OwnKeys(v.Ref(), true)
	want := []string{"1", "2", "b", "a"}
	if len(keys) != len(want) {
		t.Fatalf("OwnKeys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("OwnKeys = %v, want %v", keys, want)
			break
		}
	}
}

func TestOwnKeysHidesBuiltins(t *testing.T) {
	r := newTestRealm(t)
	proto := r.intrinsics.ObjectPrototype
	if keys := r.OwnKeys(proto, true); len(keys) != 0 {
		t.Errorf("enumerable keys of Object.prototype: %v", keys)
	}
	all := r.OwnKeys(proto, false)
	if !slices.Contains(all, "hasOwnProperty") {
		t.Errorf("all keys of Object.prototype: %v", all)
	}
}

func TestFreeze(t *testing.T) {
	r := newTestRealm(t)
	o := r.NewObject()
	_ = r.SetProperty(o, "x", IntValue(1))
	if r.IsFrozen(o) {
		t.Fatal("fresh object reported frozen")
	}
	r.Freeze(o)
	if !r.IsFrozen(o) || r.IsExtensible(o) {
		t.Fatal("Freeze did not take")
	}
	if r.DefineOwnProperty(o, "y", IntValue(2), AttrDefault) {
		t.Error("frozen object accepted a new property")
	}

	arr := r.NewArray([]Value{IntValue(1), IntValue(2)})
	r.Freeze(arr)
	if !r.IsFrozen(arr) {
		t.Error("frozen array not frozen")
	}
	if r.DeleteProperty(arr, "0") {
		t.Error("frozen array element deleted")
	}
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func TestArrays(t *testing.T) {
	r := newTestRealm(t)
	got := display(t, r, `
		var a = [3, 1, 2];
		a.push(0);
		a.sort();
		var b = a.map(function (x) { return x * 2; }).filter(function (x) { return x > 0; });
		a.length = 2;
		[a.join("-"), b.join("-"), a.length, [1, [2, 3]].concat([4]).length].join(" ");
	`)
	if want := "0-1 2-4-6 2 3"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestArrayElementsFromGo(t *testing.T) {
	r := newTestRealm(t)
	v := mustRun(t, r, "var a = [1, , 3]; a")
	elems := r.ArrayElements(v.Ref())
	if len(elems) != 3 {
		t.Fatalf("len = %d", len(elems))
	}
	if elems[0] != IntValue(1) || elems[2] != IntValue(3) {
		t.Errorf("elements = %v", elems)
	}
	if elems[1] != Undefined {
		t.Errorf("hole read as %v, want undefined", elems[1])
	}
	if r.HasOwnProperty(v.Ref(), "1") {
		t.Error("hole reported as own property")
	}
}

// ---------------------------------------------------------------------------
// Host objects
// ---------------------------------------------------------------------------

func TestHostObject(t *testing.T) {
	r := newTestRealm(t)
	store := map[string]Value{"size": IntValue(3)}
	host := r.NewHostObject(&HostBehavior{
		Get: func(r *Realm, self CellRef, key string) (Value, bool) {
			v, ok := store[key]
			return v, ok
		},
		Set: func(r *Realm, self CellRef, key string, v Value) bool {
			if key == "shape" {
				return false
			}
			store[key] = v
			return true
		},
		Keys: func(r *Realm, self CellRef) []string { return []string{"size"} },
		Call: func(r *Realm, c *NativeCall) Value {
			return IntValue(len(c.Args))
		},
		Data: "payload",
	}, noCell)
	if err := r.DefineGlobal("host", host.Value()); err != nil {
		t.Fatal(err)
	}

	got := display(t, r, `
		host.count = host.size + 1;
		host.shape = "kept in slots";
		[host.count, host(1, 2), typeof host, host.shape, host.hasOwnProperty("size")].join("|");
	`)
	if want := "4|2|function|kept in slots|true"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if store["count"] != IntValue(4) {
		t.Errorf("host Set not used: %v", store["count"])
	}
	if _, ok := store["shape"]; ok {
		t.Error("declined Set still stored")
	}
	if r.HostData(host.Value()) != "payload" {
		t.Error("HostData")
	}
	if r.HostData(r.NewObject().Value()) != nil {
		t.Error("HostData of an ordinary object")
	}
}
