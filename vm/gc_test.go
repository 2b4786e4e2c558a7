package vm

import (
	"fmt"
	"testing"

	"github.com/chazu/jsrt/manifest"
)

// ---------------------------------------------------------------------------
// Heap in isolation
// ---------------------------------------------------------------------------

func TestHeapCollectsUnrootedCells(t *testing.T) {
	h := NewHeap(0, 0)
	a := h.allocBox(Undefined)
	b := h.allocBox(Undefined)
	if h.Stats().LiveCells != 2 {
		t.Fatalf("live = %d", h.Stats().LiveCells)
	}
	if freed := h.Collect(); freed != 2 {
		t.Errorf("freed %d, want 2", freed)
	}
	if h.Alive(a) || h.Alive(b) {
		t.Error("unrooted cells survived")
	}
	s := h.Stats()
	if s.LiveCells != 0 || s.LiveBytes != 0 || s.FreeCells != 2 || s.Collections != 1 {
		t.Errorf("stats after collect: %+v", s)
	}
}

func TestHeapCycleIsReclaimed(t *testing.T) {
	h := NewHeap(0, 0)
	a := h.allocBox(Undefined)
	b := h.allocBox(a.Value())
	h.boxSet(a, b.Value())

	h.Pin(a)
	h.Collect()
	if !h.Alive(a) || !h.Alive(b) {
		t.Fatal("pinned cycle was reclaimed")
	}

	h.Unpin(a)
	if freed := h.Collect(); freed != 2 {
		t.Errorf("freed %d, want 2", freed)
	}
	if h.Alive(a) || h.Alive(b) {
		t.Error("A<->B cycle survived without a root")
	}
}

func TestHeapPinsNest(t *testing.T) {
	h := NewHeap(0, 0)
	a := h.allocBox(Undefined)
	h.Pin(a)
	h.Pin(a)
	h.Unpin(a)
	h.Collect()
	if !h.Alive(a) {
		t.Fatal("cell freed while still pinned once")
	}
	h.Unpin(a)
	h.Unpin(a) // extra unpin is harmless
	h.Collect()
	if h.Alive(a) {
		t.Error("cell survived after its last unpin")
	}
}

func TestHeapRootSources(t *testing.T) {
	h := NewHeap(0, 0)
	kept := h.allocBox(Undefined)
	h.AddRootSource(func(t *Tracer) { t.MarkRef(kept) })
	dropped := h.allocBox(Undefined)
	h.Collect()
	if !h.Alive(kept) {
		t.Error("root source not consulted")
	}
	if h.Alive(dropped) {
		t.Error("unreferenced cell survived")
	}
}

func TestHeapFinalizers(t *testing.T) {
	h := NewHeap(0, 0)
	a := h.allocBox(Undefined)
	ran := 0
	h.SetFinalizer(a, func() { ran++ })
	h.Pin(a)
	h.Collect()
	if ran != 0 {
		t.Fatal("finalizer ran for a live cell")
	}
	h.Unpin(a)
	h.Collect()
	h.Collect()
	if ran != 1 {
		t.Errorf("finalizer ran %d times, want 1", ran)
	}
}

func TestHeapStaleHandlesAreDetected(t *testing.T) {
	h := NewHeap(0, 0)
	old := h.allocBox(Undefined)
	h.Collect()
	reused := h.allocBox(Undefined)
	if reused.Index() != old.Index() {
		t.Fatalf("free slot not reused: %s then %s", old, reused)
	}
	if h.Alive(old) {
		t.Error("stale handle validates against a reused slot")
	}
	if !h.Alive(reused) {
		t.Error("fresh handle invalid")
	}

	defer func() {
		fe, ok := recover().(*FatalError)
		if !ok || fe.Kind != FatalInvariant {
			t.Errorf("dereferencing a stale handle: recovered %v", fe)
		}
	}()
	h.boxGet(old)
}

func TestHeapExhaustionIsFatal(t *testing.T) {
	h := NewHeap(0, 4)
	defer func() {
		fe, ok := recover().(*FatalError)
		if !ok || fe.Kind != FatalOutOfMemory {
			t.Errorf("recovered %v, want out of memory", fe)
		}
	}()
	for i := 0; i < 10; i++ {
		h.Pin(h.allocBox(Undefined))
	}
	t.Error("heap never ran out")
}

func TestHeapThresholdRequestsCollection(t *testing.T) {
	h := NewHeap(64, 0)
	h.Allocate(32, CellBox)
	if h.GCRequested() {
		t.Fatal("collection requested below the threshold")
	}
	h.Allocate(32, CellBox)
	if !h.GCRequested() {
		t.Fatal("crossing the threshold should request a collection")
	}
	h.Collect()
	if h.GCRequested() || h.Stats().BytesSinceGC != 0 {
		t.Error("collection should reset the trigger")
	}
}

func TestHeapInspectAndWalk(t *testing.T) {
	h := NewHeap(0, 0)
	target := h.allocBox(Undefined)
	holder := h.allocBox(target.Value())

	info := h.Inspect(holder)
	if info.Kind != CellBox || info.Size != 16 {
		t.Errorf("info = %+v", info)
	}
	if len(info.Edges) != 1 || info.Edges[0] != target {
		t.Errorf("edges = %v, want [%s]", info.Edges, target)
	}
	if len(h.Inspect(target).Edges) != 0 {
		t.Error("empty box reported edges")
	}

	seen := 0
	h.Walk(func(ci CellInfo) bool {
		seen++
		return true
	})
	if seen != h.Stats().LiveCells {
		t.Errorf("Walk visited %d cells, %d live", seen, h.Stats().LiveCells)
	}

	stopped := 0
	h.Walk(func(CellInfo) bool {
		stopped++
		return false
	})
	if stopped != 1 {
		t.Errorf("Walk ignored a false return: %d visits", stopped)
	}
}

func TestCellKindString(t *testing.T) {
	if CellObject.String() != "object" || CellBox.String() != "box" || CellKind(99).String() != "CellKind(99)" {
		t.Error("CellKind.String")
	}
}

// ---------------------------------------------------------------------------
// Collection inside a realm
// ---------------------------------------------------------------------------

func newGCRealm(t *testing.T, strongProtos bool) *Realm {
	t.Helper()
	cfg := manifest.DefaultEngine()
	cfg.GC.ExposeGC = true
	cfg.GC.StrongPrototypeLinks = strongProtos
	r := NewRealm(cfg)
	t.Cleanup(r.Close)
	return r
}

func TestRealmCollectsObjectCycle(t *testing.T) {
	r := newTestRealm(t)
	a, b := r.NewObject(), r.NewObject()
	if err := r.SetProperty(a, "peer", b.Value()); err != nil {
		t.Fatal(err)
	}
	if err := r.SetProperty(b, "peer", a.Value()); err != nil {
		t.Fatal(err)
	}
	r.Collect()
	if r.heap.Alive(a) || r.heap.Alive(b) {
		t.Error("unreachable A<->B cycle survived a collection")
	}
}

func TestScriptCycleIsCollected(t *testing.T) {
	r := newGCRealm(t, false)
	got := display(t, r, `
		var w;
		(function () {
			var a = {}, b = {};
			a.b = b;
			b.a = a;
			w = new WeakRef(a);
		})();
		var before = w.deref() !== undefined;
		gc();
		before + "," + (w.deref() === undefined);
	`)
	if got != "true,true" {
		t.Errorf("got %s", got)
	}
}

func TestReachableGraphSurvives(t *testing.T) {
	r := newGCRealm(t, false)
	mustRun(t, r, `
		var get = (function () {
			var hidden = {v: 42, list: [1, 2, {deep: "yes"}]};
			return function () { return hidden.v + ":" + hidden.list[2].deep; };
		})();
		var root = {child: {grandchild: {n: 7}}};
	`)
	r.Collect()
	r.Collect()
	if got := display(t, r, "get() + ':' + root.child.grandchild.n"); got != "42:yes:7" {
		t.Errorf("got %s", got)
	}
}

// TestDistinctScriptsDoNotAccumulate runs many one-off scripts in one realm
// and checks that their code and string constants are reclaimed.
func TestDistinctScriptsDoNotAccumulate(t *testing.T) {
	r := newTestRealm(t)
	script := func(i int) string {
		return fmt.Sprintf(`(function () { return "payload-%d-" + "abcdefghij"; })()`, i)
	}
	for i := range 10 {
		mustRun(t, r, script(i))
	}
	r.Collect()
	before := r.HeapStats().LiveCells

	for i := 10; i < 2010; i++ {
		mustRun(t, r, script(i))
	}
	r.Collect()
	after := r.HeapStats().LiveCells
	if after > before+8 {
		t.Errorf("live cells grew from %d to %d over 2000 scripts", before, after)
	}
	if len(r.codes) != 0 {
		t.Errorf("%d realized functions survived collection", len(r.codes))
	}
	if len(r.constants) > 8 {
		t.Errorf("%d constant strings survived collection", len(r.constants))
	}
}

func TestClosuresKeepTheirConstants(t *testing.T) {
	r := newGCRealm(t, false)
	mustRun(t, r, `
		var greet = (function () {
			return function (who) { return "hello, " + who; };
		})();
	`)
	r.Collect()
	r.Collect()
	if got := display(t, r, `greet("gc")`); got != "hello, gc" {
		t.Errorf("got %s", got)
	}

	p, err := r.Compile(mustParse(t, `"recompiled-" + typeof greet`))
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		v, err := r.RunCompiled(p)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.ToDisplayString(v); got != "recompiled-function" {
			t.Errorf("got %s", got)
		}
		r.Collect()
	}
}

func TestSurplusArgumentsSurviveCollection(t *testing.T) {
	r := newGCRealm(t, false)
	got := display(t, r, `
		function f(a) { gc(); return a + ":" + arguments[2].v + ":" + arguments.length; }
		f("first", "second", {v: "kept"});
	`)
	if got != "first:kept:3" {
		t.Errorf("got %s", got)
	}
}

func TestCollectionDuringExecution(t *testing.T) {
	r := newGCRealm(t, false)
	got := display(t, r, `
		var keep = [];
		for (var i = 0; i < 200; i++) {
			var garbage = {i: i, s: "item" + i};
			if (i % 50 === 0) { keep.push(garbage); gc(); }
		}
		keep.map(function (o) { return o.s; }).join(",");
	`)
	if got != "item0,item50,item100,item150" {
		t.Errorf("got %s", got)
	}
	if r.HeapStats().Collections < 4 {
		t.Errorf("collections = %d", r.HeapStats().Collections)
	}
}

func TestAllocationThresholdTriggersCollection(t *testing.T) {
	cfg := manifest.DefaultEngine()
	cfg.GC.ThresholdBytes = 16 << 10
	r := NewRealm(cfg)
	defer r.Close()

	mustRun(t, r, `
		var total = 0;
		for (var i = 0; i < 5000; i++) {
			var o = {a: i, b: [i, i + 1]};
			total += o.b[1];
		}
	`)
	s := r.HeapStats()
	if s.Collections == 0 {
		t.Fatal("allocation volume never triggered a collection")
	}
	if s.TotalFreed < 5000 {
		t.Errorf("freed %d cells, expected most of the loop garbage", s.TotalFreed)
	}
}

// ---------------------------------------------------------------------------
// Weak prototype links
// ---------------------------------------------------------------------------

func TestPrototypeLinkIsWeak(t *testing.T) {
	r := newTestRealm(t)
	proto := r.NewObject()
	_ = r.SetProperty(proto, "inherited", True)
	child := r.NewObjectWithProto(proto)
	if err := r.Pin(child.Value()); err != nil {
		t.Fatal(err)
	}
	defer r.Unpin(child.Value())

	r.Collect()
	if !r.heap.Alive(child) {
		t.Fatal("pinned object collected")
	}
	if r.heap.Alive(proto) {
		t.Error("prototype reachable only through a weak link survived")
	}
	if !r.GetPrototype(child).IsNil() {
		t.Error("weak prototype link not cleared")
	}
	if _, ok := r.GetProperty(child, "inherited"); ok {
		t.Error("property resolved through a reclaimed prototype")
	}
	if r.heap.Inspect(child).Proto != noCell {
		t.Error("CellInfo still reports the prototype")
	}
}

func TestPrototypeLinkCanBeStrong(t *testing.T) {
	r := newGCRealm(t, true)
	proto := r.NewObject()
	child := r.NewObjectWithProto(proto)
	_ = r.Pin(child.Value())
	r.Collect()
	if !r.heap.Alive(proto) || r.GetPrototype(child) != proto {
		t.Error("strong prototype link did not keep the prototype alive")
	}
}

func TestWeakPrototypeInScript(t *testing.T) {
	weak := newGCRealm(t, false)
	got := display(t, weak, `
		var p = {greet: "hi"};
		var c = Object.create(p);
		p = null;
		gc();
		[c.greet, Object.getPrototypeOf(c)].join(",");
	`)
	if got != "," {
		t.Errorf("weak: got %q", got)
	}

	strong := newGCRealm(t, true)
	got = display(t, strong, `
		var p = {greet: "hi"};
		var c = Object.create(p);
		p = null;
		gc();
		c.greet;
	`)
	if got != "hi" {
		t.Errorf("strong: got %q", got)
	}
}

func TestConstructorPrototypesStayReachable(t *testing.T) {
	r := newGCRealm(t, false)
	got := display(t, r, `
		function Thing() {}
		Thing.prototype.kind = "thing";
		var t = new Thing();
		gc();
		t.kind + ":" + (t instanceof Thing);
	`)
	if got != "thing:true" {
		t.Errorf("got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Pins and finalizers through the realm
// ---------------------------------------------------------------------------

func TestRealmPin(t *testing.T) {
	r := newTestRealm(t)
	o := r.NewObject()
	if err := r.Pin(o.Value()); err != nil {
		t.Fatal(err)
	}
	r.Collect()
	if !r.heap.Alive(o) {
		t.Fatal("pinned object collected")
	}
	r.Unpin(o.Value())
	r.Collect()
	if r.heap.Alive(o) {
		t.Error("unpinned object survived")
	}
	if err := r.Pin(o.Value()); err == nil {
		t.Error("pinning a dead handle should fail")
	}
	if err := r.Pin(IntValue(3)); err != nil {
		t.Errorf("pinning a number: %v", err)
	}
}

func TestHostFinalizer(t *testing.T) {
	r := NewRealm(manifest.DefaultEngine())
	finalized := 0
	r.NewHostObject(&HostBehavior{Finalize: func() { finalized++ }}, noCell)
	kept := r.NewHostObject(&HostBehavior{Finalize: func() { finalized++ }}, noCell)
	_ = r.Pin(kept.Value())

	r.Collect()
	if finalized != 1 {
		t.Errorf("after collect: %d finalized, want 1", finalized)
	}
	r.Close()
	if finalized != 2 {
		t.Errorf("after close: %d finalized, want 2", finalized)
	}
}

func TestHostTraceKeepsValuesAlive(t *testing.T) {
	r := newTestRealm(t)
	held := r.NewObject()
	host := r.NewHostObject(&HostBehavior{
		Trace: func(t *Tracer) { t.MarkRef(held) },
	}, noCell)
	_ = r.Pin(host.Value())
	r.Collect()
	if !r.heap.Alive(held) {
		t.Error("value reported by a host trace routine was collected")
	}
}

func TestLastResultSurvivesUntilNextRun(t *testing.T) {
	r := newTestRealm(t)
	v := mustRun(t, r, "({fresh: true})")
	r.Collect()
	if !r.heap.Alive(v.Ref()) {
		t.Fatal("completion value collected before the embedder could read it")
	}
	mustRun(t, r, "0")
	r.Collect()
	if r.heap.Alive(v.Ref()) {
		t.Error("stale completion value kept alive")
	}
}
