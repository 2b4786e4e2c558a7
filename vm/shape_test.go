package vm

import (
	"fmt"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Transition tree
// ---------------------------------------------------------------------------

func TestShapeTransitionsConverge(t *testing.T) {
	st := NewShapeTable()
	a := st.Root().AddProperty("x", AttrDefault).AddProperty("y", AttrDefault)
	b := st.Root().AddProperty("x", AttrDefault).AddProperty("y", AttrDefault)
	if a != b {
		t.Fatalf("identical addition sequences produced shapes %d and %d", a.ID(), b.ID())
	}
	if a.Dictionary() || !a.Cacheable() {
		t.Error("tree shape should be cacheable")
	}
	if got := a.Keys(); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("Keys() = %v", got)
	}
	if a.Parent().Parent() != st.Root() {
		t.Error("parent chain does not reach the root")
	}
}

func TestShapeOrderMatters(t *testing.T) {
	st := NewShapeTable()
	xy := st.Root().AddProperty("x", AttrDefault).AddProperty("y", AttrDefault)
	yx := st.Root().AddProperty("y", AttrDefault).AddProperty("x", AttrDefault)
	if xy == yx {
		t.Fatal("different insertion orders must not share a shape")
	}
	xi, _ := xy.Lookup("x")
	yi, _ := yx.Lookup("x")
	if xi.Slot != 0 || yi.Slot != 1 {
		t.Errorf("slots: x in xy at %d, x in yx at %d", xi.Slot, yi.Slot)
	}
}

func TestShapeAttributesAreSeparateTransitions(t *testing.T) {
	st := NewShapeTable()
	plain := st.Root().AddProperty("x", AttrDefault)
	hidden := st.Root().AddProperty("x", AttrHidden)
	if plain == hidden {
		t.Fatal("attrs must be part of the transition key")
	}
	info, ok := hidden.Lookup("x")
	if !ok || info.Attrs != AttrHidden {
		t.Errorf("Lookup = %+v, %v", info, ok)
	}
}

func TestShapeDeletionIsolation(t *testing.T) {
	st := NewShapeTable()
	base := st.Root().AddProperty("a", AttrDefault).AddProperty("b", AttrDefault)

	d, slot, ok := base.DeleteProperty("a")
	if !ok || slot != 0 {
		t.Fatalf("DeleteProperty = _, %d, %v", slot, ok)
	}
	if d == base || !d.Dictionary() {
		t.Fatal("deletion must move to a fresh dictionary shape")
	}
	if _, found := d.Lookup("a"); found {
		t.Error("deleted property still visible")
	}

	// The shared ancestor is untouched and still converges.
	if _, found := base.Lookup("a"); !found {
		t.Error("deletion mutated the shared shape")
	}
	again := st.Root().AddProperty("a", AttrDefault).AddProperty("b", AttrDefault)
	if again != base {
		t.Error("sharing broken for other objects after a deletion")
	}
	if err := base.Validate(); err != nil {
		t.Errorf("base: %v", err)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("dictionary: %v", err)
	}
}

func TestShapeDeleteMissing(t *testing.T) {
	st := NewShapeTable()
	s := st.Root().AddProperty("a", AttrDefault)
	d, slot, ok := s.DeleteProperty("zzz")
	if ok || slot != -1 || d != s {
		t.Errorf("DeleteProperty(missing) = %d, %d, %v", d.ID(), slot, ok)
	}
}

func TestShapeChangeAttributes(t *testing.T) {
	st := NewShapeTable()
	s := st.Root().AddProperty("a", AttrDefault)
	if s.ChangeAttributes("a", AttrDefault) != s {
		t.Error("no-op attribute change should keep the shape")
	}
	ro := s.ChangeAttributes("a", AttrEnumerable)
	if ro == s || !ro.Dictionary() {
		t.Fatal("attribute change should leave the tree")
	}
	info, _ := ro.Lookup("a")
	if info.Attrs != AttrEnumerable || info.Slot != 0 {
		t.Errorf("info = %+v", info)
	}
	orig, _ := s.Lookup("a")
	if orig.Attrs != AttrDefault {
		t.Error("shared shape attributes changed")
	}
}

func TestShapeFanOutFallsBackToDictionary(t *testing.T) {
	st := NewShapeTable()
	root := st.Root()
	var last *Shape
	for i := 0; i <= maxTransitions; i++ {
		last = root.AddProperty(fmt.Sprintf("p%d", i), AttrDefault)
	}
	if !last.Dictionary() {
		t.Error("exceeding the transition fan-out should produce a dictionary shape")
	}
	if root.AddProperty("p0", AttrDefault).Dictionary() {
		t.Error("existing transitions must stay cached")
	}
}

func TestShapeDictionaryGrowsInPlace(t *testing.T) {
	st := NewShapeTable()
	d, _, _ := st.Root().AddProperty("a", AttrDefault).AddProperty("b", AttrDefault).DeleteProperty("a")
	next := d.AddProperty("c", AttrDefault)
	if next != d {
		t.Error("dictionary shapes are owned and updated in place")
	}
	if got := d.Keys(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Keys() = %v", got)
	}
	bi, _ := d.Lookup("b")
	ci, _ := d.Lookup("c")
	if ci.Slot == bi.Slot {
		t.Errorf("new property reused slot %d of a live property", ci.Slot)
	}
	if ci.Slot != 0 {
		t.Errorf("c took slot %d, want the freed slot 0", ci.Slot)
	}
	if err := d.Validate(); err != nil {
		t.Error(err)
	}
}

func TestShapeDuplicateAddIsFatal(t *testing.T) {
	st := NewShapeTable()
	s := st.Root().AddProperty("a", AttrDefault)
	defer func() {
		fe, ok := recover().(*FatalError)
		if !ok || fe.Kind != FatalInvariant {
			t.Errorf("recovered %v, want an invariant violation", fe)
		}
	}()
	s.AddProperty("a", AttrDefault)
}

func TestShapeParentCycleIsFatal(t *testing.T) {
	st := NewShapeTable()
	a := st.Root().AddProperty("a", AttrDefault)
	b := a.AddProperty("b", AttrDefault)
	a.parent = b
	b.props, b.keys = nil, nil

	if err := b.Validate(); err == nil || !strings.Contains(err.Error(), "cycle in parent chain") {
		t.Fatalf("Validate() = %v, want a parent cycle error", err)
	}
	defer func() {
		fe, ok := recover().(*FatalError)
		if !ok || fe.Kind != FatalInvariant {
			t.Fatalf("recovered %v, want an invariant violation", fe)
		}
		if !strings.Contains(fe.Message, "cycle in shape transition chain") {
			t.Errorf("message = %q", fe.Message)
		}
	}()
	b.Lookup("a")
	t.Error("Lookup returned on a cyclic chain")
}

func TestShapeValidateRejectsStrayChild(t *testing.T) {
	st := NewShapeTable()
	s := st.Root().AddProperty("x", AttrDefault)
	c := s.AddProperty("y", AttrDefault)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v on a well-formed shape", err)
	}
	c.parent = st.Root()
	if err := s.Validate(); err == nil || !strings.Contains(err.Error(), "transition child") {
		t.Errorf("Validate() = %v, want a transition child error", err)
	}
}

// ---------------------------------------------------------------------------
// Shapes through the object model
// ---------------------------------------------------------------------------

func TestObjectsShareShapes(t *testing.T) {
	r := newTestRealm(t)
	mustRun(t, r, `
		var p = {}; p.x = 1; p.y = 2;
		var q = {}; q.x = 10; q.y = 20;
		var lit = {x: 0, y: 0};
	`)
	shapeOf := func(name string) *Shape {
		v, err := r.Get(r.Global().Value(), name)
		if err != nil {
			t.Fatal(err)
		}
		return r.heap.object(v.Ref()).Shape()
	}
	if shapeOf("p") != shapeOf("q") {
		t.Error("objects built the same way should share a shape")
	}
	if shapeOf("p") != shapeOf("lit") {
		t.Error("literal and incremental construction should converge")
	}

	mustRun(t, r, "delete p.x")
	if shapeOf("p") == shapeOf("q") {
		t.Error("deleting from p should give p its own shape")
	}
	if shapeOf("q") != shapeOf("lit") {
		t.Error("deleting from p changed sharing between q and lit")
	}
	if got := display(t, r, "p.y + ':' + q.x"); got != "2:10" {
		t.Errorf("got %s", got)
	}
}
