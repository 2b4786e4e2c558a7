package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Property attributes
// ---------------------------------------------------------------------------

// PropertyAttrs are the ES5 data-property attribute bits.
type PropertyAttrs uint8

const (
	AttrWritable PropertyAttrs = 1 << iota
	AttrEnumerable
	AttrConfigurable

	AttrNone    PropertyAttrs = 0
	AttrDefault               = AttrWritable | AttrEnumerable | AttrConfigurable
	// AttrHidden is used for built-in methods: writable and configurable
	// but skipped by for-in and Object.keys.
	AttrHidden = AttrWritable | AttrConfigurable
)

func (a PropertyAttrs) Writable() bool     { return a&AttrWritable != 0 }
func (a PropertyAttrs) Enumerable() bool   { return a&AttrEnumerable != 0 }
func (a PropertyAttrs) Configurable() bool { return a&AttrConfigurable != 0 }

func (a PropertyAttrs) String() string {
	b := []byte("---")
	if a.Writable() {
		b[0] = 'w'
	}
	if a.Enumerable() {
		b[1] = 'e'
	}
	if a.Configurable() {
		b[2] = 'c'
	}
	return string(b)
}

// PropertyInfo locates a named property in an object's slot array.
type PropertyInfo struct {
	Slot  int
	Attrs PropertyAttrs
}

// ---------------------------------------------------------------------------
// Shape
// ---------------------------------------------------------------------------

// maxTransitions bounds the fan-out of a single shape. Once exceeded,
// further additions produce dictionary shapes instead of growing the tree.
const maxTransitions = 32

type transitionKey struct {
	name  string
	attrs PropertyAttrs
}

// Shape describes the names, order and attributes of an object's own
// properties and maps each name to a slot index.
//
// Tree shapes are shared and immutable: adding a property follows (or
// creates) a cached transition to a child shape, so objects built by the
// same sequence of additions share one Shape. Dictionary shapes are owned
// by a single object and mutated in place; they are never cached and never
// transitioned from.
type Shape struct {
	id     uint32
	table  *ShapeTable
	parent *Shape

	// The property introduced by the transition into this shape.
	name  string
	attrs PropertyAttrs

	slotCount int

	// Materialized lazily for tree shapes by walking the parent chain;
	// authoritative for dictionary shapes.
	props map[string]PropertyInfo
	keys  []string

	// Outgoing transitions: a single edge upgrades to a map on the second.
	singleKey   transitionKey
	single      *Shape
	transitions map[transitionKey]*Shape
	transitOut  int

	dictionary bool
	deleted    []int // reusable slots freed by deletion (dictionary only)
}

// ShapeTable owns the shape tree of one Realm.
type ShapeTable struct {
	root   *Shape
	nextID uint32
	count  int
}

// NewShapeTable creates a table holding only the empty root shape.
func NewShapeTable() *ShapeTable {
	t := &ShapeTable{}
	t.root = t.newShape()
	t.root.props = map[string]PropertyInfo{}
	return t
}

func (t *ShapeTable) newShape() *Shape {
	t.nextID++
	t.count++
	return &Shape{id: t.nextID, table: t}
}

// Root returns the empty shape every ordinary object starts from.
func (t *ShapeTable) Root() *Shape {
	return t.root
}

// Count returns the number of shapes created so far.
func (t *ShapeTable) Count() int {
	return t.count
}

// ID returns a table-unique shape identifier.
func (s *Shape) ID() uint32 { return s.id }

// Parent returns the shape this one transitioned from (nil for the root
// and for dictionary shapes).
func (s *Shape) Parent() *Shape { return s.parent }

// Dictionary reports whether s is an unshared dictionary-mode shape.
func (s *Shape) Dictionary() bool { return s.dictionary }

// Cacheable reports whether inline caches may key on s. Dictionary shapes
// change in place, so a cached slot could go stale.
func (s *Shape) Cacheable() bool { return !s.dictionary }

// SlotCount returns the number of value slots an object of this shape
// needs. Dictionary shapes may have unused (deleted) slots below it.
func (s *Shape) SlotCount() int { return s.slotCount }

// PropertyCount returns the number of live properties.
func (s *Shape) PropertyCount() int {
	return len(s.table_())
}

func (s *Shape) table_() map[string]PropertyInfo {
	if s.props == nil {
		s.materialize()
	}
	return s.props
}

// materialize builds the name map of a tree shape by walking the parent
// chain back to the root.
func (s *Shape) materialize() {
	var chain []*Shape
	seen := 0
	for cur := s; cur != nil && cur.parent != nil; cur = cur.parent {
		chain = append(chain, cur)
		seen++
		if seen > s.table.count {
			panic(fatalf(FatalInvariant, "cycle in shape transition chain at shape %d", s.id))
		}
	}
	props := make(map[string]PropertyInfo, len(chain))
	keys := make([]string, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		props[cur.name] = PropertyInfo{Slot: cur.slot(), Attrs: cur.attrs}
		keys[len(chain)-1-i] = cur.name
	}
	s.props = props
	s.keys = keys
}

// slot is the index of the property introduced by the transition into s.
func (s *Shape) slot() int { return s.slotCount - 1 }

// Lookup resolves name to its slot in expected O(1).
func (s *Shape) Lookup(name string) (PropertyInfo, bool) {
	info, ok := s.table_()[name]
	return info, ok
}

// Keys returns property names in insertion order. The result must not be
// modified.
func (s *Shape) Keys() []string {
	if s.props == nil {
		s.materialize()
	}
	return s.keys
}

// AddProperty returns the shape describing s plus name. For tree shapes it
// reuses the cached transition for (name, attrs) when there is one, so
// identical addition sequences converge. Dictionary shapes are updated in
// place and returned.
func (s *Shape) AddProperty(name string, attrs PropertyAttrs) *Shape {
	if s.dictionary {
		s.dictAdd(name, attrs)
		return s
	}
	if _, exists := s.Lookup(name); exists {
		panic(fatalf(FatalInvariant, "shape %d already has property %q", s.id, name))
	}

	key := transitionKey{name: name, attrs: attrs}
	if s.single != nil && s.singleKey == key {
		return s.single
	}
	if next, ok := s.transitions[key]; ok {
		return next
	}

	if s.transitOut >= maxTransitions {
		d := s.toDictionary()
		d.dictAdd(name, attrs)
		return d
	}

	child := s.table.newShape()
	child.parent = s
	child.name = name
	child.attrs = attrs
	child.slotCount = s.slotCount + 1

	switch {
	case s.single == nil && s.transitions == nil:
		s.single = child
		s.singleKey = key
	default:
		if s.transitions == nil {
			s.transitions = make(map[transitionKey]*Shape, 2)
			s.transitions[s.singleKey] = s.single
			s.single = nil
		}
		s.transitions[key] = child
	}
	s.transitOut++
	return child
}

// DeleteProperty returns a shape without name. Deletion breaks the
// append-only sharing of the tree, so a tree shape is first copied into a
// fresh dictionary shape owned by the caller; shared shapes are never
// modified. The freed slot index is returned so the object can clear it.
func (s *Shape) DeleteProperty(name string) (*Shape, int, bool) {
	info, ok := s.Lookup(name)
	if !ok {
		return s, -1, false
	}
	d := s
	if !s.dictionary {
		d = s.toDictionary()
	}
	delete(d.props, name)
	for i, k := range d.keys {
		if k == name {
			d.keys = append(d.keys[:i:i], d.keys[i+1:]...)
			break
		}
	}
	d.deleted = append(d.deleted, info.Slot)
	return d, info.Slot, true
}

// ChangeAttributes returns a shape in which name carries attrs. Like
// deletion, this leaves the tree and moves to dictionary mode.
func (s *Shape) ChangeAttributes(name string, attrs PropertyAttrs) *Shape {
	info, ok := s.Lookup(name)
	if !ok || info.Attrs == attrs {
		return s
	}
	d := s
	if !s.dictionary {
		d = s.toDictionary()
	}
	d.props[name] = PropertyInfo{Slot: info.Slot, Attrs: attrs}
	return d
}

// toDictionary copies s into a new unshared dictionary shape.
func (s *Shape) toDictionary() *Shape {
	src := s.table_()
	d := s.table.newShape()
	d.dictionary = true
	d.slotCount = s.slotCount
	d.props = make(map[string]PropertyInfo, len(src)+1)
	for k, v := range src {
		d.props[k] = v
	}
	d.keys = append(make([]string, 0, len(s.keys)+1), s.Keys()...)
	d.deleted = append([]int(nil), s.deleted...)
	return d
}

// dictAdd appends a property to a dictionary shape, reusing the most
// recently freed slot when one is available.
func (s *Shape) dictAdd(name string, attrs PropertyAttrs) {
	if _, exists := s.props[name]; exists {
		panic(fatalf(FatalInvariant, "shape %d already has property %q", s.id, name))
	}
	slot := s.slotCount
	if n := len(s.deleted); n > 0 {
		slot = s.deleted[n-1]
		s.deleted = s.deleted[:n-1]
	} else {
		s.slotCount++
	}
	s.props[name] = PropertyInfo{Slot: slot, Attrs: attrs}
	s.keys = append(s.keys, name)
}

// Validate checks structural invariants of the shape and its ancestry:
// the parent chain is finite and acyclic, and every transition child
// points back at its parent.
func (s *Shape) Validate() error {
	visited := make(map[*Shape]bool)
	for cur := s; cur != nil; cur = cur.parent {
		if visited[cur] {
			return fmt.Errorf("vm: shape %d: cycle in parent chain", s.id)
		}
		visited[cur] = true
		if cur.parent != nil && cur.dictionary {
			return fmt.Errorf("vm: dictionary shape %d has a parent", cur.id)
		}
	}
	check := func(child *Shape) error {
		if child.parent != s {
			return fmt.Errorf("vm: shape %d: transition child %d has parent %v", s.id, child.id, child.parent)
		}
		return nil
	}
	if s.single != nil {
		if err := check(s.single); err != nil {
			return err
		}
	}
	for _, child := range s.transitions {
		if err := check(child); err != nil {
			return err
		}
	}
	return nil
}

func (s *Shape) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Shape#%d{", s.id)
	for i, k := range s.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		info := s.props[k]
		fmt.Fprintf(&sb, "%s@%d:%s", k, info.Slot, info.Attrs)
	}
	sb.WriteByte('}')
	if s.dictionary {
		sb.WriteString(" dict")
	}
	return sb.String()
}

// storageCapacity rounds a slot count up to a power of two, minimum 8.
func storageCapacity(n int) int {
	c := 8
	for c < n {
		c <<= 1
	}
	return c
}
