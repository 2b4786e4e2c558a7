package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Cells
// ---------------------------------------------------------------------------

// CellKind is the type tag carried by every heap cell. The collector picks
// the trace routine from it.
type CellKind uint8

const (
	CellFree CellKind = iota
	CellObject
	CellString
	CellBox
	CellPropertyIterator
)

func (k CellKind) String() string {
	switch k {
	case CellFree:
		return "free"
	case CellObject:
		return "object"
	case CellString:
		return "string"
	case CellBox:
		return "box"
	case CellPropertyIterator:
		return "iterator"
	default:
		return fmt.Sprintf("CellKind(%d)", k)
	}
}

type gcColor uint8

const (
	colorWhite gcColor = iota // not yet reached in this cycle
	colorGray                 // reached, children not yet traced
	colorBlack                // reached and traced
)

// cell is one arena entry. Exactly one payload field is meaningful,
// selected by kind.
type cell struct {
	kind     CellKind
	color    gcColor
	gen      uint16
	size     int32
	nextFree uint32

	obj  *Object
	str  *jsString
	box  Value
	iter *propertyIterator

	finalizer func()
}

// ---------------------------------------------------------------------------
// Heap: index-based arena with a free list
// ---------------------------------------------------------------------------

// HeapStats summarizes heap occupancy and collector activity.
type HeapStats struct {
	LiveCells      int
	LiveBytes      int64
	ArenaSize      int
	FreeCells      int
	Collections    int
	TotalFreed     int
	LastFreed      int
	BytesSinceGC   int64
	ThresholdBytes int64
}

// Heap owns every cell of one Realm. Cells are addressed by dense CellRef
// handles; freed slots are threaded onto an index free list so allocation
// and release are O(1). The heap is not safe for concurrent use.
type Heap struct {
	cells    []cell // index 0 is reserved so the zero CellRef is never valid
	freeHead uint32 // 0 when the free list is empty
	freeLen  int

	liveCells int
	liveBytes int64

	bytesSinceGC int64
	threshold    int64
	baseline     int64
	maxCells     int

	gcRequested bool
	collecting  bool

	// epoch numbers mark phases, so Go-side structures reached from
	// several cells are traced once per collection.
	epoch uint64

	pins        map[CellRef]int
	rootSources []func(*Tracer)
	weakSweeps  []func()

	// strongPrototypes makes object->prototype links traced edges.
	strongPrototypes bool

	// genSeed is the generation given to fresh arena slots. Realms seed it
	// from their identity so handles from another heap rarely validate.
	genSeed uint16

	stats HeapStats
}

// NewHeap creates an empty heap. thresholdBytes is the allocation volume
// that requests a collection; maxCells bounds the arena (0 means no bound
// beyond the 32-bit index space).
func NewHeap(thresholdBytes int64, maxCells int) *Heap {
	if thresholdBytes <= 0 {
		thresholdBytes = 4 << 20
	}
	if maxCells <= 0 || maxCells > 1<<31 {
		maxCells = 1 << 31
	}
	return &Heap{
		cells:     make([]cell, 1, 1024),
		threshold: thresholdBytes,
		baseline:  thresholdBytes,
		maxCells:  maxCells,
		pins:      make(map[CellRef]int),
	}
}

// Allocate returns a fresh, zero-initialized cell of the given kind.
// size is the caller's estimate of the cell's footprint and feeds the
// collection trigger. Exhaustion is fatal.
func (h *Heap) Allocate(size int, kind CellKind) CellRef {
	if kind == CellFree {
		panic(fatalf(FatalInvariant, "allocate called with free kind"))
	}
	var idx uint32
	if h.freeHead != 0 {
		idx = h.freeHead
		h.freeHead = h.cells[idx].nextFree
		h.freeLen--
	} else {
		if len(h.cells) >= h.maxCells {
			panic(fatalf(FatalOutOfMemory, "heap exhausted at %d cells", len(h.cells)-1))
		}
		idx = uint32(len(h.cells))
		h.cells = append(h.cells, cell{gen: h.genSeed})
	}

	c := &h.cells[idx]
	gen := c.gen
	*c = cell{kind: kind, gen: gen, size: int32(size)}
	if h.collecting {
		// Cells born during a sweep callback survive this cycle.
		c.color = colorBlack
	}

	h.liveCells++
	h.liveBytes += int64(size)
	h.bytesSinceGC += int64(size)
	if h.bytesSinceGC >= h.threshold {
		h.gcRequested = true
	}
	return makeRef(idx, gen)
}

// releaseAll frees every live cell, running finalizers.
func (h *Heap) releaseAll() {
	for i := 1; i < len(h.cells); i++ {
		if h.cells[i].kind != CellFree {
			h.free(uint32(i))
		}
	}
	clear(h.pins)
}

// free releases a cell, runs its finalizer and bumps the slot generation so
// stale handles are detectable.
func (h *Heap) free(idx uint32) {
	c := &h.cells[idx]
	fin := c.finalizer
	size := c.size
	gen := c.gen + 1
	*c = cell{kind: CellFree, gen: gen, nextFree: h.freeHead}
	h.freeHead = idx
	h.freeLen++
	h.liveCells--
	h.liveBytes -= int64(size)
	if fin != nil {
		fin()
	}
}

// entry resolves a handle, aborting on a dangling or malformed reference.
func (h *Heap) entry(r CellRef) *cell {
	idx := r.Index()
	if idx == 0 || int(idx) >= len(h.cells) {
		panic(fatalf(FatalInvariant, "cell reference %s out of range", r))
	}
	c := &h.cells[idx]
	if c.kind == CellFree || c.gen != r.Generation() {
		panic(fatalf(FatalInvariant, "dangling cell reference %s", r))
	}
	return c
}

// Alive reports whether r still names a live cell.
func (h *Heap) Alive(r CellRef) bool {
	idx := r.Index()
	if idx == 0 || int(idx) >= len(h.cells) {
		return false
	}
	c := &h.cells[idx]
	return c.kind != CellFree && c.gen == r.Generation()
}

// KindOf returns the kind of a live cell.
func (h *Heap) KindOf(r CellRef) CellKind {
	return h.entry(r).kind
}

// ---------------------------------------------------------------------------
// Typed payload access
// ---------------------------------------------------------------------------

func (h *Heap) allocObject(o *Object) CellRef {
	ref := h.Allocate(o.footprint(), CellObject)
	h.cells[ref.Index()].obj = o
	return ref
}

func (h *Heap) allocString(s *jsString) CellRef {
	ref := h.Allocate(32+len(s.s), CellString)
	h.cells[ref.Index()].str = s
	return ref
}

func (h *Heap) allocBox(v Value) CellRef {
	ref := h.Allocate(16, CellBox)
	h.cells[ref.Index()].box = v
	return ref
}

func (h *Heap) allocIterator(it *propertyIterator) CellRef {
	ref := h.Allocate(32+8*len(it.keys), CellPropertyIterator)
	h.cells[ref.Index()].iter = it
	return ref
}

// object returns the object payload of r, aborting if r is not an object.
func (h *Heap) object(r CellRef) *Object {
	c := h.entry(r)
	if c.kind != CellObject {
		panic(fatalf(FatalInvariant, "cell %s is a %s, not an object", r, c.kind))
	}
	return c.obj
}

func (h *Heap) str(r CellRef) *jsString {
	c := h.entry(r)
	if c.kind != CellString {
		panic(fatalf(FatalInvariant, "cell %s is a %s, not a string", r, c.kind))
	}
	return c.str
}

func (h *Heap) boxGet(r CellRef) Value {
	c := h.entry(r)
	if c.kind != CellBox {
		panic(fatalf(FatalInvariant, "cell %s is a %s, not a box", r, c.kind))
	}
	return c.box
}

func (h *Heap) boxSet(r CellRef, v Value) {
	c := h.entry(r)
	if c.kind != CellBox {
		panic(fatalf(FatalInvariant, "cell %s is a %s, not a box", r, c.kind))
	}
	c.box = v
}

func (h *Heap) iterator(r CellRef) *propertyIterator {
	c := h.entry(r)
	if c.kind != CellPropertyIterator {
		panic(fatalf(FatalInvariant, "cell %s is a %s, not an iterator", r, c.kind))
	}
	return c.iter
}

// isObject reports whether v references an object cell.
func (h *Heap) isObject(v Value) bool {
	return v.IsCell() && h.entry(v.Ref()).kind == CellObject
}

// isString reports whether v references a string cell.
func (h *Heap) isString(v Value) bool {
	return v.IsCell() && h.entry(v.Ref()).kind == CellString
}

// ---------------------------------------------------------------------------
// Roots, pins and finalizers
// ---------------------------------------------------------------------------

// Pin keeps r alive until a matching Unpin, regardless of reachability.
// Pins nest.
func (h *Heap) Pin(r CellRef) {
	h.entry(r)
	h.pins[r]++
}

// Unpin releases one Pin of r.
func (h *Heap) Unpin(r CellRef) {
	n := h.pins[r]
	switch {
	case n <= 0:
		return
	case n == 1:
		delete(h.pins, r)
	default:
		h.pins[r] = n - 1
	}
}

// AddRootSource registers a function that marks additional roots at the
// start of every collection.
func (h *Heap) AddRootSource(fn func(*Tracer)) {
	h.rootSources = append(h.rootSources, fn)
}

// addWeakSweep registers a callback that runs after marking and before
// reclamation, while unmarked cells can still be distinguished.
func (h *Heap) addWeakSweep(fn func()) {
	h.weakSweeps = append(h.weakSweeps, fn)
}

// SetFinalizer arranges for fn to run when r is reclaimed. A nil fn
// clears any existing finalizer. Finalizers must not touch the heap.
func (h *Heap) SetFinalizer(r CellRef, fn func()) {
	h.entry(r).finalizer = fn
}

// GCRequested reports whether the allocation threshold has been crossed
// since the last collection.
func (h *Heap) GCRequested() bool {
	return h.gcRequested
}

// Stats returns a snapshot of heap counters.
func (h *Heap) Stats() HeapStats {
	s := h.stats
	s.LiveCells = h.liveCells
	s.LiveBytes = h.liveBytes
	s.ArenaSize = len(h.cells) - 1
	s.FreeCells = h.freeLen
	s.BytesSinceGC = h.bytesSinceGC
	s.ThresholdBytes = h.threshold
	return s
}

// ---------------------------------------------------------------------------
// Reflection hooks
// ---------------------------------------------------------------------------

// CellInfo describes one live cell for debugging and snapshot tools.
type CellInfo struct {
	Ref   CellRef
	Kind  CellKind
	Size  int
	Class ObjectClass // objects only
	Edges []CellRef   // strong outgoing references
	Proto CellRef     // weak prototype link, objects only
}

// Inspect reports the kind, size and outgoing edges of a live cell using
// the same trace routine the collector uses.
func (h *Heap) Inspect(r CellRef) CellInfo {
	c := h.entry(r)
	info := CellInfo{Ref: r, Kind: c.kind, Size: int(c.size)}
	if c.kind == CellObject {
		info.Class = c.obj.class
		info.Proto = c.obj.proto
	}
	t := &Tracer{heap: h, visit: func(e CellRef) { info.Edges = append(info.Edges, e) }}
	h.traceCell(t, r.Index())
	return info
}

// Walk calls fn for every live cell until fn returns false.
func (h *Heap) Walk(fn func(CellInfo) bool) {
	for i := 1; i < len(h.cells); i++ {
		c := &h.cells[i]
		if c.kind == CellFree {
			continue
		}
		if !fn(h.Inspect(makeRef(uint32(i), c.gen))) {
			return
		}
	}
}
