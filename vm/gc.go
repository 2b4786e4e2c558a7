package vm

import (
	"time"

	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("jsrt.gc")

// ---------------------------------------------------------------------------
// Tracer: gray worklist for the mark phase
// ---------------------------------------------------------------------------

// Tracer is handed to trace routines and root sources. Marking pushes newly
// reached cells onto an index worklist; there are no intrusive links.
type Tracer struct {
	heap  *Heap
	gray  []uint32
	epoch uint64

	// visit, when set, turns the tracer into an edge enumerator for
	// Heap.Inspect instead of a marker.
	visit func(CellRef)
}

// MarkValue marks the cell referenced by v, if any.
func (t *Tracer) MarkValue(v Value) {
	if v.IsCell() {
		t.MarkRef(v.Ref())
	}
}

// MarkValues marks every cell referenced from vs.
func (t *Tracer) MarkValues(vs []Value) {
	for _, v := range vs {
		if v.IsCell() {
			t.MarkRef(v.Ref())
		}
	}
}

// MarkRef marks r as reachable. A dangling handle reached from a root is an
// engine defect and aborts.
func (t *Tracer) MarkRef(r CellRef) {
	if r == noCell {
		return
	}
	if t.visit != nil {
		t.visit(r)
		return
	}
	c := t.heap.entry(r)
	if c.color == colorWhite {
		c.color = colorGray
		t.gray = append(t.gray, r.Index())
	}
}

// traceCell marks the strong children of the cell at idx.
func (h *Heap) traceCell(t *Tracer, idx uint32) {
	c := &h.cells[idx]
	switch c.kind {
	case CellObject:
		c.obj.trace(t, h.strongPrototypes)
	case CellBox:
		t.MarkValue(c.box)
	case CellPropertyIterator:
		t.MarkRef(c.iter.object)
	case CellString:
		// leaf
	}
}

// marked reports whether r survived the mark phase of the collection in
// progress.
func (h *Heap) marked(r CellRef) bool {
	return h.Alive(r) && h.cells[r.Index()].color != colorWhite
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect performs a full stop-the-world mark-sweep pass and returns the
// number of cells reclaimed.
//
// Roots are pinned handles plus everything the registered root sources mark
// (frames, operand stack, globals, intrinsics). Object prototype links are
// weak: they are not traced, and after marking any link to an unmarked cell
// is cleared so no dangling reference survives the sweep.
func (h *Heap) Collect() int {
	if h.collecting {
		return 0
	}
	start := time.Now()
	h.collecting = true
	defer func() { h.collecting = false }()

	h.epoch++
	t := &Tracer{heap: h, gray: make([]uint32, 0, 256), epoch: h.epoch}
	for r := range h.pins {
		t.MarkRef(r)
	}
	for _, src := range h.rootSources {
		src(t)
	}
	for len(t.gray) > 0 {
		idx := t.gray[len(t.gray)-1]
		t.gray = t.gray[:len(t.gray)-1]
		h.cells[idx].color = colorBlack
		h.traceCell(t, idx)
	}

	h.clearWeakLinks()
	for _, fn := range h.weakSweeps {
		fn()
	}

	freed := 0
	for i := 1; i < len(h.cells); i++ {
		c := &h.cells[i]
		if c.kind == CellFree {
			continue
		}
		if c.color == colorWhite {
			h.free(uint32(i))
			freed++
			continue
		}
		c.color = colorWhite
	}

	h.stats.Collections++
	h.stats.LastFreed = freed
	h.stats.TotalFreed += freed
	h.bytesSinceGC = 0
	h.gcRequested = false
	h.threshold = h.baseline
	if h.liveBytes > h.threshold {
		h.threshold = h.liveBytes
	}

	gcLog.Debugf("collection %d: freed %d cells, %d live (%d bytes) in %s",
		h.stats.Collections, freed, h.liveCells, h.liveBytes, time.Since(start))
	return freed
}

// clearWeakLinks nulls prototype links and WeakRef targets that point at
// cells about to be reclaimed.
func (h *Heap) clearWeakLinks() {
	for i := 1; i < len(h.cells); i++ {
		c := &h.cells[i]
		if c.kind != CellObject || c.color == colorWhite {
			continue
		}
		o := c.obj
		if o.proto != noCell && !h.marked(o.proto) {
			o.proto = noCell
		}
		if o.class == ClassWeakRef && o.weakTarget != noCell && !h.marked(o.weakTarget) {
			o.weakTarget = noCell
		}
	}
}
