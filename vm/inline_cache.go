package vm

// Inline Caching for Property Access
//
// Each OpGetProp / OpSetProp site owns one PropertyCache, indexed by the
// cache operand the compiler assigns. Entries key on the receiver's Shape:
//
//   - a get entry maps shape -> slot for an own data property
//   - a put entry maps shape -> slot for an existing writable property
//   - an add entry maps shape -> (new shape, slot) for a property added by
//     assignment, guarded by the receiver's prototype and the realm's
//     prototype epoch so an inherited read-only property is never skipped
//
// Dictionary shapes are never cached. Sites progress Empty -> Monomorphic
// -> Polymorphic (up to MaxPICEntries) -> Megamorphic.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single shape cached
	CachePolymorphic                   // 2-4 entries
	CacheMegamorphic                   // Too many shapes, always take the slow path
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	default:
		return "megamorphic"
	}
}

// MaxPICEntries is the maximum number of entries in a polymorphic cache.
const MaxPICEntries = 4

// CacheEntry is a single cached resolution.
type CacheEntry struct {
	Shape *Shape
	Slot  int

	// For add transitions only.
	NewShape *Shape
	Proto    CellRef
	Epoch    uint64
}

// PropertyCache is the cache state for one access site.
type PropertyCache struct {
	State   CacheState
	Entries [MaxPICEntries]CacheEntry
	Count   int

	// Statistics for profiling
	Hits   uint64
	Misses uint64
}

// lookup finds the entry for shape, counting the hit or miss.
func (pc *PropertyCache) lookup(shape *Shape) *CacheEntry {
	switch pc.State {
	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < pc.Count; i++ {
			if pc.Entries[i].Shape == shape {
				pc.Hits++
				return &pc.Entries[i]
			}
		}
	}
	pc.Misses++
	return nil
}

// update records an entry, upgrading the state as new shapes appear.
func (pc *PropertyCache) update(e CacheEntry) {
	if e.Shape == nil || !e.Shape.Cacheable() {
		return
	}
	if e.NewShape != nil && !e.NewShape.Cacheable() {
		return
	}
	switch pc.State {
	case CacheEmpty:
		pc.State = CacheMonomorphic
		pc.Entries[0] = e
		pc.Count = 1

	case CacheMonomorphic, CachePolymorphic:
		for i := 0; i < pc.Count; i++ {
			if pc.Entries[i].Shape == e.Shape {
				pc.Entries[i] = e
				return
			}
		}
		if pc.Count < MaxPICEntries {
			pc.Entries[pc.Count] = e
			pc.Count++
			pc.State = CachePolymorphic
			return
		}
		pc.State = CacheMegamorphic
		pc.Entries = [MaxPICEntries]CacheEntry{}
		pc.Count = 0

	case CacheMegamorphic:
		// Stay megamorphic
	}
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (pc *PropertyCache) HitRate() float64 {
	total := pc.Hits + pc.Misses
	if total == 0 {
		return 0
	}
	return float64(pc.Hits) * 100 / float64(total)
}

// Reset clears the cache back to empty state.
func (pc *PropertyCache) Reset() {
	*pc = PropertyCache{}
}

// CacheStats aggregates cache states across every realized Code.
type CacheStats struct {
	Empty, Monomorphic, Polymorphic, Megamorphic int
	Hits, Misses                                 uint64
}

// CacheStats reports inline cache statistics for the realm.
func (r *Realm) CacheStats() CacheStats {
	var s CacheStats
	for _, c := range r.codes {
		for i := range c.Caches {
			pc := &c.Caches[i]
			switch pc.State {
			case CacheEmpty:
				s.Empty++
			case CacheMonomorphic:
				s.Monomorphic++
			case CachePolymorphic:
				s.Polymorphic++
			case CacheMegamorphic:
				s.Megamorphic++
			}
			s.Hits += pc.Hits
			s.Misses += pc.Misses
		}
	}
	return s
}

// cacheableReceiver reports whether property sites may cache on o. Exotic
// classes resolve some keys outside the shape.
func cacheableReceiver(o *Object) bool {
	switch o.class {
	case ClassOrdinary, ClassFunction, ClassError, ClassArguments:
		return true
	}
	return false
}

// getNamedCached implements OpGetProp on an object receiver.
func (r *Realm) getNamedCached(ref CellRef, key string, pc *PropertyCache) Value {
	o := r.heap.object(ref)
	if cacheableReceiver(o) {
		if e := pc.lookup(o.shape); e != nil && e.NewShape == nil {
			return o.slots[e.Slot]
		}
		if info, ok := o.shape.Lookup(key); ok {
			pc.update(CacheEntry{Shape: o.shape, Slot: info.Slot})
			return o.slots[info.Slot]
		}
	}
	v, _ := r.GetProperty(ref, key)
	return v
}

// putNamedCached implements OpSetProp on an object receiver.
func (r *Realm) putNamedCached(ref CellRef, key string, v Value, strict bool, pc *PropertyCache) {
	o := r.heap.object(ref)
	if !cacheableReceiver(o) {
		r.put(ref, key, v, strict)
		return
	}
	if e := pc.lookup(o.shape); e != nil {
		if e.NewShape == nil {
			o.slots[e.Slot] = v
			return
		}
		if e.Proto == o.proto && e.Epoch == r.protoEpoch && o.extensible {
			o.ensureSlots(e.NewShape.SlotCount())
			o.shape = e.NewShape
			o.slots[e.Slot] = v
			return
		}
	}

	before := o.shape
	if info, ok := before.Lookup(key); ok {
		if info.Attrs.Writable() {
			o.slots[info.Slot] = v
			pc.update(CacheEntry{Shape: before, Slot: info.Slot})
			return
		}
		r.put(ref, key, v, strict)
		return
	}
	epoch := r.protoEpoch
	r.put(ref, key, v, strict)
	if o.shape != before && epoch == r.protoEpoch {
		if info, ok := o.shape.Lookup(key); ok && info.Attrs == AttrDefault {
			pc.update(CacheEntry{Shape: before, Slot: info.Slot, NewShape: o.shape, Proto: o.proto, Epoch: epoch})
		}
	}
}
