package vm

// propertyIterator is the for-in state. Keys are snapshotted when the loop
// starts; a key deleted before it is reached is skipped.
type propertyIterator struct {
	object CellRef
	keys   []string
	pos    int
}

// newPropertyIterator collects the enumerable keys of v and its prototype
// chain, dropping shadowed duplicates. undefined and null iterate nothing.
func (r *Realm) newPropertyIterator(v Value) CellRef {
	it := &propertyIterator{}
	if !v.IsNullish() {
		ref := r.toObject(v)
		it.object = ref
		seen := make(map[string]bool)
		limit := r.maxProtoChain()
		for cur, n := ref, 0; cur != noCell; cur, n = r.GetPrototype(cur), n+1 {
			if n > limit {
				r.throwTypeError("cyclic prototype chain")
			}
			for _, k := range r.OwnKeys(cur, false) {
				if seen[k] {
					continue
				}
				seen[k] = true
				if attrs, _ := r.ownAttrs(cur, k); attrs.Enumerable() {
					it.keys = append(it.keys, k)
				}
			}
		}
	}
	return r.heap.allocIterator(it)
}

// nextKey advances the iterator.
func (r *Realm) nextKey(it *propertyIterator) (string, bool) {
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if r.hasProperty(it.object, k) {
			return k, true
		}
	}
	return "", false
}
