package vm

// ---------------------------------------------------------------------------
// Keyed collections
// ---------------------------------------------------------------------------

// collectionKey is the SameValueZero identity of a collection key. Strings
// are interned and objects and symbols are heap references, so the value
// itself identifies them. Numbers are normalized so -0 and +0 collide, and
// BigInts are keyed by their digits.
type collectionKey struct {
	v   Value
	big string
}

func (vm *VM) collectionKey(v Value) collectionKey {
	switch {
	case v.IsNumber():
		switch f := v.Float64(); {
		case f == 0:
			return collectionKey{v: Number(0)}
		case f != f:
			return collectionKey{v: NaN}
		}
	case v.IsBigInt():
		return collectionKey{big: vm.bigInt(v).String()}
	}
	return collectionKey{v: v}
}

type collectionEntry struct {
	id    collectionKey
	key   Value // hole marks a deleted entry
	value Value
}

// collectionData backs Set and Map objects: insertion-ordered entries with
// a hash index. Deleted entries leave tombstones so live iterators keep
// their positions; tombstones are compacted away only while no iterator
// is active.
type collectionData struct {
	entries []collectionEntry
	index   map[collectionKey]int
	deleted int
	locks   int // unfinished iterators
}

func newCollectionData() *collectionData {
	return &collectionData{index: make(map[collectionKey]int)}
}

func (c *collectionData) trace(m *marker) {
	for _, e := range c.entries {
		if e.key != hole {
			m.value(e.key)
			m.value(e.value)
		}
	}
}

func (c *collectionData) len() int {
	return len(c.entries) - c.deleted
}

func (c *collectionData) get(k collectionKey) (Value, bool) {
	if i, ok := c.index[k]; ok {
		return c.entries[i].value, true
	}
	return Undefined, false
}

// set adds or updates an entry, reporting whether it was new.
func (c *collectionData) set(k collectionKey, key, value Value) bool {
	if i, ok := c.index[k]; ok {
		c.entries[i].value = value
		return false
	}
	c.index[k] = len(c.entries)
	c.entries = append(c.entries, collectionEntry{id: k, key: key, value: value})
	return true
}

func (c *collectionData) remove(k collectionKey) bool {
	i, ok := c.index[k]
	if !ok {
		return false
	}
	delete(c.index, k)
	c.entries[i] = collectionEntry{key: hole, value: Undefined}
	c.deleted++
	c.maybeCompact()
	return true
}

// clear deletes every entry. Active iterators see the tombstones and then
// any entries added afterwards.
func (c *collectionData) clear() {
	for i := range c.entries {
		c.entries[i] = collectionEntry{key: hole, value: Undefined}
	}
	c.deleted = len(c.entries)
	clear(c.index)
	c.maybeCompact()
}

func (c *collectionData) maybeCompact() {
	if c.locks > 0 || c.deleted <= len(c.entries)/2 {
		return
	}
	live := c.entries[:0]
	for _, e := range c.entries {
		if e.key != hole {
			live = append(live, e)
		}
	}
	clear(c.entries[len(live):])
	c.entries = live
	c.deleted = 0
	clear(c.index)
	for i, e := range c.entries {
		c.index[e.id] = i
	}
}
