package vm

// propAttrs holds the attribute bits of a property.
type propAttrs uint8

const (
	attrWritable propAttrs = 1 << iota
	attrEnumerable
	attrConfigurable

	attrDefault = attrWritable | attrEnumerable | attrConfigurable
	attrHidden  = attrWritable | attrConfigurable // built-in methods
)

type property struct {
	key   Value // string or symbol; hole marks a deleted entry
	value Value
	attrs propAttrs
}

func (p *property) writable() bool     { return p.attrs&attrWritable != 0 }
func (p *property) enumerable() bool   { return p.attrs&attrEnumerable != 0 }
func (p *property) configurable() bool { return p.attrs&attrConfigurable != 0 }

// indexThreshold is the entry count above which lookups use a hash index.
const indexThreshold = 8

// propertyMap is an insertion-ordered map from property key to property.
// Keys are interned string values or symbol values, so key equality is
// value identity and no string content is hashed.
type propertyMap struct {
	entries []property
	index   map[Value]int
	deleted int
}

func (pm *propertyMap) find(key Value) int {
	if pm.index != nil {
		if i, ok := pm.index[key]; ok {
			return i
		}
		return -1
	}
	for i := range pm.entries {
		if pm.entries[i].key == key {
			return i
		}
	}
	return -1
}

// get returns the property for key, or nil.
func (pm *propertyMap) get(key Value) *property {
	if i := pm.find(key); i >= 0 {
		return &pm.entries[i]
	}
	return nil
}

// add appends a new property. The key must not already be present.
func (pm *propertyMap) add(key, value Value, attrs propAttrs) {
	pm.entries = append(pm.entries, property{key: key, value: value, attrs: attrs})
	if pm.index != nil {
		pm.index[key] = len(pm.entries) - 1
	} else if len(pm.entries)-pm.deleted > indexThreshold {
		pm.reindex()
	}
}

// remove deletes key, preserving the order of the remaining entries.
func (pm *propertyMap) remove(key Value) bool {
	i := pm.find(key)
	if i < 0 {
		return false
	}
	pm.entries[i] = property{key: hole}
	if pm.index != nil {
		delete(pm.index, key)
	}
	pm.deleted++
	if pm.deleted > len(pm.entries)/2 {
		pm.compact()
	}
	return true
}

func (pm *propertyMap) compact() {
	live := pm.entries[:0]
	for _, e := range pm.entries {
		if e.key != hole {
			live = append(live, e)
		}
	}
	clear(pm.entries[len(live):])
	pm.entries = live
	pm.deleted = 0
	pm.index = nil
	if len(pm.entries) > indexThreshold {
		pm.reindex()
	}
}

func (pm *propertyMap) reindex() {
	pm.index = make(map[Value]int, len(pm.entries))
	for i, e := range pm.entries {
		if e.key != hole {
			pm.index[e.key] = i
		}
	}
}

// len returns the number of live properties.
func (pm *propertyMap) len() int {
	return len(pm.entries) - pm.deleted
}

// each visits live properties in insertion order. Returning false stops
// the iteration.
func (pm *propertyMap) each(fn func(p *property) bool) {
	for i := range pm.entries {
		if pm.entries[i].key == hole {
			continue
		}
		if !fn(&pm.entries[i]) {
			return
		}
	}
}

func (pm *propertyMap) trace(m *marker) {
	for _, e := range pm.entries {
		if e.key == hole {
			continue
		}
		m.value(e.key)
		m.value(e.value)
	}
}

func (pm *propertyMap) size() int {
	n := len(pm.entries) * 24
	if pm.index != nil {
		n += len(pm.index) * 24
	}
	return n
}
