package vm

import (
	"maps"
	"slices"
)

// ---------------------------------------------------------------------------
// Array element storage
// ---------------------------------------------------------------------------

// Arrays keep a dense prefix of elements and spill writes that land far
// past its end into a sparse map, so a single store to a large index or a
// large length assignment never materializes the holes in between. The
// length is tracked separately and always exceeds every present index.

// denseGap returns how many slots a write may add to a dense prefix of n
// elements before it is stored sparsely instead.
func denseGap(n int) int {
	return max(1024, 8*n)
}

// element returns the own element at idx.
func (o *Object) element(idx uint32) (Value, bool) {
	if int(idx) < len(o.elements) {
		v := o.elements[idx]
		return v, v != hole
	}
	v, ok := o.sparse[idx]
	return v, ok
}

// sparseKeys returns the sparse indices in ascending order.
func (o *Object) sparseKeys() []uint32 {
	if len(o.sparse) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(o.sparse))
}

// absorbSparse moves sparse elements that continue the dense prefix into it.
func (o *Object) absorbSparse() {
	for len(o.sparse) > 0 {
		i := uint32(len(o.elements))
		v, ok := o.sparse[i]
		if !ok {
			return
		}
		delete(o.sparse, i)
		o.elements = append(o.elements, v)
	}
}

func (vm *VM) setElement(o *Object, idx uint32, v Value) {
	n := len(o.elements)
	switch grow := int(idx) + 1 - n; {
	case grow <= 0:
		o.elements[idx] = v
	case grow > denseGap(n):
		if _, ok := o.sparse[idx]; !ok {
			vm.heap.reserve(24)
			if o.sparse == nil {
				o.sparse = make(map[uint32]Value)
			}
		}
		o.sparse[idx] = v
	default:
		vm.heap.reserve(8 * grow)
		for i := n; i < int(idx); i++ {
			e, ok := o.sparse[uint32(i)]
			if ok {
				delete(o.sparse, uint32(i))
			} else {
				e = hole
			}
			o.elements = append(o.elements, e)
		}
		delete(o.sparse, idx)
		o.elements = append(o.elements, v)
		o.absorbSparse()
	}
	if idx >= o.length {
		o.length = idx + 1
	}
}

// removeElement deletes the own element at idx, leaving the length alone.
func (o *Object) removeElement(idx uint32) {
	if int(idx) < len(o.elements) {
		o.elements[idx] = hole
		return
	}
	delete(o.sparse, idx)
}

func (vm *VM) setArrayLength(o *Object, v Value) bool {
	f := vm.toNumber(v)
	n, ok := numberIndex(f)
	if !ok {
		vm.throwError(errRange, "Invalid array length")
	}
	if o.frozen {
		return false
	}
	if int(n) < len(o.elements) {
		clear(o.elements[n:])
		o.elements = o.elements[:n]
	}
	for i := range o.sparse {
		if i >= n {
			delete(o.sparse, i)
		}
	}
	o.length = n
	return true
}

// eachElement visits the present elements of o in index order, up to the
// length o had on entry, until fn returns false. Storage is re-read on
// every step, so fn may mutate the array.
func (vm *VM) eachElement(o *Object, fn func(i uint32, v Value) bool) {
	n := o.length
	i := uint32(0)
	for ; i < n && int(i) < len(o.elements); i++ {
		if e := o.elements[i]; e != hole {
			if !fn(i, e) {
				return
			}
		}
	}
	for _, k := range o.sparseKeys() {
		if k < i || k >= n {
			continue
		}
		if e, ok := o.element(k); ok {
			if !fn(k, e) {
				return
			}
		}
	}
}

// presentCount returns how many elements of o are not holes.
func (o *Object) presentCount() int {
	count := len(o.sparse)
	for _, e := range o.elements {
		if e != hole {
			count++
		}
	}
	return count
}
