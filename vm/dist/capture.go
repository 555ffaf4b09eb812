package dist

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/chazu/kestrel/vm"
)

// ErrNotTransferable is returned when a graph holds a value that has no
// meaning outside its engine: functions, symbols and host objects.
var ErrNotTransferable = errors.New("dist: value is not transferable")

// Capture walks the graph reachable from root on machine and records it.
// Only enumerable own string-keyed properties are captured. Holes in dense
// arrays become undefined; mostly empty arrays are captured sparsely and
// keep their holes. Sets and Maps keep their entries in insertion order.
func Capture(machine *vm.VM, root vm.Value) (*Snapshot, error) {
	c := &capturer{machine: machine, ids: make(map[vm.Value]int)}
	rootSlot, err := c.slot(root)
	if err != nil {
		return nil, err
	}
	// Nodes are appended as they are discovered, so the loop also visits
	// everything found along the way.
	for i := 0; i < len(c.nodes); i++ {
		if err := c.fill(i); err != nil {
			return nil, err
		}
	}
	return &Snapshot{
		ID:     uuid.New(),
		Source: machine.ID,
		Root:   rootSlot,
		Nodes:  c.nodes,
	}, nil
}

type capturer struct {
	machine *vm.VM
	ids     map[vm.Value]int
	objects []vm.Value
	nodes   []Node
}

func (c *capturer) slot(v vm.Value) (Slot, error) {
	switch v.Type() {
	case vm.TypeUndefined:
		return Slot{Kind: SlotUndefined}, nil
	case vm.TypeNull:
		return Slot{Kind: SlotNull}, nil
	case vm.TypeBoolean:
		return Slot{Kind: SlotBool, Bool: v.IsTrue()}, nil
	case vm.TypeNumber:
		return Slot{Kind: SlotNumber, Num: v.Float64()}, nil
	case vm.TypeString:
		s, err := c.machine.ToString(v)
		return Slot{Kind: SlotString, Str: s}, err
	case vm.TypeBigInt:
		n, _ := c.machine.BigIntValue(v)
		return Slot{Kind: SlotBigInt, Str: n.String()}, nil
	case vm.TypeSymbol:
		return Slot{}, fmt.Errorf("%w: symbol", ErrNotTransferable)
	}

	if id, ok := c.ids[v]; ok {
		return Slot{Kind: SlotRef, Ref: id}, nil
	}
	m := c.machine
	if m.IsCallable(v) {
		return Slot{}, fmt.Errorf("%w: %s", ErrNotTransferable, m.String(v))
	}
	if _, ok := m.HostValue(v); ok {
		return Slot{}, fmt.Errorf("%w: host object", ErrNotTransferable)
	}
	kind := NodeObject
	switch {
	case m.IsArray(v):
		kind = NodeArray
	case m.IsError(v):
		kind = NodeError
	case m.IsSet(v):
		kind = NodeSet
	case m.IsMap(v):
		kind = NodeMap
	}
	id := len(c.nodes)
	c.ids[v] = id
	c.objects = append(c.objects, v)
	c.nodes = append(c.nodes, Node{Kind: kind})
	return Slot{Kind: SlotRef, Ref: id}, nil
}

// fill records the contents of node i.
func (c *capturer) fill(i int) error {
	m := c.machine
	v := c.objects[i]
	n := &c.nodes[i]

	if n.Kind == NodeArray {
		length, err := m.Get(v, "length")
		if err != nil {
			return err
		}
		size := uint32(length.Float64())
		indices, err := arrayIndices(m, v)
		if err != nil {
			return err
		}
		if int64(size) > 2*int64(len(indices))+16 {
			return c.fillSparse(i, size, indices)
		}
		values := make([]Slot, size)
		for j := range values {
			e, err := m.Get(v, strconv.Itoa(j))
			if err != nil {
				return err
			}
			if values[j], err = c.slot(e); err != nil {
				return fmt.Errorf("index %d: %w", j, err)
			}
		}
		c.nodes[i].Values = values
		return nil
	}

	if n.Kind == NodeSet || n.Kind == NodeMap {
		return c.fillCollection(i)
	}

	if n.Kind == NodeError {
		for _, f := range []struct {
			key string
			dst *string
		}{{"name", &n.Name}, {"message", &n.Message}, {"stack", &n.Stack}} {
			fv, err := m.Get(v, f.key)
			if err != nil {
				return err
			}
			if !fv.IsUndefined() {
				*f.dst = m.String(fv)
			}
		}
	}

	keys, err := m.Keys(v)
	if err != nil {
		return err
	}
	values := make([]Slot, len(keys))
	for j, k := range keys {
		pv, err := m.Get(v, k)
		if err != nil {
			return err
		}
		if values[j], err = c.slot(pv); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	// c.slot may have grown c.nodes, so n can be stale here.
	c.nodes[i].Keys = keys
	c.nodes[i].Values = values
	return nil
}

// fillSparse records array node i by its present elements only.
func (c *capturer) fillSparse(i int, length uint32, indices []string) error {
	values := make([]Slot, len(indices))
	for j, k := range indices {
		e, err := c.machine.Get(c.objects[i], k)
		if err != nil {
			return err
		}
		if values[j], err = c.slot(e); err != nil {
			return fmt.Errorf("index %s: %w", k, err)
		}
	}
	c.nodes[i].Keys = indices
	c.nodes[i].Values = values
	c.nodes[i].Length = length
	return nil
}

// fillCollection records the entries of Set or Map node i.
func (c *capturer) fillCollection(i int) error {
	keys, vals, err := c.machine.CollectionEntries(c.objects[i])
	if err != nil {
		return err
	}
	isMap := c.nodes[i].Kind == NodeMap
	var values []Slot
	for j, k := range keys {
		ks, err := c.slot(k)
		if err != nil {
			return fmt.Errorf("entry %d: %w", j, err)
		}
		values = append(values, ks)
		if !isMap {
			continue
		}
		vs, err := c.slot(vals[j])
		if err != nil {
			return fmt.Errorf("entry %d: %w", j, err)
		}
		values = append(values, vs)
	}
	c.nodes[i].Values = values
	return nil
}

// arrayIndices returns the array-index keys among v's own keys, in
// ascending order.
func arrayIndices(m *vm.VM, v vm.Value) ([]string, error) {
	keys, err := m.Keys(v)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if _, ok := parseIndex(k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// parseIndex reports whether k is a canonical array index.
func parseIndex(k string) (uint32, bool) {
	n, err := strconv.ParseUint(k, 10, 32)
	if err != nil || n == math.MaxUint32 || strconv.FormatUint(n, 10) != k {
		return 0, false
	}
	return uint32(n), true
}

// Restore rebuilds a snapshot on machine and returns the root value. The
// snapshot is validated against policy first; a nil policy allows anything
// structurally valid.
func Restore(machine *vm.VM, s *Snapshot, policy *Policy) (vm.Value, error) {
	if err := validate(s); err != nil {
		return vm.Undefined, err
	}
	if policy != nil {
		if err := policy.Check(s); err != nil {
			return vm.Undefined, err
		}
	}

	objects := make([]vm.Value, len(s.Nodes))
	for i, n := range s.Nodes {
		switch n.Kind {
		case NodeObject:
			objects[i] = machine.NewObject()
		case NodeArray:
			objects[i] = machine.NewArray()
		case NodeError:
			objects[i] = machine.NewError(vm.ErrorKindOf(n.Name), n.Message)
		case NodeSet:
			objects[i] = machine.NewSet()
		case NodeMap:
			objects[i] = machine.NewMap()
		}
	}
	// Keep the partial graph reachable while it is being linked.
	handles := make([]*vm.Handle, len(objects))
	for i, o := range objects {
		handles[i] = machine.Pin(o)
	}
	defer func() {
		for _, h := range handles {
			h.Release()
		}
	}()

	value := func(sl Slot) vm.Value {
		switch sl.Kind {
		case SlotNull:
			return vm.Null
		case SlotBool:
			return vm.Bool(sl.Bool)
		case SlotNumber:
			return vm.Number(sl.Num)
		case SlotString:
			return machine.NewString(sl.Str)
		case SlotBigInt:
			n, _ := new(big.Int).SetString(sl.Str, 10)
			return machine.NewBigInt(n)
		case SlotRef:
			return objects[sl.Ref]
		}
		return vm.Undefined
	}

	for i, n := range s.Nodes {
		obj := objects[i]
		switch n.Kind {
		case NodeSet:
			for _, sl := range n.Values {
				if err := machine.CollectionAdd(obj, value(sl), vm.Undefined); err != nil {
					return vm.Undefined, err
				}
			}
			continue
		case NodeMap:
			for j := 0; j < len(n.Values); j += 2 {
				if err := machine.CollectionAdd(obj, value(n.Values[j]), value(n.Values[j+1])); err != nil {
					return vm.Undefined, err
				}
			}
			continue
		}
		if n.Kind == NodeArray && n.Length > 0 {
			for j, sl := range n.Values {
				if err := machine.Set(obj, n.Keys[j], value(sl)); err != nil {
					return vm.Undefined, err
				}
			}
			if err := machine.Set(obj, "length", vm.Number(float64(n.Length))); err != nil {
				return vm.Undefined, err
			}
			continue
		}
		if n.Kind == NodeArray {
			for j, sl := range n.Values {
				if err := machine.Set(obj, strconv.Itoa(j), value(sl)); err != nil {
					return vm.Undefined, err
				}
			}
			continue
		}
		if n.Kind == NodeError {
			if vm.ErrorKindOf(n.Name).String() != n.Name {
				if err := machine.Set(obj, "name", machine.NewString(n.Name)); err != nil {
					return vm.Undefined, err
				}
			}
			if n.Stack != "" {
				if err := machine.Set(obj, "stack", machine.NewString(n.Stack)); err != nil {
					return vm.Undefined, err
				}
			}
		}
		for j, k := range n.Keys {
			if err := machine.Set(obj, k, value(n.Values[j])); err != nil {
				return vm.Undefined, err
			}
		}
	}
	return value(s.Root), nil
}

// Transfer copies the graph reachable from v on src into dst.
func Transfer(dst, src *vm.VM, v vm.Value) (vm.Value, error) {
	s, err := Capture(src, v)
	if err != nil {
		return vm.Undefined, err
	}
	return Restore(dst, s, nil)
}

// validate checks that every slot and node of s is well formed.
func validate(s *Snapshot) error {
	check := func(sl Slot) error {
		switch sl.Kind {
		case SlotUndefined, SlotNull, SlotBool, SlotNumber, SlotString:
		case SlotBigInt:
			if _, ok := new(big.Int).SetString(sl.Str, 10); !ok {
				return fmt.Errorf("dist: malformed BigInt %q", sl.Str)
			}
		case SlotRef:
			if sl.Ref < 0 || sl.Ref >= len(s.Nodes) {
				return fmt.Errorf("dist: reference %d out of range", sl.Ref)
			}
		default:
			return fmt.Errorf("dist: unknown slot kind %d", sl.Kind)
		}
		return nil
	}
	if err := check(s.Root); err != nil {
		return err
	}
	for i, n := range s.Nodes {
		switch n.Kind {
		case NodeObject, NodeError:
			if len(n.Keys) != len(n.Values) {
				return fmt.Errorf("dist: node %d has %d keys and %d values", i, len(n.Keys), len(n.Values))
			}
		case NodeSet, NodeMap:
			if len(n.Keys) != 0 {
				return fmt.Errorf("dist: %s node %d has keys", n.Kind, i)
			}
			if n.Kind == NodeMap && len(n.Values)%2 != 0 {
				return fmt.Errorf("dist: map node %d has an unpaired key", i)
			}
		case NodeArray:
			if n.Length == 0 {
				if len(n.Keys) != 0 {
					return fmt.Errorf("dist: array node %d has keys", i)
				}
				break
			}
			if len(n.Keys) != len(n.Values) {
				return fmt.Errorf("dist: node %d has %d keys and %d values", i, len(n.Keys), len(n.Values))
			}
			for _, k := range n.Keys {
				if idx, ok := parseIndex(k); !ok || idx >= n.Length {
					return fmt.Errorf("dist: array node %d has bad index %q", i, k)
				}
			}
		default:
			return fmt.Errorf("dist: node %d has unknown kind %d", i, n.Kind)
		}
		for _, sl := range n.Values {
			if err := check(sl); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
		}
	}
	return nil
}
