// Package dist moves value graphs between engines. A graph is captured
// from one VM into a Snapshot, encoded as canonical CBOR behind a content
// hash, and rebuilt on another VM. Heaps never share references: the
// receiving engine gets fresh objects with the same shape, property order
// and internal sharing, cycles included.
package dist

import "github.com/google/uuid"

// SlotKind identifies the kind of value held in a Slot.
type SlotKind uint8

const (
	SlotUndefined SlotKind = 0
	SlotNull      SlotKind = 1
	SlotBool      SlotKind = 2
	SlotNumber    SlotKind = 3
	SlotString    SlotKind = 4
	SlotBigInt    SlotKind = 5
	SlotRef       SlotKind = 6 // index into Snapshot.Nodes
)

// Slot is one transferable value: a primitive, or a reference to a node.
type Slot struct {
	Kind SlotKind `cbor:"1,keyasint"`
	Bool bool     `cbor:"2,keyasint,omitempty"`
	Num  float64  `cbor:"3,keyasint"`           // kept even when zero so -0 survives
	Str  string   `cbor:"4,keyasint,omitempty"` // string content or BigInt decimal digits
	Ref  int      `cbor:"5,keyasint,omitempty"`
}

// NodeKind identifies the kind of object a Node rebuilds.
type NodeKind uint8

const (
	NodeObject NodeKind = 1
	NodeArray  NodeKind = 2
	NodeError  NodeKind = 3
	NodeSet    NodeKind = 4
	NodeMap    NodeKind = 5
)

func (k NodeKind) String() string {
	switch k {
	case NodeObject:
		return "object"
	case NodeArray:
		return "array"
	case NodeError:
		return "error"
	case NodeSet:
		return "set"
	case NodeMap:
		return "map"
	}
	return "unknown"
}

// Node is one object of the graph. Dense arrays keep every element in
// Values with no Keys. Sparse arrays set Length and pair the indices of
// their present elements in Keys with Values. Sets list their elements in
// Values and Maps alternate key and value there, both in insertion order.
// Other objects pair Keys and Values in property order.
type Node struct {
	Kind    NodeKind `cbor:"1,keyasint"`
	Keys    []string `cbor:"2,keyasint,omitempty"`
	Values  []Slot   `cbor:"3,keyasint,omitempty"`
	Name    string   `cbor:"4,keyasint,omitempty"` // error name
	Message string   `cbor:"5,keyasint,omitempty"` // error message
	Stack   string   `cbor:"6,keyasint,omitempty"` // error stack
	Length  uint32   `cbor:"7,keyasint,omitempty"` // sparse arrays only
}

// Snapshot is a captured value graph.
type Snapshot struct {
	ID     uuid.UUID `cbor:"1,keyasint"`
	Source uuid.UUID `cbor:"2,keyasint"` // engine the graph was captured from
	Root   Slot      `cbor:"3,keyasint"`
	Nodes  []Node    `cbor:"4,keyasint,omitempty"`
}
