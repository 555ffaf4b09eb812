package dist

import "fmt"

// Policy bounds what Restore accepts from a snapshot. Zero limits mean
// no limit.
type Policy struct {
	MaxNodes       int
	MaxStringBytes int // total bytes of string and BigInt content
	DeniedKinds    map[NodeKind]bool
}

// NewPermissivePolicy creates a policy that accepts every valid snapshot.
func NewPermissivePolicy() *Policy {
	return &Policy{}
}

// NewRestrictedPolicy creates a policy with node and string limits.
func NewRestrictedPolicy(maxNodes, maxStringBytes int) *Policy {
	return &Policy{MaxNodes: maxNodes, MaxStringBytes: maxStringBytes}
}

// Deny rejects snapshots containing nodes of kind.
func (p *Policy) Deny(kind NodeKind) {
	if p.DeniedKinds == nil {
		p.DeniedKinds = make(map[NodeKind]bool)
	}
	p.DeniedKinds[kind] = true
}

// Check reports the first limit s exceeds.
func (p *Policy) Check(s *Snapshot) error {
	if s == nil {
		return nil
	}
	if p.MaxNodes > 0 && len(s.Nodes) > p.MaxNodes {
		return fmt.Errorf("dist: snapshot has %d nodes, limit is %d", len(s.Nodes), p.MaxNodes)
	}
	total := len(s.Root.Str)
	for _, n := range s.Nodes {
		if p.DeniedKinds[n.Kind] {
			return fmt.Errorf("dist: %s nodes are denied", n.Kind)
		}
		total += len(n.Name) + len(n.Message) + len(n.Stack)
		for _, k := range n.Keys {
			total += len(k)
		}
		for _, sl := range n.Values {
			total += len(sl.Str)
		}
	}
	if p.MaxStringBytes > 0 && total > p.MaxStringBytes {
		return fmt.Errorf("dist: snapshot holds %d bytes of strings, limit is %d", total, p.MaxStringBytes)
	}
	return nil
}
