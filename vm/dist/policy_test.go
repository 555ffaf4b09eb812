package dist

import (
	"strings"
	"testing"
)

func TestPermissivePolicy_AllowsEverything(t *testing.T) {
	p := NewPermissivePolicy()
	if err := p.Check(sampleSnapshot()); err != nil {
		t.Errorf("permissive policy should allow all: %v", err)
	}
	if err := p.Check(nil); err != nil {
		t.Errorf("nil snapshot should be allowed: %v", err)
	}
}

func TestRestrictedPolicy_NodeLimit(t *testing.T) {
	if err := NewRestrictedPolicy(3, 0).Check(sampleSnapshot()); err != nil {
		t.Errorf("snapshot within the limit rejected: %v", err)
	}
	if err := NewRestrictedPolicy(2, 0).Check(sampleSnapshot()); err == nil {
		t.Error("snapshot over the node limit accepted")
	}
}

func TestRestrictedPolicy_StringLimit(t *testing.T) {
	s := &Snapshot{Root: Slot{Kind: SlotString, Str: strings.Repeat("x", 100)}}
	if err := NewRestrictedPolicy(0, 100).Check(s); err != nil {
		t.Errorf("string at the limit rejected: %v", err)
	}
	if err := NewRestrictedPolicy(0, 99).Check(s); err == nil {
		t.Error("string over the limit accepted")
	}
}

func TestPolicy_DenyKind(t *testing.T) {
	p := NewPermissivePolicy()
	p.Deny(NodeError)
	err := p.Check(sampleSnapshot())
	if err == nil || !strings.Contains(err.Error(), "error nodes") {
		t.Errorf("err = %v, want error nodes denied", err)
	}
}

func TestRestoreAppliesPolicy(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	root := src.NewArray(src.NewObject(), src.NewObject())
	snap, err := Capture(src, root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Restore(dst, snap, NewRestrictedPolicy(2, 0)); err == nil {
		t.Error("Restore ignored the node limit")
	}
	if _, err := Restore(dst, snap, NewRestrictedPolicy(3, 0)); err != nil {
		t.Errorf("Restore within limits: %v", err)
	}
}
