// Package intern maps string content to small stable integer handles.
//
// The runtime core never hashes string content itself: every identifier,
// literal and runtime-produced string is turned into a Handle by an
// interner, and two strings are equal exactly when their handles are.
package intern

import (
	"sync"
	"sync/atomic"
)

// Handle identifies interned string content within one Table.
type Handle uint32

// Interner is the contract the runtime consumes.
type Interner interface {
	Intern(s string) Handle
	Lookup(h Handle) string
}

// ---------------------------------------------------------------------------
// Table: default Interner
// ---------------------------------------------------------------------------

// Table interns strings to unique handles. It is safe for concurrent use, so
// several engines running on separate goroutines may share one Table.
type Table struct {
	mu     sync.RWMutex
	byText map[string]Handle // content -> handle
	byID   []string          // handle -> content
	bytes  atomic.Int64      // total content length
}

// NewTable creates a table with the empty string pre-interned as handle 0.
func NewTable() *Table {
	t := &Table{
		byText: make(map[string]Handle, 256),
		byID:   make([]string, 0, 256),
	}
	t.Intern("")
	return t
}

// Intern returns the handle for s, creating a new one if needed.
func (t *Table) Intern(s string) Handle {
	// Fast path: read-only lookup
	t.mu.RLock()
	if h, ok := t.byText[s]; ok {
		t.mu.RUnlock()
		return h
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if h, ok := t.byText[s]; ok {
		return h
	}

	h := Handle(len(t.byID))
	t.byText[s] = h
	t.byID = append(t.byID, s)
	t.bytes.Add(int64(len(s)))
	return h
}

// Find returns the handle for s without interning it.
func (t *Table) Find(s string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byText[s]
	return h, ok
}

// Lookup returns the content for h, or "" if h was never issued.
func (t *Table) Lookup(h Handle) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(h) >= len(t.byID) {
		return ""
	}
	return t.byID[h]
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Bytes returns the total length of interned content. Content is never
// released, so the value only grows.
func (t *Table) Bytes() int64 {
	return t.bytes.Load()
}
