package vm

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: arena of collector-managed allocations
// ---------------------------------------------------------------------------

// cell is a heap allocation. trace reports every outgoing reference so the
// collector can follow it; size is an estimate used for the trigger policy.
type cell interface {
	trace(m *marker)
	size() int
}

// weakHolder is a cell holding references the collector must not follow.
// clearDead is called after marking and drops targets that did not survive.
type weakHolder interface {
	clearDead(h *Heap) bool
}

type slot struct {
	cell      cell
	gen       uint16
	marked    bool
	finalizer func()
}

// Default collection policy.
const (
	DefaultMinThreshold = 1 << 20 // 1 MiB of estimated live data
	DefaultGrowthFactor = 2.0
	slotOverhead        = 32
)

// Heap is an arena of trace-aware allocations reclaimed by a stop-the-world
// mark-and-sweep collector. A Heap belongs to exactly one VM and is not
// safe for concurrent use.
type Heap struct {
	slots []slot // slot 0 is reserved so the zero Ref is never valid
	free  []uint32
	live  int

	bytes        int64 // estimated bytes held by live allocations
	threshold    int64
	minThreshold int64
	growth       float64
	maxBytes     int64 // 0 means unlimited
	enforce      bool  // limit applies only while executing

	// external reports bytes held outside the arena that count against
	// maxBytes.
	external func() int64

	roots      []func(m *marker)
	weak       []Ref
	collecting bool

	cycles uint64
	hooks  []func(CollectStats)
	last   CollectStats
	log    commonlog.Logger
}

// NewHeap creates an empty heap with the default collection policy.
func NewHeap() *Heap {
	return &Heap{
		slots:        make([]slot, 1, 1024),
		threshold:    DefaultMinThreshold,
		minThreshold: DefaultMinThreshold,
		growth:       DefaultGrowthFactor,
		log:          commonlog.GetLogger("kestrel.heap"),
	}
}

// SetPolicy configures the collection trigger. The next threshold after a
// cycle is max(minThreshold, live*growth), capped below maxBytes when a
// limit is set.
func (h *Heap) SetPolicy(minThreshold int64, growth float64, maxBytes int64) {
	if minThreshold > 0 {
		h.minThreshold = minThreshold
	}
	if growth >= 1 {
		h.growth = growth
	}
	h.maxBytes = maxBytes
	h.threshold = h.nextThreshold()
}

func (h *Heap) nextThreshold() int64 {
	t := max(h.minThreshold, int64(float64(h.bytes)*h.growth))
	if h.maxBytes > 0 {
		t = min(t, h.maxBytes-h.maxBytes/8)
	}
	return t
}

// AddRoot registers a function that marks a set of roots at the start of
// every cycle.
func (h *Heap) AddRoot(fn func(m *marker)) {
	h.roots = append(h.roots, fn)
}

// OnCollect registers a hook receiving the statistics of each cycle.
func (h *Heap) OnCollect(fn func(CollectStats)) {
	h.hooks = append(h.hooks, fn)
}

// Live returns the number of live allocations.
func (h *Heap) Live() int { return h.live }

// Bytes returns the estimated size of live allocations.
func (h *Heap) Bytes() int64 { return h.bytes }

// LastStats returns the statistics of the most recent cycle.
func (h *Heap) LastStats() CollectStats { return h.last }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// reserve accounts for n more bytes, failing with a fatal out-of-memory
// condition if the configured limit would be exceeded. Callers reserve
// before mutating so a failure never leaves a torn allocation behind.
func (h *Heap) reserve(n int) {
	if h.enforce && h.maxBytes > 0 && h.used()+int64(n) > h.maxBytes {
		h.log.Warningf("allocation of %s exceeds limit %s (live %s, external %s)",
			humanize.IBytes(uint64(n)), humanize.IBytes(uint64(h.maxBytes)),
			humanize.IBytes(uint64(h.bytes)), humanize.IBytes(uint64(h.used()-h.bytes)))
		panic(fatalSignal{err: ErrOutOfMemory})
	}
	h.bytes += int64(n)
}

// used returns the bytes counted against the limit.
func (h *Heap) used() int64 {
	if h.external == nil {
		return h.bytes
	}
	return h.bytes + h.external()
}

// alloc places c in a free slot and returns its reference.
func (h *Heap) alloc(c cell) Ref {
	h.reserve(c.size() + slotOverhead)

	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		if len(h.slots) > int(^uint32(0)) {
			panic(fatalSignal{err: ErrOutOfMemory})
		}
		h.slots = append(h.slots, slot{})
		idx = uint32(len(h.slots) - 1)
	}
	s := &h.slots[idx]
	s.cell = c
	s.marked = false
	h.live++
	return makeRef(idx, s.gen)
}

// trackWeak registers r, whose cell implements weakHolder, to be offered
// the chance to drop dead targets after every mark phase.
func (h *Heap) trackWeak(r Ref) {
	if _, ok := h.get(r).(weakHolder); !ok {
		panic("heap: trackWeak on a cell without weak references")
	}
	h.weak = append(h.weak, r)
}

// lookup returns the cell at r, or nil if r is stale or zero.
func (h *Heap) lookup(r Ref) cell {
	idx := r.index()
	if idx == 0 || int(idx) >= len(h.slots) {
		return nil
	}
	s := &h.slots[idx]
	if s.cell == nil || s.gen != r.gen() {
		return nil
	}
	return s.cell
}

// get returns the cell at r. A stale reference is an interpreter defect.
func (h *Heap) get(r Ref) cell {
	c := h.lookup(r)
	if c == nil {
		panic(fmt.Sprintf("heap: stale reference #%d.%d", r.index(), r.gen()))
	}
	return c
}

// alive reports whether r still addresses its allocation.
func (h *Heap) alive(r Ref) bool {
	return h.lookup(r) != nil
}

// setFinalizer attaches fn to run once, immediately before r is reclaimed.
// A nil fn clears any finalizer.
func (h *Heap) setFinalizer(r Ref, fn func()) {
	h.get(r)
	h.slots[r.index()].finalizer = fn
}

// ShouldCollect reports whether the trigger threshold has been reached.
func (h *Heap) ShouldCollect() bool {
	return h.bytes >= h.threshold && !h.collecting
}

// ---------------------------------------------------------------------------
// Mark phase
// ---------------------------------------------------------------------------

// marker carries the gray worklist of a collection cycle.
type marker struct {
	h    *Heap
	work []uint32
}

func (m *marker) ref(r Ref) {
	if r == 0 {
		return
	}
	idx := r.index()
	if int(idx) >= len(m.h.slots) {
		panic(fmt.Sprintf("heap: mark of out-of-range reference #%d", idx))
	}
	s := &m.h.slots[idx]
	if s.cell == nil || s.gen != r.gen() {
		panic(fmt.Sprintf("heap: mark of stale reference #%d.%d", idx, r.gen()))
	}
	if s.marked {
		return
	}
	s.marked = true
	m.work = append(m.work, idx)
}

func (m *marker) value(v Value) {
	if r, ok := v.heapRef(); ok {
		m.ref(r)
	}
}

func (m *marker) values(vs []Value) {
	for _, v := range vs {
		m.value(v)
	}
}

// drain traces gray allocations until none remain. The worklist is
// explicit so deep object graphs cannot exhaust the Go stack.
func (m *marker) drain() {
	for len(m.work) > 0 {
		idx := m.work[len(m.work)-1]
		m.work = m.work[:len(m.work)-1]
		m.h.slots[idx].cell.trace(m)
	}
}

// marked reports whether r survived the current mark phase.
func (h *Heap) marked(r Ref) bool {
	idx := r.index()
	if idx == 0 || int(idx) >= len(h.slots) {
		return false
	}
	s := &h.slots[idx]
	return s.cell != nil && s.gen == r.gen() && s.marked
}

// ---------------------------------------------------------------------------
// Collection cycle
// ---------------------------------------------------------------------------

// CollectStats holds statistics from a single collection cycle.
type CollectStats struct {
	Cycle         uint64
	Marked        int // allocations surviving the cycle
	Swept         int // allocations reclaimed
	Finalized     int
	WeakCleared   int
	LiveBytes     int64
	FreedBytes    int64
	NextThreshold int64
	Duration      time.Duration
	Timestamp     time.Time
}

// Collect runs a full mark-and-sweep cycle. It must only be called at a
// safe point, when every live value is reachable from a registered root.
// A call made while a cycle is already running returns immediately.
func (h *Heap) Collect() CollectStats {
	if h.collecting {
		return CollectStats{}
	}
	h.collecting = true
	defer func() { h.collecting = false }()

	start := time.Now()
	h.cycles++
	stats := CollectStats{Cycle: h.cycles, Timestamp: start}

	m := &marker{h: h}
	for _, root := range h.roots {
		root(m)
	}
	m.drain()

	// Weak holders drop targets that were not marked. Holders that are
	// themselves dead are forgotten.
	kept := h.weak[:0]
	for _, r := range h.weak {
		if !h.marked(r) {
			continue
		}
		if h.slots[r.index()].cell.(weakHolder).clearDead(h) {
			stats.WeakCleared++
		}
		kept = append(kept, r)
	}
	clear(h.weak[len(kept):])
	h.weak = kept

	var dead []uint32
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.cell != nil && !s.marked {
			dead = append(dead, uint32(i))
		}
	}

	// Finalizers run before any slot is released. Allocations they make
	// land outside the dead set and survive this cycle.
	for _, idx := range dead {
		if fn := h.slots[idx].finalizer; fn != nil {
			h.slots[idx].finalizer = nil
			h.runFinalizer(idx, fn)
			stats.Finalized++
		}
	}

	for _, idx := range dead {
		s := &h.slots[idx]
		stats.FreedBytes += int64(s.cell.size() + slotOverhead)
		s.cell = nil
		s.gen++
		h.free = append(h.free, idx)
		h.live--
	}
	stats.Swept = len(dead)

	var liveBytes int64
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.cell != nil {
			s.marked = false
			liveBytes += int64(s.cell.size() + slotOverhead)
		}
	}
	h.bytes = liveBytes
	h.threshold = h.nextThreshold()

	stats.Marked = h.live
	stats.LiveBytes = liveBytes
	stats.NextThreshold = h.threshold
	stats.Duration = time.Since(start)
	h.last = stats

	h.log.Debugf("cycle %d: %d live (%s), %d swept (%s), %d finalized, next at %s in %s",
		stats.Cycle, stats.Marked, humanize.IBytes(uint64(stats.LiveBytes)),
		stats.Swept, humanize.IBytes(uint64(stats.FreedBytes)), stats.Finalized,
		humanize.IBytes(uint64(stats.NextThreshold)), stats.Duration)

	for _, hook := range h.hooks {
		hook(stats)
	}
	return stats
}

func (h *Heap) runFinalizer(idx uint32, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("finalizer for #%d panicked: %v", idx, r)
		}
	}()
	fn()
}

// finalizeAll runs every outstanding finalizer once. Used at teardown.
func (h *Heap) finalizeAll() int {
	n := 0
	for i := 1; i < len(h.slots); i++ {
		s := &h.slots[i]
		if s.cell != nil && s.finalizer != nil {
			fn := s.finalizer
			s.finalizer = nil
			h.runFinalizer(uint32(i), fn)
			n++
		}
	}
	return n
}
