package tcache

import "sync"
import "testing"
import "unsafe"

// mockalloc counting allocator for cache scenarios. Hands out real
// heap chunks so the intrusive free-list can scribble on them, and
// records every lock acquisition, fast-path chunk and free.
type mockalloc struct {
	slabs []int64

	mu           sync.Mutex
	locked       bool
	starve       bool // AllocFast hands out nothing, as an exhausted arena would
	n_locks      int64
	n_fastcalls  int64 // AllocFast invocations
	n_fastchunks int64 // chunks handed out by AllocFast
	n_frees      int64

	free   map[int64][]unsafe.Pointer // recycled chunks per bucket
	live   map[unsafe.Pointer]int64   // outstanding chunk -> bucket
	blocks [][]byte                   // keeps chunk memory alive
}

func newmockalloc(slabs []int64) *mockalloc {
	return &mockalloc{
		slabs: slabs,
		free:  make(map[int64][]unsafe.Pointer),
		live:  make(map[unsafe.Pointer]int64),
	}
}

func (m *mockalloc) Lock() {
	m.mu.Lock()
	m.locked = true
	m.n_locks++
}

func (m *mockalloc) Unlock() {
	m.locked = false
	m.mu.Unlock()
}

func (m *mockalloc) AllocFast(bucket int64, slots []unsafe.Pointer) int64 {
	if m.locked == false {
		panic("AllocFast without the arena lock")
	}
	m.n_fastcalls++
	if m.starve {
		return 0
	}
	n := int64(0)
	for n < int64(len(slots)) {
		var ptr unsafe.Pointer
		if chunks := m.free[bucket]; len(chunks) > 0 {
			ptr = chunks[len(chunks)-1]
			m.free[bucket] = chunks[:len(chunks)-1]
		} else {
			block := make([]byte, m.slabs[bucket])
			m.blocks = append(m.blocks, block)
			ptr = unsafe.Pointer(&block[0])
		}
		m.live[ptr] = bucket
		slots[n] = ptr
		n++
	}
	m.n_fastchunks += n
	return n
}

func (m *mockalloc) FreeSlot(ptr unsafe.Pointer, bucket int64) {
	if m.locked == false {
		panic("FreeSlot without the arena lock")
	}
	if b, ok := m.live[ptr]; ok == false {
		panic("FreeSlot on unknown or double-freed chunk")
	} else if b != bucket {
		panic("FreeSlot on wrong bucket")
	}
	delete(m.live, ptr)
	m.free[bucket] = append(m.free[bucket], ptr)
	m.n_frees++
}

func (m *mockalloc) Slabs() []int64 {
	return m.slabs
}

func (m *mockalloc) Slabsize(bucket int64) int64 {
	return m.slabs[bucket]
}

func (m *mockalloc) Buckets() int64 {
	return int64(len(m.slabs))
}

func (m *mockalloc) IsValidBucket(bucket int64) bool {
	return bucket >= 0 && bucket < int64(len(m.slabs))
}

// outstanding chunks handed out and not yet freed back.
func (m *mockalloc) outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

var testslabs = []int64{32, 64, 128, 256, 512, 1024}

// accounting invariant: the cached byte total always equals the sum
// of bucket contents.
func checkaccounting(t *testing.T, tc *ThreadCache) {
	t.Helper()
	total := int64(0)
	for i := range tc.buckets {
		b := &tc.buckets[i]
		total += int64(b.count) * b.slab
		if b.count > Maxcount {
			t.Errorf("bucket %v count %v exceeds %v", i, b.count, Maxcount)
		}
		n, node := uint32(0), b.head
		for node != nil {
			node = nextnode(node)
			n++
		}
		if n != b.count {
			t.Errorf("bucket %v count %v, free-list holds %v", i, b.count, n)
		}
	}
	if x := tc.CachedMemory(); x != total {
		t.Errorf("cachedmem %v, buckets hold %v", x, total)
	}
}

// bucket cap invariant: never visible over limit after a Put.
func checklimits(t *testing.T, tc *ThreadCache) {
	t.Helper()
	for i := range tc.buckets {
		b := &tc.buckets[i]
		if limit := b.getlimit(); b.count > limit {
			t.Errorf("bucket %v count %v over limit %v", i, b.count, limit)
		}
	}
}
