package tcache

import "fmt"
import "unsafe"
import "sync/atomic"

import "github.com/bnclabs/golog"

import "github.com/bnclabs/gomalloc/api"

var cacheids int64 // monotonic, only for log prefixes

// ThreadCache per-owner front for a shared slab arena. One bucket of
// cached chunks per slab size, a byte total that always matches the
// bucket contents, and an optional quarantine branch for delayed
// frees. Create with New(), owner must Close() before exiting.
type ThreadCache struct {
	// 64-bit aligned, cachedmem is read by other goroutines.
	cachedmem   int64
	maxbucket   int64 // bucket ceiling, stored by the registry
	shouldpurge int32 // purge request from other goroutines

	// owner-only statistics
	n_gets    int64
	n_hits    int64
	n_misses  int64
	n_puts    int64
	n_rejects int64
	n_fills   int64
	n_trims   int64
	n_purges  int64

	buckets []bucketslot
	slotbuf []unsafe.Pointer // scratch for batched fills
	arena   api.Allocator
	reg     *Registry
	branch  *cachebranch
	inuse   bool // reentrancy guard, owner goroutine only

	// registry list topology, guarded by the registry mutex. The
	// registry owns these links, the cache owns everything else.
	next *ThreadCache
	prev *ThreadCache

	fillratio int64
	trimratio int64
	logprefix string
}

// New create a thread cache over the registry's arena and register
// it. The cache's own metadata comes from the Go heap, never from
// the arena it serves. The caller's goroutine becomes the owner.
func New(reg *Registry) *ThreadCache {
	slabs := reg.arena.Slabs()
	tc := &ThreadCache{
		buckets:   make([]bucketslot, len(slabs)),
		slotbuf:   make([]unsafe.Pointer, Maxcount),
		arena:     reg.arena,
		reg:       reg,
		fillratio: reg.fillratio,
		trimratio: reg.trimratio,
	}
	for i := range tc.buckets {
		tc.buckets[i].slab = slabs[i]
	}
	tc.logprefix = fmt.Sprintf("[tcache-%v]", atomic.AddInt64(&cacheids, 1))
	reg.register(tc) // seeds bucket limits and the bucket ceiling
	if reg.qroot != nil {
		tc.branch = newcachebranch(tc)
	}
	log.Verbosef("%v created\n", tc.logprefix)
	return tc
}

// Get a cached chunk for bucket, miss when the bucket is above the
// cached ceiling, when the owner is re-entering its own cache, or
// when neither the cache nor the arena fast path has a free chunk.
// On miss the caller falls through to the allocator's slow path.
func (tc *ThreadCache) Get(bucket int64) (unsafe.Pointer, bool) {
	tc.n_gets++
	if tc.inuse || bucket < 0 || bucket >= atomic.LoadInt64(&tc.maxbucket) {
		tc.n_misses++
		return nil, false
	}
	tc.inuse = true
	defer func() { tc.inuse = false }()

	b := &tc.buckets[bucket]
	if b.count == 0 {
		tc.fillbucket(bucket)
	}
	var ptr unsafe.Pointer
	hit := false
	if b.count > 0 {
		ptr = b.pop()
		tc.addcached(-b.slab)
		tc.n_hits++
		hit = true
	} else {
		tc.n_misses++
	}
	tc.honorpurge()
	return ptr, hit
}

// Put a chunk into bucket's cache. Rejected when the bucket is above
// the cached ceiling or when the owner is re-entering its own cache,
// the caller must then free through the allocator. An over-limit
// insert trims the bucket back before returning.
func (tc *ThreadCache) Put(ptr unsafe.Pointer, bucket int64) bool {
	tc.n_puts++
	if tc.inuse || bucket < 0 || bucket >= atomic.LoadInt64(&tc.maxbucket) {
		tc.n_rejects++
		return false
	}
	tc.inuse = true
	defer func() { tc.inuse = false }()

	tc.putcached(ptr, bucket)
	tc.honorpurge()
	return true
}

// Free a chunk, routing through the quarantine branch when one is
// attached and not paused. Falls back to Put, and from there to the
// arena, so the chunk is released exactly once either way.
func (tc *ThreadCache) Free(ptr unsafe.Pointer, bucket int64) {
	if tc.branch != nil && tc.branch.paused == false {
		tc.branch.branch.Quarantine(ptr, bucket, tc.arena.Slabsize(bucket))
		return
	}
	if tc.Put(ptr, bucket) {
		return
	}
	tc.freeslot(ptr, bucket)
}

// Purge every bucket down to empty, including buckets above the
// current ceiling, so no cached bytes are ever leaked by lowering
// it. Owner-only.
func (tc *ThreadCache) Purge() {
	if tc.inuse {
		return
	}
	tc.inuse = true
	defer func() { tc.inuse = false }()
	atomic.StoreInt32(&tc.shouldpurge, 0)
	tc.purge(true)
}

// PurgeForce purge for abnormal process states, after a fork only
// one goroutine survives and sibling caches may be frozen mid
// operation. Skips the reentrancy guard, recomputes accounting from
// the actual free-lists instead of trusting prior bookkeeping, and
// walks without corruption checks.
func (tc *ThreadCache) PurgeForce() {
	atomic.StoreInt32(&tc.shouldpurge, 0)
	total := int64(0)
	for i := range tc.buckets {
		b := &tc.buckets[i]
		n, node := uint32(0), b.head
		for node != nil && n <= Maxcount {
			node = nextnode(node)
			n++
		}
		b.count = n
		total += int64(n) * b.slab
	}
	atomic.StoreInt64(&tc.cachedmem, total)
	tc.purge(false)
}

// Close purge unconditionally and deregister from the registry. The
// owner must call this before exiting, the cache is unusable after.
func (tc *ThreadCache) Close() {
	if tc.branch != nil {
		// the branch's chunks go straight to the arena, there is no
		// point refilling a cache that is going away.
		tc.branch.paused = true
		tc.branch.branch.Purge()
	}
	tc.inuse = true
	tc.purge(true)
	tc.inuse = false
	tc.reg.deregister(tc)
	log.Verbosef("%v closed\n", tc.logprefix)
}

// CachedMemory return the cached byte total, callable from any
// goroutine.
func (tc *ThreadCache) CachedMemory() int64 {
	return atomic.LoadInt64(&tc.cachedmem)
}

//---- statistics

// Stats return owner-side counters for this cache. Owner-only,
// aggregate cross-owner numbers come from Registry.Stats().
func (tc *ThreadCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"n_gets":    tc.n_gets,
		"n_hits":    tc.n_hits,
		"n_misses":  tc.n_misses,
		"n_puts":    tc.n_puts,
		"n_rejects": tc.n_rejects,
		"n_fills":   tc.n_fills,
		"n_trims":   tc.n_trims,
		"n_purges":  tc.n_purges,
		"cachedmem": atomic.LoadInt64(&tc.cachedmem),
	}
	if tc.branch != nil {
		for k, v := range tc.branch.branch.Stats() {
			stats[k] = v
		}
	}
	return stats
}

//---- local functions

// fillbucket batch limit/fillratio chunks, at least one, from the
// arena's fast path under one lock acquisition. The arena may hand
// back fewer, or none, that failure is the caller's miss to handle.
func (tc *ThreadCache) fillbucket(bucket int64) {
	b := &tc.buckets[bucket]
	n := int64(b.getlimit()) / tc.fillratio
	if n < 1 {
		n = 1
	}
	slots := tc.slotbuf[:n]
	tc.arena.Lock()
	got := tc.arena.AllocFast(bucket, slots)
	tc.arena.Unlock()
	for i := int64(0); i < got; i++ {
		b.push(slots[i])
		slots[i] = nil
	}
	tc.addcached(got * b.slab)
	tc.n_fills++
}

// putcached insert without the guard or the purge check, for
// internal callers like quarantine eviction.
func (tc *ThreadCache) putcached(ptr unsafe.Pointer, bucket int64) {
	b := &tc.buckets[bucket]
	b.push(ptr)
	tc.addcached(b.slab)
	if limit := b.getlimit(); b.count > limit {
		tc.clearbucket(bucket, limit/uint32(tc.trimratio), true)
		tc.n_trims++
	}
}

// clearbucket free bucket entries beyond target back to the arena,
// walking from the tail so the hottest chunks stay cached. All frees
// happen under one arena lock acquisition. The checking variant
// panics when the free-list does not hold exactly count nodes,
// a short or cyclic list means corruption elsewhere in the process
// and continuing risks further memory unsafety.
func (tc *ThreadCache) clearbucket(bucket int64, target uint32, check bool) {
	b := &tc.buckets[bucket]
	if b.count <= target {
		return
	}
	nfree := b.count - target

	// detach the chain after the first `target` nodes.
	var chain unsafe.Pointer
	if target == 0 {
		chain, b.head = b.head, nil
	} else {
		node := b.head
		for i := uint32(1); i < target; i++ {
			if node == nil {
				break
			}
			node = nextnode(node)
		}
		if node == nil {
			fmsg := "%v bucket %v free-list shorter than %v"
			tc.fatal(check, fmsg, tc.logprefix, bucket, b.count)
			b.count = 0
			return
		}
		chain = nextnode(node)
		setnextnode(node, nil)
	}
	b.count = target

	freed := uint32(0)
	node := chain
	tc.arena.Lock()
	for node != nil && freed < nfree {
		next := nextnode(node)
		tc.arena.FreeSlot(node, bucket)
		node = next
		freed++
	}
	tc.arena.Unlock()
	if freed != nfree {
		fmsg := "%v bucket %v freed %v nodes, accounted %v"
		tc.fatal(check, fmsg, tc.logprefix, bucket, freed, nfree)
	} else if node != nil {
		fmsg := "%v bucket %v free-list cyclic or overlong"
		tc.fatal(check, fmsg, tc.logprefix, bucket)
	}
	tc.addcached(-int64(freed) * b.slab)
}

// purge all buckets, including inactive ones above the ceiling.
func (tc *ThreadCache) purge(check bool) {
	tc.n_purges++
	for i := range tc.buckets {
		tc.clearbucket(int64(i), 0, check)
	}
}

// honorpurge lazily serve a cross-goroutine purge request before
// returning to the owner.
func (tc *ThreadCache) honorpurge() {
	if atomic.LoadInt32(&tc.shouldpurge) == 1 {
		atomic.StoreInt32(&tc.shouldpurge, 0)
		tc.purge(true)
	}
}

func (tc *ThreadCache) freeslot(ptr unsafe.Pointer, bucket int64) {
	tc.arena.Lock()
	tc.arena.FreeSlot(ptr, bucket)
	tc.arena.Unlock()
}

func (tc *ThreadCache) addcached(delta int64) {
	atomic.AddInt64(&tc.cachedmem, delta)
}

func (tc *ThreadCache) fatal(check bool, fmsg string, args ...interface{}) {
	if check {
		panicerr(fmsg, args...)
	}
	log.Errorf(fmsg+"\n", args...)
}
