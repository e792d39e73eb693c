package tcache

import "unsafe"
import "sync/atomic"

import "github.com/bnclabs/gomalloc/quarantine"

// cachebranch binds a quarantine branch to its owning thread cache.
// Chunks leaving quarantine are first offered to the cache's
// matching bucket, re-entering the hot cache once their delay period
// ends, and only on rejection fall back to a direct arena free.
type cachebranch struct {
	tc     *ThreadCache
	branch *quarantine.Branch
	paused bool // owner goroutine only, frees bypass quarantine
}

func newcachebranch(tc *ThreadCache) *cachebranch {
	cb := &cachebranch{tc: tc}
	seed := atomic.AddInt64(&tc.reg.qseeds, 1)
	cb.branch = quarantine.NewBranch(
		tc.reg.qroot, tc.reg.qbranchcap, cb, false /*threadsafe*/, seed)
	return cb
}

// FreeQuarantined implement quarantine.Freer{} interface. While
// paused, or for buckets above the cached ceiling, the chunk goes
// straight to the arena.
func (cb *cachebranch) FreeQuarantined(ptr unsafe.Pointer, bucket int64) {
	tc := cb.tc
	if cb.paused == false && bucket < atomic.LoadInt64(&tc.maxbucket) {
		tc.putcached(ptr, bucket)
		return
	}
	tc.freeslot(ptr, bucket)
}
