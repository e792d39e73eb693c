// Package quarantine delays the reuse of freed memory chunks for a
// bounded byte budget, so that stale pointers into recycled memory
// have a chance to be caught before the chunk is handed out again.
//
//   - A Root holds shared capacity and counters for one allocator
//     instance, and can be shared by any number of Branches.
//   - A Branch holds the actual delayed chunks for one owner, either
//     a single goroutine or a shared owner guarded by a mutex.
//   - Branches never allocate per-chunk bookkeeping on the heap
//     beyond one flat descriptor slice; on Purge even that slice is
//     released.
//
// Eviction order approximates random rather than strict FIFO: every
// insert swaps the fresh entry with a uniformly random slot, and
// eviction always pops the tail. Over time this spreads protection
// across quarantined chunks instead of privileging the oldest.
package quarantine
