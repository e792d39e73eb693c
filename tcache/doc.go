// Package tcache supplies a per-owner allocation cache in front of
// a shared slab arena, with a limited scope:
//
//   - A ThreadCache is owned by exactly one goroutine. Get, Put,
//     Free and Purge are owner-only calls, they touch no lock on the
//     fast path and are not safe to call from other goroutines.
//   - Cached chunks hold their free-list node inside the freed
//     memory itself, the cache allocates no per-chunk bookkeeping.
//   - Misses and fills fall through to the arena in batches, under
//     one arena lock acquisition.
//   - A Registry coordinates all live caches for one arena: global
//     per-bucket limits, cross-owner purge signaling, and an
//     adaptive purge cadence driven by observed cache pressure.
//   - Owners must call Close() before exiting, which purges the
//     cache unconditionally and deregisters it.
//
// The only cache state other goroutines may touch are the advisory
// atomics: bucket limits, the purge flag, the bucket ceiling and the
// cached-byte total. Everything else belongs to the owner.
//
// With quarantine enabled, frees routed through Free() are delayed
// in a per-cache quarantine branch before the chunk re-enters the
// cache or returns to the arena.
package tcache
