// Package malloc supplies the backing slab arena fronted by the
// tcache package, with a limited scope:
//
//   - Types and Functions exported by this package are not thread
//     safe, except through the arena's own Lock/Unlock, which
//     callers batching AllocFast/FreeSlot sequences must hold.
//   - Memory is carved from the Go heap in large blocks, called
//     pools, where each pool contains several chunks of same size.
//   - Chunk sizes, called slabs, are generated between a configured
//     minimum and maximum, one bucket per slab.
//   - AllocFast never grows the arena, it only recycles chunks from
//     existing pools. Alloc is the growing path and can fail with
//     ErrorOutofMemory once the configured capacity is reached.
//   - Chunks are always 64-bit aligned.
//
// Caching layers consume this arena only through api.Allocator.
package malloc
