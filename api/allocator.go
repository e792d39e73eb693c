package api

import "unsafe"

// Allocator interface into the backing slab allocator, consumed by
// caching layers. Allocators slice memory into buckets, one bucket
// for each slab size, identified by bucket-index.
type Allocator interface {
	// AllocFast fill `slots` with upto len(slots) free chunks from
	// bucket's slab, without growing the arena, that is, without
	// carving new pools from the heap. Returns the number of slots
	// filled, which can be zero. Caller should hold the arena lock.
	AllocFast(bucket int64, slots []unsafe.Pointer) int64

	// FreeSlot return a chunk back to bucket's slab. Caller should
	// hold the arena lock.
	FreeSlot(ptr unsafe.Pointer, bucket int64)

	// Lock acquire exclusive access to the arena, to batch a
	// sequence of AllocFast and FreeSlot calls.
	Lock()

	// Unlock release exclusive access to the arena.
	Unlock()

	// Slabs return allocatable slab sizes, sorted, one per bucket.
	Slabs() (sizes []int64)

	// Slabsize return the chunk size handed out by bucket.
	Slabsize(bucket int64) int64

	// Buckets return the number of buckets in this arena.
	Buckets() int64

	// IsValidBucket return whether bucket-index falls within this
	// arena's slabs.
	IsValidBucket(bucket int64) bool
}
