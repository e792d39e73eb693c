// functions and methods are not re-entrant, arena serializes access.

package malloc

import "unsafe"

import "github.com/bnclabs/gomalloc/api"

// mpool manages one heap block sliced up into equal sized chunks.
// Free chunks are tracked by index in a freelist slice, freed chunks
// are never read or written by the pool.
type mpool struct {
	// 64-bit aligned stats
	mallocated int64

	capacity int64   // memory managed by this pool
	size     int64   // fixed chunk size in this pool
	block    []byte  // keeps the backing memory alive
	base     uintptr // pool's base pointer
	freelist []uint16
	freeoff  int
}

// size of each chunk in the pool and no. of chunks in the pool.
func newmpool(size, n int64) *mpool {
	if n > Maxchunks {
		panicerr("pool cannot have more than %v chunks", Maxchunks)
	}
	capacity := size * n
	block := make([]byte, capacity)
	pool := &mpool{
		capacity: capacity,
		size:     size,
		block:    block,
		base:     uintptr(unsafe.Pointer(&block[0])),
		freelist: make([]uint16, n),
		freeoff:  int(n - 1),
	}
	if (pool.base & uintptr(api.Alignment-1)) != 0 {
		panicerr("pool base is not %v byte aligned", api.Alignment)
	}
	for i := 0; i < int(n); i++ {
		pool.freelist[i] = uint16(i)
	}
	return pool
}

// O(1)
func (pool *mpool) allocchunk() (unsafe.Pointer, bool) {
	if pool.mallocated == pool.capacity {
		return nil, false
	}
	nthchunk := int64(pool.freelist[pool.freeoff])
	pool.freelist = pool.freelist[:pool.freeoff]
	pool.freeoff--
	pool.mallocated += pool.size
	ptr := pool.base + uintptr(nthchunk*pool.size)
	return unsafe.Pointer(ptr), true
}

// O(1)
func (pool *mpool) freechunk(ptr unsafe.Pointer) {
	if ptr == nil {
		panicerr("mpool.freechunk(): nil pointer")
	}
	diffptr := uint64(uintptr(ptr) - pool.base)
	if (diffptr % uint64(pool.size)) != 0 {
		fmsg := "mpool.freechunk(): unaligned pointer: %x,%v"
		panicerr(fmsg, diffptr, pool.size)
	}
	nthchunk := uint16(diffptr / uint64(pool.size))
	pool.freelist = append(pool.freelist, nthchunk)
	pool.freeoff++
	pool.mallocated -= pool.size
}

func (pool *mpool) contains(ptr unsafe.Pointer) bool {
	p := uintptr(ptr)
	return pool.base <= p && p < (pool.base+uintptr(pool.capacity))
}

func (pool *mpool) info() (capacity, heap, alloc, overhead int64) {
	self := int64(unsafe.Sizeof(*pool))
	slicesz := int64(cap(pool.freelist) * 2)
	return pool.capacity, pool.capacity, pool.mallocated, self + slicesz
}

func (pool *mpool) release() {
	pool.freelist, pool.freeoff = nil, -1
	pool.capacity, pool.base, pool.block = 0, 0, nil
	pool.mallocated = 0
}
