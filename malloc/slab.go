package malloc

import "sort"
import "unsafe"

// mslab all pools carved for one slab size, kept sorted by base
// pointer so that chunk pointers can be mapped back to their pool.
type mslab struct {
	size   int64
	pools  []*mpool
	hint   int   // last pool that satisfied an alloc
	cpools int64 // pools ever created for this slab
}

func newmslab(size int64) *mslab {
	return &mslab{size: size}
}

// allocchunk from existing pools only, nil when every pool is full.
func (slab *mslab) allocchunk() (unsafe.Pointer, bool) {
	if len(slab.pools) == 0 {
		return nil, false
	}
	if slab.hint < len(slab.pools) {
		if ptr, ok := slab.pools[slab.hint].allocchunk(); ok {
			return ptr, true
		}
	}
	for i, pool := range slab.pools {
		if ptr, ok := pool.allocchunk(); ok {
			slab.hint = i
			return ptr, true
		}
	}
	return nil, false
}

// addpool carve a new pool of n chunks and keep pools sorted by
// base pointer.
func (slab *mslab) addpool(n int64) *mpool {
	pool := newmpool(slab.size, n)
	i := sort.Search(len(slab.pools), func(j int) bool {
		return slab.pools[j].base >= pool.base
	})
	slab.pools = append(slab.pools, nil)
	copy(slab.pools[i+1:], slab.pools[i:])
	slab.pools[i] = pool
	slab.hint = i
	slab.cpools++
	return pool
}

// findpool map a chunk pointer back to its pool, nil if the pointer
// was never handed out by this slab.
func (slab *mslab) findpool(ptr unsafe.Pointer) *mpool {
	p := uintptr(ptr)
	i := sort.Search(len(slab.pools), func(j int) bool {
		return slab.pools[j].base > p
	})
	if i == 0 {
		return nil
	}
	if pool := slab.pools[i-1]; pool.contains(ptr) {
		return pool
	}
	return nil
}

// adaptive pool sizing, first pool carves Minchunks chunks and every
// subsequent pool doubles, bounded by Maxchunks and pcapacity.
func (slab *mslab) numchunks(pcapacity int64) int64 {
	n := Minchunks << uint64(slab.cpools)
	if n > Maxchunks {
		n = Maxchunks
	}
	if max := pcapacity / slab.size; n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (slab *mslab) info() (capacity, heap, alloc, overhead int64) {
	for _, pool := range slab.pools {
		c, h, a, o := pool.info()
		capacity, heap, alloc = capacity+c, heap+h, alloc+a
		overhead += o
	}
	return
}

func (slab *mslab) release() {
	for _, pool := range slab.pools {
		pool.release()
	}
	slab.pools, slab.hint = nil, 0
}
