package malloc

import "fmt"
import "sync"
import "unsafe"

import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// Arena is a bucket space of memory with a maximum capacity. Each
// bucket serves chunks of a single slab size, carved on demand from
// the Go heap in pools. Arena implements api.Allocator{}.
type Arena struct {
	// 64-bit aligned stats
	n_allocs    int64
	n_frees     int64
	n_fastfails int64

	slabs  []int64 // sorted list of slab sizes in this arena
	mslabs []*mslab
	mu     sync.Mutex

	// configuration
	capacity  int64 // memory capacity to be managed by this arena
	minslab   int64 // minimum chunk size allocatable by arena
	maxslab   int64 // maximum chunk size allocatable by arena
	pcapacity int64 // maximum capacity for a single pool
	logprefix string
}

// NewArena create a new memory arena with `capacity`, settings
// override Defaultsettings().
func NewArena(capacity int64, setts s.Settings) *Arena {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	arena := &Arena{
		capacity:  capacity,
		minslab:   setts.Int64("minslab"),
		maxslab:   setts.Int64("maxslab"),
		pcapacity: setts.Int64("pool.capacity"),
	}
	arena.logprefix = fmt.Sprintf("[arena-%v]", humanize.Bytes(uint64(capacity)))
	if capacity <= 0 || capacity > Maxarenasize {
		panicerr("capacity should be within (0,%v], got %v",
			Maxarenasize, capacity)
	} else if arena.minslab < api.Alignment {
		panicerr("minslab %v smaller than %v", arena.minslab, api.Alignment)
	}
	arena.slabs = Computeslabs(arena.minslab, arena.maxslab)
	if x := int64(len(arena.slabs)); x > Maxpools {
		panicerr("number of slabs %v exceeds %v", x, Maxpools)
	}
	arena.mslabs = make([]*mslab, 0, len(arena.slabs))
	for _, size := range arena.slabs {
		arena.mslabs = append(arena.mslabs, newmslab(size))
	}
	log.Infof("%v started with %v slabs %v-%v\n",
		arena.logprefix, len(arena.slabs), arena.minslab, arena.maxslab)
	return arena
}

//---- api.Allocator{} interface

// Lock implement api.Allocator{} interface.
func (arena *Arena) Lock() {
	arena.mu.Lock()
}

// Unlock implement api.Allocator{} interface.
func (arena *Arena) Unlock() {
	arena.mu.Unlock()
}

// AllocFast implement api.Allocator{} interface. Recycles chunks
// from existing pools and never carves a new pool, may fill fewer
// slots than asked for, including none. Call with the arena lock
// held.
func (arena *Arena) AllocFast(bucket int64, slots []unsafe.Pointer) int64 {
	mslab := arena.mslabs[bucket]
	n := int64(0)
	for n < int64(len(slots)) {
		ptr, ok := mslab.allocchunk()
		if ok == false {
			arena.n_fastfails++
			break
		}
		slots[n] = ptr
		n++
	}
	arena.n_allocs += n
	return n
}

// FreeSlot implement api.Allocator{} interface. Call with the arena
// lock held.
func (arena *Arena) FreeSlot(ptr unsafe.Pointer, bucket int64) {
	if arena.IsValidBucket(bucket) == false {
		panicerr("%v FreeSlot on invalid bucket %v", arena.logprefix, bucket)
	}
	pool := arena.mslabs[bucket].findpool(ptr)
	if pool == nil {
		panicerr("%v FreeSlot %p outside bucket %v", arena.logprefix,
			ptr, bucket)
	}
	pool.freechunk(ptr)
	arena.n_frees++
}

// Slabs implement api.Allocator{} interface.
func (arena *Arena) Slabs() []int64 {
	return arena.slabs
}

// Slabsize implement api.Allocator{} interface.
func (arena *Arena) Slabsize(bucket int64) int64 {
	return arena.slabs[bucket]
}

// Buckets implement api.Allocator{} interface.
func (arena *Arena) Buckets() int64 {
	return int64(len(arena.slabs))
}

// IsValidBucket implement api.Allocator{} interface.
func (arena *Arena) IsValidBucket(bucket int64) bool {
	return bucket >= 0 && bucket < int64(len(arena.slabs))
}

//---- operations

// Bucketindex return the bucket whose slab is the best fit for a
// chunk of `size` bytes.
func (arena *Arena) Bucketindex(size int64) int64 {
	if size > arena.maxslab {
		panicerr("%v Bucketindex size %v exceeds maxslab %v",
			arena.logprefix, size, arena.maxslab)
	}
	slab := SuitableSlab(arena.slabs, size)
	for i, x := range arena.slabs {
		if x == slab {
			return int64(i)
		}
	}
	panic("unreachable code")
}

// Alloc a chunk of `n` bytes, growing the arena with a new pool when
// existing pools are exhausted. Panics with ErrorOutofMemory beyond
// the configured capacity.
func (arena *Arena) Alloc(n int64) unsafe.Pointer {
	if arena.mslabs == nil {
		panicerr("%v Alloc on released arena", arena.logprefix)
	}
	bucket := arena.Bucketindex(n)

	arena.mu.Lock()
	defer arena.mu.Unlock()

	mslab := arena.mslabs[bucket]
	if ptr, ok := mslab.allocchunk(); ok {
		arena.n_allocs++
		return ptr
	}
	// existing pools exhausted, carve a new pool.
	numchunks := mslab.numchunks(arena.pcapacity)
	allocated := numchunks * mslab.size
	for _, other := range arena.mslabs {
		_, heap, _, _ := other.info()
		allocated += heap
	}
	if allocated > arena.capacity {
		panic(api.ErrorOutofMemory)
	}
	mslab.addpool(numchunks)
	ptr, _ := mslab.allocchunk()
	arena.n_allocs++
	return ptr
}

// Free a chunk, mapping it back to its bucket. Prefer FreeSlot when
// the bucket is known.
func (arena *Arena) Free(ptr unsafe.Pointer) {
	arena.mu.Lock()
	defer arena.mu.Unlock()

	for _, mslab := range arena.mslabs {
		if pool := mslab.findpool(ptr); pool != nil {
			pool.freechunk(ptr)
			arena.n_frees++
			return
		}
	}
	panicerr("%v Free %p outside arena", arena.logprefix, ptr)
}

// Release arena and all its pools. Outstanding chunk pointers are
// invalid beyond this point.
func (arena *Arena) Release() {
	arena.mu.Lock()
	defer arena.mu.Unlock()

	for _, mslab := range arena.mslabs {
		mslab.release()
	}
	arena.slabs, arena.mslabs = nil, nil
	log.Infof("%v released\n", arena.logprefix)
}

//---- statistics

// Info of memory accounting for this arena.
func (arena *Arena) Info() (capacity, heap, alloc, overhead int64) {
	arena.mu.Lock()
	defer arena.mu.Unlock()

	capacity = arena.capacity
	self := int64(unsafe.Sizeof(*arena))
	overhead += self
	for _, mslab := range arena.mslabs {
		_, h, a, o := mslab.info()
		heap, alloc, overhead = heap+h, alloc+a, overhead+o
	}
	return
}

// Utilization per slab, as a percentage of allocated over carved.
func (arena *Arena) Utilization() ([]int, []float64) {
	arena.mu.Lock()
	defer arena.mu.Unlock()

	ss, zs := make([]int, 0), make([]float64, 0)
	for _, mslab := range arena.mslabs {
		_, heap, alloc, _ := mslab.info()
		if heap > 0 {
			ss = append(ss, int(mslab.size))
			zs = append(zs, (float64(alloc)/float64(heap))*100)
		}
	}
	return ss, zs
}

// Stats return a map of arena counters.
func (arena *Arena) Stats() map[string]interface{} {
	capacity, heap, alloc, overhead := arena.Info()
	return map[string]interface{}{
		"n_allocs":    arena.n_allocs,
		"n_frees":     arena.n_frees,
		"n_fastfails": arena.n_fastfails,
		"capacity":    capacity,
		"heap":        heap,
		"alloc":       alloc,
		"overhead":    overhead,
	}
}

// Log arena statistics.
func (arena *Arena) Log() {
	_, heap, alloc, overhead := arena.Info()
	fmsg := "%v heap:%v alloc:%v overhead:%v\n"
	log.Infof(fmsg, arena.logprefix, humanize.Bytes(uint64(heap)),
		humanize.Bytes(uint64(alloc)), humanize.Bytes(uint64(overhead)))
}
