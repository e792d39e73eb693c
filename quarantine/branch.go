package quarantine

import "fmt"
import "sync"
import "unsafe"
import "math/rand"
import "sync/atomic"

// Freer destination for chunks leaving quarantine, either because
// they were evicted to make room or because the branch was purged.
type Freer interface {
	// FreeQuarantined release a chunk for real. `bucket` is the
	// bucket-index recorded when the chunk was quarantined.
	FreeQuarantined(ptr unsafe.Pointer, bucket int64)
}

// entry one quarantined chunk. Descriptors live in a flat slice
// owned by the branch, never inside the chunk itself, the chunk's
// bytes stay untouched while in quarantine.
type entry struct {
	ptr    unsafe.Pointer
	bucket int64
	size   int64
}

// Branch one owner's view into a quarantine Root. Holds the delayed
// chunks and runs the randomized eviction. A branch is either owned
// by a single goroutine, or constructed thread-safe in which case an
// internal mutex serializes mutating calls.
type Branch struct {
	// 64-bit aligned, loaded from other goroutines for stats.
	size     int64 // bytes held by this branch, subset of root total
	capacity int64 // ceiling in bytes for this branch

	root       *Root
	target     Freer
	entries    []entry
	rnd        *rand.Rand
	mu         sync.Mutex
	threadsafe bool
}

// NewBranch create a branch over root. Chunks leaving quarantine are
// handed to target. A zero capacity inherits the root's capacity.
// With threadsafe true mutating calls are serialized internally, for
// branches shared between goroutines.
func NewBranch(
	root *Root, capacity int64, target Freer,
	threadsafe bool, seed int64) *Branch {

	if root == nil || target == nil {
		panic(fmt.Errorf("quarantine branch needs root and target"))
	}
	if capacity <= 0 {
		capacity = root.Capacity()
	}
	branch := &Branch{
		root:       root,
		capacity:   capacity,
		target:     target,
		rnd:        rand.New(rand.NewSource(seed)),
		threadsafe: threadsafe,
	}
	return branch
}

// Capacity return this branch's byte ceiling.
func (branch *Branch) Capacity() int64 {
	return atomic.LoadInt64(&branch.capacity)
}

// SetCapacity adjust this branch's byte ceiling, callable from any
// goroutine. Shrinking does not evict immediately, the next
// Quarantine or Purge call enforces the new ceiling.
func (branch *Branch) SetCapacity(capacity int64) {
	atomic.StoreInt64(&branch.capacity, capacity)
}

// Bytes return bytes currently held by this branch.
func (branch *Branch) Bytes() int64 {
	return atomic.LoadInt64(&branch.size)
}

// Count return chunks currently held by this branch. Meaningful only
// on the owner goroutine, or under the thread-safe variant.
func (branch *Branch) Count() int64 {
	branch.lock()
	defer branch.unlock()
	return int64(len(branch.entries))
}

// Quarantine a chunk of `size` bytes. Returns true when the chunk
// was retained. Returns false when the chunk can never fit, even
// after this branch evicts everything it owns, in which case the
// chunk is freed immediately through the target and the root's miss
// counter is incremented.
func (branch *Branch) Quarantine(
	ptr unsafe.Pointer, bucket, size int64) bool {

	branch.lock()
	defer branch.unlock()

	capacity := atomic.LoadInt64(&branch.capacity)
	heldbyothers := branch.root.Bytes() - atomic.LoadInt64(&branch.size)
	if capacity < heldbyothers+size {
		branch.target.FreeQuarantined(ptr, bucket)
		atomic.AddInt64(&branch.root.misses, 1)
		return false
	}
	// make room within what this branch may hold.
	room := capacity - heldbyothers
	for atomic.LoadInt64(&branch.size)+size > room {
		branch.evicttail()
	}
	branch.entries = append(branch.entries, entry{ptr, bucket, size})
	// swap the fresh entry with a uniformly random slot, so that
	// tail eviction approximates random order over time.
	if n := len(branch.entries); n > 1 {
		i := branch.rnd.Intn(n)
		branch.entries[i], branch.entries[n-1] =
			branch.entries[n-1], branch.entries[i]
	}
	atomic.AddInt64(&branch.size, size)
	atomic.AddInt64(&branch.root.count, 1)
	atomic.AddInt64(&branch.root.bytes, size)
	atomic.AddInt64(&branch.root.cumcount, 1)
	atomic.AddInt64(&branch.root.cumbytes, size)
	return true
}

// Purge evict every chunk in this branch and release the descriptor
// slice, so a quiescent branch holds no excess allocation.
func (branch *Branch) Purge() {
	branch.lock()
	defer branch.unlock()
	for len(branch.entries) > 0 {
		branch.evicttail()
	}
	branch.entries = nil
}

// Stats return a map of branch counters.
func (branch *Branch) Stats() map[string]interface{} {
	return map[string]interface{}{
		"branch.bytes":    atomic.LoadInt64(&branch.size),
		"branch.capacity": atomic.LoadInt64(&branch.capacity),
	}
}

//---- local functions

func (branch *Branch) evicttail() {
	n := len(branch.entries)
	e := branch.entries[n-1]
	branch.entries = branch.entries[:n-1]
	atomic.AddInt64(&branch.size, -e.size)
	atomic.AddInt64(&branch.root.count, -1)
	atomic.AddInt64(&branch.root.bytes, -e.size)
	branch.target.FreeQuarantined(e.ptr, e.bucket)
}

func (branch *Branch) lock() {
	if branch.threadsafe {
		branch.mu.Lock()
	}
}

func (branch *Branch) unlock() {
	if branch.threadsafe {
		branch.mu.Unlock()
	}
}
