package tcache

import "unsafe"
import "sync/atomic"

// bucketslot per size-class cache of free chunks. The free-list is
// intrusive, each node lives in the first 8 bytes of the freed chunk
// itself, aliasing the application's dead payload, so the cache
// allocates no bookkeeping memory. Only `limit` may be touched by
// other goroutines, through atomic loads and stores.
type bucketslot struct {
	head  unsafe.Pointer // free-list head, owner goroutine only
	count uint32         // cached chunks, 0..Maxcount
	limit uint32         // soft cap, advisory, atomic
	slab  int64          // immutable after construction
}

// push chunk at the head, making it the hottest entry. The chunk's
// first word is overwritten with the previous head.
func (b *bucketslot) push(ptr unsafe.Pointer) {
	*(*unsafe.Pointer)(ptr) = b.head
	b.head = ptr
	b.count++
}

// pop the hottest entry, call only with count > 0.
func (b *bucketslot) pop() unsafe.Pointer {
	ptr := b.head
	b.head = *(*unsafe.Pointer)(ptr)
	b.count--
	return ptr
}

func (b *bucketslot) getlimit() uint32 {
	return atomic.LoadUint32(&b.limit)
}

func (b *bucketslot) setlimit(limit uint32) {
	atomic.StoreUint32(&b.limit, limit)
}

func nextnode(ptr unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(ptr)
}

func setnextnode(ptr, to unsafe.Pointer) {
	*(*unsafe.Pointer)(ptr) = to
}
