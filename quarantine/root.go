package quarantine

import "sync/atomic"

// Root shared capacity and counters for a quarantine pool. One Root
// serves one allocator instance and is borrowed by many Branches.
// All fields are updated atomically, so aggregate statistics can be
// read from any goroutine without blocking branch owners.
type Root struct {
	// 64-bit aligned stats
	count    int64 // chunks currently quarantined, across branches
	bytes    int64 // bytes currently quarantined, across branches
	cumcount int64 // chunks ever quarantined
	cumbytes int64 // bytes ever quarantined
	misses   int64 // chunks rejected because they can never fit

	capacity int64 // ceiling in bytes, shared by all branches
}

// NewRoot create a new quarantine root with a capacity in bytes.
func NewRoot(capacity int64) *Root {
	return &Root{capacity: capacity}
}

// Capacity return the shared byte ceiling.
func (root *Root) Capacity() int64 {
	return atomic.LoadInt64(&root.capacity)
}

// SetCapacity adjust the shared byte ceiling. Branches enforce the
// new ceiling lazily, on their next Quarantine or Purge call.
func (root *Root) SetCapacity(capacity int64) {
	atomic.StoreInt64(&root.capacity, capacity)
}

// Count return the number of chunks currently quarantined.
func (root *Root) Count() int64 {
	return atomic.LoadInt64(&root.count)
}

// Bytes return the number of bytes currently quarantined.
func (root *Root) Bytes() int64 {
	return atomic.LoadInt64(&root.bytes)
}

// Cumcount return the number of chunks ever quarantined.
func (root *Root) Cumcount() int64 {
	return atomic.LoadInt64(&root.cumcount)
}

// Cumbytes return the number of bytes ever quarantined.
func (root *Root) Cumbytes() int64 {
	return atomic.LoadInt64(&root.cumbytes)
}

// Misses return the number of chunks rejected outright.
func (root *Root) Misses() int64 {
	return atomic.LoadInt64(&root.misses)
}

// Stats return a map of root counters.
func (root *Root) Stats() map[string]interface{} {
	return map[string]interface{}{
		"quarantine.count":    atomic.LoadInt64(&root.count),
		"quarantine.bytes":    atomic.LoadInt64(&root.bytes),
		"quarantine.cumcount": atomic.LoadInt64(&root.cumcount),
		"quarantine.cumbytes": atomic.LoadInt64(&root.cumbytes),
		"quarantine.misses":   atomic.LoadInt64(&root.misses),
		"quarantine.capacity": atomic.LoadInt64(&root.capacity),
	}
}
