package tcache

import "fmt"
import "sync"
import "time"
import "sync/atomic"

import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"
import "github.com/bnclabs/gomalloc/lib"
import "github.com/bnclabs/gomalloc/quarantine"

// Multiplier bounds, values outside are clamped with a warning.
const (
	Minmultiplier = float64(0.1)
	Maxmultiplier = float64(8.0)
)

// Registry set of live thread caches serving one arena. Owns the
// cache list topology, the global per-bucket limits that seed new
// caches, and the adaptive purge-interval controller. Construct one
// Registry per arena, before any thread cache, and keep it for the
// arena's lifetime.
type Registry struct {
	// 64-bit aligned stats
	n_purgeall int64
	n_periodic int64

	mu      sync.Mutex
	head    *ThreadCache // intrusive doubly-linked list
	ncaches int64

	arena      api.Allocator
	slabs      []int64
	limits     []uint32 // seeds newly created caches
	multiplier float64
	largest    int64 // largest cached slab size
	maxbucket  int64 // bucket ceiling derived from largest

	// adaptive purge controller
	mininterval  time.Duration
	maxinterval  time.Duration
	definterval  time.Duration
	nextinterval time.Duration
	threshold    int64
	h_purge      *lib.AverageInt64 // purge latencies, in ns

	qroot      *quarantine.Root
	qbranchcap int64
	qseeds     int64

	fillratio int64
	trimratio int64
	logprefix string
}

// NewRegistry create the registry for `arena`, settings override
// Defaultsettings(). Call at most once per arena.
func NewRegistry(arena api.Allocator, setts s.Settings) *Registry {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	reg := &Registry{
		arena:     arena,
		slabs:     arena.Slabs(),
		h_purge:   &lib.AverageInt64{},
		fillratio: setts.Int64("fill.ratio"),
		trimratio: setts.Int64("trim.ratio"),
		logprefix: "[tcregistry]",
	}
	if reg.fillratio < 1 || reg.trimratio < 1 {
		panicerr("%v ratios should be >= 1", reg.logprefix)
	}
	reg.setmultiplier(setts.Float64("buckets.multiplier"))
	reg.setlargest(setts.Int64("largest.slab"))

	reg.mininterval = time.Duration(setts.Int64("purge.mininterval")) * time.Millisecond
	reg.maxinterval = time.Duration(setts.Int64("purge.maxinterval")) * time.Millisecond
	reg.definterval = time.Duration(setts.Int64("purge.definterval")) * time.Millisecond
	reg.threshold = setts.Int64("purge.threshold")
	if reg.mininterval > reg.definterval || reg.definterval > reg.maxinterval {
		panicerr("%v want mininterval <= definterval <= maxinterval",
			reg.logprefix)
	}
	reg.nextinterval = reg.definterval

	if setts.Bool("quarantine.enable") {
		capacity := setts.Int64("quarantine.capacity")
		reg.qroot = quarantine.NewRoot(capacity)
		reg.qbranchcap = setts.Int64("quarantine.branch.capacity")
		log.Infof("%v quarantine enabled, capacity %v\n",
			reg.logprefix, humanize.Bytes(uint64(capacity)))
	}
	log.Infof("%v started over %v buckets, largest slab %v\n",
		reg.logprefix, len(reg.slabs), reg.largest)
	return reg
}

// SetGlobalLimits recompute the per-bucket limits that seed newly
// created caches. Existing caches are not touched, use
// SetThreadCacheMultiplier for that.
func (reg *Registry) SetGlobalLimits(multiplier float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.setmultiplier(multiplier)
}

// SetThreadCacheMultiplier recompute the global limits and push the
// new per-bucket limit into every live cache. The pushes are atomic
// stores racing with owner fast paths, limits are advisory so the
// race is harmless.
func (reg *Registry) SetThreadCacheMultiplier(multiplier float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.setmultiplier(multiplier)
	for tc := reg.head; tc != nil; tc = tc.next {
		for i := range tc.buckets {
			tc.buckets[i].setlimit(reg.limits[i])
		}
	}
}

// SetLargestCachedSize raise or lower the slab-size ceiling above
// which caches always miss. Inactive buckets above a lowered ceiling
// are not torn down immediately, they remain eligible for purge so
// no cached bytes are leaked.
func (reg *Registry) SetLargestCachedSize(size int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.setlargest(size)
	for tc := reg.head; tc != nil; tc = tc.next {
		atomic.StoreInt64(&tc.maxbucket, reg.maxbucket)
	}
}

// SetPurgingConfiguration replace the adaptive purge-controller
// bounds and pressure threshold, resetting the next interval to the
// default.
func (reg *Registry) SetPurgingConfiguration(
	min, max, def time.Duration, threshold int64) {

	if min > def || def > max || threshold <= 0 {
		panicerr("%v want min <= default <= max and threshold > 0",
			reg.logprefix)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.mininterval, reg.maxinterval, reg.definterval = min, max, def
	reg.nextinterval = def
	reg.threshold = threshold
	log.Infof("%v purging configured %v/%v/%v threshold %v\n",
		reg.logprefix, min, def, max, humanize.Bytes(uint64(threshold)))
}

// NextInterval the external timer should wait this long before the
// next RunPeriodicPurge call.
func (reg *Registry) NextInterval() time.Duration {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.nextinterval
}

// PurgeAll drain the caller's own cache synchronously, then request
// a purge from every other live cache. Other caches purge lazily on
// their next Get or Put, a sleeping owner's cache state cannot be
// touched from here. `own` may be nil when the caller has no cache.
func (reg *Registry) PurgeAll(own *ThreadCache) {
	var elapsed int64
	if own != nil {
		start := time.Now()
		own.Purge()
		elapsed = int64(time.Since(start))
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.n_purgeall++
	if own != nil {
		reg.h_purge.Add(elapsed)
	}
	for tc := reg.head; tc != nil; tc = tc.next {
		if tc != own {
			atomic.StoreInt32(&tc.shouldpurge, 1)
		}
	}
}

// RunPeriodicPurge one tick of the adaptive purge controller, driven
// by an external timer. Re-arms the next interval from observed
// cache pressure, halving under pressure and doubling when idle,
// then requests a purge from every live cache.
func (reg *Registry) RunPeriodicPurge() {
	reg.mu.Lock()
	reg.n_periodic++
	total := int64(0)
	for tc := reg.head; tc != nil; tc = tc.next {
		total += atomic.LoadInt64(&tc.cachedmem)
	}
	next := reg.nextinterval
	switch {
	case total > 10*reg.threshold:
		if next = next / 2; next < reg.definterval {
			next = reg.definterval
		}
	case total > 2*reg.threshold:
		if next = next / 2; next < reg.mininterval {
			next = reg.mininterval
		}
	case total < reg.threshold:
		if next = next * 2; next > reg.maxinterval {
			next = reg.maxinterval
		}
	}
	reg.nextinterval = next
	reg.n_purgeall++
	for tc := reg.head; tc != nil; tc = tc.next {
		atomic.StoreInt32(&tc.shouldpurge, 1)
	}
	reg.mu.Unlock()
	log.Verbosef("%v periodic purge, cached %v, next tick %v\n",
		reg.logprefix, humanize.Bytes(uint64(total)), next)
}

// TotalCachedMemory approximate aggregate of cached bytes over all
// live caches. Each term is an atomic load, the sum itself is racy
// with owner fast paths, which is fine for a pressure signal.
func (reg *Registry) TotalCachedMemory() int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	total := int64(0)
	for tc := reg.head; tc != nil; tc = tc.next {
		total += atomic.LoadInt64(&tc.cachedmem)
	}
	return total
}

// Quarantine return the shared quarantine root, nil when quarantine
// is disabled.
func (reg *Registry) Quarantine() *quarantine.Root {
	return reg.qroot
}

//---- statistics

// Stats aggregate counters across live caches. Only advisory atomics
// are read from the caches, per-owner detail comes from
// ThreadCache.Stats().
func (reg *Registry) Stats() map[string]interface{} {
	reg.mu.Lock()
	total := int64(0)
	for tc := reg.head; tc != nil; tc = tc.next {
		total += atomic.LoadInt64(&tc.cachedmem)
	}
	stats := map[string]interface{}{
		"n_caches":     reg.ncaches,
		"n_purgeall":   reg.n_purgeall,
		"n_periodic":   reg.n_periodic,
		"cachedmem":    total,
		"multiplier":   reg.multiplier,
		"largest.slab": reg.largest,
		"nextinterval": int64(reg.nextinterval),
		"h_purge":      reg.h_purge.Stats(),
	}
	reg.mu.Unlock()
	if reg.qroot != nil {
		for k, v := range reg.qroot.Stats() {
			stats[k] = v
		}
	}
	return stats
}

// Log registry statistics.
func (reg *Registry) Log() {
	stats := reg.Stats()
	total := stats["cachedmem"].(int64)
	fmsg := "%v %v caches holding %v\n"
	log.Infof(fmsg, reg.logprefix, stats["n_caches"],
		humanize.Bytes(uint64(total)))
}

//---- local functions

func (reg *Registry) register(tc *ThreadCache) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	tc.next = reg.head
	if reg.head != nil {
		reg.head.prev = tc
	}
	reg.head = tc
	reg.ncaches++
	for i := range tc.buckets {
		tc.buckets[i].setlimit(reg.limits[i])
	}
	atomic.StoreInt64(&tc.maxbucket, reg.maxbucket)
}

func (reg *Registry) deregister(tc *ThreadCache) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if tc.prev != nil {
		tc.prev.next = tc.next
	} else {
		reg.head = tc.next
	}
	if tc.next != nil {
		tc.next.prev = tc.prev
	}
	tc.next, tc.prev = nil, nil
	reg.ncaches--
}

// caller should hold reg.mu, except from NewRegistry.
func (reg *Registry) setmultiplier(multiplier float64) {
	if multiplier < Minmultiplier || multiplier > Maxmultiplier {
		fmsg := "%v multiplier %v clamped to [%v,%v]"
		log.Warnf(fmsg+"\n", reg.logprefix, multiplier,
			Minmultiplier, Maxmultiplier)
		if multiplier < Minmultiplier {
			multiplier = Minmultiplier
		} else {
			multiplier = Maxmultiplier
		}
	}
	reg.multiplier = multiplier
	reg.limits = computelimits(reg.slabs, multiplier)
}

// caller should hold reg.mu, except from NewRegistry.
func (reg *Registry) setlargest(size int64) {
	maxbucket := int64(0)
	for i, slab := range reg.slabs {
		if slab <= size {
			maxbucket = int64(i) + 1
		}
	}
	reg.largest, reg.maxbucket = size, maxbucket
}

func (reg *Registry) String() string {
	return fmt.Sprintf("%v{caches:%v}", reg.logprefix, reg.ncaches)
}
