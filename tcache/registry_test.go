package tcache

import "testing"
import "time"
import "sync/atomic"

import s "github.com/bnclabs/gosettings"

func TestPurgeAllLazy(t *testing.T) {
	// A's cache drains synchronously, B's cache drains only when B
	// next touches it.
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	tca, tcb := New(reg), New(reg)
	defer tca.Close()
	defer tcb.Close()

	for _, tc := range []*ThreadCache{tca, tcb} {
		ptrs := getchunks(t, mock, tc, 2, 8)
		for _, ptr := range ptrs {
			tc.Put(ptr, 2)
		}
	}

	reg.PurgeAll(tca)
	if x := tca.CachedMemory(); x != 0 {
		t.Errorf("caller's cache should be empty, holds %v", x)
	}
	if x := tcb.CachedMemory(); x == 0 {
		t.Errorf("other cache should still hold chunks")
	}
	if atomic.LoadInt32(&tcb.shouldpurge) != 1 {
		t.Errorf("other cache should be flagged")
	}

	// any operation on B serves the pending purge.
	tcb.Get(2)
	if x := tcb.CachedMemory(); x != 0 {
		t.Errorf("expected lazy purge to drain B, holds %v", x)
	}
	checkaccounting(t, tcb)
}

func TestAdaptivePurgeInterval(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	tc := New(reg)
	defer tc.Close()

	min := 1 * time.Second
	max := 64 * time.Second
	def := 8 * time.Second
	reg.SetPurgingConfiguration(min, max, def, 1000)

	// idle caches double the interval toward max.
	for i := 0; i < 10; i++ {
		reg.RunPeriodicPurge()
	}
	if x := reg.NextInterval(); x != max {
		t.Errorf("expected %v, got %v", max, x)
	}

	// 11x the threshold, one tick must at least halve the interval,
	// clamped at the default.
	atomic.StoreInt64(&tc.cachedmem, 11*1000)
	reg.RunPeriodicPurge()
	if x := reg.NextInterval(); x != 32*time.Second {
		t.Errorf("expected %v, got %v", 32*time.Second, x)
	}
	for i := 0; i < 10; i++ {
		atomic.StoreInt64(&tc.cachedmem, 11*1000)
		reg.RunPeriodicPurge()
	}
	if x := reg.NextInterval(); x != def {
		t.Errorf("expected clamp at %v, got %v", def, x)
	}

	// above 2x, halving continues toward min.
	for i := 0; i < 10; i++ {
		atomic.StoreInt64(&tc.cachedmem, 3*1000)
		reg.RunPeriodicPurge()
	}
	if x := reg.NextInterval(); x != min {
		t.Errorf("expected %v, got %v", min, x)
	}

	// between 1x and 2x the interval is left alone.
	atomic.StoreInt64(&tc.cachedmem, 1500)
	reg.RunPeriodicPurge()
	if x := reg.NextInterval(); x != min {
		t.Errorf("expected %v, got %v", min, x)
	}
	atomic.StoreInt64(&tc.cachedmem, 0)
}

func TestSetThreadCacheMultiplier(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	tc := New(reg)
	defer tc.Close()

	if x := tc.buckets[0].getlimit(); x != 64 {
		t.Errorf("expected %v, got %v", 64, x)
	}
	reg.SetThreadCacheMultiplier(2.0)
	if x := tc.buckets[0].getlimit(); x != 128 {
		t.Errorf("expected pushed limit %v, got %v", 128, x)
	}
	if x := tc.buckets[4].getlimit(); x != 32 {
		t.Errorf("expected pushed limit %v, got %v", 32, x)
	}

	// out of range multipliers are clamped.
	reg.SetThreadCacheMultiplier(100.0)
	if x := tc.buckets[5].getlimit(); x != 64 {
		t.Errorf("expected clamped limit %v, got %v", 64, x)
	}
}

func TestSetGlobalLimits(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	tc := New(reg)
	defer tc.Close()

	// seeds future caches without touching live ones.
	reg.SetGlobalLimits(2.0)
	if x := tc.buckets[0].getlimit(); x != 64 {
		t.Errorf("live cache should keep %v, got %v", 64, x)
	}
	tc2 := New(reg)
	defer tc2.Close()
	if x := tc2.buckets[0].getlimit(); x != 128 {
		t.Errorf("new cache should seed %v, got %v", 128, x)
	}
}

func TestSetLargestCachedSize(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	tc := New(reg)
	defer tc.Close()

	ptrs := getchunks(t, mock, tc, 2, 4)
	for _, ptr := range ptrs {
		tc.Put(ptr, 2)
	}

	// lower the ceiling below slab 128, bucket 2 goes inactive but
	// its cached bytes remain purgeable.
	reg.SetLargestCachedSize(64)
	if _, ok := tc.Get(2); ok {
		t.Errorf("expected a miss above the lowered ceiling")
	}
	if tc.CachedMemory() == 0 {
		t.Errorf("inactive bucket should still hold its bytes")
	}
	tc.Purge()
	if x := tc.CachedMemory(); x != 0 {
		t.Errorf("purge should drain inactive buckets, holds %v", x)
	}
	if x := mock.outstanding(); x != 0 {
		t.Errorf("%v chunks leaked past the ceiling change", x)
	}

	// raise it back.
	reg.SetLargestCachedSize(1024)
	if _, ok := tc.Get(5); ok == false {
		t.Errorf("expected bucket 5 active at ceiling 1024")
	}
}

func TestPurgingConfigurationPanics(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, nil)
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		reg.SetPurgingConfiguration(
			10*time.Second, 5*time.Second, 7*time.Second, 1000)
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		reg.SetPurgingConfiguration(
			time.Second, time.Minute, 10*time.Second, 0)
	}()
}

func TestRegistryStats(t *testing.T) {
	mock := newmockalloc(testslabs)
	reg := NewRegistry(mock, s.Settings{"quarantine.enable": true})
	tc := New(reg)
	defer tc.Close()

	ptrs := getchunks(t, mock, tc, 2, 4)
	for _, ptr := range ptrs {
		tc.Put(ptr, 2)
	}
	stats := reg.Stats()
	if x := stats["n_caches"].(int64); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
	if x := stats["cachedmem"].(int64); x != 4*128 {
		t.Errorf("expected %v, got %v", 4*128, x)
	}
	if _, ok := stats["quarantine.count"]; ok == false {
		t.Errorf("expected quarantine counters in aggregate stats")
	}
	// cacheless callers can still broadcast a purge.
	reg.PurgeAll(nil)
	if x := reg.TotalCachedMemory(); x != 4*128 {
		t.Errorf("cache purges lazily, expected %v, got %v", 4*128, x)
	}
	stats = reg.Stats()
	if x := stats["n_purgeall"].(int64); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
}
