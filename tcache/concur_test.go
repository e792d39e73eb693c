package tcache

import "testing"
import "sync"
import "time"
import "unsafe"
import "math/rand"

import "github.com/stretchr/testify/require"
import s "github.com/bnclabs/gosettings"

import "github.com/bnclabs/gomalloc/malloc"

// every goroutine owns one cache over a shared arena, churning
// allocations through the cache, the quarantine and the arena slow
// path, with purge requests flying across owners.
func TestConcurrentCaches(t *testing.T) {
	setts := s.Settings{
		"maxslab":             int64(1024),
		"quarantine.enable":   true,
		"quarantine.capacity": int64(64 * 1024),
	}
	arena := malloc.NewArena(256*1024*1024, setts)
	defer arena.Release()
	reg := NewRegistry(arena, setts)

	var wg sync.WaitGroup
	workers := 8
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()

			rnd := rand.New(rand.NewSource(seed))
			tc := New(reg)
			defer tc.Close()

			held := make([]unsafe.Pointer, 0, 1024)
			buckets := make([]int64, 0, 1024)
			for i := 0; i < 10000; i++ {
				size := int64(rnd.Intn(1024) + 1)
				bucket := arena.Bucketindex(size)
				ptr, ok := tc.Get(bucket)
				if ok == false {
					ptr = arena.Alloc(size)
				}
				held = append(held, ptr)
				buckets = append(buckets, bucket)

				if len(held) > 512 {
					j := rnd.Intn(len(held))
					tc.Free(held[j], buckets[j])
					n := len(held) - 1
					held[j], buckets[j] = held[n], buckets[n]
					held, buckets = held[:n], buckets[:n]
				}
				if i%2000 == 1999 {
					reg.PurgeAll(tc)
				}
			}
			for j, ptr := range held {
				tc.Free(ptr, buckets[j])
			}
		}(int64(w + 1))
	}

	done := make(chan struct{})
	go func() {
		// the adaptive controller ticking alongside the workers.
		for {
			select {
			case <-done:
				return
			default:
				reg.RunPeriodicPurge()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	wg.Wait()
	close(done)

	require.Equal(t, int64(0), reg.TotalCachedMemory())
	require.Equal(t, int64(0), reg.Quarantine().Count())
	_, _, alloc, _ := arena.Info()
	require.Equal(t, int64(0), alloc)
	stats := reg.Stats()
	require.Equal(t, int64(0), stats["n_caches"].(int64))
}
