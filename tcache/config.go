package tcache

import "fmt"

import s "github.com/bnclabs/gosettings"

// Maxcount ceiling on cached chunks in a single bucket, limits can
// never exceed this.
const Maxcount = uint32(255)

// Basecount cached-chunk limit for the smallest slabs at multiplier
// 1.0. Larger slabs step down from this at the breakpoints below,
// smaller size classes are more frequent and cheaper to hold.
const Basecount = int64(64)

// Limit breakpoints: slabs upto Fullat keep the full limit, upto
// Halfat half of it, upto Quarterat a quarter, an eighth above that.
const (
	Fullat    = int64(128)
	Halfat    = int64(256)
	Quarterat = int64(512)
)

// Defaultsettings for the registry and its thread caches. The tuning
// ratios below are empirically chosen defaults, not derived ones.
//
// "buckets.multiplier" (float64, default: 1.0)
//		Scales every bucket's cached-chunk limit.
//
// "largest.slab" (int64, default: 512)
//		Slabs above this size are never cached, Get misses and Put
//		rejects for their buckets.
//
// "fill.ratio" (int64, default: 8)
//		On a miss a bucket refills limit/ratio chunks, at least one,
//		in one locked batch. Filling the whole bucket risks
//		oscillation.
//
// "trim.ratio" (int64, default: 2)
//		An over-limit bucket trims down to limit/ratio, amortizing
//		the shrink over many inserts. Trimming to empty risks
//		thrash.
//
// "purge.mininterval" (int64 ms, default: 1000)
//		Lower bound on the adaptive purge interval.
//
// "purge.maxinterval" (int64 ms, default: 60000)
//		Upper bound on the adaptive purge interval.
//
// "purge.definterval" (int64 ms, default: 10000)
//		Starting purge interval, also the floor under heavy
//		pressure.
//
// "purge.threshold" (int64, default: 524288)
//		Aggregate cached bytes below which purging slows down, and
//		multiples of which speed it up.
//
// "quarantine.enable" (bool, default: false)
//		Delay reuse of freed chunks through a quarantine branch.
//
// "quarantine.capacity" (int64, default: 262144)
//		Byte budget shared by all quarantine branches.
//
// "quarantine.branch.capacity" (int64, default: 0)
//		Per-branch byte ceiling, zero inherits the shared capacity.
func Defaultsettings() s.Settings {
	return s.Settings{
		"buckets.multiplier":         float64(1.0),
		"largest.slab":               int64(512),
		"fill.ratio":                 int64(8),
		"trim.ratio":                 int64(2),
		"purge.mininterval":          int64(1000),
		"purge.maxinterval":          int64(60000),
		"purge.definterval":          int64(10000),
		"purge.threshold":            int64(512 * 1024),
		"quarantine.enable":          false,
		"quarantine.capacity":        int64(256 * 1024),
		"quarantine.branch.capacity": int64(0),
	}
}

// computelimits per-bucket cached-chunk limits for the configured
// slab sizes, scaled by multiplier and stepped down at the
// breakpoints. Clamped to [1, Maxcount].
func computelimits(slabs []int64, multiplier float64) []uint32 {
	limits := make([]uint32, len(slabs))
	for i, slab := range slabs {
		count := float64(Basecount) * multiplier
		switch {
		case slab <= Fullat:
		case slab <= Halfat:
			count = count / 2
		case slab <= Quarterat:
			count = count / 4
		default:
			count = count / 8
		}
		if count < 1 {
			count = 1
		} else if count > float64(Maxcount) {
			count = float64(Maxcount)
		}
		limits[i] = uint32(count)
	}
	return limits
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
