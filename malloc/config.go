package malloc

import s "github.com/bnclabs/gosettings"

import "github.com/bnclabs/gomalloc/lib"

// MEMUtilization is the expected ratio between memory handed out to
// application and memory carved from the Go heap. Slab sizes are
// generated to keep utilization above this ratio.
const MEMUtilization = float64(0.95)

// Sizeinterval minslab and maxslab should be multiples of
// Sizeinterval.
const Sizeinterval = int64(32)

// Maxarenasize maximum size of a memory arena. Can be used as
// default capacity for NewArena().
const Maxarenasize = int64(1024 * 1024 * 1024 * 1024)

// Maxpools maximum number of pools allowed for a single slab.
const Maxpools = int64(512)

// Maxchunks maximum number of chunks allowed in a pool.
const Maxchunks = int64(65536)

// Minchunks number of chunks in the first pool carved for a slab,
// subsequent pools double until Maxchunks.
const Minchunks = int64(64)

// Defaultsettings for creating an arena.
//
// "minslab" (int64, default: 32)
//		Smallest chunk size allocatable, multiple of 32.
//
// "maxslab" (int64, default: 4096)
//		Largest chunk size allocatable, multiple of 32.
//
// "pool.capacity" (int64, default: freeRAM/100)
//		A single pool carved from the heap cannot exceed this many
//		bytes.
func Defaultsettings() s.Settings {
	_, _, free := lib.Memory()
	pcapacity := int64(free / 100)
	if pcapacity > (16 * 1024 * 1024) {
		pcapacity = 16 * 1024 * 1024
	}
	return s.Settings{
		"minslab":       int64(32),
		"maxslab":       int64(4096),
		"pool.capacity": pcapacity,
	}
}
