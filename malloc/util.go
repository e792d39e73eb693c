package malloc

import "fmt"

// SuitableSlab pick the smallest slab size that can hold `size`
// bytes, from a sorted list of slab sizes.
func SuitableSlab(slabs []int64, size int64) int64 {
	for {
		switch len(slabs) {
		case 1:
			return slabs[0]

		case 2:
			if size <= slabs[0] {
				return slabs[0]
			} else if size <= slabs[1] {
				return slabs[1]
			}
			panic("size greater than configured maxslab")

		default:
			pivot := len(slabs) / 2
			if slabs[pivot] < size {
				slabs = slabs[pivot+1:]
			} else {
				slabs = slabs[0 : pivot+1]
			}
		}
	}
}

// Computeslabs generate suitable slab sizes between minslab and
// maxslab, to achieve MEMUtilization.
func Computeslabs(minslab, maxslab int64) []int64 {
	if maxslab < minslab { // validate the input params
		panic("minslab > maxslab")
	} else if (minslab % Sizeinterval) != 0 {
		fmsg := "minslab %v is not multiple of %v"
		panic(fmt.Errorf(fmsg, minslab, Sizeinterval))
	} else if (maxslab % Sizeinterval) != 0 {
		fmsg := "maxslab %v is not multiple of %v"
		panic(fmt.Errorf(fmsg, maxslab, Sizeinterval))
	}

	nextsize := func(from int64) int64 {
		addby := int64(float64(from) * (1.0 - MEMUtilization))
		if addby <= Sizeinterval {
			addby = Sizeinterval
		} else if addby&0x1f != 0 {
			addby = (addby >> 5) << 5
		}
		size := from + addby
		for (float64(from+size)/2.0)/float64(size) > MEMUtilization {
			size += addby
		}
		return size
	}

	sizes := make([]int64, 0, 64)
	for size := minslab; size < maxslab; {
		sizes = append(sizes, size)
		size = nextsize(size)
	}
	sizes = append(sizes, maxslab)
	return sizes
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
