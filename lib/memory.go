package lib

import sigar "github.com/cloudfoundry/gosigar"

// Memory return total, used and free RAM on the host, in bytes.
// Callers use this to pick default capacities and purge thresholds.
func Memory() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
