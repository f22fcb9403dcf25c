package txnset

import "github.com/cloudfoundry/gosigar"

// systemMemory reports total, used, and free system memory in bytes,
// grounded on llrb/config.go's getsysmem (sigar.Mem{}.Get()).
func systemMemory() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
