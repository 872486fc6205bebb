//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect detects CPU cores and memory. On Linux memory comes from
// sysinfo(2); available memory counts free RAM plus buffers.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		CPUCores: runtime.NumCPU(),
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return resources, fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	resources.TotalRAM = int64(uint64(info.Totalram) * unit)
	resources.AvailableRAM = int64((uint64(info.Freeram) + uint64(info.Bufferram)) * unit)
	if resources.AvailableRAM > resources.TotalRAM {
		resources.AvailableRAM = resources.TotalRAM
	}

	return resources, nil
}
