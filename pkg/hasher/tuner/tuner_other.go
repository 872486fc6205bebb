//go:build !darwin && !linux

package tuner

import "runtime"

// Detect returns the CPU count and assumed memory figures.
func Detect() (SystemResources, error) {
	return Fallback(runtime.NumCPU()), nil
}
