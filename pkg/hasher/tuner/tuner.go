// Package tuner detects system resources and sizes hasher's worker pools.
// Metric computation is CPU-bound for fingerprints and loads each file
// whole, so the pool follows the core count and the bytes in flight are
// capped by a share of available memory.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available RAM in bytes. It may be an estimate.
	AvailableRAM int64
}

// OptimalConfig contains the tuned worker configuration.
type OptimalConfig struct {
	// Workers is the size of the metric computation pool.
	Workers int

	// WalkWorkers is the number of fastwalk goroutines for enumeration.
	WalkWorkers int

	// MemoryBudget caps the total bytes of file content held in memory by
	// concurrent fingerprint workers.
	MemoryBudget int64
}

const (
	maxWorkers     = 64
	minWalkWorkers = 4
	maxWalkWorkers = 32

	// memoryFraction is the share of available RAM that in-flight file
	// contents may occupy.
	memoryFraction = 0.25

	// minMemoryBudget keeps small or misdetected systems usable.
	minMemoryBudget = 64 * 1024 * 1024
)

// Calculate returns the configuration for the given resources.
//
//   - Workers: NumCPU, clamped to [1, 64]
//   - WalkWorkers: NumCPU, clamped to [4, 32]; walking is metadata-bound
//   - MemoryBudget: a quarter of available RAM, at least 64 MiB
func Calculate(resources SystemResources) OptimalConfig {
	workers := min(max(resources.CPUCores, 1), maxWorkers)
	walkWorkers := min(max(resources.CPUCores, minWalkWorkers), maxWalkWorkers)

	budget := int64(float64(resources.AvailableRAM) * memoryFraction)
	budget = max(budget, minMemoryBudget)

	return OptimalConfig{
		Workers:      workers,
		WalkWorkers:  walkWorkers,
		MemoryBudget: budget,
	}
}

// CalculateWithOverrides applies a user worker override to the calculated
// configuration. Overrides above the cap are clamped; zero or negative
// overrides are ignored.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)
	if workerOverride > 0 {
		config.Workers = min(workerOverride, maxWorkers)
	}
	return config
}

// Fallback returns conservative resources for when detection fails.
func Fallback(cpus int) SystemResources {
	return SystemResources{
		CPUCores:     cpus,
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}
}

// defaultTotalRAM is assumed when memory cannot be detected.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024
