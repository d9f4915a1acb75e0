package system

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ProcessingUnits returns the number of logical CPUs, falling back to the
// Go runtime's view when the host cannot be queried
func ProcessingUnits() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// PoolSize resolves a configured worker count; zero or less means one
// worker per processing unit
func PoolSize(configured int) int {
	if configured > 0 {
		return configured
	}
	return ProcessingUnits()
}
