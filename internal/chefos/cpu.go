package chefos

import "runtime"

// CPUCount returns the number of logical CPUs available to the process,
// used by the make backend to size its -j parallelism.
func CPUCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
