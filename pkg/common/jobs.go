package common

import "runtime"

// MakeJobs returns the parallelism hint passed to child build tools via the
// MAKE_JOBS environment variable. Build commands themselves run serially;
// only the commands they spawn (make, ninja, ...) are free to parallelize.
func MakeJobs() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
