// Package cpu pins worker goroutines to OS threads and CPU cores.
package cpu

import "runtime"

// Count returns the number of logical CPUs usable by the process.
func Count() int {
	return runtime.NumCPU()
}

// coreFor maps an arbitrary worker slot onto a valid core index.
func coreFor(slot int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 0
	}
	slot %= n
	if slot < 0 {
		slot += n
	}
	return slot
}
