//go:build linux

package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to the core chosen for slot. The returned release func must run on the
// same goroutine. The thread stays locked even if pinning fails.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread

	core := coreFor(slot)
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(core)

	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return release, fmt.Errorf("pin to core %d: %w", core, err)
	}
	return release, nil
}
