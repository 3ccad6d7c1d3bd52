//go:build windows

package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

var procSetThreadAffinityMask = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadAffinityMask")

// Pin locks the calling goroutine to its OS thread and sets the thread's
// affinity mask to the core chosen for slot.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	release = runtime.UnlockOSThread

	core := coreFor(slot)
	prev, _, callErr := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), uintptr(1)<<uint(core))
	if prev == 0 {
		return release, fmt.Errorf("pin to core %d: %w", core, callErr)
	}
	return release, nil
}
