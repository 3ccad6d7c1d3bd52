//go:build darwin

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread. macOS has no API for
// hard core pinning, so the slot is ignored.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
