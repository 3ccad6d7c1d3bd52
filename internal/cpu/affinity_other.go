//go:build !linux && !darwin && !windows

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread.
func Pin(slot int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
