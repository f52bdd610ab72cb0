//go:build !windows

package injector

import (
	"fmt"
	"runtime"
)

// loadRemoteModule is only implemented for Windows targets; the peer module
// is a Windows DLL.
func loadRemoteModule(pid int32, path string) (uintptr, error) {
	return 0, fmt.Errorf("remote module load not supported on %s", runtime.GOOS)
}

func freeRemoteModule(pid int32, base uintptr) error {
	return fmt.Errorf("remote module unload not supported on %s", runtime.GOOS)
}
