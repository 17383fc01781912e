//go:build !linux

package device

import (
	"fmt"
	"runtime"
)

// Reboot restarts the whole machine. Only supported on Linux.
type Reboot struct{}

func (Reboot) Restart() error {
	return fmt.Errorf("device: reboot not supported on %s", runtime.GOOS)
}
