//go:build linux

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Reboot restarts the whole machine. It needs CAP_SYS_BOOT.
type Reboot struct{}

func (Reboot) Restart() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("device: reboot: %w", err)
	}
	return nil
}
