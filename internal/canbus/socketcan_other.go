//go:build !linux

package canbus

import (
	"fmt"
	"runtime"
)

// OpenSocketCAN is only available on Linux.
func OpenSocketCAN(name string) (*SocketCAN, error) {
	return nil, fmt.Errorf("socketcan: %s: not supported on %s", name, runtime.GOOS)
}
