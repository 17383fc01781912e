//go:build linux

package canbus

import (
	"fmt"
	"net"

	sockcan "github.com/brutella/can"
)

// OpenSocketCAN binds a raw CAN socket to the named interface (e.g. can0).
func OpenSocketCAN(name string) (*SocketCAN, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("socketcan: find interface %s: %w", name, err)
	}
	rwc, err := sockcan.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan: open %s: %w", name, err)
	}
	return NewSocketCAN(name, rwc), nil
}
